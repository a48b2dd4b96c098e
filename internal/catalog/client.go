// Package catalog talks to the product catalog collaborator. Prices returned
// here are the only prices the intake service trusts.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var ErrNotFound = errors.New("product not found")

type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

type Catalog interface {
	GetPrice(ctx context.Context, productID string) (*Product, error)
}

type HTTPClient struct {
	HTTP    *http.Client
	BaseURL string
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		BaseURL: baseURL,
	}
}

func (c *HTTPClient) GetPrice(ctx context.Context, productID string) (*Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/products/%s", c.BaseURL, productID), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: %s", res.Status)
	}
	var p Product
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RedeemCoupon marks a coupon used for an order. Best effort by contract:
// callers log failures and move on, order creation never depends on it.
func (c *HTTPClient) RedeemCoupon(ctx context.Context, code, orderID string) error {
	body, _ := json.Marshal(map[string]string{"order_id": orderID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/coupons/%s/redeem", c.BaseURL, code), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("coupon redeem: %s", res.Status)
	}
	return nil
}
