// Package gateway is the adapter to the external payment provider API.
// Transport failures surface as *UpstreamError; local order state is never
// touched from here.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type UpstreamError struct {
	Op     string
	Status int // HTTP status from the provider, 0 on transport failure
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s: provider returned %d", e.Op, e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type Session struct {
	SessionID       string `json:"session_id"`
	ProviderOrderID string `json:"provider_order_id"`
	Env             string `json:"env"`
}

type StatusResult struct {
	Status    string          `json:"status"`
	Amount    string          `json:"amount"`
	PaymentID string          `json:"payment_id"`
	Raw       json.RawMessage `json:"-"`
}

type Client interface {
	CreateSession(ctx context.Context, orderID, amount, currency string, cust Customer, notifyURL, returnURL string) (*Session, error)
	QueryStatus(ctx context.Context, providerOrderID string) (*StatusResult, error)
}

type HTTPClient struct {
	HTTP    *http.Client
	BaseURL string
	Env     string // sandbox | production, echoed back to callers
}

func NewHTTPClient(baseURL, env string) *HTTPClient {
	return &HTTPClient{
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		BaseURL: baseURL,
		Env:     env,
	}
}

func (c *HTTPClient) CreateSession(ctx context.Context, orderID, amount, currency string, cust Customer, notifyURL, returnURL string) (*Session, error) {
	body, _ := json.Marshal(map[string]any{
		"order_id":   orderID,
		"amount":     amount,
		"currency":   currency,
		"customer":   cust,
		"notify_url": notifyURL,
		"return_url": returnURL,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Op: "createSession", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &UpstreamError{Op: "createSession", Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return nil, &UpstreamError{Op: "createSession", Status: res.StatusCode}
	}

	var s Session
	if err := json.NewDecoder(res.Body).Decode(&s); err != nil {
		return nil, &UpstreamError{Op: "createSession", Err: err}
	}
	if s.Env == "" {
		s.Env = c.Env
	}
	return &s, nil
}

func (c *HTTPClient) QueryStatus(ctx context.Context, providerOrderID string) (*StatusResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/sessions/%s", c.BaseURL, providerOrderID), nil)
	if err != nil {
		return nil, &UpstreamError{Op: "queryStatus", Err: err}
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &UpstreamError{Op: "queryStatus", Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Op: "queryStatus", Status: res.StatusCode}
	}

	var buf bytes.Buffer
	var out StatusResult
	if err := json.NewDecoder(io.TeeReader(res.Body, &buf)).Decode(&out); err != nil {
		return nil, &UpstreamError{Op: "queryStatus", Err: err}
	}
	out.Raw = json.RawMessage(buf.Bytes())
	return &out, nil
}
