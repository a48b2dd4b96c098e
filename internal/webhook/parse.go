package webhook

import (
	"encoding/json"
	"strconv"

	"github.com/MikeMC777/pagos-ecom/internal/apperr"
)

// Event is the one canonical shape everything downstream works with. The
// provider's own payloads use different field names per event type; they are
// normalized here and nowhere else.
type Event struct {
	ExternalOrderID   string
	ProviderStatus    string
	ProviderPaymentID string
	Amount            string
	Currency          string
	CustomerName      string
	CustomerPhone     string
	RawBody           []byte
}

// flexString tolerates providers that send amounts as JSON numbers on some
// event types and strings on others.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type payloadOrder struct {
	OrderID   string `json:"order_id"`
	OrderIDCC string `json:"orderId"`
	ID        string `json:"id"`
	Status    string `json:"status"`
}

type payloadPayment struct {
	PaymentID     string     `json:"payment_id"`
	PaymentIDCC   string     `json:"paymentId"`
	TransactionID string     `json:"transaction_id"`
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	State         string     `json:"state"`
	Amount        flexString `json:"amount"`
	Currency      string     `json:"currency"`
}

type payloadCustomer struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Mobile   string `json:"mobile"`
}

type payload struct {
	Event  string `json:"event"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Data   struct {
		Order    payloadOrder    `json:"order"`
		Payment  payloadPayment  `json:"payment"`
		Customer payloadCustomer `json:"customer"`
	} `json:"data"`
	// Some event types skip the data envelope entirely.
	Order    payloadOrder    `json:"order"`
	Payment  payloadPayment  `json:"payment"`
	Customer payloadCustomer `json:"customer"`
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Parse normalizes a raw provider payload. The only hard requirement is an
// order reference: an event that cannot be tied to an order is useless.
func Parse(rawBody []byte) (*Event, error) {
	var p payload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "malformed webhook payload", err)
	}

	ord := p.Data.Order
	if ord == (payloadOrder{}) {
		ord = p.Order
	}
	pay := p.Data.Payment
	if pay == (payloadPayment{}) {
		pay = p.Payment
	}
	cust := p.Data.Customer
	if cust == (payloadCustomer{}) {
		cust = p.Customer
	}

	ev := &Event{
		ExternalOrderID:   first(ord.OrderID, ord.OrderIDCC, ord.ID),
		ProviderStatus:    first(pay.Status, pay.State, ord.Status, p.Status),
		ProviderPaymentID: first(pay.PaymentID, pay.PaymentIDCC, pay.TransactionID, pay.ID),
		Amount:            normalizeAmount(string(pay.Amount)),
		Currency:          pay.Currency,
		CustomerName:      first(cust.Name, cust.FullName),
		CustomerPhone:     first(cust.Phone, cust.Mobile),
		RawBody:           rawBody,
	}
	if ev.ExternalOrderID == "" {
		return nil, apperr.New(apperr.Validation, "webhook payload missing order id")
	}
	return ev, nil
}

func normalizeAmount(s string) string {
	if s == "" {
		return ""
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return ""
	}
	return s
}
