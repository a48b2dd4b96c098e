package order

import "time"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusReturned  Status = "RETURNED"
	StatusRefunded  Status = "REFUNDED"
)

// IsTerminal reports whether no further transition is accepted from s.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// transitions is the whole state machine. Provider events drive
// PENDING->PAID/FAILED; everything else is admin-driven.
var transitions = map[Status][]Status{
	StatusPending:  {StatusPaid, StatusFailed, StatusCancelled},
	StatusPaid:     {StatusCancelled, StatusReturned, StatusRefunded},
	StatusReturned: {StatusRefunded},
}

// CanTransition reports whether from -> to is an allowed transition.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID              string `json:"id"`
	ExternalOrderID string `json:"external_order_id"`
	Status          Status `json:"status"`
	PaymentStatus   string `json:"payment_status"`
	// We store amounts as strings to avoid rounding errors (NUMERIC in Postgres)
	TotalAmount      string    `json:"total_amount"`
	CustomerName     string    `json:"customer_name"`
	CustomerPhone    string    `json:"customer_phone"`
	PaymentSessionID string    `json:"payment_session_id,omitempty"`
	ProviderOrderID  string    `json:"provider_order_id,omitempty"`
	TransactionID    string    `json:"transaction_id,omitempty"`
	RefundAmount     string    `json:"refund_amount,omitempty"`
	RefundReason     string    `json:"refund_reason,omitempty"`
	ReturnReason     string    `json:"return_reason,omitempty"`
	AdminNotes       string    `json:"admin_notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Item struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	// Snapshot at order time, immune to later catalog price changes.
	UnitPrice  string `json:"unit_price"`
	TotalPrice string `json:"total_price"`
}

// Payment is one recorded provider attempt. Rows are append-only and never
// updated after insert; provider_payment_id is the idempotency key.
type Payment struct {
	ID                string    `json:"id"`
	OrderID           string    `json:"order_id"`
	Provider          string    `json:"provider"`
	Status            string    `json:"status"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	ProviderPaymentID string    `json:"provider_payment_id"`
	RawResponse       string    `json:"raw_response,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// StatusHistory is the append-only audit log: exactly one row per actual
// status transition. Rejected or no-op attempts never show up here.
type StatusHistory struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	OldStatus Status    `json:"old_status"`
	NewStatus Status    `json:"new_status"`
	Reason    string    `json:"reason,omitempty"`
	AdminNote string    `json:"admin_note,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
