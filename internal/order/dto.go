package order

// CreateOrderItem payload of one line item. Client price fields are not
// accepted here: unit prices always come from the catalog.
type CreateOrderItem struct {
	ProductID string `json:"product_id" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity  int    `json:"quantity"  example:"2"`
}

// CreateOrderRequest payload of order creation. ExternalOrderID is the
// client's idempotency key.
type CreateOrderRequest struct {
	ExternalOrderID string            `json:"externalOrderId" example:"A1-2024-000123"`
	Amount          string            `json:"amount,omitempty"` // informational, ignored for pricing
	CustomerName    string            `json:"customerName"`
	CustomerPhone   string            `json:"customerPhone"`
	CustomerEmail   string            `json:"customerEmail,omitempty"`
	ReturnURL       string            `json:"returnUrl"`
	Items           []CreateOrderItem `json:"items"`
	CouponCode      string            `json:"couponCode,omitempty"`
}

// AdminActionRequest payload for cancel/return/refund.
type AdminActionRequest struct {
	Reason       string `json:"reason"`
	AdminNote    string `json:"adminNote,omitempty"`
	RefundAmount string `json:"refundAmount,omitempty"`
}

// HTTPError represents a standard error in JSON.
type HTTPError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
