package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound  = errors.New("order not found")
	ErrDuplicate = errors.New("order already exists")
	ErrConflict  = errors.New("transition not allowed from current status")
)

// EventUpdate is one verified provider event to merge into an order.
type EventUpdate struct {
	OrderID       string
	Target        Status // empty: record the payment, never move the order
	PaymentStatus string // provider's raw status string
	TransactionID string
	Payment       Payment
	Reason        string
	CreatedBy     string
}

type EventResult struct {
	OldStatus       Status
	NewStatus       Status
	Transitioned    bool
	PaymentInserted bool
	FirstPaid       bool
}

// AdminUpdate is one human-initiated transition.
type AdminUpdate struct {
	OrderID      string
	Target       Status
	Reason       string
	AdminNote    string
	RefundAmount string // refund only
	CreatedBy    string
}

type Repository interface {
	Create(ctx context.Context, o *Order, items []Item) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByExternalID(ctx context.Context, externalID string) (*Order, error)
	GetItems(ctx context.Context, orderID string) ([]Item, error)
	SetGatewaySession(ctx context.Context, id, sessionID, providerOrderID string) error
	ApplyEvent(ctx context.Context, u EventUpdate) (*EventResult, error)
	ApplyAdminAction(ctx context.Context, u AdminUpdate) (*Order, error)
	GetPayments(ctx context.Context, orderID string) ([]Payment, error)
	GetHistory(ctx context.Context, orderID string) ([]StatusHistory, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const orderCols = `id, external_order_id, status, payment_status, total_amount::text,
    customer_name, customer_phone, payment_session_id, provider_order_id, transaction_id,
    COALESCE(refund_amount::text,''), refund_reason, return_reason, admin_notes,
    created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.ExternalOrderID, &o.Status, &o.PaymentStatus, &o.TotalAmount,
		&o.CustomerName, &o.CustomerPhone, &o.PaymentSessionID, &o.ProviderOrderID, &o.TransactionID,
		&o.RefundAmount, &o.RefundReason, &o.ReturnReason, &o.AdminNotes,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create persists the order and all its items in one transaction. The UNIQUE
// constraint on external_order_id makes the loser of a concurrent insert race
// come back with ErrDuplicate.
func (r *PGRepo) Create(ctx context.Context, o *Order, items []Item) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
    INSERT INTO orders (id, external_order_id, status, payment_status, total_amount,
        customer_name, customer_phone, admin_notes, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
  `, o.ID, o.ExternalOrderID, o.Status, o.PaymentStatus, o.TotalAmount,
		o.CustomerName, o.CustomerPhone, o.AdminNotes); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
      INSERT INTO order_items (id, order_id, product_id, name, quantity, unit_price, total_price)
      VALUES ($1,$2,$3,$4,$5,$6,$7)
    `, it.ID, o.ID, it.ProductID, it.Name, it.Quantity, it.UnitPrice, it.TotalPrice); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return scanOrder(r.db.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
}

func (r *PGRepo) GetByExternalID(ctx context.Context, externalID string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return scanOrder(r.db.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE external_order_id=$1`, externalID))
}

func (r *PGRepo) GetItems(ctx context.Context, orderID string) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
    SELECT id, order_id, product_id, name, quantity, unit_price::text, total_price::text
    FROM order_items WHERE order_id=$1
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *PGRepo) SetGatewaySession(ctx context.Context, id, sessionID, providerOrderID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
    UPDATE orders SET payment_session_id=$2, provider_order_id=$3, updated_at=NOW()
    WHERE id=$1
  `, id, sessionID, providerOrderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyEvent merges one provider event under a row lock so concurrent
// deliveries and admin actions serialize on the order. Everything commits or
// nothing does: a Payment row without the matching order update must be
// unreachable.
func (r *PGRepo) ApplyEvent(ctx context.Context, u EventUpdate) (*EventResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, u.OrderID))
	if err != nil {
		return nil, err
	}
	res := &EventResult{OldStatus: cur.Status, NewStatus: cur.Status}

	if u.Payment.ProviderPaymentID != "" {
		tag, err := tx.Exec(ctx, `
      INSERT INTO payments (id, order_id, provider, status, amount, currency, provider_payment_id, raw_response, created_at)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
      ON CONFLICT (provider_payment_id) DO NOTHING
    `, u.Payment.ID, u.OrderID, u.Payment.Provider, u.Payment.Status, u.Payment.Amount,
			u.Payment.Currency, u.Payment.ProviderPaymentID, u.Payment.RawResponse)
		if err != nil {
			return nil, err
		}
		res.PaymentInserted = tag.RowsAffected() > 0
	}

	// Terminal orders and already-reached targets are known-duplicate
	// deliveries: record the payment above, leave the order alone.
	if u.Target != "" && !cur.Status.IsTerminal() && cur.Status != u.Target && CanTransition(cur.Status, u.Target) {
		txnID := u.TransactionID
		if txnID == "" {
			txnID = cur.TransactionID
		}
		if _, err := tx.Exec(ctx, `
      UPDATE orders SET status=$2, payment_status=$3, transaction_id=$4, updated_at=NOW()
      WHERE id=$1
    `, u.OrderID, u.Target, u.PaymentStatus, txnID); err != nil {
			return nil, err
		}
		if err := insertHistory(ctx, tx, StatusHistory{
			OrderID:   u.OrderID,
			OldStatus: cur.Status,
			NewStatus: u.Target,
			Reason:    u.Reason,
			CreatedBy: u.CreatedBy,
		}); err != nil {
			return nil, err
		}
		res.Transitioned = true
		res.NewStatus = u.Target

		if u.Target == StatusPaid {
			// Checked against history, not against this event: only the call
			// that wrote the first PAID row triggers the notification.
			var n int
			if err := tx.QueryRow(ctx, `
        SELECT COUNT(*) FROM order_status_history WHERE order_id=$1 AND new_status=$2
      `, u.OrderID, StatusPaid).Scan(&n); err != nil {
				return nil, err
			}
			res.FirstPaid = n == 1
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// ApplyAdminAction performs one human-initiated transition. Unlike the
// webhook path there is no silent no-op: a disallowed source status is
// ErrConflict so the operator gets feedback.
func (r *PGRepo) ApplyAdminAction(ctx context.Context, u AdminUpdate) (*Order, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, u.OrderID))
	if err != nil {
		return nil, err
	}
	if !CanTransition(cur.Status, u.Target) {
		return nil, ErrConflict
	}

	switch u.Target {
	case StatusRefunded:
		_, err = tx.Exec(ctx, `
      UPDATE orders SET status=$2, refund_amount=$3, refund_reason=$4,
          admin_notes=$5, updated_at=NOW()
      WHERE id=$1
    `, u.OrderID, u.Target, u.RefundAmount, u.Reason, appendNote(cur.AdminNotes, u.AdminNote))
	case StatusReturned:
		_, err = tx.Exec(ctx, `
      UPDATE orders SET status=$2, return_reason=$3, admin_notes=$4, updated_at=NOW()
      WHERE id=$1
    `, u.OrderID, u.Target, u.Reason, appendNote(cur.AdminNotes, u.AdminNote))
	default:
		_, err = tx.Exec(ctx, `
      UPDATE orders SET status=$2, admin_notes=$3, updated_at=NOW()
      WHERE id=$1
    `, u.OrderID, u.Target, appendNote(cur.AdminNotes, u.AdminNote))
	}
	if err != nil {
		return nil, err
	}

	if err := insertHistory(ctx, tx, StatusHistory{
		OrderID:   u.OrderID,
		OldStatus: cur.Status,
		NewStatus: u.Target,
		Reason:    u.Reason,
		AdminNote: u.AdminNote,
		CreatedBy: u.CreatedBy,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, u.OrderID)
}

func insertHistory(ctx context.Context, tx pgx.Tx, h StatusHistory) error {
	_, err := tx.Exec(ctx, `
    INSERT INTO order_status_history (id, order_id, old_status, new_status, reason, admin_note, created_by, created_at)
    VALUES (gen_random_uuid(),$1,$2,$3,$4,$5,$6,NOW())
  `, h.OrderID, h.OldStatus, h.NewStatus, h.Reason, h.AdminNote, h.CreatedBy)
	return err
}

func appendNote(existing, note string) string {
	if note == "" {
		return existing
	}
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

func (r *PGRepo) GetPayments(ctx context.Context, orderID string) ([]Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
    SELECT id, order_id, provider, status, amount::text, currency, provider_payment_id, raw_response, created_at
    FROM payments WHERE order_id=$1 ORDER BY created_at
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Provider, &p.Status, &p.Amount, &p.Currency,
			&p.ProviderPaymentID, &p.RawResponse, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PGRepo) GetHistory(ctx context.Context, orderID string) ([]StatusHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
    SELECT id, order_id, old_status, new_status, reason, admin_note, created_by, created_at
    FROM order_status_history WHERE order_id=$1 ORDER BY created_at
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusHistory
	for rows.Next() {
		var h StatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.OldStatus, &h.NewStatus, &h.Reason, &h.AdminNote, &h.CreatedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
