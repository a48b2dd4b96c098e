package recon

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeMC777/pagos-ecom/internal/notify"
	"github.com/MikeMC777/pagos-ecom/internal/order"
)

// memRepo implements order.Repository in memory with the same semantics as
// PGRepo: unique external ids, payment dedup by provider payment id,
// history only on actual transitions.
type memRepo struct {
	mu       sync.Mutex
	orders   map[string]*order.Order // by internal id
	byExt    map[string]string
	items    map[string][]order.Item
	payments map[string]order.Payment // by provider_payment_id
	history  []order.StatusHistory
}

func newMemRepo() *memRepo {
	return &memRepo{
		orders:   map[string]*order.Order{},
		byExt:    map[string]string{},
		items:    map[string][]order.Item{},
		payments: map[string]order.Payment{},
	}
}

func (m *memRepo) Create(_ context.Context, o *order.Order, items []order.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byExt[o.ExternalOrderID]; ok {
		return order.ErrDuplicate
	}
	cp := *o
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.orders[cp.ID] = &cp
	m.byExt[cp.ExternalOrderID] = cp.ID
	m.items[cp.ID] = append([]order.Item(nil), items...)
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memRepo) GetByExternalID(_ context.Context, ext string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byExt[ext]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *m.orders[id]
	return &cp, nil
}

func (m *memRepo) GetItems(_ context.Context, orderID string) ([]order.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]order.Item(nil), m.items[orderID]...), nil
}

func (m *memRepo) SetGatewaySession(_ context.Context, id, sessionID, providerOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.PaymentSessionID = sessionID
	o.ProviderOrderID = providerOrderID
	return nil
}

func (m *memRepo) ApplyEvent(_ context.Context, u order.EventUpdate) (*order.EventResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[u.OrderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	res := &order.EventResult{OldStatus: o.Status, NewStatus: o.Status}

	if u.Payment.ProviderPaymentID != "" {
		if _, dup := m.payments[u.Payment.ProviderPaymentID]; !dup {
			m.payments[u.Payment.ProviderPaymentID] = u.Payment
			res.PaymentInserted = true
		}
	}

	if u.Target != "" && !o.Status.IsTerminal() && o.Status != u.Target && order.CanTransition(o.Status, u.Target) {
		m.history = append(m.history, order.StatusHistory{
			ID:        uuid.NewString(),
			OrderID:   u.OrderID,
			OldStatus: o.Status,
			NewStatus: u.Target,
			Reason:    u.Reason,
			CreatedBy: u.CreatedBy,
			CreatedAt: time.Now(),
		})
		o.Status = u.Target
		o.PaymentStatus = u.PaymentStatus
		if u.TransactionID != "" {
			o.TransactionID = u.TransactionID
		}
		o.UpdatedAt = time.Now()
		res.Transitioned = true
		res.NewStatus = u.Target
		if u.Target == order.StatusPaid {
			n := 0
			for _, h := range m.history {
				if h.OrderID == u.OrderID && h.NewStatus == order.StatusPaid {
					n++
				}
			}
			res.FirstPaid = n == 1
		}
	}
	return res, nil
}

func (m *memRepo) ApplyAdminAction(_ context.Context, u order.AdminUpdate) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[u.OrderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	if !order.CanTransition(o.Status, u.Target) {
		return nil, order.ErrConflict
	}
	m.history = append(m.history, order.StatusHistory{
		ID:        uuid.NewString(),
		OrderID:   u.OrderID,
		OldStatus: o.Status,
		NewStatus: u.Target,
		Reason:    u.Reason,
		AdminNote: u.AdminNote,
		CreatedBy: u.CreatedBy,
		CreatedAt: time.Now(),
	})
	o.Status = u.Target
	switch u.Target {
	case order.StatusRefunded:
		o.RefundAmount = u.RefundAmount
		o.RefundReason = u.Reason
	case order.StatusReturned:
		o.ReturnReason = u.Reason
	}
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (m *memRepo) GetPayments(_ context.Context, orderID string) ([]order.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Payment
	for _, p := range m.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memRepo) GetHistory(_ context.Context, orderID string) ([]order.StatusHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.StatusHistory
	for _, h := range m.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

// stubDispatcher records enqueued notifications synchronously.
type stubDispatcher struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (s *stubDispatcher) Enqueue(m notify.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
}

func (s *stubDispatcher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}
