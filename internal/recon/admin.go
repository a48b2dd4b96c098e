package recon

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeMC777/pagos-ecom/internal/apperr"
	"github.com/MikeMC777/pagos-ecom/internal/order"
)

// AdminService is the human entry point into the same state machine. Unlike
// the webhook path, disallowed transitions come back as conflicts so the
// operator sees what went wrong.
type AdminService struct {
	repo order.Repository
	log  *zap.Logger
}

func NewAdminService(repo order.Repository, log *zap.Logger) *AdminService {
	return &AdminService{repo: repo, log: log}
}

func (s *AdminService) Cancel(ctx context.Context, orderID, reason, note string) (*order.Order, error) {
	return s.apply(ctx, order.AdminUpdate{
		OrderID:   orderID,
		Target:    order.StatusCancelled,
		Reason:    reason,
		AdminNote: note,
		CreatedBy: "admin",
	})
}

func (s *AdminService) Return(ctx context.Context, orderID, reason, note string) (*order.Order, error) {
	return s.apply(ctx, order.AdminUpdate{
		OrderID:   orderID,
		Target:    order.StatusReturned,
		Reason:    reason,
		AdminNote: note,
		CreatedBy: "admin",
	})
}

// Refund checks 0 < amount <= total before any mutation happens.
func (s *AdminService) Refund(ctx context.Context, orderID, amount, reason, note string) (*order.Order, error) {
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "invalid refund amount")
	}
	if !amt.IsPositive() {
		return nil, apperr.New(apperr.Validation, "refund amount must be positive")
	}

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	total, err := decimal.NewFromString(o.TotalAmount)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "stored total unreadable", err)
	}
	if amt.GreaterThan(total) {
		return nil, apperr.Newf(apperr.Validation, "refund amount %s exceeds order total %s", amt, total)
	}

	return s.apply(ctx, order.AdminUpdate{
		OrderID:      orderID,
		Target:       order.StatusRefunded,
		Reason:       reason,
		AdminNote:    note,
		RefundAmount: amt.String(),
		CreatedBy:    "admin",
	})
}

func (s *AdminService) apply(ctx context.Context, u order.AdminUpdate) (*order.Order, error) {
	o, err := s.repo.ApplyAdminAction(ctx, u)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	s.log.Info("admin transition applied",
		zap.String("order_id", u.OrderID),
		zap.String("new_status", string(u.Target)),
		zap.String("reason", u.Reason))
	return o, nil
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, order.ErrNotFound):
		return apperr.New(apperr.NotFound, "order not found")
	case errors.Is(err, order.ErrConflict):
		return apperr.Wrap(apperr.Conflict, "transition not allowed from current status", err)
	default:
		return apperr.Wrap(apperr.Persistence, "admin action", err)
	}
}
