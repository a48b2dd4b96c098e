// Package recon merges verified payment events and admin actions into order
// state. All mutations funnel through order.Repository's locked transactions;
// this package owns the provider-status translation and the notification
// trigger.
package recon

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MikeMC777/pagos-ecom/internal/apperr"
	"github.com/MikeMC777/pagos-ecom/internal/notify"
	"github.com/MikeMC777/pagos-ecom/internal/order"
	"github.com/MikeMC777/pagos-ecom/internal/webhook"
)

// providerStatus is the single translation table from provider vocabulary to
// internal state. Anything not listed records a payment row but never moves
// the order.
var providerStatus = map[string]order.Status{
	"SUCCESS":    order.StatusPaid,
	"SUCCESSFUL": order.StatusPaid,
	"PAID":       order.StatusPaid,
	"COMPLETED":  order.StatusPaid,
	"APPROVED":   order.StatusPaid,
	"FAILED":     order.StatusFailed,
	"FAILURE":    order.StatusFailed,
	"DECLINED":   order.StatusFailed,
	"EXPIRED":    order.StatusFailed,
}

// TranslateStatus maps a raw provider status to the internal target status.
func TranslateStatus(s string) (order.Status, bool) {
	st, ok := providerStatus[strings.ToUpper(strings.TrimSpace(s))]
	return st, ok
}

type enqueuer interface {
	Enqueue(m notify.Message)
}

type Engine struct {
	repo       order.Repository
	dispatcher enqueuer
	provider   string
	log        *zap.Logger
}

func NewEngine(repo order.Repository, d enqueuer, provider string, log *zap.Logger) *Engine {
	return &Engine{repo: repo, dispatcher: d, provider: provider, log: log}
}

// Apply merges one verified webhook event. Safe to call any number of times
// with the same delivery: duplicates are absorbed, never errored, so the
// provider stops retrying.
func (e *Engine) Apply(ctx context.Context, ev *webhook.Event) error {
	o, err := e.lookupOrBackfill(ctx, ev)
	if err != nil {
		return err
	}

	target, known := TranslateStatus(ev.ProviderStatus)
	if !known {
		e.log.Info("unmapped provider status, recording payment only",
			zap.String("external_order_id", ev.ExternalOrderID),
			zap.String("provider_status", ev.ProviderStatus))
		target = ""
	}

	amount := ev.Amount
	if amount == "" {
		amount = o.TotalAmount
	}

	u := order.EventUpdate{
		OrderID:       o.ID,
		Target:        target,
		PaymentStatus: ev.ProviderStatus,
		TransactionID: ev.ProviderPaymentID,
		Reason:        "provider status " + ev.ProviderStatus,
		CreatedBy:     e.provider,
	}
	if ev.ProviderPaymentID != "" {
		u.Payment = order.Payment{
			ID:                uuid.NewString(),
			OrderID:           o.ID,
			Provider:          e.provider,
			Status:            ev.ProviderStatus,
			Amount:            amount,
			Currency:          ev.Currency,
			ProviderPaymentID: ev.ProviderPaymentID,
			RawResponse:       string(ev.RawBody),
		}
	}

	res, err := e.repo.ApplyEvent(ctx, u)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "apply payment event", err)
	}

	if res.Transitioned {
		e.log.Info("order transitioned",
			zap.String("order_id", o.ID),
			zap.String("external_order_id", o.ExternalOrderID),
			zap.String("old_status", string(res.OldStatus)),
			zap.String("new_status", string(res.NewStatus)))
	} else {
		e.log.Info("event ignored, no state change",
			zap.String("order_id", o.ID),
			zap.String("external_order_id", o.ExternalOrderID),
			zap.String("status", string(res.OldStatus)),
			zap.String("provider_status", ev.ProviderStatus),
			zap.Bool("duplicate_payment", !res.PaymentInserted))
	}

	if res.FirstPaid {
		phone := o.CustomerPhone
		if phone == "" {
			phone = ev.CustomerPhone
		}
		if phone != "" {
			e.dispatcher.Enqueue(notify.Message{
				Phone:    phone,
				Template: "payment_confirmed",
				Params: map[string]string{
					"order":  o.ExternalOrderID,
					"amount": o.TotalAmount,
				},
			})
		}
	}
	return nil
}

// lookupOrBackfill resolves the order for an event. A payment event against
// an unknown order is never dropped: a minimal PENDING order is created from
// the event's own fields so the money still has a home.
func (e *Engine) lookupOrBackfill(ctx context.Context, ev *webhook.Event) (*order.Order, error) {
	o, err := e.repo.GetByExternalID(ctx, ev.ExternalOrderID)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, order.ErrNotFound) {
		return nil, apperr.Wrap(apperr.Persistence, "load order", err)
	}

	total := ev.Amount
	if total == "" {
		total = "0"
	}
	candidate := &order.Order{
		ID:              uuid.NewString(),
		ExternalOrderID: ev.ExternalOrderID,
		Status:          order.StatusPending,
		PaymentStatus:   "PENDING",
		TotalAmount:     total,
		CustomerName:    ev.CustomerName,
		CustomerPhone:   ev.CustomerPhone,
		AdminNotes:      "back-filled from webhook",
	}
	err = e.repo.Create(ctx, candidate, nil)
	if err == nil {
		e.log.Warn("order back-filled from webhook",
			zap.String("order_id", candidate.ID),
			zap.String("external_order_id", ev.ExternalOrderID))
		return candidate, nil
	}
	if errors.Is(err, order.ErrDuplicate) {
		// lost the insert race against intake or another delivery
		o, err = e.repo.GetByExternalID(ctx, ev.ExternalOrderID)
		if err == nil {
			return o, nil
		}
	}
	return nil, apperr.Wrap(apperr.Persistence, "back-fill order", err)
}
