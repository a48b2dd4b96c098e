// Package intake creates orders: it prices them from the catalog, persists
// them atomically and opens the payment session. The client never sets a
// price; external_order_id is the only creation idempotency key.
package intake

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeMC777/pagos-ecom/internal/apperr"
	"github.com/MikeMC777/pagos-ecom/internal/catalog"
	"github.com/MikeMC777/pagos-ecom/internal/gateway"
	"github.com/MikeMC777/pagos-ecom/internal/order"
)

type CouponRedeemer interface {
	RedeemCoupon(ctx context.Context, code, orderID string) error
}

type Service struct {
	repo      order.Repository
	catalog   catalog.Catalog
	gateway   gateway.Client
	coupons   CouponRedeemer // optional
	notifyURL string
	currency  string
	log       *zap.Logger
}

func NewService(repo order.Repository, cat catalog.Catalog, gw gateway.Client, coupons CouponRedeemer, notifyURL, currency string, log *zap.Logger) *Service {
	if currency == "" {
		currency = "USD"
	}
	return &Service{repo: repo, catalog: cat, gateway: gw, coupons: coupons, notifyURL: notifyURL, currency: currency, log: log}
}

type CreateResult struct {
	Order     *order.Order
	Items     []order.Item
	SessionID string
	Env       string
	Existing  bool
}

// CreateOrder runs the whole intake flow. Calling it twice with the same
// externalOrderId returns the stored order with Existing=true and never opens
// a second charge session.
func (s *Service) CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*CreateResult, error) {
	if req.ExternalOrderID == "" {
		return nil, apperr.New(apperr.Validation, "externalOrderId is required")
	}
	if len(req.Items) == 0 {
		return nil, apperr.New(apperr.Validation, "at least one item is required")
	}
	for _, it := range req.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return nil, apperr.New(apperr.Validation, "every item needs a product_id and a positive quantity")
		}
	}

	// idempotency fast path; the storage UNIQUE constraint is the real guard
	if existing, err := s.repo.GetByExternalID(ctx, req.ExternalOrderID); err == nil {
		return s.existingResult(ctx, existing)
	} else if !errors.Is(err, order.ErrNotFound) {
		return nil, apperr.Wrap(apperr.Persistence, "idempotency lookup", err)
	}

	orderID := uuid.NewString()
	items, total, err := s.priceItems(ctx, orderID, req.Items)
	if err != nil {
		return nil, err
	}
	if !total.IsPositive() {
		return nil, apperr.New(apperr.Validation, "order total must be positive")
	}

	o := &order.Order{
		ID:              orderID,
		ExternalOrderID: req.ExternalOrderID,
		Status:          order.StatusPending,
		PaymentStatus:   "PENDING",
		TotalAmount:     total.StringFixed(2),
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
	}
	if err := s.repo.Create(ctx, o, items); err != nil {
		if errors.Is(err, order.ErrDuplicate) {
			// lost the insert race: fall back to the idempotency read path
			existing, err := s.repo.GetByExternalID(ctx, req.ExternalOrderID)
			if err != nil {
				return nil, apperr.Wrap(apperr.Persistence, "idempotency re-read", err)
			}
			return s.existingResult(ctx, existing)
		}
		return nil, apperr.Wrap(apperr.Persistence, "persist order", err)
	}

	sess, err := s.gateway.CreateSession(ctx, o.ID, o.TotalAmount, s.currency,
		gateway.Customer{Name: req.CustomerName, Phone: req.CustomerPhone, Email: req.CustomerEmail},
		s.notifyURL, req.ReturnURL)
	if err != nil {
		// The order stays PENDING so the audit trail survives and the
		// externalOrderId cannot be silently reused; caller retries manually.
		s.log.Error("gateway session failed, order left PENDING",
			zap.String("order_id", o.ID),
			zap.String("external_order_id", o.ExternalOrderID),
			zap.Error(err))
		return nil, apperr.Wrap(apperr.Upstream, "open payment session", err)
	}
	if err := s.repo.SetGatewaySession(ctx, o.ID, sess.SessionID, sess.ProviderOrderID); err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "store gateway session", err)
	}
	o.PaymentSessionID = sess.SessionID
	o.ProviderOrderID = sess.ProviderOrderID

	if req.CouponCode != "" && s.coupons != nil {
		if err := s.coupons.RedeemCoupon(ctx, req.CouponCode, o.ID); err != nil {
			s.log.Warn("coupon redemption failed, continuing",
				zap.String("order_id", o.ID),
				zap.String("coupon", req.CouponCode),
				zap.Error(err))
		}
	}

	return &CreateResult{Order: o, Items: items, SessionID: sess.SessionID, Env: sess.Env}, nil
}

func (s *Service) existingResult(ctx context.Context, o *order.Order) (*CreateResult, error) {
	items, err := s.repo.GetItems(ctx, o.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "load items", err)
	}
	return &CreateResult{Order: o, Items: items, SessionID: o.PaymentSessionID, Existing: true}, nil
}

// priceItems resolves every product against the catalog. Client-supplied
// price fields never participate; one unresolved id fails the whole call.
func (s *Service) priceItems(ctx context.Context, orderID string, reqItems []order.CreateOrderItem) ([]order.Item, decimal.Decimal, error) {
	var items []order.Item
	total := decimal.Zero
	for _, it := range reqItems {
		p, err := s.catalog.GetPrice(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, decimal.Zero, apperr.Newf(apperr.Validation, "unknown product %s", it.ProductID)
			}
			return nil, decimal.Zero, apperr.Wrap(apperr.Upstream, "catalog lookup", err)
		}
		unit, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, decimal.Zero, apperr.Newf(apperr.Upstream, "catalog returned unreadable price for %s", it.ProductID)
		}
		line := unit.Mul(decimal.NewFromInt(int64(it.Quantity)))
		items = append(items, order.Item{
			ID:         uuid.NewString(),
			OrderID:    orderID,
			ProductID:  it.ProductID,
			Name:       p.Name,
			Quantity:   it.Quantity,
			UnitPrice:  unit.StringFixed(2),
			TotalPrice: line.StringFixed(2),
		})
		total = total.Add(line)
	}
	return items, total, nil
}
