package recon

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MikeMC777/pagos-ecom/internal/order"
	"github.com/MikeMC777/pagos-ecom/internal/webhook"
)

func seedOrder(t *testing.T, repo *memRepo, ext, total string) *order.Order {
	t.Helper()
	o := &order.Order{
		ID:              "oid-" + ext,
		ExternalOrderID: ext,
		Status:          order.StatusPending,
		PaymentStatus:   "PENDING",
		TotalAmount:     total,
		CustomerName:    "Ana",
		CustomerPhone:   "+111",
	}
	require.NoError(t, repo.Create(context.Background(), o, nil))
	return o
}

func successEvent(ext, paymentID string) *webhook.Event {
	return &webhook.Event{
		ExternalOrderID:   ext,
		ProviderStatus:    "SUCCESS",
		ProviderPaymentID: paymentID,
		Amount:            "200.00",
		Currency:          "USD",
		RawBody:           []byte(fmt.Sprintf(`{"order":{"order_id":%q}}`, ext)),
	}
}

func TestApply_SuccessTransitionsToPaid(t *testing.T) {
	repo := newMemRepo()
	disp := &stubDispatcher{}
	eng := NewEngine(repo, disp, "payprov", zap.NewNop())
	o := seedOrder(t, repo, "A1", "200.00")

	require.NoError(t, eng.Apply(context.Background(), successEvent("A1", "pay_9")))

	got, _ := repo.GetByID(context.Background(), o.ID)
	require.Equal(t, order.StatusPaid, got.Status)
	require.Equal(t, "SUCCESS", got.PaymentStatus)
	require.Equal(t, "pay_9", got.TransactionID)

	pays, _ := repo.GetPayments(context.Background(), o.ID)
	require.Len(t, pays, 1)
	require.Equal(t, "payprov", pays[0].Provider)
	require.NotEmpty(t, pays[0].RawResponse)

	hist, _ := repo.GetHistory(context.Background(), o.ID)
	require.Len(t, hist, 1)
	require.Equal(t, order.StatusPending, hist[0].OldStatus)
	require.Equal(t, order.StatusPaid, hist[0].NewStatus)
	require.Equal(t, "payprov", hist[0].CreatedBy)

	require.Equal(t, 1, disp.count())
	require.Equal(t, "+111", disp.sent[0].Phone)
	require.Equal(t, "payment_confirmed", disp.sent[0].Template)
}

func TestApply_RedeliveryIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	disp := &stubDispatcher{}
	eng := NewEngine(repo, disp, "payprov", zap.NewNop())
	o := seedOrder(t, repo, "A1", "200.00")

	ev := successEvent("A1", "pay_9")
	for i := 0; i < 5; i++ {
		require.NoError(t, eng.Apply(context.Background(), ev))
	}

	got, _ := repo.GetByID(context.Background(), o.ID)
	require.Equal(t, order.StatusPaid, got.Status)

	pays, _ := repo.GetPayments(context.Background(), o.ID)
	require.Len(t, pays, 1, "one Payment row per provider payment id")

	hist, _ := repo.GetHistory(context.Background(), o.ID)
	require.Len(t, hist, 1, "one transition row")

	require.Equal(t, 1, disp.count(), "one notification despite redeliveries")
}

func TestApply_FailureEvent(t *testing.T) {
	repo := newMemRepo()
	eng := NewEngine(repo, &stubDispatcher{}, "payprov", zap.NewNop())
	o := seedOrder(t, repo, "A2", "50.00")

	ev := successEvent("A2", "pay_1")
	ev.ProviderStatus = "FAILED"
	require.NoError(t, eng.Apply(context.Background(), ev))

	got, _ := repo.GetByID(context.Background(), o.ID)
	require.Equal(t, order.StatusFailed, got.Status)
}

func TestApply_TerminalOrderAbsorbsEvents(t *testing.T) {
	repo := newMemRepo()
	disp := &stubDispatcher{}
	eng := NewEngine(repo, disp, "payprov", zap.NewNop())
	o := seedOrder(t, repo, "A3", "75.00")

	_, err := repo.ApplyAdminAction(context.Background(), order.AdminUpdate{
		OrderID: o.ID, Target: order.StatusCancelled, Reason: "customer request", CreatedBy: "admin",
	})
	require.NoError(t, err)

	// provider retries a success against the cancelled order: accepted at the
	// transport level, no state change, payment still recorded for audit
	require.NoError(t, eng.Apply(context.Background(), successEvent("A3", "pay_7")))

	got, _ := repo.GetByID(context.Background(), o.ID)
	require.Equal(t, order.StatusCancelled, got.Status)

	hist, _ := repo.GetHistory(context.Background(), o.ID)
	require.Len(t, hist, 1, "no transition row for the ignored event")

	pays, _ := repo.GetPayments(context.Background(), o.ID)
	require.Len(t, pays, 1)

	require.Zero(t, disp.count())
}

func TestApply_UnknownOrderIsBackfilled(t *testing.T) {
	repo := newMemRepo()
	disp := &stubDispatcher{}
	eng := NewEngine(repo, disp, "payprov", zap.NewNop())

	ev := successEvent("GHOST-1", "pay_2")
	ev.CustomerName = "Luis"
	ev.CustomerPhone = "+222"
	require.NoError(t, eng.Apply(context.Background(), ev))

	got, err := repo.GetByExternalID(context.Background(), "GHOST-1")
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, got.Status)
	require.Equal(t, "200.00", got.TotalAmount)
	require.Equal(t, "Luis", got.CustomerName)
	require.Contains(t, got.AdminNotes, "back-filled")

	require.Equal(t, 1, disp.count())
	require.Equal(t, "+222", disp.sent[0].Phone)
}

func TestApply_UnmappedStatusRecordsPaymentOnly(t *testing.T) {
	repo := newMemRepo()
	eng := NewEngine(repo, &stubDispatcher{}, "payprov", zap.NewNop())
	o := seedOrder(t, repo, "A4", "10.00")

	ev := successEvent("A4", "pay_3")
	ev.ProviderStatus = "UNDER_REVIEW"
	require.NoError(t, eng.Apply(context.Background(), ev))

	got, _ := repo.GetByID(context.Background(), o.ID)
	require.Equal(t, order.StatusPending, got.Status)

	pays, _ := repo.GetPayments(context.Background(), o.ID)
	require.Len(t, pays, 1)
}

func TestApply_DistinctPaymentIDsBothRecorded(t *testing.T) {
	repo := newMemRepo()
	disp := &stubDispatcher{}
	eng := NewEngine(repo, disp, "payprov", zap.NewNop())
	o := seedOrder(t, repo, "A5", "20.00")

	require.NoError(t, eng.Apply(context.Background(), successEvent("A5", "pay_a")))
	require.NoError(t, eng.Apply(context.Background(), successEvent("A5", "pay_b")))

	pays, _ := repo.GetPayments(context.Background(), o.ID)
	require.Len(t, pays, 2, "distinct provider payment ids are distinct attempts")

	hist, _ := repo.GetHistory(context.Background(), o.ID)
	require.Len(t, hist, 1)
	require.Equal(t, 1, disp.count())
}

func TestTranslateStatus(t *testing.T) {
	for _, s := range []string{"SUCCESS", "success", " Paid ", "COMPLETED", "approved"} {
		st, ok := TranslateStatus(s)
		require.True(t, ok, s)
		require.Equal(t, order.StatusPaid, st, s)
	}
	for _, s := range []string{"FAILED", "declined", "EXPIRED"} {
		st, ok := TranslateStatus(s)
		require.True(t, ok, s)
		require.Equal(t, order.StatusFailed, st, s)
	}
	_, ok := TranslateStatus("UNDER_REVIEW")
	require.False(t, ok)
}
