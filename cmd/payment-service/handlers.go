package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MikeMC777/pagos-ecom/internal/apperr"
	"github.com/MikeMC777/pagos-ecom/internal/gateway"
	"github.com/MikeMC777/pagos-ecom/internal/httpx"
	"github.com/MikeMC777/pagos-ecom/internal/intake"
	"github.com/MikeMC777/pagos-ecom/internal/order"
	"github.com/MikeMC777/pagos-ecom/internal/recon"
	"github.com/MikeMC777/pagos-ecom/internal/webhook"
)

type server struct {
	repo         order.Repository
	intake       *intake.Service
	verifier     *webhook.Verifier
	engine       *recon.Engine
	admin        *recon.AdminService
	gateway      gateway.Client
	adminKeyHash string
	log          *zap.Logger
}

func newRouter(s *server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(s.log))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	r.POST("/orders", createOrderHandler(s))
	r.GET("/orders/:id/status", orderStatusHandler(s))
	r.POST("/webhooks/payment", paymentWebhookHandler(s))

	adm := r.Group("/orders", httpx.AdminAuth(s.adminKeyHash))
	adm.POST("/:id/cancel", cancelOrderHandler(s))
	adm.POST("/:id/return", returnOrderHandler(s))
	adm.POST("/:id/refund", refundOrderHandler(s))

	return r
}

func writeErr(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), order.HTTPError{Error: err.Error()})
}

func createOrderHandler(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, order.HTTPError{Error: "invalid json", Details: err.Error()})
			return
		}
		res, err := s.intake.CreateOrder(c.Request.Context(), req)
		if err != nil {
			writeErr(c, err)
			return
		}
		status := http.StatusCreated
		if res.Existing {
			status = http.StatusOK
		}
		c.JSON(status, gin.H{
			"order_id":           res.Order.ID,
			"payment_session_id": res.SessionID,
			"env":                res.Env,
			"existing":           res.Existing,
		})
	}
}

func orderStatusHandler(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := s.repo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				c.JSON(http.StatusNotFound, order.HTTPError{Error: "order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, order.HTTPError{Error: "lookup failed"})
			return
		}
		out := gin.H{
			"order_status":       o.Status,
			"payment_status":     o.PaymentStatus,
			"payment_session_id": o.PaymentSessionID,
		}
		if o.ProviderOrderID != "" {
			st, err := s.gateway.QueryStatus(c.Request.Context(), o.ProviderOrderID)
			if err != nil {
				writeErr(c, apperr.Wrap(apperr.Upstream, "provider status query", err))
				return
			}
			out["provider_status"] = st.Status
			out["provider_amount"] = st.Amount
			out["provider_payment_id"] = st.PaymentID
			if len(st.Raw) > 0 {
				out["provider_raw"] = st.Raw
			}
		}
		c.JSON(http.StatusOK, out)
	}
}

// paymentWebhookHandler hashes the raw bytes before anything parses them and
// only answers 200 once the reconciliation transaction committed. A 5xx here
// is deliberate: the provider's retry is the recovery mechanism.
func paymentWebhookHandler(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, order.HTTPError{Error: "unreadable body"})
			return
		}
		sig := c.GetHeader("x-webhook-signature")
		ts := c.GetHeader("x-webhook-timestamp")
		if err := s.verifier.Verify(raw, sig, ts); err != nil {
			writeErr(c, err)
			return
		}
		ev, err := webhook.Parse(raw)
		if err != nil {
			writeErr(c, err)
			return
		}
		if err := s.engine.Apply(c.Request.Context(), ev); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func cancelOrderHandler(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.AdminActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, order.HTTPError{Error: "invalid json"})
			return
		}
		o, err := s.admin.Cancel(c.Request.Context(), c.Param("id"), req.Reason, req.AdminNote)
		respondAdmin(c, o, err)
	}
}

func returnOrderHandler(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.AdminActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, order.HTTPError{Error: "invalid json"})
			return
		}
		o, err := s.admin.Return(c.Request.Context(), c.Param("id"), req.Reason, req.AdminNote)
		respondAdmin(c, o, err)
	}
}

func refundOrderHandler(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.AdminActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, order.HTTPError{Error: "invalid json"})
			return
		}
		o, err := s.admin.Refund(c.Request.Context(), c.Param("id"), req.RefundAmount, req.Reason, req.AdminNote)
		respondAdmin(c, o, err)
	}
}

func respondAdmin(c *gin.Context, o *order.Order, err error) {
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": o})
}
