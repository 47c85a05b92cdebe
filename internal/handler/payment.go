package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"corrsim/internal/models"
	"corrsim/internal/simulator"
)

const idempotencyScope = "payments"

// PaymentCache backs rate limiting and Idempotency-Key replay for payment creation.
// A key is reserved before the payment is created and completed with its result,
// so concurrent requests carrying the same key create at most one payment.
type PaymentCache interface {
	CheckRateLimit(ctx context.Context, clientID string, limitPerMinute int) (bool, error)
	ReserveIdempotencyKey(ctx context.Context, scope, key string, ttl time.Duration) (bool, error)
	GetIdempotencyKey(ctx context.Context, scope, key string) ([]byte, error)
	SetIdempotencyKey(ctx context.Context, scope, key string, result []byte, ttl time.Duration) error
	ReleaseIdempotencyKey(ctx context.Context, scope, key string) error
}

// PaymentLimits configures the payment creation guards. Zero values disable them.
type PaymentLimits struct {
	RateLimitPerMinute int
	IdempotencyTTL     time.Duration
}

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	sim    *simulator.Simulator
	cache  PaymentCache
	limits PaymentLimits
	logger *zap.Logger
}

// NewPaymentHandler creates a new payment handler. cache may be nil.
func NewPaymentHandler(sim *simulator.Simulator, cache PaymentCache, limits PaymentLimits, logger *zap.Logger) *PaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{
		sim:    sim,
		cache:  cache,
		limits: limits,
		logger: logger.With(zap.String("component", "payments-api")),
	}
}

// CreatePaymentRequest represents a payment intent request.
type CreatePaymentRequest struct {
	FromClientID   string          `json:"fromClientId" validate:"required"`
	ToClientID     string          `json:"toClientId" validate:"required"`
	DebitCurrency  string          `json:"debitCurrency" validate:"required,len=3"`
	CreditCurrency string          `json:"creditCurrency" validate:"required,len=3"`
	DebitAmount    decimal.Decimal `json:"debitAmount"`
}

// List returns payments newest first.
// GET /api/v1/payments
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	payments, err := h.sim.ListPayments(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(payments))
}

// Create queues a payment intent.
// POST /api/v1/payments
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreatePaymentRequest
	if err := decode(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if h.cache != nil && h.limits.RateLimitPerMinute > 0 {
		allowed, err := h.cache.CheckRateLimit(ctx, req.FromClientID, h.limits.RateLimitPerMinute)
		if err != nil {
			h.logger.Warn("rate limit check failed", zap.String("client_id", req.FromClientID), zap.Error(err))
		} else if !allowed {
			TooManyRequests(w, "too many payments for this client")
			return
		}
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	reserved := false
	if key != "" && h.cache != nil && h.limits.IdempotencyTTL > 0 {
		ok, err := h.cache.ReserveIdempotencyKey(ctx, idempotencyScope, key, h.limits.IdempotencyTTL)
		switch {
		case err != nil:
			h.logger.Warn("idempotency reserve failed", zap.String("key", key), zap.Error(err))
		case ok:
			reserved = true
		default:
			h.replay(w, r, key)
			return
		}
	}

	payment, err := h.sim.CreatePayment(ctx, models.CreatePaymentParams{
		FromClientID:   req.FromClientID,
		ToClientID:     req.ToClientID,
		DebitCurrency:  req.DebitCurrency,
		CreditCurrency: req.CreditCurrency,
		DebitAmount:    req.DebitAmount,
	})
	if err != nil {
		if reserved {
			if rerr := h.cache.ReleaseIdempotencyKey(context.WithoutCancel(ctx), idempotencyScope, key); rerr != nil {
				h.logger.Warn("idempotency release failed", zap.String("key", key), zap.Error(rerr))
			}
		}
		Fail(w, err)
		return
	}

	if reserved {
		if body, err := json.Marshal(payment); err == nil {
			if err := h.cache.SetIdempotencyKey(ctx, idempotencyScope, key, body, h.limits.IdempotencyTTL); err != nil {
				h.logger.Warn("idempotency store failed", zap.String("key", key), zap.Error(err))
			}
		}
	}

	JSON(w, http.StatusCreated, payment)
}

// replay answers a request whose Idempotency-Key is already taken: the stored
// payment when it exists, a conflict while the first request is still running.
func (h *PaymentHandler) replay(w http.ResponseWriter, r *http.Request, key string) {
	stored, err := h.cache.GetIdempotencyKey(r.Context(), idempotencyScope, key)
	if err != nil {
		h.logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
	}
	if stored != nil {
		JSON(w, http.StatusOK, json.RawMessage(stored))
		return
	}
	Fail(w, models.Errorf(models.KindConflict, "a request with this Idempotency-Key is in progress"))
}

// Messages returns the lifecycle messages of a payment, oldest first.
// GET /api/v1/payments/{id}/messages
func (h *PaymentHandler) Messages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.sim.PaymentMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(msgs))
}
