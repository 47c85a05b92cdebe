package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"corrsim/internal/clock"
	"corrsim/internal/config"
	"corrsim/internal/engine"
	"corrsim/internal/handler"
	"corrsim/internal/metrics"
	"corrsim/internal/models"
	"corrsim/internal/server"
	"corrsim/internal/simulator"
	"corrsim/internal/store"
)

// memoryCache stands in for Redis in the payment guards.
type memoryCache struct {
	mu    sync.Mutex
	keys  map[string][]byte
	calls map[string]int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{keys: map[string][]byte{}, calls: map[string]int{}}
}

func (c *memoryCache) CheckRateLimit(_ context.Context, clientID string, limit int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls[clientID] >= limit {
		return false, nil
	}
	c.calls[clientID]++
	return true, nil
}

const pendingKey = "pending"

func (c *memoryCache) ReserveIdempotencyKey(_ context.Context, scope, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keys[scope+":"+key]; ok {
		return false, nil
	}
	c.keys[scope+":"+key] = []byte(pendingKey)
	return true, nil
}

func (c *memoryCache) GetIdempotencyKey(_ context.Context, scope, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.keys[scope+":"+key]
	if string(v) == pendingKey {
		return nil, nil
	}
	return v, nil
}

func (c *memoryCache) SetIdempotencyKey(_ context.Context, scope, key string, result []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[scope+":"+key] = result
	return nil
}

func (c *memoryCache) ReleaseIdempotencyKey(_ context.Context, scope, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, scope+":"+key)
	return nil
}

// testContext holds test dependencies
type testContext struct {
	mu      sync.Mutex
	wall    time.Time
	engine  *engine.Engine
	metrics *metrics.Metrics
	router  http.Handler
}

func (tc *testContext) now() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.wall
}

func (tc *testContext) advance(d time.Duration) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.wall = tc.wall.Add(d)
}

func setupTestContext(t *testing.T, rateLimit int) *testContext {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	tc := &testContext{
		wall:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		metrics: metrics.New(),
	}

	st := store.NewMemory()
	clk, err := simulator.LoadClock(ctx, st, clock.Config{Epoch: config.DefaultEpoch, BaseTick: 1}, tc.now)
	require.NoError(t, err)

	cfg := config.ClockConfig{ClearingUTCOffsetHour: 1}
	tc.engine = engine.New(engine.Deps{Store: st, Clock: clk, Metrics: tc.metrics, Logger: logger}, engine.Config{
		Policy:           config.TickPolicyAll,
		ClearingLocation: cfg.ClearingLocation(),
	})
	sim := simulator.New(simulator.Deps{Store: st, Clock: clk, Engine: tc.engine, Metrics: tc.metrics, Logger: logger})
	require.NoError(t, sim.Seed(ctx))

	srv := server.New(server.Config{
		Simulator: sim,
		Metrics:   tc.metrics,
		Cache:     newMemoryCache(),
		Payments:  handler.PaymentLimits{RateLimitPerMinute: rateLimit, IdempotencyTTL: time.Hour},
		Logger:    logger,
	})
	tc.router = srv.Handler()
	return tc
}

type envelope struct {
	Success bool               `json:"success"`
	Data    json.RawMessage    `json:"data"`
	Error   *handler.ErrorInfo `json:"error"`
}

func (tc *testContext) do(t *testing.T, method, path string, body any, headers ...string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	tc.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") && strings.HasPrefix(req.URL.Path, "/api/") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func (tc *testContext) data(t *testing.T, method, path string, body any, wantStatus int, out any) {
	t.Helper()
	status, env := tc.do(t, method, path, body)
	require.Equal(t, wantStatus, status, "%s %s: %+v", method, path, env.Error)
	require.True(t, env.Success)
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}

func (tc *testContext) tick(t *testing.T) engine.TickResult {
	t.Helper()
	res, err := tc.engine.Tick(context.Background())
	require.NoError(t, err)
	return res
}

type clientView struct {
	ID       string `json:"id"`
	BankID   string `json:"bankId"`
	Type     string `json:"type"`
	Balances []struct {
		Currency string          `json:"currency"`
		Amount   decimal.Decimal `json:"amount"`
	} `json:"balances"`
}

func (tc *testContext) balance(t *testing.T, clientID, currency string) string {
	t.Helper()
	var clients []clientView
	tc.data(t, http.MethodGet, "/api/v1/clients", nil, http.StatusOK, &clients)
	for _, c := range clients {
		if c.ID != clientID {
			continue
		}
		for _, b := range c.Balances {
			if b.Currency == currency {
				return b.Amount.StringFixed(2)
			}
		}
		return "0.00"
	}
	t.Fatalf("client %s not listed", clientID)
	return ""
}

func TestSettlementDemo(t *testing.T) {
	tc := setupTestContext(t, 0)

	var alpha, beta models.Bank
	var alice, bob models.Client

	t.Run("1_HealthAndReferenceData", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		tc.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		var rates []models.FxRate
		tc.data(t, http.MethodGet, "/api/v1/fx", nil, http.StatusOK, &rates)
		assert.Len(t, rates, len(simulator.DefaultFxRates()))

		var hours []models.ClearingWindow
		tc.data(t, http.MethodGet, "/api/v1/clearing-hours", nil, http.StatusOK, &hours)
		assert.Len(t, hours, len(simulator.DefaultClearingWindows()))

		var clk models.ClockStatus
		tc.data(t, http.MethodGet, "/api/v1/clock", nil, http.StatusOK, &clk)
		assert.Equal(t, config.DefaultEpoch.UnixMilli(), clk.SimTimeMs)
		assert.False(t, clk.IsPaused)
	})

	t.Run("2_CreateBanks", func(t *testing.T) {
		tc.data(t, http.MethodPost, "/api/v1/banks", map[string]string{"name": "Alpha", "baseCurrency": "USD"}, http.StatusCreated, &alpha)
		tc.data(t, http.MethodPost, "/api/v1/banks", map[string]string{"name": "Beta", "baseCurrency": "EUR"}, http.StatusCreated, &beta)
		assert.Equal(t, "B_0001", alpha.ID)
		assert.Equal(t, "B_0002", beta.ID)

		status, env := tc.do(t, http.MethodPost, "/api/v1/banks", map[string]string{"name": "Alpha", "baseCurrency": "GBP"})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "CONFLICT", env.Error.Code)

		status, env = tc.do(t, http.MethodPost, "/api/v1/banks", map[string]string{"name": "Gamma", "baseCurrency": "EURO"})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, env.Error.Message, "baseCurrency")

		var house models.Client
		tc.data(t, http.MethodPost, "/api/v1/banks/"+alpha.ID+"/house", nil, http.StatusOK, &house)
		assert.Equal(t, models.ClientKindHouse, house.Kind)
	})

	t.Run("3_ClientsAndCorrespondent", func(t *testing.T) {
		tc.data(t, http.MethodPost, "/api/v1/banks/"+alpha.ID+"/clients", map[string]string{"name": "alice"}, http.StatusCreated, &alice)
		tc.data(t, http.MethodPost, "/api/v1/banks/"+beta.ID+"/clients", map[string]string{"name": "bob"}, http.StatusCreated, &bob)

		status, _ := tc.do(t, http.MethodPost, "/api/v1/banks/B_0404/clients", map[string]string{"name": "ghost"})
		assert.Equal(t, http.StatusNotFound, status)

		var nostro models.NostroAccount
		tc.data(t, http.MethodPost, "/api/v1/correspondents/nostro",
			map[string]string{"ownerBankId": alpha.ID, "correspondentBankId": beta.ID}, http.StatusCreated, &nostro)
		assert.Equal(t, "EUR", nostro.Currency)

		status, _ = tc.do(t, http.MethodPost, "/api/v1/correspondents/nostro",
			map[string]string{"ownerBankId": alpha.ID, "correspondentBankId": beta.ID})
		assert.Equal(t, http.StatusConflict, status)

		var available models.AvailableCurrencies
		tc.data(t, http.MethodGet, "/api/v1/banks/"+alpha.ID+"/currencies", nil, http.StatusOK, &available)
		assert.Equal(t, []string{"EUR", "USD"}, available.Currencies)

		var nostros []models.NostroAccount
		tc.data(t, http.MethodGet, "/api/v1/nostros?ownerBankId="+beta.ID, nil, http.StatusOK, &nostros)
		assert.Empty(t, nostros)
	})

	t.Run("4_Deposits", func(t *testing.T) {
		tc.data(t, http.MethodPost, "/api/v1/clients/"+alice.ID+"/deposit", map[string]any{"currency": "USD", "amount": 200}, http.StatusOK, nil)
		assert.Equal(t, "200.00", tc.balance(t, alice.ID, "USD"))

		tests := []struct {
			name   string
			client string
			body   map[string]any
			status int
		}{
			{"unknown client", "C_0404", map[string]any{"currency": "USD", "amount": 5}, http.StatusNotFound},
			{"negative amount", alice.ID, map[string]any{"currency": "USD", "amount": -5}, http.StatusBadRequest},
			{"missing currency", alice.ID, map[string]any{"amount": 5}, http.StatusBadRequest},
			{"unavailable currency", alice.ID, map[string]any{"currency": "JPY", "amount": 5}, http.StatusBadRequest},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				status, env := tc.do(t, http.MethodPost, "/api/v1/clients/"+tt.client+"/deposit", tt.body)
				assert.Equal(t, tt.status, status)
				assert.False(t, env.Success)
			})
		}
	})

	var payment models.Payment

	t.Run("5_CreatePaymentIsIdempotent", func(t *testing.T) {
		body := map[string]any{
			"fromClientId":   alice.ID,
			"toClientId":     bob.ID,
			"debitCurrency":  "USD",
			"creditCurrency": "EUR",
			"debitAmount":    "100",
		}
		status, env := tc.do(t, http.MethodPost, "/api/v1/payments", body, "Idempotency-Key", "k-1")
		require.Equal(t, http.StatusCreated, status, "%+v", env.Error)
		require.NoError(t, json.Unmarshal(env.Data, &payment))
		assert.Equal(t, models.PaymentStateQueued, payment.State)
		assert.Equal(t, "85.00", payment.CreditAmount.StringFixed(2))

		status, env = tc.do(t, http.MethodPost, "/api/v1/payments", body, "Idempotency-Key", "k-1")
		require.Equal(t, http.StatusOK, status)
		var replay models.Payment
		require.NoError(t, json.Unmarshal(env.Data, &replay))
		assert.Equal(t, payment.ID, replay.ID)

		failing := map[string]any{"fromClientId": alice.ID, "toClientId": bob.ID, "debitCurrency": "EUR", "creditCurrency": "EUR", "debitAmount": 5}
		for i := 0; i < 2; i++ {
			status, env = tc.do(t, http.MethodPost, "/api/v1/payments", failing, "Idempotency-Key", "k-fail")
			assert.Equal(t, http.StatusUnprocessableEntity, status, "a failed request releases its key")
			assert.Equal(t, "INSUFFICIENT_FUNDS", env.Error.Code)
		}

		var views []models.PaymentView
		tc.data(t, http.MethodGet, "/api/v1/payments", nil, http.StatusOK, &views)
		assert.Len(t, views, 1, "replay must not queue a second payment")
		assert.Equal(t, "200.00", tc.balance(t, alice.ID, "USD"), "nothing moves until execution")
	})

	t.Run("6_PaymentRejections", func(t *testing.T) {
		tests := []struct {
			name   string
			body   map[string]any
			status int
			code   string
		}{
			{"no funds in debit currency", map[string]any{"fromClientId": alice.ID, "toClientId": bob.ID, "debitCurrency": "EUR", "creditCurrency": "EUR", "debitAmount": 5}, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
			{"unknown recipient", map[string]any{"fromClientId": alice.ID, "toClientId": "C_0404", "debitCurrency": "USD", "creditCurrency": "EUR", "debitAmount": 5}, http.StatusNotFound, "NOT_FOUND"},
			{"missing sender", map[string]any{"toClientId": bob.ID, "debitCurrency": "USD", "creditCurrency": "EUR", "debitAmount": 5}, http.StatusBadRequest, "BAD_REQUEST"},
			{"zero amount", map[string]any{"fromClientId": alice.ID, "toClientId": bob.ID, "debitCurrency": "USD", "creditCurrency": "EUR", "debitAmount": 0}, http.StatusBadRequest, "INVALID_INPUT"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				status, env := tc.do(t, http.MethodPost, "/api/v1/payments", tt.body)
				assert.Equal(t, tt.status, status)
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.code, env.Error.Code)
			})
		}
	})

	t.Run("7_TickSettles", func(t *testing.T) {
		// Epoch is 10:00 CET and EUR clears 08-17.
		res := tc.tick(t)
		assert.Equal(t, 1, res.Settled)

		var views []models.PaymentView
		tc.data(t, http.MethodGet, "/api/v1/payments", nil, http.StatusOK, &views)
		require.Len(t, views, 1)
		assert.Equal(t, models.PaymentStateSettled, views[0].State)
		assert.Equal(t, []string{alpha.ID}, views[0].FxAtBankIDs)
		assert.Equal(t, "85.00", tc.balance(t, bob.ID, "EUR"))
		assert.Equal(t, "100.00", tc.balance(t, alice.ID, "USD"))

		var msgs []models.PaymentMessage
		tc.data(t, http.MethodGet, "/api/v1/payments/"+payment.ID+"/messages", nil, http.StatusOK, &msgs)
		require.NotEmpty(t, msgs)
		assert.Equal(t, models.MessageTypeInit, msgs[0].Type)
		assert.Equal(t, models.MessageTypeSettled, msgs[len(msgs)-1].Type)

		status, _ := tc.do(t, http.MethodGet, "/api/v1/payments/PAY_0404/messages", nil)
		assert.Equal(t, http.StatusNotFound, status)

		var history []models.FxEvent
		tc.data(t, http.MethodGet, "/api/v1/fx-history", nil, http.StatusOK, &history)
		require.Len(t, history, 1)
		assert.Equal(t, "Alpha", history[0].BankName)
	})

	t.Run("8_ClockControls", func(t *testing.T) {
		var clk models.ClockStatus
		tc.data(t, http.MethodPost, "/api/v1/admin/clock/faster", nil, http.StatusOK, &clk)
		assert.Equal(t, int64(2), clk.Tick)

		tc.advance(30 * time.Minute)
		tc.data(t, http.MethodPost, "/api/v1/admin/clock/pause", nil, http.StatusOK, &clk)
		assert.True(t, clk.IsPaused)
		assert.Equal(t, config.DefaultEpoch.Add(time.Hour).UnixMilli(), clk.SimTimeMs)

		tc.advance(time.Hour)
		tc.data(t, http.MethodGet, "/api/v1/clock", nil, http.StatusOK, &clk)
		assert.Equal(t, config.DefaultEpoch.Add(time.Hour).UnixMilli(), clk.SimTimeMs, "paused clock does not move")

		tc.data(t, http.MethodPost, "/api/v1/admin/clock/play", nil, http.StatusOK, &clk)
		assert.Equal(t, int64(2), clk.Tick)
		tc.data(t, http.MethodPost, "/api/v1/admin/clock/slower", nil, http.StatusOK, &clk)
		assert.Equal(t, int64(1), clk.Tick)

		tc.data(t, http.MethodPost, "/api/v1/admin/reset-clock", nil, http.StatusOK, &clk)
		assert.Equal(t, config.DefaultEpoch.UnixMilli(), clk.SimTimeMs)
	})

	t.Run("9_Resets", func(t *testing.T) {
		tc.data(t, http.MethodPost, "/api/v1/admin/reset-payments", nil, http.StatusOK, nil)
		var views []models.PaymentView
		tc.data(t, http.MethodGet, "/api/v1/payments", nil, http.StatusOK, &views)
		assert.Empty(t, views)
		assert.Equal(t, "85.00", tc.balance(t, bob.ID, "EUR"), "balances survive a payments reset")

		tc.data(t, http.MethodPost, "/api/v1/admin/reset", nil, http.StatusOK, nil)
		var banks []models.Bank
		tc.data(t, http.MethodGet, "/api/v1/banks", nil, http.StatusOK, &banks)
		assert.Empty(t, banks)
		assert.NotNil(t, banks)
	})

	t.Run("10_Metrics", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		w := httptest.NewRecorder()
		tc.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "/api/v1/banks")
	})
}

func TestPaymentRateLimit(t *testing.T) {
	tc := setupTestContext(t, 2)

	var bank models.Bank
	var alice, bob models.Client
	tc.data(t, http.MethodPost, "/api/v1/banks", map[string]string{"name": "Alpha", "baseCurrency": "USD"}, http.StatusCreated, &bank)
	tc.data(t, http.MethodPost, "/api/v1/banks/"+bank.ID+"/clients", map[string]string{"name": "alice"}, http.StatusCreated, &alice)
	tc.data(t, http.MethodPost, "/api/v1/banks/"+bank.ID+"/clients", map[string]string{"name": "bob"}, http.StatusCreated, &bob)
	tc.data(t, http.MethodPost, "/api/v1/clients/"+alice.ID+"/deposit", map[string]any{"currency": "USD", "amount": 100}, http.StatusOK, nil)

	body := map[string]any{"fromClientId": alice.ID, "toClientId": bob.ID, "debitCurrency": "USD", "creditCurrency": "USD", "debitAmount": 1}
	for i := 0; i < 2; i++ {
		status, env := tc.do(t, http.MethodPost, "/api/v1/payments", body)
		require.Equal(t, http.StatusCreated, status, "%+v", env.Error)
	}
	status, env := tc.do(t, http.MethodPost, "/api/v1/payments", body)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)

	res := tc.tick(t)
	assert.Equal(t, 2, res.Settled, "intra-bank payments ignore clearing hours")
	assert.Equal(t, "2.00", tc.balance(t, bob.ID, "USD"))
}

func TestConcurrentIdempotentPayments(t *testing.T) {
	tc := setupTestContext(t, 0)

	var bank models.Bank
	var alice, bob models.Client
	tc.data(t, http.MethodPost, "/api/v1/banks", map[string]string{"name": "Alpha", "baseCurrency": "USD"}, http.StatusCreated, &bank)
	tc.data(t, http.MethodPost, "/api/v1/banks/"+bank.ID+"/clients", map[string]string{"name": "alice"}, http.StatusCreated, &alice)
	tc.data(t, http.MethodPost, "/api/v1/banks/"+bank.ID+"/clients", map[string]string{"name": "bob"}, http.StatusCreated, &bob)
	tc.data(t, http.MethodPost, "/api/v1/clients/"+alice.ID+"/deposit", map[string]any{"currency": "USD", "amount": 100}, http.StatusOK, nil)

	body, err := json.Marshal(map[string]any{"fromClientId": alice.ID, "toClientId": bob.ID, "debitCurrency": "USD", "creditCurrency": "USD", "debitAmount": 1})
	require.NoError(t, err)

	const callers = 16
	codes := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Idempotency-Key", "same-key")
			w := httptest.NewRecorder()
			tc.router.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusOK, http.StatusConflict:
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	assert.Equal(t, 1, created)

	var views []models.PaymentView
	tc.data(t, http.MethodGet, "/api/v1/payments", nil, http.StatusOK, &views)
	assert.Len(t, views, 1, "one key creates one payment")
}
