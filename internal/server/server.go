package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"corrsim/internal/handler"
	"corrsim/internal/metrics"
	"corrsim/internal/simulator"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	logger     *zap.Logger
	metrics    *metrics.Metrics
	deps       map[string]Pinger
}

// Config holds server configuration.
type Config struct {
	Port      int
	Simulator *simulator.Simulator
	Metrics   *metrics.Metrics
	// Cache enables rate limiting and idempotent replay on POST /payments.
	Cache    handler.PaymentCache
	Payments handler.PaymentLimits
	// Ready lists the dependencies /ready pings, by name.
	Ready  map[string]Pinger
	Logger *zap.Logger
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:  logger,
		metrics: cfg.Metrics,
		deps:    cfg.Ready,
	}

	bankHandler := handler.NewBankHandler(cfg.Simulator)
	clientHandler := handler.NewClientHandler(cfg.Simulator)
	paymentHandler := handler.NewPaymentHandler(cfg.Simulator, cfg.Cache, cfg.Payments, logger)
	referenceHandler := handler.NewReferenceHandler(cfg.Simulator)
	adminHandler := handler.NewAdminHandler(cfg.Simulator)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.zapLogger)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.healthCheck)
	r.Get("/ready", s.readyCheck)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Reference data
		r.Get("/clock", adminHandler.Clock)
		r.Get("/fx", referenceHandler.FxRates)
		r.Get("/fx-history", referenceHandler.FxHistory)
		r.Get("/clearing-hours", referenceHandler.ClearingHours)

		// Network
		r.Get("/banks", bankHandler.List)
		r.Post("/banks", bankHandler.Create)
		r.Get("/banks/{id}/currencies", bankHandler.Currencies)
		r.Post("/banks/{id}/clients", bankHandler.CreateClient)
		r.Post("/banks/{id}/house", bankHandler.House)
		r.Get("/nostros", bankHandler.Nostros)
		r.Post("/correspondents/nostro", bankHandler.CreateCorrespondent)

		// Clients
		r.Get("/clients", clientHandler.List)
		r.Post("/clients/{id}/deposit", clientHandler.Deposit)

		// Payments
		r.Get("/payments", paymentHandler.List)
		r.Post("/payments", paymentHandler.Create)
		r.Get("/payments/{id}/messages", paymentHandler.Messages)

		// Administration
		r.Route("/admin", func(r chi.Router) {
			r.Post("/reset", adminHandler.Reset)
			r.Post("/reset-payments", adminHandler.ResetPayments)
			r.Post("/reset-clock", adminHandler.ResetClock)
			r.Post("/clock/pause", adminHandler.Pause)
			r.Post("/clock/play", adminHandler.Play)
			r.Post("/clock/faster", adminHandler.Faster)
			r.Post("/clock/slower", adminHandler.Slower)
		})
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler, for serving it without a listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// healthCheck returns basic health status.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readyCheck returns readiness status (all dependencies available).
func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	for name, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			s.logger.Warn("dependency not ready", zap.String("dependency", name), zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"not ready","reason":"%s unavailable"}`, name)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// zapLogger is a middleware that logs requests using zap.
func (s *Server) zapLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// instrument records request counts and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.HTTPRequest(r.Method, route, status, time.Since(start))
	})
}
