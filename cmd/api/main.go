package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"corrsim/internal/cache"
	"corrsim/internal/clock"
	"corrsim/internal/config"
	"corrsim/internal/db"
	"corrsim/internal/engine"
	"corrsim/internal/handler"
	"corrsim/internal/journal"
	"corrsim/internal/metrics"
	"corrsim/internal/server"
	"corrsim/internal/simulator"
	"corrsim/internal/store"
	"corrsim/internal/traffic"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("failed to run: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Setup logger
	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("starting corrsim",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port),
		zap.String("tick_policy", string(cfg.Engine.TickPolicy)),
	)

	m := metrics.New()
	ready := map[string]server.Pinger{}

	// Store: PostgreSQL when configured, memory otherwise
	var st store.Store
	if cfg.Database.URL != "" {
		database, err := db.New(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		applied, err := database.Migrate(ctx)
		if err != nil {
			database.Close()
			return fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("connected to PostgreSQL", zap.Strings("migrations_applied", applied))
		st = store.NewPostgres(database)
		ready["database"] = database
	} else {
		st = store.NewMemory()
		if cfg.IsProduction() {
			logger.Warn("no DATABASE_URL in production, state is lost on restart")
		} else {
			logger.Info("using in-memory store")
		}
	}
	defer st.Close()

	// Redis: tick lease, idempotency and rate limiting
	var (
		lease        engine.Lease
		paymentCache handler.PaymentCache
	)
	if cfg.Redis.URL != "" {
		cacheClient, err := cache.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer cacheClient.Close()
		lease = cacheClient
		paymentCache = cacheClient
		ready["cache"] = cacheClient
		logger.Info("connected to Redis")
	}

	// TigerBeetle: settlement journal
	var jrnl journal.Journal = journal.Nop{}
	if len(cfg.TigerBeetle.Addresses) > 0 {
		tbClient, err := journal.NewClient(cfg.TigerBeetle)
		if err != nil {
			return fmt.Errorf("connect to tigerbeetle: %w", err)
		}
		defer tbClient.Close()
		jrnl = journal.NewTigerBeetle(tbClient, logger)
		logger.Info("connected to TigerBeetle", zap.Strings("addresses", cfg.TigerBeetle.Addresses))
	}

	clk, err := simulator.LoadClock(ctx, st, clock.Config{
		Epoch:    cfg.Clock.Epoch,
		BaseTick: cfg.Clock.BaseTick,
	}, time.Now)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Deps{
		Store:   st,
		Clock:   clk,
		Journal: jrnl,
		Lease:   lease,
		Metrics: m,
		Logger:  logger,
	}, engine.Config{
		TickInterval:     cfg.Engine.TickInterval,
		Policy:           cfg.Engine.TickPolicy,
		LeaseTTL:         cfg.Engine.LeaseTTL,
		ClearingLocation: cfg.Clock.ClearingLocation(),
	})

	sim := simulator.New(simulator.Deps{
		Store:   st,
		Clock:   clk,
		Engine:  eng,
		Journal: jrnl,
		Metrics: m,
		Logger:  logger,
	})
	if err := sim.Seed(ctx); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	srv := server.New(server.Config{
		Port:      cfg.Server.Port,
		Simulator: sim,
		Metrics:   m,
		Cache:     paymentCache,
		Payments: handler.PaymentLimits{
			RateLimitPerMinute: cfg.Payments.RateLimitPerMinute,
			IdempotencyTTL:     cfg.Payments.IdempotencyTTL,
		},
		Ready:  ready,
		Logger: logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return eng.Run(gctx)
	})
	if cfg.Traffic.Enabled {
		gen := traffic.New(st, sim, cfg.Traffic.Interval, logger, traffic.WithMetrics(m))
		g.Go(func() error {
			return gen.Run(gctx)
		})
	}

	logger.Info("corrsim ready", zap.Int("port", cfg.Server.Port))

	err = g.Wait()
	logger.Info("shutting down")
	return err
}
