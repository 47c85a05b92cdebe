// Package engine owns the payment state machine: it accepts intents, and on
// every tick executes eligible queued payments as single units of work.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"corrsim/internal/clock"
	"corrsim/internal/config"
	"corrsim/internal/journal"
	"corrsim/internal/metrics"
	"corrsim/internal/models"
	"corrsim/internal/store"
)

// LeaseName is the distributed lease every tick holds.
const LeaseName = "engine-tick"

// Lease serializes ticks across processes.
type Lease interface {
	TryAcquireLease(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	ReleaseLease(ctx context.Context, name, token string) error
}

// Config holds engine tunables.
type Config struct {
	TickInterval time.Duration
	Policy       config.TickPolicy
	LeaseTTL     time.Duration
	// ClearingLocation is the zone clearing hours are read in.
	ClearingLocation *time.Location
}

// Deps are the collaborators the engine drives. Store and Clock are required.
type Deps struct {
	Store   store.Store
	Clock   *clock.Clock
	Journal journal.Journal
	Lease   Lease
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Engine creates and executes payments.
type Engine struct {
	store   store.Store
	clock   *clock.Clock
	journal journal.Journal
	lease   Lease
	metrics *metrics.Metrics
	logger  *zap.Logger
	cfg     Config

	tickMu sync.Mutex
}

// New creates an engine.
func New(deps Deps, cfg Config) *Engine {
	if deps.Journal == nil {
		deps.Journal = journal.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Policy == "" {
		cfg.Policy = config.TickPolicyOne
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Second
	}
	if cfg.ClearingLocation == nil {
		cfg.ClearingLocation = time.UTC
	}
	return &Engine{
		store:   deps.Store,
		clock:   deps.Clock,
		journal: deps.Journal,
		lease:   deps.Lease,
		metrics: deps.Metrics,
		logger:  deps.Logger.With(zap.String("component", "engine")),
		cfg:     cfg,
	}
}

// TickResult summarizes one tick.
type TickResult struct {
	Skipped  bool
	Executed int
	Settled  int
	Failed   int
	Queued   int
}

// Tick scans queued payments oldest first and executes the eligible ones.
// With the "one" policy it stops after the first eligible payment. A tick that
// finds another tick in flight returns immediately with Skipped set.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	if !e.tickMu.TryLock() {
		e.metrics.TickSkipped("busy")
		return TickResult{Skipped: true}, nil
	}
	defer e.tickMu.Unlock()

	if e.lease != nil {
		token, ok, err := e.lease.TryAcquireLease(ctx, LeaseName, e.cfg.LeaseTTL)
		if err != nil {
			e.metrics.TickErrored()
			return TickResult{}, err
		}
		if !ok {
			e.metrics.TickSkipped("lease")
			return TickResult{Skipped: true}, nil
		}
		defer func() {
			if err := e.lease.ReleaseLease(context.WithoutCancel(ctx), LeaseName, token); err != nil {
				e.logger.Warn("release tick lease", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	result, err := e.tick(ctx)
	if err != nil {
		e.metrics.TickErrored()
		return result, err
	}
	e.metrics.TickCompleted(time.Since(start), result.Queued)
	return result, nil
}

func (e *Engine) tick(ctx context.Context) (TickResult, error) {
	var result TickResult

	var (
		queued  []models.Payment
		windows []models.ClearingWindow
	)
	if err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if queued, err = tx.ListQueuedPayments(ctx); err != nil {
			return err
		}
		windows, err = tx.ListClearingWindows(ctx)
		return err
	}); err != nil {
		return result, err
	}

	markets := NewMarkets(windows, e.clock.Now(), e.cfg.ClearingLocation)
	for _, p := range queued {
		eligible, err := markets.Eligible(&p)
		if err != nil {
			// A payment whose market cannot be evaluated can never run.
			if ferr := e.fail(ctx, p.ID, err); ferr != nil {
				return result, ferr
			}
			result.Executed++
			result.Failed++
		} else if eligible {
			settled, err := e.execute(ctx, p.ID)
			if err != nil {
				return result, err
			}
			result.Executed++
			if settled {
				result.Settled++
			} else {
				result.Failed++
			}
		} else {
			continue
		}

		if e.cfg.Policy == config.TickPolicyOne {
			break
		}
	}

	result.Queued = len(queued) - result.Executed
	return result, nil
}

// Markets answers clearing-window questions for one instant of simulated time.
type Markets struct {
	windows map[string]models.ClearingWindow
	hour    int
}

// NewMarkets evaluates windows at now, read in loc.
func NewMarkets(windows []models.ClearingWindow, now time.Time, loc *time.Location) Markets {
	m := Markets{windows: make(map[string]models.ClearingWindow, len(windows)), hour: now.In(loc).Hour()}
	for _, w := range windows {
		m.windows[w.Currency] = w
	}
	return m
}

// Open reports whether currency's market is open.
func (m Markets) Open(currency string) (bool, error) {
	w, ok := m.windows[currency]
	if !ok {
		return false, models.Errorf(models.KindInvalidCurrency, "missing clearing hours for %s", currency)
	}
	return w.IsOpen(m.hour), nil
}

// Eligible reports whether p may execute. Intra-bank payments ignore clearing hours.
func (m Markets) Eligible(p *models.Payment) (bool, error) {
	if p.IsIntraBank() {
		return true, nil
	}
	return m.Open(p.SettlementCurrency)
}

// errNotQueued aborts execution of a payment another caller already finished.
var errNotQueued = errors.New("payment is no longer queued")
