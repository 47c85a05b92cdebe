// Package traffic generates synthetic payments against a running simulation.
package traffic

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"corrsim/internal/metrics"
	"corrsim/internal/models"
	"corrsim/internal/schedule"
	"corrsim/internal/store"
)

const (
	KindDomestic = "domestic"
	KindCross    = "cross_currency"
)

// Payer accepts payment intents.
type Payer interface {
	CreatePayment(ctx context.Context, params models.CreatePaymentParams) (*models.Payment, error)
}

// Generator issues one domestic payment per base currency and one
// cross-currency payment on every round.
type Generator struct {
	store    store.Store
	payer    Payer
	metrics  *metrics.Metrics
	logger   *zap.Logger
	interval time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand fixes the random source.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rnd = r }
}

// WithMetrics records generated payments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

func New(st store.Store, payer Payer, interval time.Duration, logger *zap.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	g := &Generator{
		store:    st,
		payer:    payer,
		logger:   logger.With(zap.String("component", "traffic")),
		interval: interval,
		rnd:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run generates traffic every interval until ctx is canceled.
func (g *Generator) Run(ctx context.Context) error {
	g.logger.Info("traffic generator started", zap.Duration("interval", g.interval))
	return schedule.Every(ctx, g.logger,
		schedule.Job{Name: KindDomestic, Interval: g.interval, Run: func(ctx context.Context) { g.Domestic(ctx) }},
		schedule.Job{Name: KindCross, Interval: g.interval, Run: func(ctx context.Context) { g.CrossCurrency(ctx) }},
	)
}

type funded struct {
	clientID string
	bankID   string
	currency string
	amount   decimal.Decimal
}

type snapshot struct {
	banks   []models.Bank
	clients map[string]models.Client
	funded  []funded
	nostros []models.NostroAccount
}

func (g *Generator) snapshot(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{clients: map[string]models.Client{}}
	err := g.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if snap.banks, err = tx.ListBanks(ctx); err != nil {
			return err
		}
		clients, err := tx.ListClients(ctx)
		if err != nil {
			return err
		}
		for _, c := range clients {
			snap.clients[c.ID] = c
		}
		balances, err := tx.ListBalances(ctx)
		if err != nil {
			return err
		}
		for _, b := range balances {
			c, ok := snap.clients[b.ClientID]
			if !ok || !c.Kind.CanTransact() || !b.Amount.IsPositive() {
				continue
			}
			snap.funded = append(snap.funded, funded{clientID: c.ID, bankID: c.BankID, currency: b.Currency, amount: b.Amount})
		}
		snap.nostros, err = tx.ListNostros(ctx, models.NostroFilter{})
		return err
	})
	return snap, err
}

// Domestic pays, for every base currency shared by two or more banks with
// funded clients, from a funded client at one bank to a funded client at another.
func (g *Generator) Domestic(ctx context.Context) int {
	snap, err := g.snapshot(ctx)
	if err != nil {
		g.logger.Warn("traffic snapshot failed", zap.Error(err))
		return 0
	}

	byBase := map[string][]string{}
	for _, b := range snap.banks {
		byBase[b.BaseCurrency] = append(byBase[b.BaseCurrency], b.ID)
	}
	currencies := make([]string, 0, len(byBase))
	for ccy, ids := range byBase {
		if len(ids) >= 2 {
			currencies = append(currencies, ccy)
		}
	}
	sort.Strings(currencies)

	created := 0
	for _, ccy := range currencies {
		byBank := map[string][]funded{}
		var banks []string
		for _, f := range snap.funded {
			if f.currency != ccy || !contains(byBase[ccy], f.bankID) {
				continue
			}
			if _, ok := byBank[f.bankID]; !ok {
				banks = append(banks, f.bankID)
			}
			byBank[f.bankID] = append(byBank[f.bankID], f)
		}
		if len(banks) < 2 {
			continue
		}

		fromBank := pick(g, banks)
		others := make([]string, 0, len(banks)-1)
		for _, id := range banks {
			if id != fromBank {
				others = append(others, id)
			}
		}
		from := pick(g, byBank[fromBank])
		to := pick(g, byBank[pick(g, others)])

		amount := g.amount(from.amount)
		if !amount.IsPositive() {
			continue
		}
		if g.pay(ctx, KindDomestic, models.CreatePaymentParams{
			FromClientID:   from.clientID,
			ToClientID:     to.clientID,
			DebitCurrency:  ccy,
			CreditCurrency: ccy,
			DebitAmount:    amount,
		}) {
			created++
		}
	}
	return created
}

// CrossCurrency pays from a random funded client into a client at one of its
// bank's correspondents, in that correspondent's currency. At most one payment
// per round.
func (g *Generator) CrossCurrency(ctx context.Context) bool {
	snap, err := g.snapshot(ctx)
	if err != nil {
		g.logger.Warn("traffic snapshot failed", zap.Error(err))
		return false
	}

	candidates := append([]funded(nil), snap.funded...)
	g.mu.Lock()
	g.rnd.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	g.mu.Unlock()

	for _, from := range candidates {
		var cross []models.NostroAccount
		for _, n := range snap.nostros {
			if n.OwnerBankID == from.bankID && n.Currency != from.currency {
				cross = append(cross, n)
			}
		}
		if len(cross) == 0 {
			continue
		}
		chosen := pick(g, cross)

		var recipients []string
		for _, c := range snap.clients {
			if c.BankID == chosen.CorrespondentBankID && c.Kind.CanTransact() {
				recipients = append(recipients, c.ID)
			}
		}
		if len(recipients) == 0 {
			continue
		}
		sort.Strings(recipients)

		amount := g.amount(from.amount)
		if !amount.IsPositive() {
			continue
		}
		return g.pay(ctx, KindCross, models.CreatePaymentParams{
			FromClientID:   from.clientID,
			ToClientID:     pick(g, recipients),
			DebitCurrency:  from.currency,
			CreditCurrency: chosen.Currency,
			DebitAmount:    amount,
		})
	}
	return false
}

// amount draws uniformly from [min(50, cap/2), cap] with cap = min(balance, 150).
func (g *Generator) amount(balance decimal.Decimal) decimal.Decimal {
	limit, _ := decimal.Min(balance, decimal.NewFromInt(150)).Float64()
	low := min(50, limit*0.5)
	g.mu.Lock()
	x := low + g.rnd.Float64()*(limit-low)
	g.mu.Unlock()
	return decimal.NewFromFloat(x).Round(2)
}

func (g *Generator) pay(ctx context.Context, kind string, params models.CreatePaymentParams) bool {
	p, err := g.payer.CreatePayment(ctx, params)
	g.metrics.TrafficGenerated(kind, err == nil)
	if err != nil {
		g.logger.Debug("synthetic payment rejected",
			zap.String("kind", kind),
			zap.String("from_client_id", params.FromClientID),
			zap.Error(err),
		)
		return false
	}
	g.logger.Debug("synthetic payment queued", zap.String("kind", kind), zap.String("payment_id", p.ID))
	return true
}

func pick[T any](g *Generator, items []T) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	return items[g.rnd.IntN(len(items))]
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
