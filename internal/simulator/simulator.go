// Package simulator is the administrative surface over the settlement core:
// bank and client setup, deposits, payments, reference data, the clock and resets.
package simulator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"corrsim/internal/clock"
	"corrsim/internal/engine"
	"corrsim/internal/journal"
	"corrsim/internal/ledger"
	"corrsim/internal/metrics"
	"corrsim/internal/models"
	"corrsim/internal/store"
)

// DefaultFxRates are the USD pivot quotes seeded on first start and on reset.
func DefaultFxRates() []models.FxRate {
	return []models.FxRate{
		{QuoteCurrency: "EUR", Rate: decimal.RequireFromString("0.85")},
		{QuoteCurrency: "GBP", Rate: decimal.RequireFromString("0.77")},
		{QuoteCurrency: "CHF", Rate: decimal.RequireFromString("0.95")},
		{QuoteCurrency: "JPY", Rate: decimal.RequireFromString("150")},
		{QuoteCurrency: "HKD", Rate: decimal.RequireFromString("7.80")},
		{QuoteCurrency: "MXN", Rate: decimal.RequireFromString("20.00")},
	}
}

// DefaultClearingWindows are the clearing hours seeded alongside the rates.
func DefaultClearingWindows() []models.ClearingWindow {
	return []models.ClearingWindow{
		{Currency: "USD", OpenHour: 13, CloseHour: 22},
		{Currency: "EUR", OpenHour: 8, CloseHour: 17},
		{Currency: "GBP", OpenHour: 7, CloseHour: 16},
		{Currency: "CHF", OpenHour: 8, CloseHour: 17},
		{Currency: "JPY", OpenHour: 0, CloseHour: 9},
		{Currency: "HKD", OpenHour: 0, CloseHour: 9},
		{Currency: "MXN", OpenHour: 14, CloseHour: 23},
	}
}

// LoadClock resumes the persisted clock record, or starts a new clock at the
// epoch and persists it.
func LoadClock(ctx context.Context, st store.Store, cfg clock.Config, now func() time.Time) (*clock.Clock, error) {
	var c *clock.Clock
	err := st.WithTx(ctx, func(tx store.Tx) error {
		state, err := tx.GetClock(ctx)
		if err != nil {
			return err
		}
		c = clock.New(cfg, state, now)
		if state == nil {
			return tx.PutClock(ctx, c.State())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load clock: %w", err)
	}
	return c, nil
}

// Deps are the collaborators a Simulator needs. Store, Clock and Engine are required.
type Deps struct {
	Store   store.Store
	Clock   *clock.Clock
	Engine  *engine.Engine
	Journal journal.Journal
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Simulator exposes every externally callable operation.
type Simulator struct {
	store   store.Store
	clock   *clock.Clock
	engine  *engine.Engine
	journal journal.Journal
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a Simulator.
func New(deps Deps) *Simulator {
	if deps.Journal == nil {
		deps.Journal = journal.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Simulator{
		store:   deps.Store,
		clock:   deps.Clock,
		engine:  deps.Engine,
		journal: deps.Journal,
		metrics: deps.Metrics,
		logger:  deps.Logger.With(zap.String("component", "simulator")),
	}
}

// Seed installs the default rates and clearing hours when none exist yet.
func (s *Simulator) Seed(ctx context.Context) error {
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		rates, err := tx.ListFxRates(ctx)
		if err != nil {
			return err
		}
		if len(rates) == 0 {
			if err := seedRates(ctx, tx); err != nil {
				return err
			}
		}
		windows, err := tx.ListClearingWindows(ctx)
		if err != nil {
			return err
		}
		if len(windows) == 0 {
			return seedWindows(ctx, tx)
		}
		return nil
	})
}

func seedRates(ctx context.Context, tx store.Tx) error {
	for _, r := range DefaultFxRates() {
		if err := tx.PutFxRate(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func seedWindows(ctx context.Context, tx store.Tx) error {
	for _, w := range DefaultClearingWindows() {
		if err := tx.PutClearingWindow(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// session runs fn in one unit of work stamped with the current simulated time.
func (s *Simulator) session(ctx context.Context, fn func(ls *ledger.Session) error) (*ledger.Session, error) {
	var out *ledger.Session
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		ls := ledger.NewSession(tx, s.clock.Now())
		if err := fn(ls); err != nil {
			return err
		}
		out = ls
		return nil
	})
	return out, err
}

// --- Banks and clients ---

func (s *Simulator) CreateBank(ctx context.Context, params models.CreateBankParams) (*models.Bank, error) {
	var bank *models.Bank
	_, err := s.session(ctx, func(ls *ledger.Session) error {
		var err error
		bank, err = ls.CreateBank(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("bank created", zap.String("bank_id", bank.ID), zap.String("currency", bank.BaseCurrency))
	return bank, nil
}

func (s *Simulator) CreateClient(ctx context.Context, params models.CreateClientParams) (*models.Client, error) {
	var client *models.Client
	_, err := s.session(ctx, func(ls *ledger.Session) error {
		var err error
		client, err = ls.CreateClient(ctx, params)
		return err
	})
	return client, err
}

// HouseClient returns the bank's House client, creating it if needed.
func (s *Simulator) HouseClient(ctx context.Context, bankID string) (*models.Client, error) {
	var client *models.Client
	_, err := s.session(ctx, func(ls *ledger.Session) error {
		if _, err := ls.AvailableCurrencies(ctx, bankID); err != nil {
			return err
		}
		var err error
		client, err = ls.GetOrCreateHouse(ctx, bankID)
		return err
	})
	return client, err
}

// CreateCorrespondent opens a nostro for owner at correspondent and opens the
// matching journal accounts after commit.
func (s *Simulator) CreateCorrespondent(ctx context.Context, ownerBankID, correspondentBankID string) (*models.NostroAccount, error) {
	var nostro *models.NostroAccount
	ls, err := s.session(ctx, func(ls *ledger.Session) error {
		var err error
		nostro, err = ls.CreateCorrespondent(ctx, ownerBankID, correspondentBankID)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, n := range ls.OpenedNostros() {
		if err := s.journal.OpenCorrespondent(ctx, n); err != nil {
			s.metrics.JournalFailed()
			s.logger.Warn("journal open failed", zap.String("nostro_id", n.ID), zap.Error(err))
		}
	}
	s.logger.Info("correspondent opened",
		zap.String("bank_id", ownerBankID),
		zap.String("correspondent_bank_id", correspondentBankID),
		zap.String("currency", nostro.Currency),
	)
	return nostro, nil
}

// Deposit credits a Regular or House client. Foreign currency deposits grow
// the bank's nostro and its mirror by the same amount.
func (s *Simulator) Deposit(ctx context.Context, clientID, currency string, amount decimal.Decimal) error {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if !amount.IsPositive() {
		return models.Errorf(models.KindInvalidInput, "deposit amount must be positive")
	}
	if !ledger.ValidCurrencyCode(currency) {
		return models.Errorf(models.KindInvalidCurrency, "invalid currency code %q", currency)
	}

	ls, err := s.session(ctx, func(ls *ledger.Session) error {
		client, err := ls.Client(ctx, clientID)
		if err != nil {
			return err
		}
		if !client.Kind.CanTransact() {
			return models.Errorf(models.KindInvalidInput, "deposits are only allowed for regular or house clients")
		}
		return ls.FullDelta(ctx, clientID, currency, amount)
	})
	if err != nil {
		return err
	}
	if legs := ls.Legs(); len(legs) > 0 {
		if err := s.journal.Record(ctx, "DEP:"+clientID, legs); err != nil {
			s.metrics.JournalFailed()
			s.logger.Warn("journal record failed", zap.String("client_id", clientID), zap.Error(err))
		}
	}
	return nil
}

func (s *Simulator) ListBanks(ctx context.Context) ([]models.Bank, error) {
	var out []models.Bank
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListBanks(ctx)
		return err
	})
	return out, err
}

// ListClients returns every client with its balances sorted by currency.
func (s *Simulator) ListClients(ctx context.Context) ([]models.ClientWithBalances, error) {
	var (
		clients  []models.Client
		balances []models.Balance
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if clients, err = tx.ListClients(ctx); err != nil {
			return err
		}
		balances, err = tx.ListBalances(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	byClient := make(map[string][]models.Balance, len(clients))
	for _, b := range balances {
		byClient[b.ClientID] = append(byClient[b.ClientID], b)
	}
	out := make([]models.ClientWithBalances, 0, len(clients))
	for _, c := range clients {
		bals := byClient[c.ID]
		sort.Slice(bals, func(i, j int) bool { return bals[i].Currency < bals[j].Currency })
		if bals == nil {
			bals = []models.Balance{}
		}
		out = append(out, models.ClientWithBalances{Client: c, Balances: bals})
	}
	return out, nil
}

func (s *Simulator) ListNostros(ctx context.Context, filter models.NostroFilter) ([]models.NostroAccount, error) {
	var out []models.NostroAccount
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListNostros(ctx, filter)
		return err
	})
	return out, err
}

func (s *Simulator) AvailableCurrencies(ctx context.Context, bankID string) (models.AvailableCurrencies, error) {
	var out models.AvailableCurrencies
	_, err := s.session(ctx, func(ls *ledger.Session) error {
		var err error
		out, err = ls.AvailableCurrencies(ctx, bankID)
		return err
	})
	return out, err
}

// --- Payments ---

// CreatePayment queues a payment intent.
func (s *Simulator) CreatePayment(ctx context.Context, params models.CreatePaymentParams) (*models.Payment, error) {
	return s.engine.CreateIntent(ctx, params)
}

// ListPayments returns payments newest first with their FX bank markers.
func (s *Simulator) ListPayments(ctx context.Context) ([]models.PaymentView, error) {
	var payments []models.Payment
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		payments, err = tx.ListPayments(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.PaymentView, 0, len(payments))
	for _, p := range payments {
		if p.Route == nil {
			p.Route = []string{}
		}
		out = append(out, models.PaymentView{Payment: p, FxAtBankIDs: p.FxAtBankIDs()})
	}
	return out, nil
}

// PaymentMessages returns the payment's message log in order.
func (s *Simulator) PaymentMessages(ctx context.Context, paymentID string) ([]models.PaymentMessage, error) {
	var out []models.PaymentMessage
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return models.Errorf(models.KindNotFound, "payment %s not found", paymentID)
		}
		out, err = tx.ListMessages(ctx, paymentID)
		return err
	})
	if out == nil && err == nil {
		out = []models.PaymentMessage{}
	}
	return out, err
}

// ListFxHistory returns every FX event, newest first.
func (s *Simulator) ListFxHistory(ctx context.Context) ([]models.FxEvent, error) {
	var out []models.FxEvent
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListFxEvents(ctx)
		return err
	})
	return out, err
}

// --- Reference data ---

func (s *Simulator) FxRates(ctx context.Context) ([]models.FxRate, error) {
	var out []models.FxRate
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListFxRates(ctx)
		return err
	})
	return out, err
}

func (s *Simulator) ClearingHours(ctx context.Context) ([]models.ClearingWindow, error) {
	var out []models.ClearingWindow
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListClearingWindows(ctx)
		return err
	})
	return out, err
}

// --- Clock ---

func (s *Simulator) Clock() models.ClockStatus {
	return s.clock.Status()
}

// Pause freezes simulated time.
func (s *Simulator) Pause(ctx context.Context) (models.ClockStatus, error) {
	return s.changeClock(ctx, s.clock.Pause)
}

// Play resumes simulated time at the remembered rate.
func (s *Simulator) Play(ctx context.Context) (models.ClockStatus, error) {
	return s.changeClock(ctx, s.clock.Play)
}

// Faster doubles the clock rate.
func (s *Simulator) Faster(ctx context.Context) (models.ClockStatus, error) {
	return s.changeClock(ctx, s.clock.Faster)
}

// Slower halves the clock rate.
func (s *Simulator) Slower(ctx context.Context) (models.ClockStatus, error) {
	return s.changeClock(ctx, s.clock.Slower)
}

// ResetClock returns the clock to the epoch, running at the base rate.
func (s *Simulator) ResetClock(ctx context.Context) (models.ClockStatus, error) {
	return s.changeClock(ctx, s.clock.Reset)
}

func (s *Simulator) changeClock(ctx context.Context, change func()) (models.ClockStatus, error) {
	change()
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.PutClock(ctx, s.clock.State())
	})
	if err != nil {
		return models.ClockStatus{}, fmt.Errorf("persist clock: %w", err)
	}
	status := s.clock.Status()
	s.logger.Debug("clock changed", zap.Int64("tick", status.Tick), zap.Bool("paused", status.IsPaused))
	return status, nil
}

// --- Administration ---

// Reset wipes every bank, client, balance, nostro, payment and counter, then
// reseeds the rates, clearing hours and clock.
func (s *Simulator) Reset(ctx context.Context) error {
	s.clock.Reset()
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Wipe(ctx); err != nil {
			return err
		}
		if err := seedRates(ctx, tx); err != nil {
			return err
		}
		if err := seedWindows(ctx, tx); err != nil {
			return err
		}
		return tx.PutClock(ctx, s.clock.State())
	})
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	s.logger.Info("simulation reset")
	return nil
}

// ResetPayments drops payments, their messages and the FX history and keeps
// banks, clients and balances.
func (s *Simulator) ResetPayments(ctx context.Context) error {
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.ClearPayments(ctx)
	})
	if err != nil {
		return fmt.Errorf("reset payments: %w", err)
	}
	s.logger.Info("payments reset")
	return nil
}
