package store

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"corrsim/internal/db"
	"corrsim/internal/models"
	"corrsim/internal/repository"
)

// Postgres is the durable Store. Units of work are serialized in process by a
// mutex and across processes by a transaction-scoped advisory lock.
type Postgres struct {
	mu sync.Mutex
	db *db.DB
}

// NewPostgres wraps an open database. The schema must already be migrated.
func NewPostgres(database *db.DB) *Postgres {
	return &Postgres{db: database}
}

func (p *Postgres) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.WithLockedTx(ctx, func(tx pgx.Tx) error {
		return fn(newPgTx(tx))
	})
}

func (p *Postgres) Close() {
	p.db.Close()
}

var (
	_ Store = (*Postgres)(nil)
	_ Tx    = (*pgTx)(nil)
)

type pgTx struct {
	tx       pgx.Tx
	banks    *repository.BankRepository
	clients  *repository.ClientRepository
	balances *repository.BalanceRepository
	nostros  *repository.NostroRepository
	payments *repository.PaymentRepository
	messages *repository.MessageRepository
	fx       *repository.FxRepository
	clearing *repository.ClearingRepository
	clock    *repository.ClockRepository
	counters *repository.CounterRepository
}

func newPgTx(tx pgx.Tx) *pgTx {
	return &pgTx{
		tx:       tx,
		banks:    repository.NewBankRepository(tx),
		clients:  repository.NewClientRepository(tx),
		balances: repository.NewBalanceRepository(tx),
		nostros:  repository.NewNostroRepository(tx),
		payments: repository.NewPaymentRepository(tx),
		messages: repository.NewMessageRepository(tx),
		fx:       repository.NewFxRepository(tx),
		clearing: repository.NewClearingRepository(tx),
		clock:    repository.NewClockRepository(tx),
		counters: repository.NewCounterRepository(tx),
	}
}

func (t *pgTx) NextID(ctx context.Context, kind, prefix string) (string, error) {
	n, err := t.counters.Next(ctx, kind)
	if err != nil {
		return "", err
	}
	return FormatID(prefix, n), nil
}

func (t *pgTx) CreateBank(ctx context.Context, bank models.Bank) error {
	return t.banks.Create(ctx, bank)
}

func (t *pgTx) GetBank(ctx context.Context, id string) (*models.Bank, error) {
	return t.banks.GetByID(ctx, id)
}

func (t *pgTx) ListBanks(ctx context.Context) ([]models.Bank, error) {
	return t.banks.List(ctx)
}

func (t *pgTx) CreateClient(ctx context.Context, client models.Client) error {
	return t.clients.Create(ctx, client)
}

func (t *pgTx) GetClient(ctx context.Context, id string) (*models.Client, error) {
	return t.clients.GetByID(ctx, id)
}

func (t *pgTx) FindHouseClient(ctx context.Context, bankID string) (*models.Client, error) {
	return t.clients.FindHouse(ctx, bankID)
}

func (t *pgTx) FindVostroClient(ctx context.Context, hostBankID, foreignBankID string) (*models.Client, error) {
	return t.clients.FindVostro(ctx, hostBankID, foreignBankID)
}

func (t *pgTx) ListClients(ctx context.Context) ([]models.Client, error) {
	return t.clients.List(ctx)
}

func (t *pgTx) ListClientsByBank(ctx context.Context, bankID string) ([]models.Client, error) {
	return t.clients.ListByBank(ctx, bankID)
}

func (t *pgTx) GetBalance(ctx context.Context, clientID, currency string) (decimal.Decimal, error) {
	return t.balances.Get(ctx, clientID, currency)
}

func (t *pgTx) SetBalance(ctx context.Context, clientID, currency string, amount decimal.Decimal) error {
	return t.balances.Set(ctx, clientID, currency, amount)
}

func (t *pgTx) ListBalances(ctx context.Context) ([]models.Balance, error) {
	return t.balances.List(ctx)
}

func (t *pgTx) CreateNostro(ctx context.Context, nostro models.NostroAccount) error {
	return t.nostros.Create(ctx, nostro)
}

func (t *pgTx) GetNostro(ctx context.Context, ownerBankID, currency string) (*models.NostroAccount, error) {
	return t.nostros.Get(ctx, ownerBankID, currency)
}

func (t *pgTx) SetNostroBalance(ctx context.Context, id string, amount decimal.Decimal) error {
	return t.nostros.SetBalance(ctx, id, amount)
}

func (t *pgTx) ListNostros(ctx context.Context, filter models.NostroFilter) ([]models.NostroAccount, error) {
	return t.nostros.List(ctx, filter)
}

func (t *pgTx) CreatePayment(ctx context.Context, payment models.Payment) error {
	return t.payments.Create(ctx, payment)
}

func (t *pgTx) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return t.payments.GetByID(ctx, id)
}

func (t *pgTx) UpdatePayment(ctx context.Context, payment models.Payment) error {
	return t.payments.Update(ctx, payment)
}

func (t *pgTx) ListPayments(ctx context.Context) ([]models.Payment, error) {
	return t.payments.List(ctx)
}

func (t *pgTx) ListQueuedPayments(ctx context.Context) ([]models.Payment, error) {
	return t.payments.ListQueued(ctx)
}

func (t *pgTx) ClearPayments(ctx context.Context) error {
	return t.payments.Clear(ctx)
}

func (t *pgTx) AppendMessage(ctx context.Context, msg models.PaymentMessage) error {
	return t.messages.Append(ctx, msg)
}

func (t *pgTx) ListMessages(ctx context.Context, paymentID string) ([]models.PaymentMessage, error) {
	return t.messages.ListByPayment(ctx, paymentID)
}

func (t *pgTx) AppendFxEvent(ctx context.Context, evt models.FxEvent) error {
	return t.fx.AppendEvent(ctx, evt)
}

func (t *pgTx) ListFxEvents(ctx context.Context) ([]models.FxEvent, error) {
	return t.fx.ListEvents(ctx)
}

func (t *pgTx) PutFxRate(ctx context.Context, rate models.FxRate) error {
	return t.fx.PutRate(ctx, rate)
}

func (t *pgTx) GetFxRate(ctx context.Context, quoteCurrency string) (*models.FxRate, error) {
	return t.fx.GetRate(ctx, quoteCurrency)
}

func (t *pgTx) ListFxRates(ctx context.Context) ([]models.FxRate, error) {
	return t.fx.ListRates(ctx)
}

func (t *pgTx) PutClearingWindow(ctx context.Context, w models.ClearingWindow) error {
	return t.clearing.Put(ctx, w)
}

func (t *pgTx) GetClearingWindow(ctx context.Context, currency string) (*models.ClearingWindow, error) {
	return t.clearing.Get(ctx, currency)
}

func (t *pgTx) ListClearingWindows(ctx context.Context) ([]models.ClearingWindow, error) {
	return t.clearing.List(ctx)
}

func (t *pgTx) GetClock(ctx context.Context) (*models.ClockState, error) {
	return t.clock.Get(ctx)
}

func (t *pgTx) PutClock(ctx context.Context, state models.ClockState) error {
	return t.clock.Put(ctx, state)
}

func (t *pgTx) Wipe(ctx context.Context) error {
	return repository.Wipe(ctx, t.tx)
}
