package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"corrsim/internal/models"
)

// Memory is an in-process Store. A unit of work reads the committed state
// directly and takes a private copy on its first write; commit swaps the copy
// in, rollback drops it.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

// WithTx runs fn as one serialized unit of work.
func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{st: m.state}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.dirty {
		m.state = tx.st
	}
	return nil
}

// Close is a no-op.
func (m *Memory) Close() {}

type balanceKey struct {
	clientID string
	currency string
}

type memState struct {
	counters     map[string]int64
	banks        map[string]models.Bank
	bankOrder    []string
	clients      map[string]models.Client
	clientOrder  []string
	balances     map[balanceKey]decimal.Decimal
	balanceOrder []balanceKey
	nostros      map[string]models.NostroAccount
	nostroOrder  []string
	payments     map[string]models.Payment
	paymentOrder []string
	messages     []models.PaymentMessage
	fxEvents     []models.FxEvent
	rates        map[string]models.FxRate
	windows      map[string]models.ClearingWindow
	clock        *models.ClockState
}

func newMemState() *memState {
	return &memState{
		counters: map[string]int64{},
		banks:    map[string]models.Bank{},
		clients:  map[string]models.Client{},
		balances: map[balanceKey]decimal.Decimal{},
		nostros:  map[string]models.NostroAccount{},
		payments: map[string]models.Payment{},
		rates:    map[string]models.FxRate{},
		windows:  map[string]models.ClearingWindow{},
	}
}

// clone copies maps and clips append-only slices so that appends made by an
// uncommitted unit of work can never reach the committed backing arrays.
func (s *memState) clone() *memState {
	c := &memState{
		counters:     cloneMap(s.counters),
		banks:        cloneMap(s.banks),
		bankOrder:    clip(s.bankOrder),
		clients:      cloneMap(s.clients),
		clientOrder:  clip(s.clientOrder),
		balances:     cloneMap(s.balances),
		balanceOrder: clip(s.balanceOrder),
		nostros:      cloneMap(s.nostros),
		nostroOrder:  clip(s.nostroOrder),
		payments:     cloneMap(s.payments),
		paymentOrder: clip(s.paymentOrder),
		messages:     clip(s.messages),
		fxEvents:     clip(s.fxEvents),
		rates:        cloneMap(s.rates),
		windows:      cloneMap(s.windows),
	}
	if s.clock != nil {
		st := *s.clock
		c.clock = &st
	}
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clip[T any](s []T) []T {
	return s[:len(s):len(s)]
}

type memTx struct {
	st    *memState
	dirty bool
}

// write switches the unit of work onto its private copy.
func (t *memTx) write() {
	if !t.dirty {
		t.st = t.st.clone()
		t.dirty = true
	}
}

func (t *memTx) NextID(_ context.Context, kind, prefix string) (string, error) {
	t.write()
	t.st.counters[kind]++
	return FormatID(prefix, t.st.counters[kind]), nil
}

// --- Banks ---

func (t *memTx) CreateBank(_ context.Context, bank models.Bank) error {
	t.write()
	if _, ok := t.st.banks[bank.ID]; ok {
		return models.Errorf(models.KindConflict, "bank %s already exists", bank.ID)
	}
	for _, b := range t.st.banks {
		if b.Name == bank.Name {
			return models.Errorf(models.KindConflict, "bank name %q already exists", bank.Name)
		}
	}
	t.st.banks[bank.ID] = bank
	t.st.bankOrder = append(t.st.bankOrder, bank.ID)
	return nil
}

func (t *memTx) GetBank(_ context.Context, id string) (*models.Bank, error) {
	b, ok := t.st.banks[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (t *memTx) ListBanks(_ context.Context) ([]models.Bank, error) {
	out := make([]models.Bank, 0, len(t.st.bankOrder))
	for _, id := range t.st.bankOrder {
		out = append(out, t.st.banks[id])
	}
	return out, nil
}

// --- Clients ---

func (t *memTx) CreateClient(_ context.Context, client models.Client) error {
	t.write()
	if _, ok := t.st.clients[client.ID]; ok {
		return models.Errorf(models.KindConflict, "client %s already exists", client.ID)
	}
	for _, c := range t.st.clients {
		if c.BankID != client.BankID || c.Kind != client.Kind {
			continue
		}
		switch client.Kind {
		case models.ClientKindHouse:
			return models.Errorf(models.KindConflict, "bank %s already has a house client", client.BankID)
		case models.ClientKindVostro:
			if c.VostroForBankID == client.VostroForBankID {
				return models.Errorf(models.KindConflict, "vostro for %s at %s already exists", client.VostroForBankID, client.BankID)
			}
		case models.ClientKindRegular:
		}
	}
	t.st.clients[client.ID] = client
	t.st.clientOrder = append(t.st.clientOrder, client.ID)
	return nil
}

func (t *memTx) GetClient(_ context.Context, id string) (*models.Client, error) {
	c, ok := t.st.clients[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (t *memTx) findClient(match func(models.Client) bool) *models.Client {
	for _, id := range t.st.clientOrder {
		c := t.st.clients[id]
		if match(c) {
			return &c
		}
	}
	return nil
}

func (t *memTx) FindHouseClient(_ context.Context, bankID string) (*models.Client, error) {
	return t.findClient(func(c models.Client) bool {
		return c.BankID == bankID && c.Kind == models.ClientKindHouse
	}), nil
}

func (t *memTx) FindVostroClient(_ context.Context, hostBankID, foreignBankID string) (*models.Client, error) {
	return t.findClient(func(c models.Client) bool {
		return c.BankID == hostBankID && c.Kind == models.ClientKindVostro && c.VostroForBankID == foreignBankID
	}), nil
}

func (t *memTx) ListClients(_ context.Context) ([]models.Client, error) {
	out := make([]models.Client, 0, len(t.st.clientOrder))
	for _, id := range t.st.clientOrder {
		out = append(out, t.st.clients[id])
	}
	return out, nil
}

func (t *memTx) ListClientsByBank(_ context.Context, bankID string) ([]models.Client, error) {
	var out []models.Client
	for _, id := range t.st.clientOrder {
		if c := t.st.clients[id]; c.BankID == bankID {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- Balances ---

func (t *memTx) GetBalance(_ context.Context, clientID, currency string) (decimal.Decimal, error) {
	return t.st.balances[balanceKey{clientID, currency}], nil
}

func (t *memTx) SetBalance(_ context.Context, clientID, currency string, amount decimal.Decimal) error {
	t.write()
	key := balanceKey{clientID, currency}
	if _, ok := t.st.balances[key]; !ok {
		t.st.balanceOrder = append(t.st.balanceOrder, key)
	}
	t.st.balances[key] = amount
	return nil
}

func (t *memTx) ListBalances(_ context.Context) ([]models.Balance, error) {
	out := make([]models.Balance, 0, len(t.st.balanceOrder))
	for _, k := range t.st.balanceOrder {
		out = append(out, models.Balance{ClientID: k.clientID, Currency: k.currency, Amount: t.st.balances[k]})
	}
	return out, nil
}

// --- Nostros ---

func (t *memTx) CreateNostro(_ context.Context, nostro models.NostroAccount) error {
	t.write()
	for _, n := range t.st.nostros {
		if n.OwnerBankID == nostro.OwnerBankID && n.Currency == nostro.Currency {
			return models.Errorf(models.KindConflict, "nostro already exists for %s", nostro.Currency)
		}
	}
	t.st.nostros[nostro.ID] = nostro
	t.st.nostroOrder = append(t.st.nostroOrder, nostro.ID)
	return nil
}

func (t *memTx) GetNostro(_ context.Context, ownerBankID, currency string) (*models.NostroAccount, error) {
	for _, id := range t.st.nostroOrder {
		n := t.st.nostros[id]
		if n.OwnerBankID == ownerBankID && n.Currency == currency {
			return &n, nil
		}
	}
	return nil, nil
}

func (t *memTx) SetNostroBalance(_ context.Context, id string, amount decimal.Decimal) error {
	t.write()
	n, ok := t.st.nostros[id]
	if !ok {
		return models.Errorf(models.KindNotFound, "nostro %s not found", id)
	}
	n.Balance = amount
	t.st.nostros[id] = n
	return nil
}

func (t *memTx) ListNostros(_ context.Context, filter models.NostroFilter) ([]models.NostroAccount, error) {
	var out []models.NostroAccount
	for _, id := range t.st.nostroOrder {
		if n := t.st.nostros[id]; filter.Matches(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// --- Payments ---

func (t *memTx) CreatePayment(_ context.Context, payment models.Payment) error {
	t.write()
	if _, ok := t.st.payments[payment.ID]; ok {
		return models.Errorf(models.KindConflict, "payment %s already exists", payment.ID)
	}
	t.st.payments[payment.ID] = payment
	t.st.paymentOrder = append(t.st.paymentOrder, payment.ID)
	return nil
}

func (t *memTx) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	p, ok := t.st.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (t *memTx) UpdatePayment(_ context.Context, payment models.Payment) error {
	t.write()
	if _, ok := t.st.payments[payment.ID]; !ok {
		return models.Errorf(models.KindNotFound, "payment %s not found", payment.ID)
	}
	t.st.payments[payment.ID] = payment
	return nil
}

func (t *memTx) ListPayments(_ context.Context) ([]models.Payment, error) {
	out := make([]models.Payment, 0, len(t.st.paymentOrder))
	for i := len(t.st.paymentOrder) - 1; i >= 0; i-- {
		out = append(out, t.st.payments[t.st.paymentOrder[i]])
	}
	return out, nil
}

func (t *memTx) ListQueuedPayments(_ context.Context) ([]models.Payment, error) {
	var out []models.Payment
	for _, id := range t.st.paymentOrder {
		if p := t.st.payments[id]; p.State == models.PaymentStateQueued {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *memTx) ClearPayments(_ context.Context) error {
	t.write()
	t.st.payments = map[string]models.Payment{}
	t.st.paymentOrder = nil
	t.st.messages = nil
	t.st.fxEvents = nil
	return nil
}

func (t *memTx) AppendMessage(_ context.Context, msg models.PaymentMessage) error {
	t.write()
	t.st.messages = append(t.st.messages, msg)
	return nil
}

func (t *memTx) ListMessages(_ context.Context, paymentID string) ([]models.PaymentMessage, error) {
	var out []models.PaymentMessage
	for _, m := range t.st.messages {
		if m.PaymentID == paymentID {
			out = append(out, m)
		}
	}
	return out, nil
}

// --- FX ---

func (t *memTx) AppendFxEvent(_ context.Context, evt models.FxEvent) error {
	t.write()
	t.st.fxEvents = append(t.st.fxEvents, evt)
	return nil
}

func (t *memTx) ListFxEvents(_ context.Context) ([]models.FxEvent, error) {
	out := make([]models.FxEvent, 0, len(t.st.fxEvents))
	for i := len(t.st.fxEvents) - 1; i >= 0; i-- {
		evt := t.st.fxEvents[i]
		if b, ok := t.st.banks[evt.BankID]; ok {
			evt.BankName = b.Name
		}
		out = append(out, evt)
	}
	return out, nil
}

func (t *memTx) PutFxRate(_ context.Context, rate models.FxRate) error {
	t.write()
	t.st.rates[rate.QuoteCurrency] = rate
	return nil
}

func (t *memTx) GetFxRate(_ context.Context, quoteCurrency string) (*models.FxRate, error) {
	r, ok := t.st.rates[quoteCurrency]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (t *memTx) ListFxRates(_ context.Context) ([]models.FxRate, error) {
	out := make([]models.FxRate, 0, len(t.st.rates))
	for _, r := range t.st.rates {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuoteCurrency < out[j].QuoteCurrency })
	return out, nil
}

func (t *memTx) PutClearingWindow(_ context.Context, w models.ClearingWindow) error {
	t.write()
	t.st.windows[w.Currency] = w
	return nil
}

func (t *memTx) GetClearingWindow(_ context.Context, currency string) (*models.ClearingWindow, error) {
	w, ok := t.st.windows[currency]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (t *memTx) ListClearingWindows(_ context.Context) ([]models.ClearingWindow, error) {
	out := make([]models.ClearingWindow, 0, len(t.st.windows))
	for _, w := range t.st.windows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

// --- Clock ---

func (t *memTx) GetClock(_ context.Context) (*models.ClockState, error) {
	if t.st.clock == nil {
		return nil, nil
	}
	st := *t.st.clock
	return &st, nil
}

func (t *memTx) PutClock(_ context.Context, state models.ClockState) error {
	t.write()
	t.st.clock = &state
	return nil
}

func (t *memTx) Wipe(_ context.Context) error {
	t.st = newMemState()
	t.dirty = true
	return nil
}
