package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corrsim/internal/clock"
	"corrsim/internal/config"
	"corrsim/internal/engine"
	"corrsim/internal/journal"
	"corrsim/internal/models"
	"corrsim/internal/money"
	"corrsim/internal/store"
)

type stubJournal struct {
	opened   []models.NostroAccount
	recorded map[string][]journal.Leg
	err      error
}

func (j *stubJournal) OpenCorrespondent(_ context.Context, n models.NostroAccount) error {
	j.opened = append(j.opened, n)
	return j.err
}

func (j *stubJournal) Record(_ context.Context, id string, legs []journal.Leg) error {
	if j.recorded == nil {
		j.recorded = map[string][]journal.Leg{}
	}
	j.recorded[id] = append(j.recorded[id], legs...)
	return j.err
}

type harness struct {
	ctx     context.Context
	store   *store.Memory
	wall    time.Time
	clock   *clock.Clock
	engine  *engine.Engine
	journal *stubJournal
	sim     *Simulator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ctx:     context.Background(),
		store:   store.NewMemory(),
		wall:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		journal: &stubJournal{},
	}
	var err error
	h.clock, err = LoadClock(h.ctx, h.store, clock.Config{Epoch: config.DefaultEpoch, BaseTick: 1}, func() time.Time { return h.wall })
	require.NoError(t, err)
	h.engine = engine.New(engine.Deps{Store: h.store, Clock: h.clock, Journal: h.journal}, engine.Config{
		Policy:           config.TickPolicyAll,
		ClearingLocation: time.FixedZone("CET", 3600),
	})
	h.sim = New(Deps{Store: h.store, Clock: h.clock, Engine: h.engine, Journal: h.journal})
	require.NoError(t, h.sim.Seed(h.ctx))
	return h
}

func (h *harness) bank(t *testing.T, name, ccy string) *models.Bank {
	t.Helper()
	b, err := h.sim.CreateBank(h.ctx, models.CreateBankParams{Name: name, BaseCurrency: ccy})
	require.NoError(t, err)
	return b
}

func (h *harness) client(t *testing.T, bankID, name string) *models.Client {
	t.Helper()
	c, err := h.sim.CreateClient(h.ctx, models.CreateClientParams{BankID: bankID, Name: name})
	require.NoError(t, err)
	return c
}

func (h *harness) balances(t *testing.T, clientID string) map[string]string {
	t.Helper()
	clients, err := h.sim.ListClients(h.ctx)
	require.NoError(t, err)
	out := map[string]string{}
	for _, c := range clients {
		if c.ID != clientID {
			continue
		}
		for _, b := range c.Balances {
			out[b.Currency] = money.String(b.Amount)
		}
	}
	return out
}

func TestSeed_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sim.Seed(h.ctx))

	rates, err := h.sim.FxRates(h.ctx)
	require.NoError(t, err)
	assert.Len(t, rates, len(DefaultFxRates()))

	hours, err := h.sim.ClearingHours(h.ctx)
	require.NoError(t, err)
	assert.Len(t, hours, len(DefaultClearingWindows()))
}

func TestLoadClock_ResumesPersistedRecord(t *testing.T) {
	h := newHarness(t)
	_, err := h.sim.Faster(h.ctx)
	require.NoError(t, err)
	h.wall = h.wall.Add(10 * time.Second)

	resumed, err := LoadClock(h.ctx, h.store, clock.Config{Epoch: config.DefaultEpoch, BaseTick: 1}, func() time.Time { return h.wall })
	require.NoError(t, err)
	assert.Equal(t, int64(2), resumed.Status().Tick)
	assert.Equal(t, config.DefaultEpoch.Add(20*time.Second), resumed.Now())
}

func TestClockControls(t *testing.T) {
	h := newHarness(t)

	st, err := h.sim.Pause(h.ctx)
	require.NoError(t, err)
	assert.True(t, st.IsPaused)

	st, err = h.sim.Faster(h.ctx)
	require.NoError(t, err)
	assert.True(t, st.IsPaused, "faster is a no-op while paused")

	st, err = h.sim.Play(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Tick)

	_, err = h.sim.Faster(h.ctx)
	require.NoError(t, err)
	st, err = h.sim.Faster(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.Tick)

	st, err = h.sim.Slower(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Tick)

	h.wall = h.wall.Add(time.Hour)
	st, err = h.sim.ResetClock(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultEpoch, st.SimTime)
	assert.Equal(t, int64(1), st.Tick)

	require.NoError(t, h.store.WithTx(h.ctx, func(tx store.Tx) error {
		rec, err := tx.GetClock(h.ctx)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, config.DefaultEpoch, rec.SimTime)
		return nil
	}))
}

func TestCreateBank_AddsHouseClient(t *testing.T) {
	h := newHarness(t)
	b := h.bank(t, "Alpha", "usd")
	assert.Equal(t, "B_0001", b.ID)
	assert.Equal(t, "USD", b.BaseCurrency)

	house, err := h.sim.HouseClient(h.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClientKindHouse, house.Kind)

	_, err = h.sim.CreateBank(h.ctx, models.CreateBankParams{Name: "Alpha", BaseCurrency: "EUR"})
	assert.True(t, models.IsKind(err, models.KindConflict))

	_, err = h.sim.HouseClient(h.ctx, "B_0404")
	assert.True(t, models.IsKind(err, models.KindNotFound))
}

func TestDeposit(t *testing.T) {
	h := newHarness(t)
	alpha := h.bank(t, "Alpha", "USD")
	beta := h.bank(t, "Beta", "EUR")
	_, err := h.sim.CreateCorrespondent(h.ctx, alpha.ID, beta.ID)
	require.NoError(t, err)
	a1 := h.client(t, alpha.ID, "a1")

	require.NoError(t, h.sim.Deposit(h.ctx, a1.ID, "usd", money.MustParse("25")))
	require.NoError(t, h.sim.Deposit(h.ctx, a1.ID, "EUR", money.MustParse("10.005")))
	assert.Equal(t, map[string]string{"EUR": "10.01", "USD": "25.00"}, h.balances(t, a1.ID))

	nostros, err := h.sim.ListNostros(h.ctx, models.NostroFilter{OwnerBankID: alpha.ID})
	require.NoError(t, err)
	require.Len(t, nostros, 1)
	assert.Equal(t, "10.01", money.String(nostros[0].Balance))
	require.Len(t, h.journal.recorded["DEP:"+a1.ID], 1)

	var vostroID string
	require.NoError(t, h.store.WithTx(h.ctx, func(tx store.Tx) error {
		v, err := tx.FindVostroClient(h.ctx, beta.ID, alpha.ID)
		vostroID = v.ID
		return err
	}))

	tests := []struct {
		name   string
		client string
		ccy    string
		amount string
		kind   models.ErrorKind
	}{
		{"zero", a1.ID, "USD", "0", models.KindInvalidInput},
		{"negative", a1.ID, "USD", "-5", models.KindInvalidInput},
		{"unknown client", "C_0404", "USD", "5", models.KindNotFound},
		{"vostro", vostroID, "EUR", "5", models.KindInvalidInput},
		{"unavailable currency", a1.ID, "GBP", "5", models.KindInvalidCurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.sim.Deposit(h.ctx, tt.client, tt.ccy, money.MustParse(tt.amount))
			assert.Equal(t, tt.kind, models.KindOf(err))
		})
	}
}

func TestCreateCorrespondent_OpensJournalAccounts(t *testing.T) {
	h := newHarness(t)
	alpha := h.bank(t, "Alpha", "USD")
	beta := h.bank(t, "Beta", "EUR")
	h.journal.err = errors.New("journal down")

	n, err := h.sim.CreateCorrespondent(h.ctx, alpha.ID, beta.ID)
	require.NoError(t, err, "journal errors never fail the ledger")
	assert.Equal(t, "EUR", n.Currency)
	require.Len(t, h.journal.opened, 1)
	assert.Equal(t, n.ID, h.journal.opened[0].ID)

	avail, err := h.sim.AvailableCurrencies(h.ctx, alpha.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"EUR", "USD"}, avail.Currencies)
}

func TestListClients_SortsBalancesByCurrency(t *testing.T) {
	h := newHarness(t)
	alpha := h.bank(t, "Alpha", "USD")
	beta := h.bank(t, "Beta", "EUR")
	gbp := h.bank(t, "Gamma", "GBP")
	_, err := h.sim.CreateCorrespondent(h.ctx, alpha.ID, gbp.ID)
	require.NoError(t, err)
	_, err = h.sim.CreateCorrespondent(h.ctx, alpha.ID, beta.ID)
	require.NoError(t, err)
	a1 := h.client(t, alpha.ID, "a1")

	for _, ccy := range []string{"USD", "GBP", "EUR"} {
		require.NoError(t, h.sim.Deposit(h.ctx, a1.ID, ccy, money.MustParse("1")))
	}

	clients, err := h.sim.ListClients(h.ctx)
	require.NoError(t, err)
	for _, c := range clients {
		if c.ID != a1.ID {
			assert.NotNil(t, c.Balances)
			continue
		}
		got := make([]string, len(c.Balances))
		for i, b := range c.Balances {
			got[i] = b.Currency
		}
		assert.Equal(t, []string{"EUR", "GBP", "USD"}, got)
	}
}

func TestPaymentLifecycle(t *testing.T) {
	h := newHarness(t)
	alpha := h.bank(t, "Alpha", "USD")
	beta := h.bank(t, "Beta", "EUR")
	_, err := h.sim.CreateCorrespondent(h.ctx, alpha.ID, beta.ID)
	require.NoError(t, err)
	a1 := h.client(t, alpha.ID, "a1")
	b1 := h.client(t, beta.ID, "b1")
	require.NoError(t, h.sim.Deposit(h.ctx, a1.ID, "USD", money.MustParse("200")))

	p, err := h.sim.CreatePayment(h.ctx, models.CreatePaymentParams{
		FromClientID:   a1.ID,
		ToClientID:     b1.ID,
		DebitCurrency:  "USD",
		CreditCurrency: "EUR",
		DebitAmount:    money.MustParse("100"),
	})
	require.NoError(t, err)

	// Epoch is 10:00 CET and EUR clears 08-17.
	res, err := h.engine.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Settled)

	views, err := h.sim.ListPayments(h.ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, p.ID, views[0].ID)
	assert.Equal(t, models.PaymentStateSettled, views[0].State)
	assert.Equal(t, []string{alpha.ID}, views[0].FxAtBankIDs)

	msgs, err := h.sim.PaymentMessages(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeInit, msgs[0].Type)
	assert.Equal(t, models.MessageTypeSettled, msgs[len(msgs)-1].Type)

	_, err = h.sim.PaymentMessages(h.ctx, "PAY_0404")
	assert.True(t, models.IsKind(err, models.KindNotFound))

	history, err := h.sim.ListFxHistory(h.ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Alpha", history[0].BankName)
	assert.Equal(t, "85.00", money.String(history[0].ToAmount))

	require.NoError(t, h.sim.ResetPayments(h.ctx))
	views, err = h.sim.ListPayments(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, views)
	history, err = h.sim.ListFxHistory(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Equal(t, map[string]string{"USD": "100.00", "EUR": "0.00"}, h.balances(t, a1.ID))
}

func TestReset(t *testing.T) {
	h := newHarness(t)
	alpha := h.bank(t, "Alpha", "USD")
	h.client(t, alpha.ID, "a1")
	h.wall = h.wall.Add(time.Hour)

	require.NoError(t, h.store.WithTx(h.ctx, func(tx store.Tx) error {
		return tx.PutFxRate(h.ctx, models.FxRate{QuoteCurrency: "EUR", Rate: money.MustParse("2")})
	}))

	require.NoError(t, h.sim.Reset(h.ctx))

	banks, err := h.sim.ListBanks(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, banks)
	clients, err := h.sim.ListClients(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, clients)

	rates, err := h.sim.FxRates(h.ctx)
	require.NoError(t, err)
	for _, r := range rates {
		if r.QuoteCurrency == "EUR" {
			assert.Equal(t, "0.85", money.String(r.Rate))
		}
	}
	assert.Equal(t, config.DefaultEpoch, h.sim.Clock().SimTime)

	b := h.bank(t, "Beta", "EUR")
	assert.Equal(t, "B_0001", b.ID, "counters restart after reset")
}
