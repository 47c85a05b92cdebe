// Package ledger applies balance mutations to banks, clients and nostro
// accounts while keeping the full-reserve and nostro/vostro mirror rules.
//
// A Session wraps one store transaction. It never commits on its own: the
// caller's unit of work decides whether the session's writes survive.
package ledger

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"corrsim/internal/journal"
	"corrsim/internal/models"
	"corrsim/internal/money"
	"corrsim/internal/store"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidCurrencyCode reports whether s looks like an ISO 4217 alpha code.
func ValidCurrencyCode(s string) bool {
	return currencyPattern.MatchString(s)
}

type pairKey struct {
	bankID   string
	currency string
}

// Session applies ledger operations inside one unit of work.
type Session struct {
	tx      store.Tx
	now     time.Time
	legs    []journal.Leg
	opened  []models.NostroAccount
	touched map[pairKey]struct{}
}

// NewSession binds a session to tx. now stamps every record it creates.
func NewSession(tx store.Tx, now time.Time) *Session {
	return &Session{tx: tx, now: now, touched: map[pairKey]struct{}{}}
}

// Tx exposes the underlying transaction for reads outside the ledger's scope.
func (s *Session) Tx() store.Tx { return s.tx }

// Now is the timestamp the session stamps records with.
func (s *Session) Now() time.Time { return s.now }

// Legs returns every nostro movement applied so far, in order.
func (s *Session) Legs() []journal.Leg { return s.legs }

// OpenedNostros returns nostro accounts created in this session.
func (s *Session) OpenedNostros() []models.NostroAccount { return s.opened }

// --- Banks and clients ---

// CreateBank creates a bank together with its House client.
func (s *Session) CreateBank(ctx context.Context, params models.CreateBankParams) (*models.Bank, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, models.Errorf(models.KindInvalidInput, "bank name is required")
	}
	ccy := strings.ToUpper(strings.TrimSpace(params.BaseCurrency))
	if !ValidCurrencyCode(ccy) {
		return nil, models.Errorf(models.KindInvalidCurrency, "invalid currency code %q", params.BaseCurrency)
	}

	id, err := s.tx.NextID(ctx, models.IDKindBank, models.IDPrefixBank)
	if err != nil {
		return nil, err
	}
	bank := models.Bank{ID: id, Name: name, BaseCurrency: ccy, CreatedAt: s.now}
	if err := s.tx.CreateBank(ctx, bank); err != nil {
		return nil, err
	}
	if _, err := s.GetOrCreateHouse(ctx, id); err != nil {
		return nil, err
	}
	return &bank, nil
}

func (s *Session) bank(ctx context.Context, id string) (*models.Bank, error) {
	bank, err := s.tx.GetBank(ctx, id)
	if err != nil {
		return nil, err
	}
	if bank == nil {
		return nil, models.Errorf(models.KindNotFound, "bank %s not found", id)
	}
	return bank, nil
}

// Client returns the client or a NotFound error.
func (s *Session) Client(ctx context.Context, id string) (*models.Client, error) {
	c, err := s.tx.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, models.Errorf(models.KindNotFound, "client %s not found", id)
	}
	return c, nil
}

// CreateClient creates a regular client.
func (s *Session) CreateClient(ctx context.Context, params models.CreateClientParams) (*models.Client, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, models.Errorf(models.KindInvalidInput, "client name is required")
	}
	if _, err := s.bank(ctx, params.BankID); err != nil {
		return nil, err
	}

	id, err := s.tx.NextID(ctx, models.IDKindClient, models.IDPrefixClient)
	if err != nil {
		return nil, err
	}
	client := models.Client{ID: id, BankID: params.BankID, Name: name, Kind: models.ClientKindRegular, CreatedAt: s.now}
	if err := s.tx.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	return &client, nil
}

// GetOrCreateHouse returns the bank's House client, creating it on first use.
func (s *Session) GetOrCreateHouse(ctx context.Context, bankID string) (*models.Client, error) {
	existing, err := s.tx.FindHouseClient(ctx, bankID)
	if err != nil || existing != nil {
		return existing, err
	}
	bank, err := s.bank(ctx, bankID)
	if err != nil {
		return nil, err
	}

	id, err := s.tx.NextID(ctx, models.IDKindHouse, models.IDPrefixHouse)
	if err != nil {
		return nil, err
	}
	client := models.Client{ID: id, BankID: bankID, Name: bank.Name + " (House)", Kind: models.ClientKindHouse, CreatedAt: s.now}
	if err := s.tx.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	return &client, nil
}

// GetOrCreateVostro returns the vostro client at host mirroring foreign.
func (s *Session) GetOrCreateVostro(ctx context.Context, hostBankID, foreignBankID string) (*models.Client, error) {
	existing, err := s.tx.FindVostroClient(ctx, hostBankID, foreignBankID)
	if err != nil || existing != nil {
		return existing, err
	}

	id, err := s.tx.NextID(ctx, models.IDKindVostro, models.IDPrefixVostro)
	if err != nil {
		return nil, err
	}
	client := models.Client{
		ID:              id,
		BankID:          hostBankID,
		Name:            "Vostro for " + foreignBankID,
		Kind:            models.ClientKindVostro,
		VostroForBankID: foreignBankID,
		CreatedAt:       s.now,
	}
	if err := s.tx.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	return &client, nil
}

// CreateCorrespondent opens a nostro for owner at correspondent, denominated in
// the correspondent's base currency, with its mirrored vostro at zero.
func (s *Session) CreateCorrespondent(ctx context.Context, ownerBankID, correspondentBankID string) (*models.NostroAccount, error) {
	if ownerBankID == correspondentBankID {
		return nil, models.Errorf(models.KindInvalidInput, "a bank cannot be its own correspondent")
	}
	owner, err := s.bank(ctx, ownerBankID)
	if err != nil {
		return nil, err
	}
	corr, err := s.bank(ctx, correspondentBankID)
	if err != nil {
		return nil, err
	}

	ccy := corr.BaseCurrency
	if ccy == owner.BaseCurrency {
		return nil, models.Errorf(models.KindInvalidCurrency, "a bank cannot open a nostro in its own base currency")
	}
	existing, err := s.tx.GetNostro(ctx, ownerBankID, ccy)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.Errorf(models.KindConflict, "nostro already exists for %s", ccy)
	}

	vostro, err := s.GetOrCreateVostro(ctx, correspondentBankID, ownerBankID)
	if err != nil {
		return nil, err
	}

	id, err := s.tx.NextID(ctx, models.IDKindNostro, models.IDPrefixNostro)
	if err != nil {
		return nil, err
	}
	nostro := models.NostroAccount{
		ID:                  id,
		OwnerBankID:         ownerBankID,
		CorrespondentBankID: correspondentBankID,
		Currency:            ccy,
		Balance:             money.Zero,
		CreatedAt:           s.now,
	}
	if err := s.tx.CreateNostro(ctx, nostro); err != nil {
		return nil, err
	}

	mirror, err := s.tx.GetBalance(ctx, vostro.ID, ccy)
	if err != nil {
		return nil, err
	}
	if !mirror.IsZero() {
		if err := s.tx.SetBalance(ctx, vostro.ID, ccy, money.Zero); err != nil {
			return nil, err
		}
	}

	s.opened = append(s.opened, nostro)
	return &nostro, nil
}

// AvailableCurrencies returns the bank's base currency plus every nostro currency, sorted.
func (s *Session) AvailableCurrencies(ctx context.Context, bankID string) (models.AvailableCurrencies, error) {
	bank, err := s.bank(ctx, bankID)
	if err != nil {
		return models.AvailableCurrencies{}, err
	}
	nostros, err := s.tx.ListNostros(ctx, models.NostroFilter{OwnerBankID: bankID})
	if err != nil {
		return models.AvailableCurrencies{}, err
	}

	set := map[string]struct{}{bank.BaseCurrency: {}}
	for _, n := range nostros {
		set[n.Currency] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return models.AvailableCurrencies{BaseCurrency: bank.BaseCurrency, Currencies: out}, nil
}

// CheckClientCurrency fails with InvalidCurrency if the client cannot hold currency.
// Vostro clients hold only their host bank's base currency.
func (s *Session) CheckClientCurrency(ctx context.Context, client *models.Client, currency string) error {
	switch client.Kind {
	case models.ClientKindVostro:
		bank, err := s.bank(ctx, client.BankID)
		if err != nil {
			return err
		}
		if currency != bank.BaseCurrency {
			return models.Errorf(models.KindInvalidCurrency, "vostro accounts can only hold the host bank base currency")
		}
		return nil
	case models.ClientKindRegular, models.ClientKindHouse:
		avail, err := s.AvailableCurrencies(ctx, client.BankID)
		if err != nil {
			return err
		}
		if !avail.Has(currency) {
			return models.Errorf(models.KindInvalidCurrency, "currency %s is not available to bank %s", currency, client.BankID)
		}
		return nil
	default:
		return models.Errorf(models.KindInvalidInput, "unknown client kind %q", client.Kind)
	}
}

// --- Balance deltas ---

// FullDelta moves a client balance and, for a foreign currency, the bank's
// nostro and its mirror by the same amount, then re-checks the reserve.
func (s *Session) FullDelta(ctx context.Context, clientID, currency string, delta decimal.Decimal) error {
	client, err := s.applyClientDelta(ctx, clientID, currency, delta)
	if err != nil {
		return err
	}
	bank, err := s.bank(ctx, client.BankID)
	if err != nil {
		return err
	}
	if currency == bank.BaseCurrency {
		return nil
	}

	if _, err := s.AdjustNostro(ctx, bank.ID, currency, delta); err != nil {
		return err
	}
	return s.ValidateReserve(ctx, bank.ID, currency)
}

// ClientOnlyDelta moves a client balance without touching any nostro.
// Payment execution settles the interbank side as a separate step.
func (s *Session) ClientOnlyDelta(ctx context.Context, clientID, currency string, delta decimal.Decimal) error {
	client, err := s.applyClientDelta(ctx, clientID, currency, delta)
	if err != nil {
		return err
	}
	bank, err := s.bank(ctx, client.BankID)
	if err != nil {
		return err
	}
	if currency != bank.BaseCurrency {
		s.touch(bank.ID, currency)
	}
	return nil
}

func (s *Session) applyClientDelta(ctx context.Context, clientID, currency string, delta decimal.Decimal) (*models.Client, error) {
	client, err := s.Client(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if err := s.CheckClientCurrency(ctx, client, currency); err != nil {
		return nil, err
	}
	if !client.Kind.CanTransact() {
		return nil, models.Errorf(models.KindInvalidInput, "client %s is a %s client and cannot be adjusted directly", clientID, client.Kind)
	}

	old, err := s.tx.GetBalance(ctx, clientID, currency)
	if err != nil {
		return nil, err
	}
	next := money.Quantize(old.Add(delta))
	if next.IsNegative() {
		return nil, models.Errorf(models.KindInsufficientFunds, "insufficient funds: client %s has %s %s", clientID, money.String(old), currency)
	}
	if err := s.tx.SetBalance(ctx, clientID, currency, next); err != nil {
		return nil, err
	}
	return client, nil
}

// AdjustNostro moves the bank's nostro in currency and the mirrored vostro
// balance at its correspondent by delta. Either side going negative fails.
func (s *Session) AdjustNostro(ctx context.Context, ownerBankID, currency string, delta decimal.Decimal) (*models.NostroAccount, error) {
	nostro, err := s.tx.GetNostro(ctx, ownerBankID, currency)
	if err != nil {
		return nil, err
	}
	if nostro == nil {
		return nil, models.Errorf(models.KindNotFound, "missing nostro for bank %s currency %s", ownerBankID, currency)
	}
	vostro, err := s.tx.FindVostroClient(ctx, nostro.CorrespondentBankID, ownerBankID)
	if err != nil {
		return nil, err
	}
	if vostro == nil {
		return nil, models.Errorf(models.KindNotFound, "mirror vostro for bank %s missing at %s", ownerBankID, nostro.CorrespondentBankID)
	}

	delta = money.Quantize(delta)
	nextNostro := nostro.Balance.Add(delta)
	if nextNostro.IsNegative() {
		return nil, models.Errorf(models.KindInsufficientFunds, "nostro balance cannot go negative: bank %s has %s %s", ownerBankID, money.String(nostro.Balance), currency)
	}
	mirror, err := s.tx.GetBalance(ctx, vostro.ID, currency)
	if err != nil {
		return nil, err
	}
	nextMirror := mirror.Add(delta)
	if nextMirror.IsNegative() {
		return nil, models.Errorf(models.KindInsufficientFunds, "vostro balance cannot go negative: %s has %s %s", vostro.ID, money.String(mirror), currency)
	}

	if err := s.tx.SetNostroBalance(ctx, nostro.ID, nextNostro); err != nil {
		return nil, err
	}
	if err := s.tx.SetBalance(ctx, vostro.ID, currency, nextMirror); err != nil {
		return nil, err
	}

	nostro.Balance = nextNostro
	s.legs = append(s.legs, journal.Leg{
		OwnerBankID:         ownerBankID,
		CorrespondentBankID: nostro.CorrespondentBankID,
		Currency:            currency,
		Delta:               delta,
	})
	s.touch(ownerBankID, currency)
	return nostro, nil
}

func (s *Session) touch(bankID, currency string) {
	s.touched[pairKey{bankID, currency}] = struct{}{}
}

// --- Invariants ---

// ValidateReserve checks that Regular and House balances in a foreign currency
// sum to exactly the bank's nostro balance in it. Base currency always passes.
func (s *Session) ValidateReserve(ctx context.Context, bankID, currency string) error {
	bank, err := s.bank(ctx, bankID)
	if err != nil {
		return err
	}
	if currency == bank.BaseCurrency {
		return nil
	}

	nostroBal := money.Zero
	nostro, err := s.tx.GetNostro(ctx, bankID, currency)
	if err != nil {
		return err
	}
	if nostro != nil {
		nostroBal = nostro.Balance
	}

	clients, err := s.tx.ListClientsByBank(ctx, bankID)
	if err != nil {
		return err
	}
	total := money.Zero
	for _, c := range clients {
		if !c.Kind.CanTransact() {
			continue
		}
		bal, err := s.tx.GetBalance(ctx, c.ID, currency)
		if err != nil {
			return err
		}
		total = total.Add(bal)
	}

	if !total.Equal(nostroBal) {
		return models.Errorf(models.KindInvariantViolation,
			"Invariant violated for bank %s currency %s: clients=%s nostro=%s",
			bankID, currency, money.String(total), money.String(nostroBal))
	}
	return nil
}

// ValidateMirror checks that the bank's nostro in currency equals the mirrored
// vostro balance at its correspondent. A missing nostro passes.
func (s *Session) ValidateMirror(ctx context.Context, bankID, currency string) error {
	nostro, err := s.tx.GetNostro(ctx, bankID, currency)
	if err != nil || nostro == nil {
		return err
	}
	vostro, err := s.tx.FindVostroClient(ctx, nostro.CorrespondentBankID, bankID)
	if err != nil {
		return err
	}
	if vostro == nil {
		return models.Errorf(models.KindInvariantViolation, "mirror vostro for %s missing at %s", nostro.ID, nostro.CorrespondentBankID)
	}
	mirror, err := s.tx.GetBalance(ctx, vostro.ID, currency)
	if err != nil {
		return err
	}
	if !mirror.Equal(nostro.Balance) {
		return models.Errorf(models.KindInvariantViolation,
			"Mirror violated for %s: nostro=%s vostro=%s", nostro.ID, money.String(nostro.Balance), money.String(mirror))
	}
	return nil
}

// ValidateTouched re-checks both invariants for every foreign (bank, currency)
// pair this session has moved.
func (s *Session) ValidateTouched(ctx context.Context) error {
	keys := make([]pairKey, 0, len(s.touched))
	for k := range s.touched {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].bankID != keys[j].bankID {
			return keys[i].bankID < keys[j].bankID
		}
		return keys[i].currency < keys[j].currency
	})

	for _, k := range keys {
		if err := s.ValidateReserve(ctx, k.bankID, k.currency); err != nil {
			return err
		}
		if err := s.ValidateMirror(ctx, k.bankID, k.currency); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAll checks both invariants for every bank and every foreign currency it holds.
func ValidateAll(ctx context.Context, tx store.Tx) error {
	s := NewSession(tx, time.Time{})
	nostros, err := tx.ListNostros(ctx, models.NostroFilter{})
	if err != nil {
		return err
	}
	for _, n := range nostros {
		s.touch(n.OwnerBankID, n.Currency)
	}
	if err := s.ValidateTouched(ctx); err != nil {
		return fmt.Errorf("ledger check: %w", err)
	}
	return nil
}
