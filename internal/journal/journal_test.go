package journal

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corrsim/internal/models"
)

type fakeClient struct {
	accounts  [][]AccountID
	transfers [][]Transfer
	err       error
}

func (f *fakeClient) CreateAccounts(ids []AccountID, _ uint32, _ uint16) error {
	f.accounts = append(f.accounts, ids)
	return f.err
}

func (f *fakeClient) CreateTransfers(transfers []Transfer) error {
	f.transfers = append(f.transfers, transfers)
	return f.err
}

func TestAccountID_Components(t *testing.T) {
	id := NostroAccountID("B_0001", CurrencyEUR)

	assert.Equal(t, AccountTypeNostro, id.AccountType())
	assert.Equal(t, CurrencyEUR, id.Currency())
	assert.Equal(t, BankKey("B_0001"), id.BankKey())
	assert.NotEqual(t, id, VostroAccountID("B_0001", CurrencyEUR))
	assert.NotEqual(t, id, NostroAccountID("B_0002", CurrencyEUR))
	assert.Contains(t, id.String(), "NOSTRO:EUR:")
}

func TestMirrorChain(t *testing.T) {
	legs := []Leg{
		{OwnerBankID: "B_0001", CorrespondentBankID: "B_0003", Currency: "USD", Delta: decimal.RequireFromString("-100.00")},
		{OwnerBankID: "B_0002", CorrespondentBankID: "B_0003", Currency: "USD", Delta: decimal.RequireFromString("100.00")},
		{OwnerBankID: "B_0002", CorrespondentBankID: "B_0003", Currency: "USD", Delta: decimal.Zero},
	}

	chain, err := MirrorChain("PAY_0001", legs)
	require.NoError(t, err)
	require.Len(t, chain, 2)

	assert.Equal(t, VostroAccountID("B_0001", CurrencyUSD), chain[0].DebitAccount)
	assert.Equal(t, NostroAccountID("B_0001", CurrencyUSD), chain[0].CreditAccount)
	assert.Equal(t, uint64(10000), chain[0].Amount)
	assert.Equal(t, uint32(CurrencyUSD), chain[0].Ledger)
	assert.NotZero(t, chain[0].Flags&TransferFlagLinked)

	assert.Equal(t, NostroAccountID("B_0002", CurrencyUSD), chain[1].DebitAccount)
	assert.Zero(t, chain[1].Flags&TransferFlagLinked)
	assert.NotEqual(t, chain[0].ID, chain[1].ID)
}

func TestMirrorChain_UnknownCurrency(t *testing.T) {
	_, err := MirrorChain("PAY_0001", []Leg{{OwnerBankID: "B_0001", Currency: "XYZ", Delta: decimal.NewFromInt(1)}})
	assert.Error(t, err)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, uint64(1235), MinorUnits(decimal.RequireFromString("-12.345")))
	assert.Equal(t, uint64(0), MinorUnits(decimal.Zero))
}

func TestTigerBeetle_Record(t *testing.T) {
	fc := &fakeClient{}
	j := NewTigerBeetle(fc, nil)
	ctx := context.Background()

	require.NoError(t, j.OpenCorrespondent(ctx, models.NostroAccount{ID: "NOS_0001", OwnerBankID: "B_0001", CorrespondentBankID: "B_0002", Currency: "EUR"}))
	require.Len(t, fc.accounts, 1)
	assert.Len(t, fc.accounts[0], 2)

	require.NoError(t, j.Record(ctx, "PAY_0001", nil))
	assert.Empty(t, fc.transfers)

	require.NoError(t, j.Record(ctx, "PAY_0001", []Leg{{OwnerBankID: "B_0001", Currency: "EUR", Delta: decimal.NewFromInt(5)}}))
	assert.Len(t, fc.transfers, 1)

	fc.err = errors.New("unavailable")
	assert.Error(t, j.Record(ctx, "PAY_0002", []Leg{{OwnerBankID: "B_0001", Currency: "EUR", Delta: decimal.NewFromInt(5)}}))
}
