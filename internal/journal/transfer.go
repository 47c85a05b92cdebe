package journal

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	tbtypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"corrsim/internal/money"
)

// Leg is one nostro movement and its mirrored vostro movement.
// A positive Delta grows the owner's nostro.
type Leg struct {
	OwnerBankID         string
	CorrespondentBankID string
	Currency            string
	Delta               decimal.Decimal
}

// Transfer represents a TigerBeetle transfer.
type Transfer struct {
	ID            uuid.UUID
	DebitAccount  AccountID
	CreditAccount AccountID
	Amount        uint64
	Ledger        uint32
	Code          uint16
	Flags         TransferFlags
	UserData128   [16]byte
}

// NewTransfer creates a new transfer.
func NewTransfer(debit, credit AccountID, amount uint64, ledger uint32, code uint16) Transfer {
	return Transfer{
		ID:            uuid.New(),
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        amount,
		Ledger:        ledger,
		Code:          code,
	}
}

// WithUserData tags the transfer with a correlation value.
func (t Transfer) WithUserData(data128 [16]byte) Transfer {
	t.UserData128 = data128
	return t
}

// toTigerBeetle converts the transfer to TigerBeetle format.
func (t Transfer) toTigerBeetle() tbtypes.Transfer {
	flags := tbtypes.TransferFlags{
		Linked: t.Flags&TransferFlagLinked != 0,
	}

	return tbtypes.Transfer{
		ID:              tbtypes.BytesToUint128([16]byte(t.ID)),
		DebitAccountID:  tbtypes.BytesToUint128(t.DebitAccount),
		CreditAccountID: tbtypes.BytesToUint128(t.CreditAccount),
		Amount:          tbtypes.ToUint128(t.Amount),
		Ledger:          t.Ledger,
		Code:            t.Code,
		Flags:           flags.ToUint16(),
		UserData128:     tbtypes.BytesToUint128(t.UserData128),
	}
}

// TransferBuilder helps construct linked transfer chains.
type TransferBuilder struct {
	transfers []Transfer
}

// NewTransferBuilder creates a new transfer builder.
func NewTransferBuilder() *TransferBuilder {
	return &TransferBuilder{}
}

// AddTransfer adds a pre-built transfer to the chain.
func (b *TransferBuilder) AddTransfer(t Transfer) *TransferBuilder {
	b.transfers = append(b.transfers, t)
	return b
}

// BuildLinked returns the transfers with every one but the last flagged as linked.
func (b *TransferBuilder) BuildLinked() []Transfer {
	if len(b.transfers) == 0 {
		return nil
	}

	result := make([]Transfer, len(b.transfers))
	copy(result, b.transfers)

	for i := range result[:len(result)-1] {
		result[i].Flags |= TransferFlagLinked
	}

	return result
}

// MinorUnits converts a quantized amount to an unsigned count of cents.
func MinorUnits(amount decimal.Decimal) uint64 {
	return uint64(money.Quantize(amount).Abs().Shift(money.Places).IntPart())
}

// correlation packs a payment id into the 128-bit user data slot.
func correlation(paymentID string) [16]byte {
	var out [16]byte
	copy(out[:], paymentID)
	return out
}

// MirrorChain builds one linked chain for a set of legs. Growing a nostro
// debits the owner's nostro account and credits the correspondent's vostro;
// shrinking it does the reverse. Zero legs are skipped.
func MirrorChain(paymentID string, legs []Leg) ([]Transfer, error) {
	builder := NewTransferBuilder()
	tag := correlation(paymentID)

	for _, leg := range legs {
		if leg.Delta.IsZero() {
			continue
		}
		ccy := CurrencyFromString(leg.Currency)
		if ccy == 0 {
			return nil, fmt.Errorf("unsupported journal currency %q", leg.Currency)
		}

		nostro := NostroAccountID(leg.OwnerBankID, ccy)
		vostro := VostroAccountID(leg.OwnerBankID, ccy)
		debit, credit := nostro, vostro
		if leg.Delta.IsNegative() {
			debit, credit = vostro, nostro
		}

		builder.AddTransfer(NewTransfer(debit, credit, MinorUnits(leg.Delta), uint32(ccy), CodeNostroMovement).WithUserData(tag))
	}

	return builder.BuildLinked(), nil
}
