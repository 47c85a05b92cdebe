// Package journal mirrors nostro/vostro movements into TigerBeetle.
//
// The ledger store stays authoritative. Journal writes happen after the
// store commits and a failure is logged, never propagated into settlement.
package journal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"corrsim/internal/models"
)

// Journal records correspondent movements outside the ledger store.
type Journal interface {
	OpenCorrespondent(ctx context.Context, nostro models.NostroAccount) error
	Record(ctx context.Context, paymentID string, legs []Leg) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) OpenCorrespondent(context.Context, models.NostroAccount) error { return nil }
func (Nop) Record(context.Context, string, []Leg) error                  { return nil }

// transferClient is the subset of *Client the journal needs.
type transferClient interface {
	CreateAccounts(ids []AccountID, ledger uint32, code uint16) error
	CreateTransfers(transfers []Transfer) error
}

// TigerBeetle writes every leg as a linked transfer chain.
type TigerBeetle struct {
	client transferClient
	logger *zap.Logger
}

// NewTigerBeetle creates a journal backed by client.
func NewTigerBeetle(client transferClient, logger *zap.Logger) *TigerBeetle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TigerBeetle{client: client, logger: logger.With(zap.String("component", "journal"))}
}

// OpenCorrespondent creates the nostro and vostro accounts for a new relationship.
func (j *TigerBeetle) OpenCorrespondent(ctx context.Context, nostro models.NostroAccount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ccy := CurrencyFromString(nostro.Currency)
	if ccy == 0 {
		return fmt.Errorf("unsupported journal currency %q", nostro.Currency)
	}

	ids := []AccountID{
		NostroAccountID(nostro.OwnerBankID, ccy),
		VostroAccountID(nostro.OwnerBankID, ccy),
	}
	if err := j.client.CreateAccounts(ids, uint32(ccy), uint16(AccountTypeNostro)); err != nil {
		return fmt.Errorf("open correspondent %s: %w", nostro.ID, err)
	}

	j.logger.Debug("correspondent accounts opened",
		zap.String("owner_bank_id", nostro.OwnerBankID),
		zap.String("correspondent_bank_id", nostro.CorrespondentBankID),
		zap.String("currency", nostro.Currency),
	)
	return nil
}

// Record posts legs as one all-or-nothing chain.
func (j *TigerBeetle) Record(ctx context.Context, paymentID string, legs []Leg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chain, err := MirrorChain(paymentID, legs)
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return nil
	}
	if err := j.client.CreateTransfers(chain); err != nil {
		return fmt.Errorf("record %s: %w", paymentID, err)
	}

	j.logger.Debug("journal chain posted", zap.String("payment_id", paymentID), zap.Int("transfers", len(chain)))
	return nil
}
