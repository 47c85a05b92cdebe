// Package store defines the unit-of-work boundary around every ledger mutation.
//
// All reads and writes go through a Tx handed out by Store.WithTx. If the
// callback returns an error every write is discarded; otherwise they are
// committed together. Implementations never let two units interleave.
package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"corrsim/internal/models"
)

// Store opens serialized transactions.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}

// Tx is the set of typed reads and writes available inside a unit of work.
// Getters return (nil, nil) when the record does not exist.
type Tx interface {
	// NextID returns prefix followed by the zero-padded next counter for kind.
	NextID(ctx context.Context, kind, prefix string) (string, error)

	CreateBank(ctx context.Context, bank models.Bank) error
	GetBank(ctx context.Context, id string) (*models.Bank, error)
	ListBanks(ctx context.Context) ([]models.Bank, error)

	CreateClient(ctx context.Context, client models.Client) error
	GetClient(ctx context.Context, id string) (*models.Client, error)
	FindHouseClient(ctx context.Context, bankID string) (*models.Client, error)
	FindVostroClient(ctx context.Context, hostBankID, foreignBankID string) (*models.Client, error)
	ListClients(ctx context.Context) ([]models.Client, error)
	ListClientsByBank(ctx context.Context, bankID string) ([]models.Client, error)

	// GetBalance returns zero for a pair that has never been credited.
	GetBalance(ctx context.Context, clientID, currency string) (decimal.Decimal, error)
	SetBalance(ctx context.Context, clientID, currency string, amount decimal.Decimal) error
	ListBalances(ctx context.Context) ([]models.Balance, error)

	CreateNostro(ctx context.Context, nostro models.NostroAccount) error
	GetNostro(ctx context.Context, ownerBankID, currency string) (*models.NostroAccount, error)
	SetNostroBalance(ctx context.Context, id string, amount decimal.Decimal) error
	ListNostros(ctx context.Context, filter models.NostroFilter) ([]models.NostroAccount, error)

	CreatePayment(ctx context.Context, payment models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, payment models.Payment) error
	// ListPayments returns newest first.
	ListPayments(ctx context.Context) ([]models.Payment, error)
	// ListQueuedPayments returns oldest first.
	ListQueuedPayments(ctx context.Context) ([]models.Payment, error)
	ClearPayments(ctx context.Context) error

	AppendMessage(ctx context.Context, msg models.PaymentMessage) error
	ListMessages(ctx context.Context, paymentID string) ([]models.PaymentMessage, error)

	AppendFxEvent(ctx context.Context, evt models.FxEvent) error
	// ListFxEvents returns newest first.
	ListFxEvents(ctx context.Context) ([]models.FxEvent, error)

	PutFxRate(ctx context.Context, rate models.FxRate) error
	GetFxRate(ctx context.Context, quoteCurrency string) (*models.FxRate, error)
	ListFxRates(ctx context.Context) ([]models.FxRate, error)

	PutClearingWindow(ctx context.Context, w models.ClearingWindow) error
	GetClearingWindow(ctx context.Context, currency string) (*models.ClearingWindow, error)
	ListClearingWindows(ctx context.Context) ([]models.ClearingWindow, error)

	GetClock(ctx context.Context) (*models.ClockState, error)
	PutClock(ctx context.Context, state models.ClockState) error

	// Wipe removes every record, counters, reference data and the clock included.
	Wipe(ctx context.Context) error
}

// FormatID renders a sequential id: prefix plus a four-digit zero-padded counter.
func FormatID(prefix string, n int64) string {
	return fmt.Sprintf("%s%04d", prefix, n)
}
