package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a client-to-client transfer settled through the correspondent network.
type Payment struct {
	ID                 string          `json:"id"`
	FromClientID       string          `json:"fromClientId"`
	ToClientID         string          `json:"toClientId"`
	FromBankID         string          `json:"fromBankId"`
	ToBankID           string          `json:"toBankId"`
	DebitCurrency      string          `json:"debitCurrency"`
	CreditCurrency     string          `json:"creditCurrency"`
	DebitAmount        decimal.Decimal `json:"debitAmount"`
	SettlementAmount   decimal.Decimal `json:"settlementAmount"`
	CreditAmount       decimal.Decimal `json:"creditAmount"`
	SettlementCurrency string          `json:"settlementCurrency"`
	Route              []string        `json:"route"`
	State              PaymentState    `json:"state"`
	FailReason         *string         `json:"failReason"`
	CreatedAt          time.Time       `json:"createdAt"`
	ExecutedAt         *time.Time      `json:"executedAt"`
	SettledAt          *time.Time      `json:"settledAt"`
}

// IsIntraBank returns true when both clients sit at the same bank.
func (p *Payment) IsIntraBank() bool {
	return p.FromBankID == p.ToBankID
}

// HasOriginFX returns true if the debit leg needs a conversion into the settlement currency.
func (p *Payment) HasOriginFX() bool {
	return p.DebitCurrency != p.SettlementCurrency
}

// HasDestinationFX returns true if the credit leg needs a conversion out of the settlement currency.
func (p *Payment) HasDestinationFX() bool {
	return p.SettlementCurrency != p.CreditCurrency
}

// FxAtBankIDs lists the banks where this payment converts currency.
func (p *Payment) FxAtBankIDs() []string {
	ids := []string{}
	if p.HasOriginFX() {
		ids = append(ids, p.FromBankID)
	}
	if p.HasDestinationFX() {
		ids = append(ids, p.ToBankID)
	}
	return ids
}

// PaymentView is the listing representation of a payment.
type PaymentView struct {
	Payment
	FxAtBankIDs []string `json:"fxAtBankIds"`
}

// CreatePaymentParams contains parameters for creating a payment intent.
type CreatePaymentParams struct {
	FromClientID   string
	ToClientID     string
	DebitCurrency  string
	CreditCurrency string
	DebitAmount    decimal.Decimal
}

// PaymentMessage is an append-only lifecycle record of a payment.
type PaymentMessage struct {
	ID        string         `json:"id"`
	PaymentID string         `json:"paymentId"`
	Type      MessageType    `json:"type"`
	CreatedAt time.Time      `json:"createdAt"`
	Details   map[string]any `json:"details"`
}
