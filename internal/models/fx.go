package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FxRate is a USD pivot quote: one USD buys Rate units of QuoteCurrency.
type FxRate struct {
	QuoteCurrency string          `json:"quoteCurrency"`
	Rate          decimal.Decimal `json:"rate"`
}

// FxEvent records one executed currency conversion at a bank.
type FxEvent struct {
	ID           string          `json:"id"`
	PaymentID    *string         `json:"paymentId"`
	BankID       string          `json:"bankId"`
	BankName     string          `json:"bankName,omitempty"`
	FromCurrency string          `json:"fromCurrency"`
	ToCurrency   string          `json:"toCurrency"`
	FromAmount   decimal.Decimal `json:"fromAmount"`
	ToAmount     decimal.Decimal `json:"toAmount"`
	Rate         decimal.Decimal `json:"rate"`
	Reason       string          `json:"reason"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// ClearingWindow is the simulated-time window during which a currency settles.
// OpenHour is inclusive and CloseHour exclusive.
type ClearingWindow struct {
	Currency  string `json:"currency"`
	OpenHour  int    `json:"openHour"`
	CloseHour int    `json:"closeHour"`
}

// IsOpen reports whether the market is open at the given hour of day.
// Equal open and close hours mean always open; close before open wraps midnight.
func (w ClearingWindow) IsOpen(hour int) bool {
	switch {
	case w.OpenHour == w.CloseHour:
		return true
	case w.OpenHour < w.CloseHour:
		return hour >= w.OpenHour && hour < w.CloseHour
	default:
		return hour >= w.OpenHour || hour < w.CloseHour
	}
}
