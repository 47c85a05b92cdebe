// Package fx converts amounts through the USD pivot rate table and records
// every executed conversion.
package fx

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"corrsim/internal/models"
	"corrsim/internal/money"
	"corrsim/internal/store"
)

// Conversion is a priced exchange between two currencies.
type Conversion struct {
	FromCurrency string
	ToCurrency   string
	FromAmount   decimal.Decimal
	ToAmount     decimal.Decimal
	Rate         decimal.Decimal
}

var one = decimal.NewFromInt(1)

// USDToQuote returns how many units of currency one USD buys.
func USDToQuote(ctx context.Context, tx store.Tx, currency string) (decimal.Decimal, error) {
	if currency == models.USD {
		return one, nil
	}
	rate, err := tx.GetFxRate(ctx, currency)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if rate == nil {
		return decimal.Decimal{}, models.Errorf(models.KindInvalidCurrency, "missing FX rate for USD/%s", currency)
	}
	return rate.Rate, nil
}

// factor returns (from->USD) * (USD->to).
func factor(ctx context.Context, tx store.Tx, from, to string) (decimal.Decimal, error) {
	usdFrom, err := USDToQuote(ctx, tx, from)
	if err != nil {
		return decimal.Decimal{}, err
	}
	usdTo, err := USDToQuote(ctx, tx, to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return money.Div(one, usdFrom).Mul(usdTo), nil
}

// Convert prices amount of from in to. Same-currency conversion is the identity.
func Convert(ctx context.Context, tx store.Tx, from, to string, amount decimal.Decimal) (Conversion, error) {
	amount = money.Quantize(amount)
	if from == to {
		return Conversion{FromCurrency: from, ToCurrency: to, FromAmount: amount, ToAmount: amount, Rate: one}, nil
	}
	f, err := factor(ctx, tx, from, to)
	if err != nil {
		return Conversion{}, err
	}
	toAmount := money.Quantize(amount.Mul(f))
	return Conversion{
		FromCurrency: from,
		ToCurrency:   to,
		FromAmount:   amount,
		ToAmount:     toAmount,
		Rate:         rate(amount, toAmount, f),
	}, nil
}

// ConvertToTarget solves for the amount of from needed to obtain desired of to.
func ConvertToTarget(ctx context.Context, tx store.Tx, from, to string, desired decimal.Decimal) (Conversion, error) {
	desired = money.Quantize(desired)
	if from == to {
		return Conversion{FromCurrency: from, ToCurrency: to, FromAmount: desired, ToAmount: desired, Rate: one}, nil
	}
	f, err := factor(ctx, tx, from, to)
	if err != nil {
		return Conversion{}, err
	}
	fromAmount := money.Quantize(money.Div(desired, f))
	return Conversion{
		FromCurrency: from,
		ToCurrency:   to,
		FromAmount:   fromAmount,
		ToAmount:     desired,
		Rate:         rate(fromAmount, desired, f),
	}, nil
}

// rate is toAmount/fromAmount, falling back to the quoted factor for a zero amount.
func rate(fromAmount, toAmount, quoted decimal.Decimal) decimal.Decimal {
	if fromAmount.IsZero() {
		return quoted
	}
	return money.Div(toAmount, fromAmount)
}

// EventParams describes a conversion to log.
type EventParams struct {
	PaymentID  string
	BankID     string
	Conversion Conversion
	Reason     string
	At         time.Time
}

// LogEvent appends an FxEvent for an executed conversion.
func LogEvent(ctx context.Context, tx store.Tx, p EventParams) (*models.FxEvent, error) {
	id, err := tx.NextID(ctx, models.IDKindFxEvent, models.IDPrefixFxEvent)
	if err != nil {
		return nil, err
	}
	evt := models.FxEvent{
		ID:           id,
		BankID:       p.BankID,
		FromCurrency: p.Conversion.FromCurrency,
		ToCurrency:   p.Conversion.ToCurrency,
		FromAmount:   p.Conversion.FromAmount,
		ToAmount:     p.Conversion.ToAmount,
		Rate:         rate(p.Conversion.FromAmount, p.Conversion.ToAmount, p.Conversion.Rate),
		Reason:       p.Reason,
		CreatedAt:    p.At,
	}
	if p.PaymentID != "" {
		pid := p.PaymentID
		evt.PaymentID = &pid
	}
	if err := tx.AppendFxEvent(ctx, evt); err != nil {
		return nil, err
	}
	return &evt, nil
}
