// Package money holds the decimal rules shared by every ledger amount.
//
// Amounts are exact base-10 decimals. Anything persisted or shown is quantized
// to two places with half-up rounding (away from zero on ties); intermediate
// FX arithmetic keeps DivisionPlaces of precision until that final step.
package money

import "github.com/shopspring/decimal"

// Places is the storage and display precision.
const Places = 2

// DivisionPlaces bounds intermediate division precision.
const DivisionPlaces = 28

// Zero is the additive identity.
var Zero = decimal.Zero

// Quantize rounds d to storage precision.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// String formats d with exactly two decimals.
func String(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// MustParse reads a constant amount and panics if it is malformed.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Div returns a / b carried to DivisionPlaces.
func Div(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, DivisionPlaces)
}
