package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bank is a participant of the correspondent network.
type Bank struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	BaseCurrency string    `json:"baseCurrency"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Client is an account holder at a bank. VostroForBankID is only set for
// vostro clients and names the foreign bank whose nostro it mirrors.
type Client struct {
	ID              string     `json:"id"`
	BankID          string     `json:"bankId"`
	Name            string     `json:"name"`
	Kind            ClientKind `json:"type"`
	VostroForBankID string     `json:"vostroForBankId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// MirroredBankID returns the foreign bank a vostro client mirrors.
func (c *Client) MirroredBankID() (string, bool) {
	if c.Kind != ClientKindVostro {
		return "", false
	}
	return c.VostroForBankID, true
}

// Balance is a client's holding in one currency.
type Balance struct {
	ClientID string          `json:"clientId"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// ClientWithBalances is the listing view of a client.
type ClientWithBalances struct {
	Client
	Balances []Balance `json:"balances"`
}

// NostroAccount is the owning bank's claim on funds held at its correspondent.
// A bank holds at most one nostro per currency.
type NostroAccount struct {
	ID                  string          `json:"id"`
	OwnerBankID         string          `json:"ownerBankId"`
	CorrespondentBankID string          `json:"correspondentBankId"`
	Currency            string          `json:"currency"`
	Balance             decimal.Decimal `json:"balance"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// NostroFilter contains filter parameters for querying nostro accounts.
type NostroFilter struct {
	OwnerBankID string
	Currency    string
}

// Matches reports whether n passes the filter.
func (f NostroFilter) Matches(n NostroAccount) bool {
	if f.OwnerBankID != "" && n.OwnerBankID != f.OwnerBankID {
		return false
	}
	if f.Currency != "" && n.Currency != f.Currency {
		return false
	}
	return true
}

// CreateBankParams contains parameters for creating a new bank.
type CreateBankParams struct {
	Name         string
	BaseCurrency string
}

// CreateClientParams contains parameters for creating a regular client.
type CreateClientParams struct {
	BankID string
	Name   string
}

// AvailableCurrencies lists what a bank can hold: its base currency plus every
// currency it has a nostro in.
type AvailableCurrencies struct {
	BaseCurrency string   `json:"baseCurrency"`
	Currencies   []string `json:"currencies"`
}

// Has reports whether currency is available.
func (a AvailableCurrencies) Has(currency string) bool {
	for _, c := range a.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}
