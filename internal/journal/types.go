package journal

// AccountType represents the type of TigerBeetle account.
type AccountType uint8

const (
	// AccountTypeNostro is a bank's asset held at its correspondent.
	AccountTypeNostro AccountType = 0x01

	// AccountTypeVostro is the correspondent's mirrored liability to that bank.
	AccountTypeVostro AccountType = 0x02
)

// String returns a human-readable name for the account type.
func (t AccountType) String() string {
	switch t {
	case AccountTypeNostro:
		return "NOSTRO"
	case AccountTypeVostro:
		return "VOSTRO"
	default:
		return "UNKNOWN"
	}
}

// Currency represents ISO 4217 numeric codes, used as TigerBeetle ledger ids.
type Currency uint32

const (
	CurrencyUSD Currency = 840
	CurrencyEUR Currency = 978
	CurrencyGBP Currency = 826
	CurrencyCHF Currency = 756
	CurrencyJPY Currency = 392
	CurrencyHKD Currency = 344
	CurrencyMXN Currency = 484
)

var currencyCodes = map[Currency]string{
	CurrencyUSD: "USD",
	CurrencyEUR: "EUR",
	CurrencyGBP: "GBP",
	CurrencyCHF: "CHF",
	CurrencyJPY: "JPY",
	CurrencyHKD: "HKD",
	CurrencyMXN: "MXN",
}

// String returns the ISO 4217 code for the currency.
func (c Currency) String() string {
	if s, ok := currencyCodes[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// CurrencyFromString converts a currency code to Currency, or 0 if unknown.
func CurrencyFromString(s string) Currency {
	for c, code := range currencyCodes {
		if code == s {
			return c
		}
	}
	return 0
}

// TransferFlags represents TigerBeetle transfer flags.
type TransferFlags uint16

const (
	// TransferFlagLinked links this transfer with the next one (all-or-nothing)
	TransferFlagLinked TransferFlags = 1 << 0
)

// TransferCode tags every transfer with the movement that produced it.
const (
	CodeNostroMovement uint16 = 1
)
