package journal

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// AccountID represents a 128-bit TigerBeetle account ID.
// Structure: [bank_key: 64 bits][account_type: 8 bits][currency: 24 bits][reserved: 32 bits]
//
// Both sides of a nostro/vostro pair are keyed by the nostro owner: a bank
// holds at most one nostro per currency, so (owner, type, currency) is unique.
type AccountID [16]byte

// BankKey hashes a bank id into the 64-bit key slot.
func BankKey(bankID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(bankID))
	return h.Sum64()
}

// NewAccountID creates a new AccountID from components.
func NewAccountID(bankID string, accountType AccountType, currency Currency) AccountID {
	var id AccountID

	binary.BigEndian.PutUint64(id[0:8], BankKey(bankID))
	id[8] = byte(accountType)
	id[9] = byte(currency >> 16)
	id[10] = byte(currency >> 8)
	id[11] = byte(currency)

	return id
}

// NostroAccountID is the owner's asset account for currency.
func NostroAccountID(ownerBankID string, currency Currency) AccountID {
	return NewAccountID(ownerBankID, AccountTypeNostro, currency)
}

// VostroAccountID is the correspondent's liability mirroring the owner's nostro.
func VostroAccountID(ownerBankID string, currency Currency) AccountID {
	return NewAccountID(ownerBankID, AccountTypeVostro, currency)
}

// BankKey returns the bank key component.
func (id AccountID) BankKey() uint64 {
	return binary.BigEndian.Uint64(id[0:8])
}

// AccountType returns the account type component.
func (id AccountID) AccountType() AccountType {
	return AccountType(id[8])
}

// Currency returns the currency component.
func (id AccountID) Currency() Currency {
	return Currency(uint32(id[9])<<16 | uint32(id[10])<<8 | uint32(id[11]))
}

// String returns a human-readable representation of the AccountID.
func (id AccountID) String() string {
	return fmt.Sprintf("%s:%s:%016x",
		id.AccountType().String(),
		id.Currency().String(),
		id.BankKey(),
	)
}
