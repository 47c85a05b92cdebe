package models

// ClientKind discriminates the three kinds of client a bank can hold.
type ClientKind string

const (
	ClientKindRegular ClientKind = "REGULAR"
	ClientKindHouse   ClientKind = "HOUSE"
	ClientKindVostro  ClientKind = "VOSTRO"
)

// CanTransact returns true for kinds that may send, receive and deposit funds.
// Vostro balances only ever move through the nostro mirror.
func (k ClientKind) CanTransact() bool {
	switch k {
	case ClientKindRegular, ClientKindHouse:
		return true
	case ClientKindVostro:
		return false
	default:
		return false
	}
}

// PaymentState represents the state machine status of a payment.
type PaymentState string

const (
	PaymentStateQueued   PaymentState = "QUEUED"
	PaymentStateExecuted PaymentState = "EXECUTED"
	PaymentStateSettled  PaymentState = "SETTLED"
	PaymentStateFailed   PaymentState = "FAILED"
)

// MessageType identifies a payment lifecycle event.
type MessageType string

const (
	MessageTypeInit         MessageType = "PAYMENT_INIT"
	MessageTypeFXConversion MessageType = "FX_CONVERSION"
	MessageTypeLiquidation  MessageType = "LIQUIDATION"
	MessageTypeExecuted     MessageType = "EXECUTED"
	MessageTypeSettled      MessageType = "SETTLED"
	MessageTypeFailed       MessageType = "FAILED"
)

// Id counter kinds and their prefixes.
const (
	IDKindBank    = "bank"
	IDKindClient  = "client"
	IDKindHouse   = "house_client"
	IDKindVostro  = "vostro_client"
	IDKindNostro  = "nostro"
	IDKindPayment = "payment"
	IDKindMessage = "payment_message"
	IDKindFxEvent = "fx_event"

	IDPrefixBank    = "B_"
	IDPrefixClient  = "C_"
	IDPrefixHouse   = "HOUSE_"
	IDPrefixVostro  = "VOSTRO_"
	IDPrefixNostro  = "NOS_"
	IDPrefixPayment = "PAY_"
	IDPrefixMessage = "MSG_"
	IDPrefixFxEvent = "FX_"
)

// USD is the pivot currency of the rate table.
const USD = "USD"
