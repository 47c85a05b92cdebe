package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindConflict           ErrorKind = "CONFLICT"
	KindInvalidCurrency    ErrorKind = "INVALID_CURRENCY"
	KindInsufficientFunds  ErrorKind = "INSUFFICIENT_FUNDS"
	KindInvariantViolation ErrorKind = "INVARIANT_VIOLATION"
	KindRouteUnavailable   ErrorKind = "ROUTE_UNAVAILABLE"
	KindRouteMismatch      ErrorKind = "ROUTE_MISMATCH"
	KindInvalidInput       ErrorKind = "INVALID_INPUT"
	KindInternal           ErrorKind = "INTERNAL"
)

// Error is a domain failure with a kind the caller can branch on.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Errorf builds a domain error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first domain error in err's chain,
// or KindInternal if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
