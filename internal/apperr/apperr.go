// Package apperr defines the failure kinds surfaced by the settlement core.
// Specific errors elsewhere wrap one of the base sentinels below so callers
// can branch with errors.Is on either the specific or the general error.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrOutOfStock        = errors.New("out of stock")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidState      = errors.New("invalid state")
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidArgument
	KindOutOfStock
	KindInsufficientFunds
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindOutOfStock:
		return "out_of_stock"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "internal_error"
	}
}

// KindOf reports which failure kind err belongs to. Errors that wrap none of
// the base sentinels are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrOutOfStock):
		return KindOutOfStock
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	}
	return KindInternal
}
