package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/go-shop-settlement/internal/apperr"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally restricted to one named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

var (
	ErrUserNotFound          = fmt.Errorf("user %w", apperr.ErrNotFound)
	ErrProductNotFound       = fmt.Errorf("product %w", apperr.ErrNotFound)
	ErrProductOptionNotFound = fmt.Errorf("product option %w", apperr.ErrNotFound)
	ErrAddressNotFound       = fmt.Errorf("address %w", apperr.ErrNotFound)
	ErrCartNotFound          = fmt.Errorf("cart %w", apperr.ErrNotFound)
	ErrCartItemNotFound      = fmt.Errorf("cart item %w", apperr.ErrNotFound)
	ErrOrderNotFound         = fmt.Errorf("order %w", apperr.ErrNotFound)
	ErrPaymentNotFound       = fmt.Errorf("payment %w", apperr.ErrNotFound)
	ErrBalanceNotFound       = fmt.Errorf("balance account %w", apperr.ErrNotFound)

	ErrInvalidTransition = fmt.Errorf("status change %w", apperr.ErrInvalidState)

	ErrInsufficientStock = fmt.Errorf("insufficient stock: %w", apperr.ErrOutOfStock)
	ErrInsufficientFunds = fmt.Errorf("balance too low: %w", apperr.ErrInsufficientFunds)

	ErrOptimisticLockFailed = errors.New("optimistic lock failed")
)
