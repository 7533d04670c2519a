package service

import (
	"fmt"

	"github.com/safar/go-shop-settlement/internal/apperr"
)

var (
	ErrEmptyCart      = fmt.Errorf("cart has no items: %w", apperr.ErrInvalidState)
	ErrNoOrderLines   = fmt.Errorf("order needs at least one line: %w", apperr.ErrInvalidArgument)
	ErrOrderNotOwned  = fmt.Errorf("order belongs to another user: %w", apperr.ErrForbidden)
	ErrNotCancellable = fmt.Errorf("order cannot be cancelled in its current status: %w", apperr.ErrInvalidState)
	ErrOrderShipped   = fmt.Errorf("order already shipped: %w", apperr.ErrInvalidState)

	ErrAmountMismatch       = fmt.Errorf("amount does not match order total: %w", apperr.ErrInvalidArgument)
	ErrTransactionIDInUse   = fmt.Errorf("transaction id already used: %w", apperr.ErrInvalidArgument)
	ErrTransactionIDMissing = fmt.Errorf("transaction id is required: %w", apperr.ErrInvalidArgument)
	ErrOrderNotPayable      = fmt.Errorf("order is not awaiting payment: %w", apperr.ErrInvalidState)
	ErrPaymentCanceled      = fmt.Errorf("payment already canceled: %w", apperr.ErrInvalidState)
	ErrPaymentRefunded      = fmt.Errorf("payment already fully refunded: %w", apperr.ErrInvalidState)
	ErrPaymentNotSettled    = fmt.Errorf("payment is not settled: %w", apperr.ErrInvalidState)
	ErrRefundExceedsAmount  = fmt.Errorf("refund exceeds payment amount: %w", apperr.ErrInvalidArgument)
)
