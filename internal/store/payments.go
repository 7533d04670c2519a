package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-shop-settlement/internal/apperr"
	"github.com/safar/go-shop-settlement/internal/database"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/shopspring/decimal"
)

const paymentColumns = `id, order_id, user_id, channel, method, transaction_id, amount, refund_amount, status, created_at, updated_at`

// ErrDuplicateTransaction is returned when a transaction id is already used.
var ErrDuplicateTransaction = fmt.Errorf("duplicate transaction id: %w", apperr.ErrInvalidArgument)

func scanPayment(row rowScanner) (*models.Payment, error) {
	p := &models.Payment{}
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.UserID,
		&p.Channel,
		&p.Method,
		&p.TransactionID,
		&p.Amount,
		&p.RefundAmount,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func InsertPayment(ctx context.Context, q database.DBTX, p *models.Payment) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO payments (order_id, user_id, channel, method, transaction_id, amount, refund_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, NOW(), NOW())
		RETURNING id, refund_amount, created_at, updated_at`,
		p.OrderID, p.UserID, p.Channel, p.Method, p.TransactionID, p.Amount, p.Status,
	).Scan(&p.ID, &p.RefundAmount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "uk_payment_transaction_id") {
			return fmt.Errorf("%s: %w", p.TransactionID, ErrDuplicateTransaction)
		}
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func PaymentExists(ctx context.Context, q database.DBTX, transactionID string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM payments WHERE transaction_id = $1)", transactionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payment exists: %w", err)
	}
	return exists, nil
}

// GetPaymentByTransaction looks a payment up by its transaction id, taking
// a row lock when lock is set.
func GetPaymentByTransaction(ctx context.Context, q database.DBTX, transactionID string, lock bool) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	p, err := scanPayment(q.QueryRowContext(ctx, query, transactionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// UpdatePayment writes a new status and cumulative refund amount, enforcing
// the payment state table and that refunds never shrink.
func UpdatePayment(ctx context.Context, q database.DBTX, p *models.Payment, next models.PaymentStatus, refundAmount decimal.Decimal) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("payment %s: %s -> %s: %w", p.TransactionID, p.Status, next, database.ErrInvalidTransition)
	}
	if refundAmount.LessThan(p.RefundAmount) {
		return fmt.Errorf("payment %s: refund amount cannot decrease: %w", p.TransactionID, database.ErrInvalidTransition)
	}

	result, err := q.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, refund_amount = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		next, refundAmount, p.ID, p.Status)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if err := requireRow(result, database.ErrOptimisticLockFailed); err != nil {
		return err
	}

	p.Status = next
	p.RefundAmount = refundAmount
	return nil
}

func ListPaymentsByOrder(ctx context.Context, q database.DBTX, orderID int64) ([]models.Payment, error) {
	return queryPayments(ctx, q,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY id`, orderID)
}

func ListPaymentsByStatus(ctx context.Context, q database.DBTX, status models.PaymentStatus, limit int) ([]models.Payment, error) {
	return queryPayments(ctx, q,
		`SELECT `+paymentColumns+` FROM payments WHERE status = $1 ORDER BY created_at, id LIMIT $2`,
		status, ClampPageSize(limit))
}

func queryPayments(ctx context.Context, q database.DBTX, query string, args ...any) ([]models.Payment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return payments, nil
}
