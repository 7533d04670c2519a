package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-shop-settlement/internal/database"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/shopspring/decimal"
)

func GetBalance(ctx context.Context, q database.DBTX, userID int64, kind models.LedgerKind) (*models.Balance, error) {
	b := &models.Balance{UserID: userID, Kind: kind}
	err := q.QueryRowContext(ctx,
		`SELECT balance, updated_at FROM balances WHERE user_id = $1 AND kind = $2`,
		userID, kind).Scan(&b.Balance, &b.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// CreditBalance adds amount to the account, creating a zero account first if
// the user has none. The increment happens in the UPDATE so concurrent
// credits never lose each other.
func CreditBalance(ctx context.Context, q database.DBTX, userID int64, kind models.LedgerKind, amount decimal.Decimal) (*models.Balance, error) {
	b := &models.Balance{UserID: userID, Kind: kind}
	err := q.QueryRowContext(ctx, `
		INSERT INTO balances (user_id, kind, balance, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (user_id, kind)
		DO UPDATE SET balance = balances.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance, updated_at`,
		userID, kind, amount).Scan(&b.Balance, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("credit balance: %w", err)
	}
	return b, nil
}

// DebitBalance subtracts amount only if the account holds at least amount.
// The check and the subtraction are one statement, so no caller can observe
// or produce a negative balance.
func DebitBalance(ctx context.Context, q database.DBTX, userID int64, kind models.LedgerKind, amount decimal.Decimal) (*models.Balance, error) {
	b := &models.Balance{UserID: userID, Kind: kind}
	err := q.QueryRowContext(ctx, `
		UPDATE balances
		SET balance = balance - $3, updated_at = NOW()
		WHERE user_id = $1 AND kind = $2 AND balance >= $3
		RETURNING balance, updated_at`,
		userID, kind, amount).Scan(&b.Balance, &b.UpdatedAt)
	if err == nil {
		return b, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("debit balance: %w", err)
	}

	current, err := GetBalance(ctx, q, userID, kind)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%s has %s, need %s: %w", kind, current.Balance, amount, database.ErrInsufficientFunds)
}
