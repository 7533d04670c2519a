package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/safar/go-shop-settlement/internal/apperr"
	"github.com/safar/go-shop-settlement/internal/database"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/safar/go-shop-settlement/internal/store"
	"github.com/shopspring/decimal"
)

var ErrNonPositiveAmount = fmt.Errorf("amount must be positive: %w", apperr.ErrInvalidArgument)

// LedgerService manages the three per-user balance accounts. Each call is
// its own transaction; settlement code uses the store primitives directly
// inside its own transaction instead.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

func checkLedger(kind models.LedgerKind, amount *decimal.Decimal) error {
	if _, err := models.ParseLedgerKind(string(kind)); err != nil {
		return err
	}
	if amount != nil && !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	return nil
}

// Balance returns zero for an account that was never opened.
func (s *LedgerService) Balance(ctx context.Context, userID int64, kind models.LedgerKind) (decimal.Decimal, error) {
	if err := checkLedger(kind, nil); err != nil {
		return decimal.Zero, err
	}

	b, err := store.GetBalance(ctx, s.db, userID, kind)
	if err == database.ErrBalanceNotFound {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return b.Balance, nil
}

func (s *LedgerService) Summary(ctx context.Context, userID int64) (*models.BalanceSummary, error) {
	summary := &models.BalanceSummary{UserID: userID}

	err := database.WithRetry(ctx, s.db, database.ReadOnlyTxOptions(), func(tx *sql.Tx) error {
		accounts := []struct {
			kind models.LedgerKind
			dst  *decimal.Decimal
		}{
			{models.LedgerPoints, &summary.Points},
			{models.LedgerWallet, &summary.Wallet},
			{models.LedgerCredit, &summary.AvailableCredit},
		}
		for _, a := range accounts {
			b, err := store.GetBalance(ctx, tx, userID, a.kind)
			switch {
			case err == database.ErrBalanceNotFound:
				*a.dst = decimal.Zero
			case err != nil:
				return err
			default:
				*a.dst = b.Balance
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *LedgerService) Credit(ctx context.Context, userID int64, kind models.LedgerKind, amount decimal.Decimal) (*models.Balance, error) {
	if err := checkLedger(kind, &amount); err != nil {
		return nil, err
	}

	var balance *models.Balance
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := store.EnsureUserExists(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		balance, err = store.CreditBalance(ctx, tx, userID, kind, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// TopUp raises the available virtual credit line.
func (s *LedgerService) TopUp(ctx context.Context, userID int64, amount decimal.Decimal) (*models.Balance, error) {
	return s.Credit(ctx, userID, models.LedgerCredit, amount)
}

func (s *LedgerService) Debit(ctx context.Context, userID int64, kind models.LedgerKind, amount decimal.Decimal) (*models.Balance, error) {
	if err := checkLedger(kind, &amount); err != nil {
		return nil, err
	}

	var balance *models.Balance
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		balance, err = store.DebitBalance(ctx, tx, userID, kind, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// ChargePointsFromWallet buys points with wallet money, one for one.
func (s *LedgerService) ChargePointsFromWallet(ctx context.Context, userID int64, amount decimal.Decimal) (*models.BalanceSummary, error) {
	if err := s.transfer(ctx, userID, models.LedgerWallet, models.LedgerPoints, amount); err != nil {
		return nil, err
	}
	log.Printf("points charged from wallet: user=%d amount=%s", userID, amount)
	return s.Summary(ctx, userID)
}

// RefundPointsToWallet converts points back into wallet money.
func (s *LedgerService) RefundPointsToWallet(ctx context.Context, userID int64, amount decimal.Decimal) (*models.BalanceSummary, error) {
	if err := s.transfer(ctx, userID, models.LedgerPoints, models.LedgerWallet, amount); err != nil {
		return nil, err
	}
	log.Printf("points refunded to wallet: user=%d amount=%s", userID, amount)
	return s.Summary(ctx, userID)
}

func (s *LedgerService) transfer(ctx context.Context, userID int64, from, to models.LedgerKind, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}

	return database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if _, err := store.DebitBalance(ctx, tx, userID, from, amount); err != nil {
			return err
		}
		_, err := store.CreditBalance(ctx, tx, userID, to, amount)
		return err
	})
}
