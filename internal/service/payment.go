package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/safar/go-shop-settlement/internal/apperr"
	"github.com/safar/go-shop-settlement/internal/database"
	"github.com/safar/go-shop-settlement/internal/gateway"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/safar/go-shop-settlement/internal/store"
	"github.com/shopspring/decimal"
)

type PaymentRequest struct {
	OrderID       int64
	Amount        decimal.Decimal
	Method        string
	TransactionID string
}

// PaymentService settles orders against a balance ledger or the external
// gateway and handles cancellation and refunds of settled payments.
type PaymentService struct {
	db      *sql.DB
	gateway gateway.Processor
}

func NewPaymentService(db *sql.DB, gw gateway.Processor) *PaymentService {
	return &PaymentService{db: db, gateway: gw}
}

// CreatePayment settles the order from the ledger named by req.Method.
// When the debit is refused the payment is stored as FAILED and the order
// as PAYMENT_FAILED; that outcome is committed and returned together with
// the refusal error.
func (s *PaymentService) CreatePayment(ctx context.Context, userID int64, req PaymentRequest) (*models.Payment, error) {
	return s.settle(ctx, userID, req, models.PaymentChannelLedger,
		func(method string) (string, error) {
			m, err := models.ParsePaymentMethod(method)
			return string(m), err
		},
		func(tx *sql.Tx, p *models.Payment) error {
			ledger := models.PaymentMethod(p.Method).Ledger()
			_, err := store.DebitBalance(ctx, tx, userID, ledger, p.Amount)
			return err
		})
}

// CreateGatewayPayment settles the order through the external processor.
func (s *PaymentService) CreateGatewayPayment(ctx context.Context, userID int64, req PaymentRequest) (*models.Payment, error) {
	calls := externalCalls{}
	return s.settle(ctx, userID, req, models.PaymentChannelGateway,
		func(method string) (string, error) {
			m, err := models.ParseGatewayMethod(method)
			return string(m), err
		},
		func(tx *sql.Tx, p *models.Payment) error {
			return calls.do("charge:"+p.TransactionID, func() error {
				return s.gateway.Charge(ctx, models.GatewayMethod(p.Method), p.Amount, p.TransactionID)
			})
		})
}

func (s *PaymentService) settle(
	ctx context.Context,
	userID int64,
	req PaymentRequest,
	channel models.PaymentChannel,
	parseMethod func(string) (string, error),
	charge func(*sql.Tx, *models.Payment) error,
) (*models.Payment, error) {
	if req.TransactionID == "" {
		return nil, ErrTransactionIDMissing
	}

	var (
		payment   *models.Payment
		settleErr error
	)
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		settleErr = nil

		order, err := store.LockOrder(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return ErrOrderNotOwned
		}
		method, err := parseMethod(req.Method)
		if err != nil {
			return err
		}
		if !req.Amount.IsPositive() {
			return ErrNonPositiveAmount
		}
		if !req.Amount.Equal(order.TotalAmount) {
			return fmt.Errorf("%s != %s: %w", req.Amount, order.TotalAmount, ErrAmountMismatch)
		}
		exists, err := store.PaymentExists(ctx, tx, req.TransactionID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%s: %w", req.TransactionID, ErrTransactionIDInUse)
		}
		if !order.Status.Payable() {
			return fmt.Errorf("order %s is %s: %w", order.OrderNumber, order.Status, ErrOrderNotPayable)
		}

		payment = &models.Payment{
			OrderID:       order.ID,
			UserID:        userID,
			Channel:       channel,
			Method:        method,
			TransactionID: req.TransactionID,
			Amount:        req.Amount,
			Status:        models.PaymentStatusInitiated,
		}
		if err := store.InsertPayment(ctx, tx, payment); err != nil {
			return err
		}

		if err := charge(tx, payment); err != nil {
			if apperr.KindOf(err) == apperr.KindInternal && channel == models.PaymentChannelLedger {
				return err
			}
			settleErr = err
			if err := store.UpdatePayment(ctx, tx, payment, models.PaymentStatusFailed, decimal.Zero); err != nil {
				return err
			}
			return store.UpdateOrderStatus(ctx, tx, order, models.OrderStatusPaymentFailed)
		}

		if err := store.UpdatePayment(ctx, tx, payment, models.PaymentStatusCompleted, decimal.Zero); err != nil {
			return err
		}
		return store.UpdateOrderStatus(ctx, tx, order, models.OrderStatusCompleted)
	})
	if err != nil {
		return nil, err
	}

	if settleErr != nil {
		log.Printf("payment failed: tx=%s order=%d method=%s: %v", payment.TransactionID, payment.OrderID, payment.Method, settleErr)
		return payment, settleErr
	}
	log.Printf("payment completed: tx=%s order=%d method=%s amount=%s", payment.TransactionID, payment.OrderID, payment.Method, payment.Amount)
	return payment, nil
}

// CancelPayment voids a settled payment: whatever has not been refunded is
// returned to its source, the order is cancelled and its stock restored.
func (s *PaymentService) CancelPayment(ctx context.Context, transactionID string) (*models.Payment, error) {
	var payment *models.Payment
	calls := externalCalls{}
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		p, err := store.GetPaymentByTransaction(ctx, tx, transactionID, true)
		if err != nil {
			return err
		}
		switch p.Status {
		case models.PaymentStatusCanceled:
			return ErrPaymentCanceled
		case models.PaymentStatusCompleted, models.PaymentStatusPartiallyRefunded:
		default:
			return fmt.Errorf("payment %s is %s: %w", p.TransactionID, p.Status, ErrPaymentNotSettled)
		}

		order, err := store.LockOrder(ctx, tx, p.OrderID)
		if err != nil {
			return err
		}
		if order.HasShipped() {
			return fmt.Errorf("order %s: %w", order.OrderNumber, ErrOrderShipped)
		}

		if outstanding := p.Outstanding(); outstanding.IsPositive() {
			if err := s.giveBack(ctx, tx, calls, p, outstanding, true); err != nil {
				return err
			}
		}
		if err := store.UpdatePayment(ctx, tx, p, models.PaymentStatusCanceled, p.RefundAmount); err != nil {
			return err
		}
		if err := store.UpdateOrderStatus(ctx, tx, order, models.OrderStatusCancelled); err != nil {
			return err
		}
		if err := restoreInventory(ctx, tx, order.Items); err != nil {
			return err
		}

		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("payment canceled: tx=%s order=%d", payment.TransactionID, payment.OrderID)
	return payment, nil
}

// RefundPayment returns amount of a settled payment to its source. The
// payment and its order become REFUNDED once everything is returned and
// PARTIALLY_REFUNDED before that.
func (s *PaymentService) RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal) (*models.Payment, error) {
	var payment *models.Payment
	calls := externalCalls{}
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		p, err := store.GetPaymentByTransaction(ctx, tx, transactionID, true)
		if err != nil {
			return err
		}
		if p.Status == models.PaymentStatusRefunded {
			return ErrPaymentRefunded
		}
		if !amount.IsPositive() {
			return ErrNonPositiveAmount
		}
		if p.Status != models.PaymentStatusCompleted && p.Status != models.PaymentStatusPartiallyRefunded {
			return fmt.Errorf("payment %s is %s: %w", p.TransactionID, p.Status, ErrPaymentNotSettled)
		}
		total := p.RefundAmount.Add(amount)
		if total.GreaterThan(p.Amount) {
			return fmt.Errorf("%s already refunded, %s requested, %s paid: %w", p.RefundAmount, amount, p.Amount, ErrRefundExceedsAmount)
		}

		order, err := store.LockOrder(ctx, tx, p.OrderID)
		if err != nil {
			return err
		}

		paymentNext := models.PaymentStatusPartiallyRefunded
		orderNext := models.OrderStatusPartiallyRefunded
		if total.Equal(p.Amount) {
			paymentNext = models.PaymentStatusRefunded
			orderNext = models.OrderStatusRefunded
		}

		if err := s.giveBack(ctx, tx, calls, p, amount, false); err != nil {
			return err
		}
		if err := store.UpdatePayment(ctx, tx, p, paymentNext, total); err != nil {
			return err
		}
		if err := store.UpdateOrderStatus(ctx, tx, order, orderNext); err != nil {
			return err
		}

		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("payment refunded: tx=%s amount=%s total_refunded=%s status=%s", payment.TransactionID, amount, payment.RefundAmount, payment.Status)
	return payment, nil
}

// PaymentsByOrder lists the payments of an order owned by userID.
func (s *PaymentService) PaymentsByOrder(ctx context.Context, orderID, userID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := database.WithRetry(ctx, s.db, database.ReadOnlyTxOptions(), func(tx *sql.Tx) error {
		order, err := store.GetOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return ErrOrderNotOwned
		}
		payments = order.Payments
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *PaymentService) ListByStatus(ctx context.Context, status models.PaymentStatus, limit int) ([]models.Payment, error) {
	return store.ListPaymentsByStatus(ctx, s.db, status, limit)
}

// giveBack credits amount to the ledger the payment came from, or asks the
// gateway to cancel or refund it.
func (s *PaymentService) giveBack(ctx context.Context, tx *sql.Tx, calls externalCalls, p *models.Payment, amount decimal.Decimal, cancel bool) error {
	if p.Channel == models.PaymentChannelGateway {
		if cancel {
			return calls.do("cancel:"+p.TransactionID, func() error {
				return s.gateway.Cancel(ctx, p.TransactionID)
			})
		}
		return calls.do("refund:"+p.TransactionID+":"+amount.String(), func() error {
			return s.gateway.Refund(ctx, p.TransactionID, amount)
		})
	}

	method, err := models.ParsePaymentMethod(p.Method)
	if err != nil {
		return err
	}
	_, err = store.CreditBalance(ctx, tx, p.UserID, method.Ledger(), amount)
	return err
}

// externalCalls remembers the outcome of gateway calls made inside a
// transaction body. WithRetry may run the body again after a rollback; the
// gateway has no rollback, so a repeated call gets the first outcome instead
// of reaching the processor twice.
type externalCalls map[string]error

func (c externalCalls) do(key string, call func() error) error {
	if err, done := c[key]; done {
		return err
	}
	err := call()
	c[key] = err
	return err
}
