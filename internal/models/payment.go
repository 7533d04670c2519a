package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/safar/go-shop-settlement/internal/apperr"
	"github.com/shopspring/decimal"
)

// PaymentMethod names an internal balance ledger a payment settles against.
type PaymentMethod string

const (
	PaymentMethodPoint      PaymentMethod = "POINT"
	PaymentMethodPayPay     PaymentMethod = "PAYPAY"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
)

var ErrUnknownPaymentMethod = fmt.Errorf("unknown payment method: %w", apperr.ErrInvalidArgument)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case PaymentMethodPoint, PaymentMethodPayPay, PaymentMethodCreditCard:
		return m, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownPaymentMethod)
}

// GatewayMethod names a method handled by the external processor. It shares
// the CREDIT_CARD literal with PaymentMethod but is a different thing: a
// card charged outside, not the virtual credit line.
type GatewayMethod string

const (
	GatewayMethodCreditCard   GatewayMethod = "CREDIT_CARD"
	GatewayMethodKonbini      GatewayMethod = "KONBINI"
	GatewayMethodBankTransfer GatewayMethod = "BANK_TRANSFER"
	GatewayMethodCOD          GatewayMethod = "COD"
)

func ParseGatewayMethod(s string) (GatewayMethod, error) {
	switch m := GatewayMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case GatewayMethodCreditCard, GatewayMethodKonbini, GatewayMethodBankTransfer, GatewayMethodCOD:
		return m, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownPaymentMethod)
}

type PaymentChannel string

const (
	PaymentChannelLedger  PaymentChannel = "LEDGER"
	PaymentChannelGateway PaymentChannel = "GATEWAY"
)

type PaymentStatus string

const (
	PaymentStatusInitiated         PaymentStatus = "INITIATED"
	PaymentStatusCompleted         PaymentStatus = "COMPLETED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusCanceled          PaymentStatus = "CANCELED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusInitiated:         {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted:         {PaymentStatusCanceled, PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
	PaymentStatusPartiallyRefunded: {PaymentStatusPartiallyRefunded, PaymentStatusRefunded, PaymentStatusCanceled},
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch p := PaymentStatus(strings.ToUpper(strings.TrimSpace(s))); p {
	case PaymentStatusInitiated, PaymentStatusCompleted, PaymentStatusFailed,
		PaymentStatusCanceled, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return p, nil
	}
	return "", fmt.Errorf("unknown payment status %q: %w", s, apperr.ErrInvalidArgument)
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Payment struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"order_id"`
	UserID        int64           `json:"user_id"`
	Channel       PaymentChannel  `json:"channel"`
	Method        string          `json:"method"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	RefundAmount  decimal.Decimal `json:"refund_amount"`
	Status        PaymentStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Outstanding is the part of the payment not yet given back.
func (p Payment) Outstanding() decimal.Decimal {
	return p.Amount.Sub(p.RefundAmount)
}

// LedgerKind is one of the per-user balance account types. The values line
// up with PaymentMethod so a ledger payment maps directly onto its account.
type LedgerKind string

const (
	LedgerPoints LedgerKind = "POINT"
	LedgerWallet LedgerKind = "PAYPAY"
	LedgerCredit LedgerKind = "CREDIT_CARD"
)

func (m PaymentMethod) Ledger() LedgerKind { return LedgerKind(m) }

func ParseLedgerKind(s string) (LedgerKind, error) {
	switch k := LedgerKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case LedgerPoints, LedgerWallet, LedgerCredit:
		return k, nil
	}
	return "", fmt.Errorf("unknown balance account %q: %w", s, apperr.ErrInvalidArgument)
}

type Balance struct {
	UserID    int64           `json:"user_id"`
	Kind      LedgerKind      `json:"kind"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BalanceSummary lists the three balances of one user.
type BalanceSummary struct {
	UserID          int64           `json:"user_id"`
	Points          decimal.Decimal `json:"points"`
	Wallet          decimal.Decimal `json:"wallet"`
	AvailableCredit decimal.Decimal `json:"available_credit"`
}
