package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-shop-settlement/internal/apperr"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "PENDING"
	OrderStatusCompleted         OrderStatus = "COMPLETED"
	OrderStatusPaymentFailed     OrderStatus = "PAYMENT_FAILED"
	OrderStatusShipped           OrderStatus = "SHIPPED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
	OrderStatusRefunded          OrderStatus = "REFUNDED"
	OrderStatusPartiallyRefunded OrderStatus = "PARTIALLY_REFUNDED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:           {OrderStatusCompleted, OrderStatusPaymentFailed, OrderStatusCancelled},
	OrderStatusPaymentFailed:     {OrderStatusCompleted, OrderStatusPaymentFailed, OrderStatusCancelled},
	OrderStatusCompleted:         {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded, OrderStatusPartiallyRefunded},
	OrderStatusShipped:           {OrderStatusRefunded, OrderStatusPartiallyRefunded},
	OrderStatusPartiallyRefunded: {OrderStatusPartiallyRefunded, OrderStatusRefunded, OrderStatusCancelled},
	OrderStatusRefunded:          {OrderStatusCancelled},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch status := OrderStatus(strings.ToUpper(strings.TrimSpace(s))); status {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusPaymentFailed, OrderStatusShipped,
		OrderStatusCancelled, OrderStatusRefunded, OrderStatusPartiallyRefunded:
		return status, nil
	}
	return "", fmt.Errorf("unknown order status %q: %w", s, apperr.ErrInvalidArgument)
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CustomerCancellable reports whether the owner may cancel the order.
// Shipped and paid orders have to go through payment cancellation or refund.
func (s OrderStatus) CustomerCancellable() bool {
	switch s {
	case OrderStatusShipped, OrderStatusCompleted, OrderStatusCancelled:
		return false
	}
	return s.CanTransitionTo(OrderStatusCancelled)
}

// Payable reports whether a settlement may be attempted for the order.
func (s OrderStatus) Payable() bool {
	return s == OrderStatusPending || s == OrderStatusPaymentFailed
}

type Order struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	OrderNumber       string          `json:"order_number"`
	Status            OrderStatus     `json:"status"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	ShippingFee       decimal.Decimal `json:"shipping_fee"`
	Tax               decimal.Decimal `json:"tax"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	ShippingAddressID *int64          `json:"-"`
	BillingAddressID  *int64          `json:"-"`
	ShippingAddress   *Address        `json:"shipping_address"`
	BillingAddress    *Address        `json:"billing_address"`
	ShippedAt         *time.Time      `json:"shipped_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Version           int             `json:"version"`
	Items             []OrderItem     `json:"items"`
	Payments          []Payment       `json:"payments"`
}

// HasShipped stays true after a shipped order is refunded.
func (o *Order) HasShipped() bool {
	return o.ShippedAt != nil || o.Status == OrderStatusShipped
}

// CustomerCancellable applies the status rule and refuses anything that has
// left the warehouse.
func (o *Order) CustomerCancellable() bool {
	return !o.HasShipped() && o.Status.CustomerCancellable()
}

type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   *int64          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	CreatedAt   time.Time       `json:"created_at"`
}

func NewOrderItem(productID int64, name string, unitPrice decimal.Decimal, quantity int) OrderItem {
	id := productID
	return OrderItem{
		ProductID:   &id,
		ProductName: name,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Subtotal:    unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

type Totals struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
}

// Pricing holds the shop-wide constants applied to every order.
type Pricing struct {
	ShippingFee decimal.Decimal
	TaxRate     decimal.Decimal
}

func DefaultPricing() Pricing {
	return Pricing{
		ShippingFee: decimal.NewFromInt(500),
		TaxRate:     decimal.New(1, -1),
	}
}

// ComputeTotals sums the item subtotals; tax is floor(subtotal * rate).
func (p Pricing) ComputeTotals(items []OrderItem) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Subtotal)
	}
	tax := subtotal.Mul(p.TaxRate).Floor()
	return Totals{
		Subtotal:    subtotal,
		ShippingFee: p.ShippingFee,
		Tax:         tax,
		Total:       subtotal.Add(p.ShippingFee).Add(tax),
	}
}

// NewOrderNumber formats <UTC yyyyMMddHHmmss>-<8 random upper-case chars>.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return now.UTC().Format("20060102150405") + "-" + suffix
}
