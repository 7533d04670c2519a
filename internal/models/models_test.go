package models

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/safar/go-shop-settlement/internal/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartOwnerValidate(t *testing.T) {
	assert.NoError(t, UserOwner(1).Validate())
	assert.NoError(t, SessionOwner("abc").Validate())

	assert.ErrorIs(t, CartOwner{}.Validate(), apperr.ErrInvalidArgument)
	assert.ErrorIs(t, CartOwner{UserID: 1, SessionToken: "abc"}.Validate(), apperr.ErrInvalidArgument)
	assert.ErrorIs(t, SessionOwner("   ").Validate(), apperr.ErrInvalidArgument)
}

func TestOptionsMatch(t *testing.T) {
	red := CartItemOption{OptionID: 1, Value: "red"}
	large := CartItemOption{OptionID: 2, Value: "L"}
	small := CartItemOption{OptionID: 2, Value: "S"}

	assert.True(t, OptionsMatch(nil, nil))
	assert.True(t, OptionsMatch(nil, []CartItemOption{}))
	assert.True(t, OptionsMatch([]CartItemOption{red, large}, []CartItemOption{large, red}))

	assert.False(t, OptionsMatch([]CartItemOption{red}, nil))
	assert.False(t, OptionsMatch([]CartItemOption{red, large}, []CartItemOption{red, small}))
	assert.False(t, OptionsMatch([]CartItemOption{red, red}, []CartItemOption{red, large}))
}

func TestNormalizeOptionsKeepsLastValue(t *testing.T) {
	got := NormalizeOptions([]CartItemOption{
		{OptionID: 2, Value: "S"},
		{OptionID: 1, Value: "red"},
		{OptionID: 2, Value: "L"},
	})

	assert.Equal(t, []CartItemOption{{OptionID: 1, Value: "red"}, {OptionID: 2, Value: "L"}}, got)
	assert.Nil(t, NormalizeOptions(nil))
}

func TestCartFindLineIgnoresDeleted(t *testing.T) {
	now := time.Now()
	cart := Cart{Items: []CartItem{
		{ID: 1, ProductID: 10, Quantity: 1, DeletedAt: &now},
		{ID: 2, ProductID: 10, Quantity: 2, Options: []CartItemOption{{OptionID: 5, Value: "blue"}}},
		{ID: 3, ProductID: 10, Quantity: 3},
	}}

	line, ok := cart.FindLine(10, nil)
	require.True(t, ok)
	assert.Equal(t, int64(3), line.ID)

	line, ok = cart.FindLine(10, []CartItemOption{{OptionID: 5, Value: "blue"}})
	require.True(t, ok)
	assert.Equal(t, int64(2), line.ID)

	_, ok = cart.FindItem(1)
	assert.False(t, ok)
	assert.Len(t, cart.ActiveItems(), 2)
}

func TestComputeTotals(t *testing.T) {
	pricing := DefaultPricing()
	items := []OrderItem{
		NewOrderItem(1, "A", decimal.RequireFromString("333"), 1),
		NewOrderItem(2, "B", decimal.RequireFromString("100.50"), 2),
	}

	totals := pricing.ComputeTotals(items)

	assert.True(t, totals.Subtotal.Equal(decimal.RequireFromString("534")), totals.Subtotal.String())
	assert.True(t, totals.Tax.Equal(decimal.NewFromInt(53)), totals.Tax.String())
	assert.True(t, totals.ShippingFee.Equal(decimal.NewFromInt(500)))
	assert.True(t, totals.Total.Equal(totals.Subtotal.Add(totals.ShippingFee).Add(totals.Tax)))
}

func TestComputeTotalsFloorsTax(t *testing.T) {
	pricing := Pricing{ShippingFee: decimal.Zero, TaxRate: decimal.New(1, -1)}
	totals := pricing.ComputeTotals([]OrderItem{NewOrderItem(1, "A", decimal.RequireFromString("19.99"), 1)})

	assert.True(t, totals.Tax.Equal(decimal.NewFromInt(1)), totals.Tax.String())
}

func TestCartItemUnitPriceWithoutSnapshot(t *testing.T) {
	assert.True(t, CartItem{}.UnitPrice().IsZero())
}

func TestOrderTransitions(t *testing.T) {
	assert.True(t, OrderStatusPending.CanTransitionTo(OrderStatusCompleted))
	assert.True(t, OrderStatusPending.CanTransitionTo(OrderStatusPaymentFailed))
	assert.True(t, OrderStatusCompleted.CanTransitionTo(OrderStatusShipped))
	assert.True(t, OrderStatusShipped.CanTransitionTo(OrderStatusRefunded))
	assert.False(t, OrderStatusShipped.CanTransitionTo(OrderStatusCancelled))
	assert.False(t, OrderStatusCancelled.CanTransitionTo(OrderStatusPending))
	assert.False(t, OrderStatusPending.CanTransitionTo(OrderStatusShipped))
}

func TestCustomerCancellable(t *testing.T) {
	cancellable := map[OrderStatus]bool{
		OrderStatusPending:           true,
		OrderStatusPaymentFailed:     true,
		OrderStatusPartiallyRefunded: true,
		OrderStatusRefunded:          true,
		OrderStatusCompleted:         false,
		OrderStatusShipped:           false,
		OrderStatusCancelled:         false,
	}
	for status, want := range cancellable {
		assert.Equal(t, want, status.CustomerCancellable(), status)
	}
}

func TestOrderHasShippedSurvivesRefund(t *testing.T) {
	shippedAt := time.Now()
	order := &Order{Status: OrderStatusPartiallyRefunded, ShippedAt: &shippedAt}
	assert.True(t, order.HasShipped())
	assert.False(t, order.CustomerCancellable())

	order.ShippedAt = nil
	assert.False(t, order.HasShipped())
	assert.True(t, order.CustomerCancellable())

	order.Status = OrderStatusShipped
	assert.True(t, order.HasShipped())
}

func TestPaymentTransitions(t *testing.T) {
	assert.True(t, PaymentStatusInitiated.CanTransitionTo(PaymentStatusFailed))
	assert.True(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusPartiallyRefunded))
	assert.True(t, PaymentStatusPartiallyRefunded.CanTransitionTo(PaymentStatusRefunded))
	assert.False(t, PaymentStatusRefunded.CanTransitionTo(PaymentStatusPartiallyRefunded))
	assert.False(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusCanceled))
}

func TestParseMethodsStayDistinct(t *testing.T) {
	m, err := ParsePaymentMethod("paypay")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodPayPay, m)
	assert.Equal(t, LedgerWallet, m.Ledger())

	_, err = ParsePaymentMethod("KONBINI")
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))

	g, err := ParseGatewayMethod("konbini")
	require.NoError(t, err)
	assert.Equal(t, GatewayMethodKonbini, g)

	_, err = ParseGatewayMethod("POINT")
	assert.ErrorIs(t, err, ErrUnknownPaymentMethod)
}

func TestParseStatuses(t *testing.T) {
	s, err := ParseOrderStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, s)

	_, err = ParseOrderStatus("lost")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	p, err := ParsePaymentStatus("partially_refunded")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPartiallyRefunded, p)
}

func TestNewOrderNumberFormat(t *testing.T) {
	at := time.Date(2026, 10, 14, 9, 30, 5, 0, time.FixedZone("JST", 9*3600))
	number := NewOrderNumber(at)

	assert.Regexp(t, regexp.MustCompile(`^20261014003005-[0-9A-F]{8}$`), number)
	assert.NotEqual(t, number, NewOrderNumber(at))
}

func TestPaymentOutstanding(t *testing.T) {
	p := Payment{Amount: decimal.NewFromInt(800), RefundAmount: decimal.NewFromInt(300)}
	assert.True(t, p.Outstanding().Equal(decimal.NewFromInt(500)))
}
