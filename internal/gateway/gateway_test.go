package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/safar/go-shop-settlement/internal/apperr"
	"github.com/safar/go-shop-settlement/internal/config"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProcessor struct {
	err   error
	calls int
}

func (p *scriptedProcessor) Charge(ctx context.Context, method models.GatewayMethod, amount decimal.Decimal, transactionID string) error {
	p.calls++
	return p.err
}

func (p *scriptedProcessor) Cancel(ctx context.Context, transactionID string) error {
	p.calls++
	return p.err
}

func (p *scriptedProcessor) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	p.calls++
	return p.err
}

func TestStubAcceptsEverything(t *testing.T) {
	client := NewClient(Stub{}, config.GatewayConfig{})
	ctx := context.Background()

	require.NoError(t, client.Charge(ctx, models.GatewayMethodKonbini, decimal.NewFromInt(1200), "tx-1"))
	require.NoError(t, client.Refund(ctx, "tx-1", decimal.NewFromInt(200)))
	require.NoError(t, client.Cancel(ctx, "tx-1"))
	assert.Equal(t, gobreaker.StateClosed, client.State())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	p := &scriptedProcessor{err: errors.New("connection reset")}
	client := NewClient(p, config.GatewayConfig{BreakerMaxFailures: 2, BreakerOpenTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := client.Charge(ctx, models.GatewayMethodCreditCard, decimal.NewFromInt(100), "tx")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())

	err := client.Charge(ctx, models.GatewayMethodCreditCard, decimal.NewFromInt(100), "tx")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, p.calls, "open breaker must not reach the processor")
}

func TestDeclinesDoNotTripBreaker(t *testing.T) {
	p := &scriptedProcessor{err: ErrDeclined}
	client := NewClient(p, config.GatewayConfig{BreakerMaxFailures: 1, BreakerOpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		err := client.Charge(context.Background(), models.GatewayMethodCOD, decimal.NewFromInt(100), "tx")
		assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	}
	assert.Equal(t, gobreaker.StateClosed, client.State())
	assert.Equal(t, 3, p.calls)
}
