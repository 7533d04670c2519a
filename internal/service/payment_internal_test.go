package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/lib/pq"
	"github.com/safar/go-shop-settlement/internal/database"
	"github.com/safar/go-shop-settlement/internal/gateway"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/safar/go-shop-settlement/internal/testdb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProcessor struct {
	gateway.Stub
	mu      sync.Mutex
	cancels int
	refunds int
}

func (p *countingProcessor) Cancel(ctx context.Context, transactionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels++
	return nil
}

func (p *countingProcessor) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunds++
	return nil
}

func TestExternalCallsReplayOutcome(t *testing.T) {
	calls := externalCalls{}
	declined := errors.New("declined")
	n := 0

	for i := 0; i < 3; i++ {
		err := calls.do("charge:tx-1", func() error {
			n++
			return declined
		})
		assert.ErrorIs(t, err, declined)
	}
	assert.Equal(t, 1, n)

	require.NoError(t, calls.do("charge:tx-2", func() error { n++; return nil }))
	assert.Equal(t, 2, n)
}

func TestGiveBack_GatewayCalledOnceAcrossRetries(t *testing.T) {
	db := testdb.New(t)
	processor := &countingProcessor{}
	s := NewPaymentService(db, processor)
	p := &models.Payment{
		TransactionID: "tx-gw",
		Channel:       models.PaymentChannelGateway,
		Method:        string(models.GatewayMethodCreditCard),
		Amount:        decimal.NewFromInt(800),
	}

	calls := externalCalls{}
	attempts := 0
	err := database.WithRetry(context.Background(), db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		attempts++
		if err := s.giveBack(context.Background(), tx, calls, p, decimal.NewFromInt(300), false); err != nil {
			return err
		}
		if err := s.giveBack(context.Background(), tx, calls, p, p.Amount, true); err != nil {
			return err
		}
		if attempts == 1 {
			return &pq.Error{Code: "40001"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, processor.refunds)
	assert.Equal(t, 1, processor.cancels)
}
