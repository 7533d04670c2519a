// Package gateway talks to the external payment processor. The processor
// itself is a stub that accepts every request; calls to it go through a
// circuit breaker so a misbehaving processor fails fast.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/safar/go-shop-settlement/internal/apperr"
	"github.com/safar/go-shop-settlement/internal/config"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

var (
	ErrDeclined    = fmt.Errorf("payment declined by gateway: %w", apperr.ErrInsufficientFunds)
	ErrUnavailable = errors.New("payment gateway unavailable")
)

type Processor interface {
	Charge(ctx context.Context, method models.GatewayMethod, amount decimal.Decimal, transactionID string) error
	Cancel(ctx context.Context, transactionID string) error
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error
}

// Stub accepts every request.
type Stub struct{}

func (Stub) Charge(ctx context.Context, method models.GatewayMethod, amount decimal.Decimal, transactionID string) error {
	log.Printf("gateway charge: method=%s amount=%s tx=%s", method, amount, transactionID)
	return nil
}

func (Stub) Cancel(ctx context.Context, transactionID string) error {
	log.Printf("gateway cancel: tx=%s", transactionID)
	return nil
}

func (Stub) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	log.Printf("gateway refund: tx=%s amount=%s", transactionID, amount)
	return nil
}

// Client wraps a Processor with a circuit breaker. Declines are business
// outcomes and do not count against the breaker.
type Client struct {
	processor Processor
	breaker   *gobreaker.CircuitBreaker[struct{}]
}

func NewClient(p Processor, cfg config.GatewayConfig) *Client {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDeclined)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
	}

	return &Client{
		processor: p,
		breaker:   gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (c *Client) Charge(ctx context.Context, method models.GatewayMethod, amount decimal.Decimal, transactionID string) error {
	return c.execute(func() error {
		return c.processor.Charge(ctx, method, amount, transactionID)
	})
}

func (c *Client) Cancel(ctx context.Context, transactionID string) error {
	return c.execute(func() error {
		return c.processor.Cancel(ctx, transactionID)
	})
}

func (c *Client) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	return c.execute(func() error {
		return c.processor.Refund(ctx, transactionID, amount)
	})
}

func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) execute(call func() error) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, call()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
