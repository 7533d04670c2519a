package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/safar/go-shop-settlement/internal/cache"
	"github.com/safar/go-shop-settlement/internal/config"
	"github.com/safar/go-shop-settlement/internal/gateway"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/safar/go-shop-settlement/internal/service"
	"github.com/safar/go-shop-settlement/internal/store"
	"github.com/safar/go-shop-settlement/internal/testdb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type env struct {
	db       *sql.DB
	carts    *service.CartService
	orders   *service.OrderService
	payments *service.PaymentService
	ledger   *service.LedgerService
}

func newEnv(t *testing.T) *env {
	return newEnvWithCache(t, nil)
}

func newEnvWithCache(t *testing.T, c cache.CartCache) *env {
	db := testdb.New(t)
	payments := service.NewPaymentService(db, gateway.NewClient(gateway.Stub{}, config.GatewayConfig{}))
	return &env{
		db:       db,
		carts:    service.NewCartService(db, c),
		orders:   service.NewOrderService(db, payments, c, models.DefaultPricing()),
		payments: payments,
		ledger:   service.NewLedgerService(db),
	}
}

func newRedisCache(t *testing.T) (cache.CartCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewRedisCache(client, 15*time.Minute), mr
}

var seq int64

func (e *env) user(t *testing.T) int64 {
	t.Helper()
	n := atomic.AddInt64(&seq, 1)
	u, err := store.CreateUser(context.Background(), e.db, fmt.Sprintf("buyer%d@example.com", n), fmt.Sprintf("Buyer %d", n))
	require.NoError(t, err)
	return u.ID
}

// product creates a product; discount <= 0 leaves it without a discount price.
func (e *env) product(t *testing.T, price, discount int64, stock int) *models.Product {
	t.Helper()
	n := atomic.AddInt64(&seq, 1)
	np := store.NewProduct{
		SKU:   fmt.Sprintf("SKU-%04d", n),
		Name:  fmt.Sprintf("Item %d", n),
		Price: decimal.NewFromInt(price),
		Stock: stock,
	}
	if discount > 0 {
		np.DiscountPrice = decimal.NewNullDecimal(decimal.NewFromInt(discount))
	}
	p, err := store.CreateProduct(context.Background(), e.db, np)
	require.NoError(t, err)
	return p
}

func (e *env) fund(t *testing.T, userID int64, kind models.LedgerKind, amount int64) {
	t.Helper()
	_, err := e.ledger.Credit(context.Background(), userID, kind, decimal.NewFromInt(amount))
	require.NoError(t, err)
}

func (e *env) balance(t *testing.T, userID int64, kind models.LedgerKind) decimal.Decimal {
	t.Helper()
	b, err := e.ledger.Balance(context.Background(), userID, kind)
	require.NoError(t, err)
	return b
}

func (e *env) stock(t *testing.T, productID int64) int {
	t.Helper()
	p, err := store.GetProduct(context.Background(), e.db, productID)
	require.NoError(t, err)
	return p.StockQuantity
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func requireDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, got.Equal(decimal.NewFromInt(want)), "expected %d, got %s", want, got)
}
