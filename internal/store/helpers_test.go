package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/safar/go-shop-settlement/internal/store"
	"github.com/shopspring/decimal"
)

var seq int64

func newUser(t *testing.T, db *sql.DB) *models.User {
	t.Helper()
	n := atomic.AddInt64(&seq, 1)
	user, err := store.CreateUser(context.Background(), db, fmt.Sprintf("user%d@example.com", n), fmt.Sprintf("User %d", n))
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	return user
}

func newProduct(t *testing.T, db *sql.DB, price int64, stock int) *models.Product {
	t.Helper()
	n := atomic.AddInt64(&seq, 1)
	product, err := store.CreateProduct(context.Background(), db, store.NewProduct{
		SKU:           fmt.Sprintf("SKU-%03d", n),
		Name:          fmt.Sprintf("Product %d", n),
		Price:         decimal.NewFromInt(price),
		DiscountPrice: decimal.NewNullDecimal(decimal.NewFromInt(price)),
		Stock:         stock,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	return product
}

func newOrder(t *testing.T, db *sql.DB, userID int64, product *models.Product, quantity int) *models.Order {
	t.Helper()
	items := []models.OrderItem{models.NewOrderItem(product.ID, product.Name, product.Price, quantity)}
	totals := models.DefaultPricing().ComputeTotals(items)
	order := &models.Order{
		UserID:      userID,
		Status:      models.OrderStatusPending,
		Subtotal:    totals.Subtotal,
		ShippingFee: totals.ShippingFee,
		Tax:         totals.Tax,
		TotalAmount: totals.Total,
		Items:       items,
	}
	if err := store.InsertOrder(context.Background(), db, order); err != nil {
		t.Fatalf("Create order: %v", err)
	}
	return order
}
