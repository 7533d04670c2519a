package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/go-shop-settlement/internal/database"
	"github.com/safar/go-shop-settlement/internal/models"
)

const orderColumns = `id, user_id, order_number, status, subtotal, shipping_fee, tax, total_amount,
	shipping_address_id, billing_address_id, shipped_at, created_at, updated_at, version`

const maxOrderNumberAttempts = 5

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.Status,
		&order.Subtotal,
		&order.ShippingFee,
		&order.Tax,
		&order.TotalAmount,
		&order.ShippingAddressID,
		&order.BillingAddressID,
		&order.ShippedAt,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	return order, err
}

// InsertOrder persists order and its items, assigning a fresh order number.
// A number that collides with an existing order is replaced and the insert
// tried again.
func InsertOrder(ctx context.Context, q database.DBTX, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, order_number, status, subtotal, shipping_fee, tax, total_amount,
			shipping_address_id, billing_address_id, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW(), 1)
		ON CONFLICT (order_number) DO NOTHING
		RETURNING id, created_at, updated_at, version`

	inserted := false
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		number := models.NewOrderNumber(time.Now())
		err := q.QueryRowContext(ctx, query,
			order.UserID, number, order.Status, order.Subtotal, order.ShippingFee, order.Tax, order.TotalAmount,
			order.ShippingAddressID, order.BillingAddressID,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt, &order.Version)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		order.OrderNumber = number
		inserted = true
		break
	}
	if !inserted {
		return fmt.Errorf("create order: no free order number after %d attempts", maxOrderNumberAttempts)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := q.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, subtotal, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			RETURNING id, created_at`,
			item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Subtotal,
		).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}

	return nil
}

// GetOrder loads the order with its items, payments and addresses.
func GetOrder(ctx context.Context, q database.DBTX, id int64) (*models.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := loadOrderDetails(ctx, q, order); err != nil {
		return nil, err
	}
	return order, nil
}

func GetOrderByNumber(ctx context.Context, q database.DBTX, number string) (*models.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by number: %w", err)
	}

	if err := loadOrderDetails(ctx, q, order); err != nil {
		return nil, err
	}
	return order, nil
}

// LockOrder locks the order row for the rest of tx and loads its items.
func LockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	items, err := loadOrderItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func loadOrderDetails(ctx context.Context, q database.DBTX, order *models.Order) error {
	items, err := loadOrderItems(ctx, q, order.ID)
	if err != nil {
		return err
	}
	order.Items = items

	payments, err := ListPaymentsByOrder(ctx, q, order.ID)
	if err != nil {
		return err
	}
	order.Payments = payments

	if order.ShippingAddressID != nil {
		if order.ShippingAddress, err = GetAddress(ctx, q, *order.ShippingAddressID); err != nil {
			return err
		}
	}
	if order.BillingAddressID != nil {
		if order.BillingAddress, err = GetAddress(ctx, q, *order.BillingAddressID); err != nil {
			return err
		}
	}
	return nil
}

func loadOrderItems(ctx context.Context, q database.DBTX, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// UpdateOrderStatus moves order to next when the state table allows it.
// The write is guarded by the version read with the order. Moving to
// SHIPPED stamps shipped_at, which later statuses keep.
func UpdateOrderStatus(ctx context.Context, q database.DBTX, order *models.Order, next models.OrderStatus) error {
	if !order.Status.CanTransitionTo(next) {
		return fmt.Errorf("order %s: %s -> %s: %w", order.OrderNumber, order.Status, next, database.ErrInvalidTransition)
	}

	err := q.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $1,
		    shipped_at = CASE WHEN $4 THEN NOW() ELSE shipped_at END,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $2 AND version = $3
		RETURNING shipped_at, version, updated_at`,
		next, order.ID, order.Version, next == models.OrderStatusShipped).Scan(&order.ShippedAt, &order.Version, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return database.ErrOptimisticLockFailed
		}
		return fmt.Errorf("update order status: %w", err)
	}

	order.Status = next
	return nil
}

func ListOrdersCursor(ctx context.Context, q database.DBTX, userID int64, cursor string, limit int) (*OrderPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = ClampPageSize(limit)

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	orders, err := queryOrders(ctx, q, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &OrderPage{
		Orders:     orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListOrdersByStatus returns up to limit orders in status, oldest first.
func ListOrdersByStatus(ctx context.Context, q database.DBTX, status models.OrderStatus, limit int) ([]models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2`

	return queryOrders(ctx, q, query, status, ClampPageSize(limit))
}

func queryOrders(ctx context.Context, q database.DBTX, query string, args ...any) ([]models.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}
