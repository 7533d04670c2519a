package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/go-shop-settlement/internal/database"
	"github.com/safar/go-shop-settlement/internal/models"
)

func ownerArgs(owner models.CartOwner) (sql.NullInt64, sql.NullString) {
	if owner.IsUser() {
		return sql.NullInt64{Int64: owner.UserID, Valid: true}, sql.NullString{}
	}
	return sql.NullInt64{}, sql.NullString{String: owner.SessionToken, Valid: true}
}

// GetActiveCart loads the owner's active cart with its active lines and
// their options. With lock set the cart row is locked FOR UPDATE, which
// serializes every mutation of that owner's cart.
func GetActiveCart(ctx context.Context, q database.DBTX, owner models.CartOwner, lock bool) (*models.Cart, error) {
	query := `
		SELECT id, user_id, session_token, created_at, updated_at, deleted_at
		FROM carts
		WHERE deleted_at IS NULL AND `
	var arg any
	if owner.IsUser() {
		query += `user_id = $1`
		arg = owner.UserID
	} else {
		query += `session_token = $1`
		arg = owner.SessionToken
	}
	if lock {
		query += ` FOR UPDATE`
	}

	cart := &models.Cart{}
	err := q.QueryRowContext(ctx, query, arg).Scan(
		&cart.ID,
		&cart.UserID,
		&cart.SessionToken,
		&cart.CreatedAt,
		&cart.UpdatedAt,
		&cart.DeletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	items, err := loadActiveCartItems(ctx, q, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items

	return cart, nil
}

func loadActiveCartItems(ctx context.Context, q database.DBTX, cartID int64) ([]models.CartItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, cart_id, product_id, quantity, price_at_addition, added_at, deleted_at
		FROM cart_items
		WHERE cart_id = $1 AND deleted_at IS NULL
		ORDER BY id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	index := make(map[int64]int)
	for rows.Next() {
		var item models.CartItem
		err := rows.Scan(
			&item.ID,
			&item.CartID,
			&item.ProductID,
			&item.Quantity,
			&item.PriceAtAddition,
			&item.AddedAt,
			&item.DeletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		index[item.ID] = len(items)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	if len(items) == 0 {
		return items, nil
	}

	optRows, err := q.QueryContext(ctx, `
		SELECT o.cart_item_id, o.option_id, o.option_value
		FROM cart_item_options o
		JOIN cart_items i ON i.id = o.cart_item_id
		WHERE i.cart_id = $1 AND i.deleted_at IS NULL
		ORDER BY o.cart_item_id, o.option_id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("get cart item options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var itemID int64
		var opt models.CartItemOption
		if err := optRows.Scan(&itemID, &opt.OptionID, &opt.Value); err != nil {
			return nil, fmt.Errorf("scan cart item option: %w", err)
		}
		if i, ok := index[itemID]; ok {
			items[i].Options = append(items[i].Options, opt)
		}
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// GetOrCreateCart returns the owner's active cart locked for the rest of tx,
// creating it on first access. Concurrent creators converge on one row
// through the partial unique indexes on active carts.
func GetOrCreateCart(ctx context.Context, tx *sql.Tx, owner models.CartOwner) (*models.Cart, error) {
	cart, err := GetActiveCart(ctx, tx, owner, true)
	if err == nil {
		return cart, nil
	}
	if err != database.ErrCartNotFound {
		return nil, err
	}

	userID, session := ownerArgs(owner)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO carts (user_id, session_token, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT DO NOTHING`, userID, session)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	return GetActiveCart(ctx, tx, owner, true)
}

// InsertCartItem stores a new line and its options, filling in item.ID.
func InsertCartItem(ctx context.Context, q database.DBTX, item *models.CartItem) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, price_at_addition, added_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, added_at`,
		item.CartID, item.ProductID, item.Quantity, item.PriceAtAddition).Scan(&item.ID, &item.AddedAt)
	if err != nil {
		return fmt.Errorf("create cart item: %w", err)
	}

	for _, opt := range item.Options {
		if err := UpsertCartItemOption(ctx, q, item.ID, opt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertCartItemOption replaces the value when the item already carries
// the option.
func UpsertCartItemOption(ctx context.Context, q database.DBTX, itemID int64, opt models.CartItemOption) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO cart_item_options (cart_item_id, option_id, option_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_item_id, option_id) DO UPDATE SET option_value = EXCLUDED.option_value`,
		itemID, opt.OptionID, opt.Value)
	if err != nil {
		return fmt.Errorf("upsert cart item option: %w", err)
	}
	return nil
}

func UpdateCartItem(ctx context.Context, q database.DBTX, item *models.CartItem) error {
	result, err := q.ExecContext(ctx, `
		UPDATE cart_items
		SET quantity = $1, updated_at = NOW()
		WHERE id = $2 AND cart_id = $3 AND deleted_at IS NULL`,
		item.Quantity, item.ID, item.CartID)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return requireRow(result, database.ErrCartItemNotFound)
}

// SoftDeleteCartItems marks the given lines of cartID deleted and returns
// how many were active. Ids belonging to other carts are never touched.
func SoftDeleteCartItems(ctx context.Context, q database.DBTX, cartID int64, itemIDs []int64) (int, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	result, err := q.ExecContext(ctx, `
		UPDATE cart_items
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE cart_id = $1 AND id = ANY($2) AND deleted_at IS NULL`,
		cartID, pq.Array(itemIDs))
	if err != nil {
		return 0, fmt.Errorf("soft delete cart items: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(n), nil
}

// SoftDeleteCart retires the cart together with any line still active.
func SoftDeleteCart(ctx context.Context, q database.DBTX, cartID int64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE cart_items
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE cart_id = $1 AND deleted_at IS NULL`, cartID)
	if err != nil {
		return fmt.Errorf("soft delete cart items: %w", err)
	}

	result, err := q.ExecContext(ctx, `
		UPDATE carts
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, cartID)
	if err != nil {
		return fmt.Errorf("soft delete cart: %w", err)
	}
	return requireRow(result, database.ErrCartNotFound)
}

func TouchCart(ctx context.Context, q database.DBTX, cartID int64) error {
	_, err := q.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

// CartOwnersWithProduct lists the owners whose active carts hold productID.
func CartOwnersWithProduct(ctx context.Context, q database.DBTX, productID int64) ([]models.CartOwner, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT c.user_id, c.session_token
		FROM carts c
		JOIN cart_items i ON i.cart_id = c.id
		WHERE i.product_id = $1 AND i.deleted_at IS NULL AND c.deleted_at IS NULL`, productID)
	if err != nil {
		return nil, fmt.Errorf("list cart owners: %w", err)
	}
	defer rows.Close()

	var owners []models.CartOwner
	for rows.Next() {
		var userID sql.NullInt64
		var session sql.NullString
		if err := rows.Scan(&userID, &session); err != nil {
			return nil, fmt.Errorf("scan cart owner: %w", err)
		}
		owners = append(owners, models.CartOwner{UserID: userID.Int64, SessionToken: session.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return owners, nil
}

// SoftDeleteCartItemsByProduct withdraws productID from every active cart.
func SoftDeleteCartItemsByProduct(ctx context.Context, q database.DBTX, productID int64) (int, error) {
	result, err := q.ExecContext(ctx, `
		UPDATE cart_items
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE product_id = $1 AND deleted_at IS NULL`, productID)
	if err != nil {
		return 0, fmt.Errorf("soft delete cart items by product: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(n), nil
}

func requireRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
