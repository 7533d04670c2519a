package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/go-shop-settlement/internal/database"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, sku, name, description, price, discount_price, image_url, stock_quantity, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	product := &models.Product{}
	err := row.Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.DiscountPrice,
		&product.ImageURL,
		&product.StockQuantity,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	return product, err
}

type NewProduct struct {
	SKU           string
	Name          string
	Description   string
	Price         decimal.Decimal
	DiscountPrice decimal.NullDecimal
	ImageURL      string
	Stock         int
}

func CreateProduct(ctx context.Context, q database.DBTX, p NewProduct) (*models.Product, error) {
	query := `
		INSERT INTO products (sku, name, description, price, discount_price, image_url, stock_quantity, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	product, err := scanProduct(q.QueryRowContext(ctx, query,
		p.SKU, p.Name, p.Description, p.Price, p.DiscountPrice, p.ImageURL, p.Stock))
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func CreateProductOption(ctx context.Context, q database.DBTX, productID int64, name string) (*models.ProductOption, error) {
	opt := &models.ProductOption{}
	err := q.QueryRowContext(ctx,
		`INSERT INTO product_options (product_id, name) VALUES ($1, $2) RETURNING id, product_id, name`,
		productID, name).Scan(&opt.ID, &opt.ProductID, &opt.Name)
	if err != nil {
		return nil, fmt.Errorf("create product option: %w", err)
	}
	return opt, nil
}

func GetProduct(ctx context.Context, q database.DBTX, id int64) (*models.Product, error) {
	product, err := scanProduct(q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// GetProducts returns the products found among ids, keyed by id. Missing ids
// are simply absent from the map.
func GetProducts(ctx context.Context, q database.DBTX, ids []int64) (map[int64]*models.Product, error) {
	products := make(map[int64]*models.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[product.ID] = product
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

func GetProductOptions(ctx context.Context, q database.DBTX, ids []int64) (map[int64]*models.ProductOption, error) {
	options := make(map[int64]*models.ProductOption, len(ids))
	if len(ids) == 0 {
		return options, nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, product_id, name FROM product_options WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get product options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		opt := &models.ProductOption{}
		if err := rows.Scan(&opt.ID, &opt.ProductID, &opt.Name); err != nil {
			return nil, fmt.Errorf("scan product option: %w", err)
		}
		options[opt.ID] = opt
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return options, nil
}

// LockProduct takes a row lock on the product for the rest of tx so stock
// checks made against it cannot go stale.
func LockProduct(ctx context.Context, tx *sql.Tx, productID int64) (*models.Product, error) {
	product, err := scanProduct(tx.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}

	return product, nil
}

// CheckStock returns ErrInsufficientStock when quantity exceeds what the
// product has on hand.
func CheckStock(product *models.Product, quantity int) error {
	if quantity > product.StockQuantity {
		return fmt.Errorf("%s: need %d, have %d: %w", product.Name, quantity, product.StockQuantity, database.ErrInsufficientStock)
	}
	return nil
}

func DecrementStock(ctx context.Context, q database.DBTX, productID int64, quantity int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

// RestoreStock puts quantity back on the product. It reports false when the
// product no longer exists.
func RestoreStock(ctx context.Context, q database.DBTX, productID int64, quantity int) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity + $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2`,
		quantity, productID)
	if err != nil {
		return false, fmt.Errorf("restore stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func DeleteProduct(ctx context.Context, q database.DBTX, productID int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}
