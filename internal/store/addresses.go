package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-shop-settlement/internal/database"
	"github.com/safar/go-shop-settlement/internal/models"
)

const addressColumns = `id, user_id, address_type, street, city, state, postal_code, country, is_default, created_at`

func scanAddress(row rowScanner) (*models.Address, error) {
	a := &models.Address{}
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.AddressType,
		&a.Street,
		&a.City,
		&a.State,
		&a.PostalCode,
		&a.Country,
		&a.IsDefault,
		&a.CreatedAt,
	)
	return a, err
}

// CreateAddress exists for seeding and tests; the address book itself is
// managed elsewhere.
func CreateAddress(ctx context.Context, q database.DBTX, a models.Address) (*models.Address, error) {
	addressType := a.AddressType
	if addressType == "" {
		addressType = models.AddressTypeShipping
	}

	created, err := scanAddress(q.QueryRowContext(ctx, `
		INSERT INTO addresses (user_id, address_type, street, city, state, postal_code, country, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING `+addressColumns,
		a.UserID, addressType, a.Street, a.City, a.State, a.PostalCode, a.Country, a.IsDefault))
	if err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}
	return created, nil
}

// GetUserAddress returns the address only when it belongs to userID.
func GetUserAddress(ctx context.Context, q database.DBTX, id, userID int64) (*models.Address, error) {
	a, err := scanAddress(q.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}

func GetAddress(ctx context.Context, q database.DBTX, id int64) (*models.Address, error) {
	a, err := scanAddress(q.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}
