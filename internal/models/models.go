package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Product struct {
	ID            int64               `json:"id"`
	SKU           string              `json:"sku"`
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	Price         decimal.Decimal     `json:"price"`
	DiscountPrice decimal.NullDecimal `json:"discount_price"`
	ImageURL      string              `json:"image_url,omitempty"`
	StockQuantity int                 `json:"stock_quantity"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Version       int                 `json:"version"`
}

type ProductOption struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
}

type Address struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	AddressType string    `json:"address_type"`
	Street      string    `json:"street"`
	City        string    `json:"city"`
	State       string    `json:"state,omitempty"`
	PostalCode  string    `json:"postal_code"`
	Country     string    `json:"country"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	AddressTypeShipping = "SHIPPING"
	AddressTypeBilling  = "BILLING"
)

// EffectivePrice is the discounted price when one is set.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice.Valid {
		return p.DiscountPrice.Decimal
	}
	return p.Price
}
