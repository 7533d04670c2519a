package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/safar/go-shop-settlement/internal/apperr"
	"github.com/shopspring/decimal"
)

var ErrOwnerRequired = fmt.Errorf("exactly one of user id or session token is required: %w", apperr.ErrInvalidArgument)

// CartOwner identifies who a cart belongs to: a signed-in user or an
// anonymous session, never both.
type CartOwner struct {
	UserID       int64
	SessionToken string
}

func UserOwner(userID int64) CartOwner { return CartOwner{UserID: userID} }

func SessionOwner(token string) CartOwner { return CartOwner{SessionToken: token} }

func (o CartOwner) Validate() error {
	hasUser := o.UserID > 0
	hasSession := strings.TrimSpace(o.SessionToken) != ""
	if hasUser == hasSession {
		return ErrOwnerRequired
	}
	return nil
}

func (o CartOwner) IsUser() bool { return o.UserID > 0 }

// Key is a stable string form used for cache keys and log lines.
func (o CartOwner) Key() string {
	if o.IsUser() {
		return fmt.Sprintf("user:%d", o.UserID)
	}
	return "session:" + o.SessionToken
}

type Cart struct {
	ID           int64      `json:"id"`
	UserID       *int64     `json:"user_id"`
	SessionToken *string    `json:"session_token"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"-"`
	Items        []CartItem `json:"items"`
}

func (c *Cart) IsActive() bool { return c.DeletedAt == nil }

// ActiveItems returns the lines that have not been soft-deleted.
func (c *Cart) ActiveItems() []CartItem {
	items := make([]CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		if item.DeletedAt == nil {
			items = append(items, item)
		}
	}
	return items
}

// FindLine returns the active line for productID carrying exactly options.
func (c *Cart) FindLine(productID int64, options []CartItemOption) (*CartItem, bool) {
	for i := range c.Items {
		item := &c.Items[i]
		if item.DeletedAt != nil || item.ProductID != productID {
			continue
		}
		if OptionsMatch(item.Options, options) {
			return item, true
		}
	}
	return nil, false
}

func (c *Cart) FindItem(itemID int64) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ID == itemID && c.Items[i].DeletedAt == nil {
			return &c.Items[i], true
		}
	}
	return nil, false
}

type CartItem struct {
	ID              int64               `json:"id"`
	CartID          int64               `json:"cart_id"`
	ProductID       int64               `json:"product_id"`
	Quantity        int                 `json:"quantity"`
	PriceAtAddition decimal.NullDecimal `json:"price_at_addition"`
	AddedAt         time.Time           `json:"added_at"`
	DeletedAt       *time.Time          `json:"-"`
	Options         []CartItemOption    `json:"options"`
}

// UnitPrice is the snapshot price, or zero when none was captured.
func (i CartItem) UnitPrice() decimal.Decimal {
	if i.PriceAtAddition.Valid {
		return i.PriceAtAddition.Decimal
	}
	return decimal.Zero
}

type CartItemOption struct {
	OptionID int64  `json:"option_id"`
	Value    string `json:"value"`
}

// NormalizeOptions collapses repeated option ids, keeping the last value
// submitted, and returns the options ordered by option id.
func NormalizeOptions(options []CartItemOption) []CartItemOption {
	if len(options) == 0 {
		return nil
	}
	byID := make(map[int64]string, len(options))
	for _, opt := range options {
		byID[opt.OptionID] = opt.Value
	}
	out := make([]CartItemOption, 0, len(byID))
	for id, value := range byID {
		out = append(out, CartItemOption{OptionID: id, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OptionID < out[j].OptionID })
	return out
}

// OptionsMatch compares two option lists as unordered sets of
// (option id, value) pairs of equal size.
func OptionsMatch(a, b []CartItemOption) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[CartItemOption]int, len(a))
	for _, opt := range a {
		seen[opt]++
	}
	for _, opt := range b {
		if seen[opt] == 0 {
			return false
		}
		seen[opt]--
	}
	return true
}

// CartView is the snapshot handed to callers.
type CartView struct {
	ID             int64          `json:"id"`
	UserID         *int64         `json:"user_id"`
	SessionToken   *string        `json:"session_token"`
	Items          []CartItemView `json:"items"`
	TotalItemCount int            `json:"total_item_count"`
}

type CartItemView struct {
	ID                  int64                `json:"id"`
	ProductID           int64                `json:"product_id"`
	ProductName         string               `json:"product_name"`
	UnitPrice           decimal.Decimal      `json:"unit_price"`
	DiscountedUnitPrice decimal.NullDecimal  `json:"discounted_unit_price"`
	ImageURL            string               `json:"image_url,omitempty"`
	Quantity            int                  `json:"quantity"`
	Options             []CartItemOptionView `json:"options"`
}

type CartItemOptionView struct {
	OptionID int64  `json:"option_id"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}
