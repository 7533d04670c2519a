package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/safar/go-shop-settlement/internal/apperr"
	"github.com/safar/go-shop-settlement/internal/cache"
	"github.com/safar/go-shop-settlement/internal/database"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/safar/go-shop-settlement/internal/store"
)

var (
	ErrNonPositiveQuantity = fmt.Errorf("quantity must be at least 1: %w", apperr.ErrInvalidArgument)
	ErrMergeOwnersRequired = fmt.Errorf("merge needs both user id and session token: %w", apperr.ErrInvalidArgument)
)

// CartService mutates carts. Every mutation locks the owner's cart row
// first and product rows second, in ascending product id.
type CartService struct {
	db    *sql.DB
	cache cache.CartCache
}

// NewCartService builds the service; c may be nil to run without a cache.
func NewCartService(db *sql.DB, c cache.CartCache) *CartService {
	return &CartService{db: db, cache: c}
}

func (s *CartService) AddItem(ctx context.Context, owner models.CartOwner, productID int64, quantity int, options []models.CartItemOption) (*models.CartView, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, ErrNonPositiveQuantity
	}
	options = models.NormalizeOptions(options)

	var view *models.CartView
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := s.openCart(ctx, tx, owner)
		if err != nil {
			return err
		}

		product, err := store.LockProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if err := checkOptions(ctx, tx, productID, options); err != nil {
			return err
		}

		if line, ok := cart.FindLine(productID, options); ok {
			newQuantity := line.Quantity + quantity
			if err := store.CheckStock(product, newQuantity); err != nil {
				return err
			}
			line.Quantity = newQuantity
			if err := store.UpdateCartItem(ctx, tx, line); err != nil {
				return err
			}
		} else {
			if err := store.CheckStock(product, quantity); err != nil {
				return err
			}
			item := &models.CartItem{
				CartID:          cart.ID,
				ProductID:       productID,
				Quantity:        quantity,
				PriceAtAddition: product.DiscountPrice,
				Options:         options,
			}
			if err := store.InsertCartItem(ctx, tx, item); err != nil {
				return err
			}
		}

		view, err = s.touchAndRender(ctx, tx, cart.ID, owner)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, owner)
	return view, nil
}

// UpdateQuantity sets an absolute quantity; zero or less removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, owner models.CartOwner, itemID int64, quantity int) (*models.CartView, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	var view *models.CartView
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := s.openCart(ctx, tx, owner)
		if err != nil {
			return err
		}
		item, ok := cart.FindItem(itemID)
		if !ok {
			return database.ErrCartItemNotFound
		}

		if quantity <= 0 {
			if _, err := store.SoftDeleteCartItems(ctx, tx, cart.ID, []int64{itemID}); err != nil {
				return err
			}
		} else {
			product, err := store.LockProduct(ctx, tx, item.ProductID)
			if err != nil {
				return err
			}
			if err := store.CheckStock(product, quantity); err != nil {
				return err
			}
			item.Quantity = quantity
			if err := store.UpdateCartItem(ctx, tx, item); err != nil {
				return err
			}
		}

		view, err = s.touchAndRender(ctx, tx, cart.ID, owner)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, owner)
	return view, nil
}

func (s *CartService) RemoveItem(ctx context.Context, owner models.CartOwner, itemID int64) (*models.CartView, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	var view *models.CartView
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := store.GetActiveCart(ctx, tx, owner, true)
		if err == database.ErrCartNotFound {
			return database.ErrCartItemNotFound
		}
		if err != nil {
			return err
		}

		removed, err := store.SoftDeleteCartItems(ctx, tx, cart.ID, []int64{itemID})
		if err != nil {
			return err
		}
		if removed == 0 {
			return database.ErrCartItemNotFound
		}

		view, err = s.touchAndRender(ctx, tx, cart.ID, owner)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, owner)
	return view, nil
}

// RemoveItems soft-deletes the listed lines that belong to the owner's cart
// and reports how many were removed. Unknown ids are ignored.
func (s *CartService) RemoveItems(ctx context.Context, owner models.CartOwner, itemIDs []int64) (int, error) {
	if err := owner.Validate(); err != nil {
		return 0, err
	}

	var removed int
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := store.GetActiveCart(ctx, tx, owner, true)
		if err == database.ErrCartNotFound {
			removed = 0
			return nil
		}
		if err != nil {
			return err
		}

		removed, err = store.SoftDeleteCartItems(ctx, tx, cart.ID, itemIDs)
		if err != nil {
			return err
		}
		return store.TouchCart(ctx, tx, cart.ID)
	})
	if err != nil {
		return 0, err
	}

	if removed < len(itemIDs) {
		log.Printf("cart %s: %d of %d requested items were not in the cart", owner.Key(), len(itemIDs)-removed, len(itemIDs))
	}
	s.invalidate(ctx, owner)
	return removed, nil
}

// Clear retires the owner's cart and all of its lines.
func (s *CartService) Clear(ctx context.Context, owner models.CartOwner) error {
	if err := owner.Validate(); err != nil {
		return err
	}

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := store.GetActiveCart(ctx, tx, owner, true)
		if err == database.ErrCartNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return store.SoftDeleteCart(ctx, tx, cart.ID)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, owner)
	return nil
}

// Merge folds the session's cart into the user's. Lines present in both
// carts have their quantities summed and re-checked against stock; a single
// failing line aborts the whole merge. The session cart is retired.
func (s *CartService) Merge(ctx context.Context, userID int64, sessionToken string) (*models.CartView, error) {
	if userID <= 0 || sessionToken == "" {
		return nil, ErrMergeOwnersRequired
	}
	userOwner := models.UserOwner(userID)
	sessionOwner := models.SessionOwner(sessionToken)

	var view *models.CartView
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		userCart, err := s.openCart(ctx, tx, userOwner)
		if err != nil {
			return err
		}

		sessionCart, err := store.GetActiveCart(ctx, tx, sessionOwner, true)
		if err != nil && err != database.ErrCartNotFound {
			return err
		}
		if sessionCart == nil {
			view, err = renderCart(ctx, tx, userCart)
			return err
		}

		lines := sessionCart.ActiveItems()
		if err := mergeLines(ctx, tx, userCart, lines); err != nil {
			return err
		}
		if err := store.SoftDeleteCart(ctx, tx, sessionCart.ID); err != nil {
			return err
		}
		if len(lines) == 0 {
			view, err = renderCart(ctx, tx, userCart)
			return err
		}

		view, err = s.touchAndRender(ctx, tx, userCart.ID, userOwner)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userOwner, sessionOwner)
	return view, nil
}

func mergeLines(ctx context.Context, tx *sql.Tx, into *models.Cart, lines []models.CartItem) error {
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	for _, line := range lines {
		existing, ok := into.FindLine(line.ProductID, line.Options)
		if !ok {
			copied := &models.CartItem{
				CartID:          into.ID,
				ProductID:       line.ProductID,
				Quantity:        line.Quantity,
				PriceAtAddition: line.PriceAtAddition,
				Options:         line.Options,
			}
			if err := store.InsertCartItem(ctx, tx, copied); err != nil {
				return err
			}
			into.Items = append(into.Items, *copied)
			continue
		}

		product, err := store.LockProduct(ctx, tx, line.ProductID)
		if err != nil {
			return err
		}
		summed := existing.Quantity + line.Quantity
		if err := store.CheckStock(product, summed); err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		existing.Quantity = summed
		if err := store.UpdateCartItem(ctx, tx, existing); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the owner's cart snapshot. An owner without a cart gets an
// empty snapshot.
func (s *CartService) Get(ctx context.Context, owner models.CartOwner) (*models.CartView, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	cacheable := false
	var stamp int64
	if s.cache != nil {
		view, err := s.cache.Get(ctx, owner)
		if err == nil {
			return view, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cart cache get %s: %v", owner.Key(), err)
		}
		// Taken before the read so a write committed meanwhile voids the fill.
		if stamp, err = s.cache.Stamp(ctx, owner); err != nil {
			log.Printf("cart cache stamp %s: %v", owner.Key(), err)
		} else {
			cacheable = true
		}
	}

	var view *models.CartView
	err := database.WithRetry(ctx, s.db, database.ReadOnlyTxOptions(), func(tx *sql.Tx) error {
		cart, err := store.GetActiveCart(ctx, tx, owner, false)
		if err == database.ErrCartNotFound {
			view = emptyView(owner)
			return nil
		}
		if err != nil {
			return err
		}
		view, err = renderCart(ctx, tx, cart)
		return err
	})
	if err != nil {
		return nil, err
	}

	if cacheable && view.ID != 0 {
		if err := s.cache.Set(ctx, owner, view, stamp); err != nil {
			log.Printf("cart cache set %s: %v", owner.Key(), err)
		}
	}
	return view, nil
}

// ItemCount is the number of active lines in the owner's cart.
func (s *CartService) ItemCount(ctx context.Context, owner models.CartOwner) (int, error) {
	view, err := s.Get(ctx, owner)
	if err != nil {
		return 0, err
	}
	return view.TotalItemCount, nil
}

// RemoveProductEverywhere withdraws a product from every active cart.
func (s *CartService) RemoveProductEverywhere(ctx context.Context, productID int64) (int, error) {
	var (
		removed int
		owners  []models.CartOwner
	)
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		owners, err = store.CartOwnersWithProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		removed, err = store.SoftDeleteCartItemsByProduct(ctx, tx, productID)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.invalidate(ctx, owners...)
	return removed, nil
}

// openCart returns the owner's locked cart, creating it when needed. A user
// owner must exist.
func (s *CartService) openCart(ctx context.Context, tx *sql.Tx, owner models.CartOwner) (*models.Cart, error) {
	if owner.IsUser() {
		if err := store.EnsureUserExists(ctx, tx, owner.UserID); err != nil {
			return nil, err
		}
	}
	return store.GetOrCreateCart(ctx, tx, owner)
}

func (s *CartService) touchAndRender(ctx context.Context, tx *sql.Tx, cartID int64, owner models.CartOwner) (*models.CartView, error) {
	if err := store.TouchCart(ctx, tx, cartID); err != nil {
		return nil, err
	}
	cart, err := store.GetActiveCart(ctx, tx, owner, false)
	if err != nil {
		return nil, err
	}
	return renderCart(ctx, tx, cart)
}

func (s *CartService) invalidate(ctx context.Context, owners ...models.CartOwner) {
	if s.cache == nil || len(owners) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, owners...); err != nil {
		log.Printf("cart cache delete: %v", err)
	}
}

func checkOptions(ctx context.Context, q database.DBTX, productID int64, options []models.CartItemOption) error {
	if len(options) == 0 {
		return nil
	}
	ids := make([]int64, len(options))
	for i, opt := range options {
		ids[i] = opt.OptionID
	}
	known, err := store.GetProductOptions(ctx, q, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		opt, ok := known[id]
		if !ok || opt.ProductID != productID {
			return fmt.Errorf("option %d for product %d: %w", id, productID, database.ErrProductOptionNotFound)
		}
	}
	return nil
}

func emptyView(owner models.CartOwner) *models.CartView {
	view := &models.CartView{Items: []models.CartItemView{}}
	if owner.IsUser() {
		id := owner.UserID
		view.UserID = &id
	} else {
		token := owner.SessionToken
		view.SessionToken = &token
	}
	return view
}

func renderCart(ctx context.Context, q database.DBTX, cart *models.Cart) (*models.CartView, error) {
	items := cart.ActiveItems()

	productIDs := make([]int64, 0, len(items))
	var optionIDs []int64
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
		for _, opt := range item.Options {
			optionIDs = append(optionIDs, opt.OptionID)
		}
	}

	products, err := store.GetProducts(ctx, q, productIDs)
	if err != nil {
		return nil, err
	}
	options, err := store.GetProductOptions(ctx, q, optionIDs)
	if err != nil {
		return nil, err
	}

	view := &models.CartView{
		ID:           cart.ID,
		UserID:       cart.UserID,
		SessionToken: cart.SessionToken,
		Items:        make([]models.CartItemView, 0, len(items)),
	}
	for _, item := range items {
		line := models.CartItemView{
			ID:                  item.ID,
			ProductID:           item.ProductID,
			DiscountedUnitPrice: item.PriceAtAddition,
			Quantity:            item.Quantity,
			Options:             make([]models.CartItemOptionView, 0, len(item.Options)),
		}
		if p, ok := products[item.ProductID]; ok {
			line.ProductName = p.Name
			line.UnitPrice = p.Price
			line.ImageURL = p.ImageURL
		}
		for _, opt := range item.Options {
			ov := models.CartItemOptionView{OptionID: opt.OptionID, Value: opt.Value}
			if po, ok := options[opt.OptionID]; ok {
				ov.Name = po.Name
			}
			line.Options = append(line.Options, ov)
		}
		view.Items = append(view.Items, line)
	}
	view.TotalItemCount = len(view.Items)

	return view, nil
}
