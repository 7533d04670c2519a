package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"
	"github.com/safar/go-shop-settlement/internal/cache"
	"github.com/safar/go-shop-settlement/internal/database"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/safar/go-shop-settlement/internal/store"
)

// CheckoutOptions carries the optional parts of an order. With
// PaymentMethod set the order is settled right after it is created, from
// the ledger of that name or, with Gateway set, through the external
// processor.
type CheckoutOptions struct {
	ShippingAddressID *int64
	BillingAddressID  *int64
	PaymentMethod     string
	Gateway           bool
}

type OrderLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type OrderRequest struct {
	Lines []OrderLine
	CheckoutOptions
}

type OrderService struct {
	db       *sql.DB
	payments *PaymentService
	cache    cache.CartCache
	pricing  models.Pricing
}

func NewOrderService(db *sql.DB, payments *PaymentService, c cache.CartCache, pricing models.Pricing) *OrderService {
	return &OrderService{db: db, payments: payments, cache: c, pricing: pricing}
}

// CreateFromCart turns the user's active cart into a PENDING order, takes
// the stock for every line and retires the cart, all in one transaction.
func (s *OrderService) CreateFromCart(ctx context.Context, userID int64, opts CheckoutOptions) (*models.Order, error) {
	if err := checkPaymentMethod(opts); err != nil {
		return nil, err
	}

	owner := models.UserOwner(userID)
	var order *models.Order
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := store.EnsureUserExists(ctx, tx, userID); err != nil {
			return err
		}

		cart, err := store.GetActiveCart(ctx, tx, owner, true)
		if err == database.ErrCartNotFound {
			return ErrEmptyCart
		}
		if err != nil {
			return err
		}
		lines := cart.ActiveItems()
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		demand := make(map[int64]int, len(lines))
		for _, line := range lines {
			demand[line.ProductID] += line.Quantity
		}
		products, err := takeStock(ctx, tx, demand)
		if err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			product := products[line.ProductID]
			items = append(items, models.NewOrderItem(product.ID, product.Name, line.UnitPrice(), line.Quantity))
		}

		order, err = s.insertOrder(ctx, tx, userID, items, opts)
		if err != nil {
			return err
		}
		return store.SoftDeleteCart(ctx, tx, cart.ID)
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, owner); err != nil {
			log.Printf("cart cache delete: %v", err)
		}
	}
	log.Printf("order created from cart: number=%s user=%d total=%s", order.OrderNumber, userID, order.TotalAmount)

	return s.settleNow(ctx, order, opts)
}

// CreateFromRequest builds an order straight from product lines, priced
// from the live products.
func (s *OrderService) CreateFromRequest(ctx context.Context, userID int64, req OrderRequest) (*models.Order, error) {
	if len(req.Lines) == 0 {
		return nil, ErrNoOrderLines
	}
	demand := make(map[int64]int, len(req.Lines))
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, ErrNonPositiveQuantity
		}
		demand[line.ProductID] += line.Quantity
	}
	if err := checkPaymentMethod(req.CheckoutOptions); err != nil {
		return nil, err
	}

	var order *models.Order
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := store.EnsureUserExists(ctx, tx, userID); err != nil {
			return err
		}

		products, err := takeStock(ctx, tx, demand)
		if err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(req.Lines))
		for _, line := range req.Lines {
			product := products[line.ProductID]
			items = append(items, models.NewOrderItem(product.ID, product.Name, product.EffectivePrice(), line.Quantity))
		}

		order, err = s.insertOrder(ctx, tx, userID, items, req.CheckoutOptions)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("order created: number=%s user=%d total=%s", order.OrderNumber, userID, order.TotalAmount)
	return s.settleNow(ctx, order, req.CheckoutOptions)
}

func (s *OrderService) insertOrder(ctx context.Context, tx *sql.Tx, userID int64, items []models.OrderItem, opts CheckoutOptions) (*models.Order, error) {
	for _, id := range []*int64{opts.ShippingAddressID, opts.BillingAddressID} {
		if id == nil {
			continue
		}
		if _, err := store.GetUserAddress(ctx, tx, *id, userID); err != nil {
			return nil, err
		}
	}

	totals := s.pricing.ComputeTotals(items)
	order := &models.Order{
		UserID:            userID,
		Status:            models.OrderStatusPending,
		Subtotal:          totals.Subtotal,
		ShippingFee:       totals.ShippingFee,
		Tax:               totals.Tax,
		TotalAmount:       totals.Total,
		ShippingAddressID: opts.ShippingAddressID,
		BillingAddressID:  opts.BillingAddressID,
		Items:             items,
	}
	if err := store.InsertOrder(ctx, tx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// settleNow pays a freshly created order when a method was chosen. A failed
// settlement still returns the stored order, now PAYMENT_FAILED.
func (s *OrderService) settleNow(ctx context.Context, order *models.Order, opts CheckoutOptions) (*models.Order, error) {
	if opts.PaymentMethod == "" {
		return s.reload(ctx, order)
	}

	req := PaymentRequest{
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
		Method:        opts.PaymentMethod,
		TransactionID: uuid.NewString(),
	}
	var payErr error
	if opts.Gateway {
		_, payErr = s.payments.CreateGatewayPayment(ctx, order.UserID, req)
	} else {
		_, payErr = s.payments.CreatePayment(ctx, order.UserID, req)
	}

	reloaded, err := s.reload(ctx, order)
	if err != nil {
		return nil, err
	}
	return reloaded, payErr
}

func (s *OrderService) reload(ctx context.Context, order *models.Order) (*models.Order, error) {
	return store.GetOrder(ctx, s.db, order.ID)
}

// Cancel lets the owner cancel an order that has not been paid or shipped.
// An order that ever shipped stays uncancellable after a refund.
// Stock goes back to every product that still exists and any settled
// remainder of a partially refunded payment is returned.
func (s *OrderService) Cancel(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	calls := externalCalls{}
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return ErrOrderNotOwned
		}
		if order.HasShipped() {
			return fmt.Errorf("order %s: %w", order.OrderNumber, ErrOrderShipped)
		}
		if !order.CustomerCancellable() {
			return fmt.Errorf("order %s is %s: %w", order.OrderNumber, order.Status, ErrNotCancellable)
		}

		if err := s.voidSettledPayments(ctx, tx, calls, order.ID); err != nil {
			return err
		}
		if err := store.UpdateOrderStatus(ctx, tx, order, models.OrderStatusCancelled); err != nil {
			return err
		}
		return restoreInventory(ctx, tx, order.Items)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("order cancelled: id=%d user=%d", orderID, userID)
	return store.GetOrder(ctx, s.db, orderID)
}

func (s *OrderService) voidSettledPayments(ctx context.Context, tx *sql.Tx, calls externalCalls, orderID int64) error {
	payments, err := store.ListPaymentsByOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	for _, listed := range payments {
		if listed.Status != models.PaymentStatusCompleted && listed.Status != models.PaymentStatusPartiallyRefunded {
			continue
		}
		p, err := store.GetPaymentByTransaction(ctx, tx, listed.TransactionID, true)
		if err != nil {
			return err
		}
		if outstanding := p.Outstanding(); outstanding.IsPositive() {
			if err := s.payments.giveBack(ctx, tx, calls, p, outstanding, true); err != nil {
				return err
			}
		}
		if err := store.UpdatePayment(ctx, tx, p, models.PaymentStatusCanceled, p.RefundAmount); err != nil {
			return err
		}
	}
	return nil
}

// Ship marks a paid order as handed to the carrier.
func (s *OrderService) Ship(ctx context.Context, orderID int64) (*models.Order, error) {
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		return store.UpdateOrderStatus(ctx, tx, order, models.OrderStatusShipped)
	})
	if err != nil {
		return nil, err
	}
	return store.GetOrder(ctx, s.db, orderID)
}

func (s *OrderService) Get(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	var order *models.Order
	err := database.WithRetry(ctx, s.db, database.ReadOnlyTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, err = store.GetOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return ErrOrderNotOwned
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) GetByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order *models.Order
	err := database.WithRetry(ctx, s.db, database.ReadOnlyTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, err = store.GetOrderByNumber(ctx, tx, orderNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListByUser pages through the user's orders, newest first.
func (s *OrderService) ListByUser(ctx context.Context, userID int64, cursor string, limit int) (*store.OrderPage, error) {
	return store.ListOrdersCursor(ctx, s.db, userID, cursor, limit)
}

func (s *OrderService) ListByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error) {
	return store.ListOrdersByStatus(ctx, s.db, status, limit)
}

func checkPaymentMethod(opts CheckoutOptions) error {
	if opts.PaymentMethod == "" {
		return nil
	}
	if opts.Gateway {
		_, err := models.ParseGatewayMethod(opts.PaymentMethod)
		return err
	}
	_, err := models.ParsePaymentMethod(opts.PaymentMethod)
	return err
}

// takeStock locks every demanded product in ascending id and takes the
// quantity off its stock.
func takeStock(ctx context.Context, tx *sql.Tx, demand map[int64]int) (map[int64]*models.Product, error) {
	ids := make([]int64, 0, len(demand))
	for id := range demand {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products := make(map[int64]*models.Product, len(ids))
	for _, id := range ids {
		product, err := store.LockProduct(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := store.CheckStock(product, demand[id]); err != nil {
			return nil, err
		}
		if err := store.DecrementStock(ctx, tx, id, demand[id]); err != nil {
			return nil, err
		}
		products[id] = product
	}
	return products, nil
}

// restoreInventory gives each item's quantity back to its product, in
// ascending product id. Items whose product was deleted are skipped.
func restoreInventory(ctx context.Context, tx *sql.Tx, items []models.OrderItem) error {
	returned := make(map[int64]int)
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		returned[*item.ProductID] += item.Quantity
	}

	ids := make([]int64, 0, len(returned))
	for id := range returned {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		ok, err := store.RestoreStock(ctx, tx, id, returned[id])
		if err != nil {
			return err
		}
		if !ok {
			log.Printf("restore stock: product %d no longer exists", id)
		}
	}
	return nil
}
