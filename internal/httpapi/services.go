package httpapi

import (
	"context"

	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/safar/go-shop-settlement/internal/service"
	"github.com/safar/go-shop-settlement/internal/store"
	"github.com/shopspring/decimal"
)

type CartService interface {
	AddItem(ctx context.Context, owner models.CartOwner, productID int64, quantity int, options []models.CartItemOption) (*models.CartView, error)
	UpdateQuantity(ctx context.Context, owner models.CartOwner, itemID int64, quantity int) (*models.CartView, error)
	RemoveItem(ctx context.Context, owner models.CartOwner, itemID int64) (*models.CartView, error)
	RemoveItems(ctx context.Context, owner models.CartOwner, itemIDs []int64) (int, error)
	Clear(ctx context.Context, owner models.CartOwner) error
	Merge(ctx context.Context, userID int64, sessionToken string) (*models.CartView, error)
	Get(ctx context.Context, owner models.CartOwner) (*models.CartView, error)
	ItemCount(ctx context.Context, owner models.CartOwner) (int, error)
	RemoveProductEverywhere(ctx context.Context, productID int64) (int, error)
}

type OrderService interface {
	CreateFromCart(ctx context.Context, userID int64, opts service.CheckoutOptions) (*models.Order, error)
	CreateFromRequest(ctx context.Context, userID int64, req service.OrderRequest) (*models.Order, error)
	Cancel(ctx context.Context, orderID, userID int64) (*models.Order, error)
	Ship(ctx context.Context, orderID int64) (*models.Order, error)
	Get(ctx context.Context, orderID, userID int64) (*models.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	ListByUser(ctx context.Context, userID int64, cursor string, limit int) (*store.OrderPage, error)
	ListByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error)
}

type PaymentService interface {
	CreatePayment(ctx context.Context, userID int64, req service.PaymentRequest) (*models.Payment, error)
	CreateGatewayPayment(ctx context.Context, userID int64, req service.PaymentRequest) (*models.Payment, error)
	CancelPayment(ctx context.Context, transactionID string) (*models.Payment, error)
	RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal) (*models.Payment, error)
	PaymentsByOrder(ctx context.Context, orderID, userID int64) ([]models.Payment, error)
	ListByStatus(ctx context.Context, status models.PaymentStatus, limit int) ([]models.Payment, error)
}

type LedgerService interface {
	Balance(ctx context.Context, userID int64, kind models.LedgerKind) (decimal.Decimal, error)
	Summary(ctx context.Context, userID int64) (*models.BalanceSummary, error)
	Credit(ctx context.Context, userID int64, kind models.LedgerKind, amount decimal.Decimal) (*models.Balance, error)
	TopUp(ctx context.Context, userID int64, amount decimal.Decimal) (*models.Balance, error)
	ChargePointsFromWallet(ctx context.Context, userID int64, amount decimal.Decimal) (*models.BalanceSummary, error)
	RefundPointsToWallet(ctx context.Context, userID int64, amount decimal.Decimal) (*models.BalanceSummary, error)
}
