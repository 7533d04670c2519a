package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Services struct {
	Carts    CartService
	Orders   OrderService
	Payments PaymentService
	Ledgers  LedgerService
}

// NewRouter mounts the API under /api/v1. Routes under /admin are meant to
// be exposed to back-office callers only; payment cancels and refunds act on
// any transaction and live there.
func NewRouter(svc Services, requestTimeout time.Duration) http.Handler {
	cart := NewCartHandler(svc.Carts)
	orders := NewOrdersHandler(svc.Orders, svc.Payments)
	payments := NewPaymentsHandler(svc.Payments)
	balances := NewBalancesHandler(svc.Ledgers)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(IdentityMiddleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cart.GetCart)
			r.Delete("/", cart.ClearCart)
			r.Get("/count", cart.Count)
			r.Post("/merge", cart.Merge)
			r.Post("/items", cart.AddItem)
			r.Post("/items/remove", cart.RemoveItems)
			r.Patch("/items/{itemID}", cart.UpdateQuantity)
			r.Delete("/items/{itemID}", cart.RemoveItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orders.ListOrders)
			r.Post("/", orders.CreateFromRequest)
			r.Post("/checkout", orders.CreateFromCart)
			r.Get("/{orderID}", orders.GetOrder)
			r.Post("/{orderID}/cancel", orders.CancelOrder)
			r.Get("/{orderID}/payments", orders.OrderPayments)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", payments.CreatePayment)
			r.Post("/gateway", payments.CreateGatewayPayment)
		})

		r.Route("/balances", func(r chi.Router) {
			r.Get("/", balances.Summary)
			r.Post("/credit-line/top-up", balances.TopUpCredit)
			r.Post("/points/charge", balances.ChargePoints)
			r.Post("/points/refund", balances.RefundPoints)
			r.Get("/{kind}", balances.Balance)
			r.Post("/{kind}/credit", balances.Credit)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/orders", orders.ListByStatus)
			r.Get("/orders/by-number/{orderNumber}", orders.GetByNumber)
			r.Post("/orders/{orderID}/ship", orders.ShipOrder)
			r.Get("/payments", payments.ListByStatus)
			r.Post("/payments/{transactionID}/cancel", payments.CancelPayment)
			r.Post("/payments/{transactionID}/refund", payments.RefundPayment)
			r.Delete("/products/{productID}/cart-items", cart.WithdrawProduct)
		})
	})

	return r
}
