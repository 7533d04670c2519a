package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-shop-settlement/internal/apperr"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/safar/go-shop-settlement/internal/service"
)

type OrdersHandler struct {
	orders   OrderService
	payments PaymentService
}

func NewOrdersHandler(orders OrderService, payments PaymentService) *OrdersHandler {
	return &OrdersHandler{orders: orders, payments: payments}
}

type CheckoutRequestDTO struct {
	ShippingAddressID *int64 `json:"shipping_address_id"`
	BillingAddressID  *int64 `json:"billing_address_id"`
	PaymentMethod     string `json:"payment_method"`
	Gateway           bool   `json:"gateway"`
}

func (d CheckoutRequestDTO) options() service.CheckoutOptions {
	return service.CheckoutOptions{
		ShippingAddressID: d.ShippingAddressID,
		BillingAddressID:  d.BillingAddressID,
		PaymentMethod:     d.PaymentMethod,
		Gateway:           d.Gateway,
	}
}

type CreateOrderRequestDTO struct {
	Lines []service.OrderLine `json:"lines"`
	CheckoutRequestDTO
}

// CheckoutResponseDTO carries the order even when the immediate payment
// failed, together with the reason.
type CheckoutResponseDTO struct {
	Order        *models.Order `json:"order"`
	PaymentError string        `json:"payment_error,omitempty"`
}

func (h *OrdersHandler) CreateFromCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.orders.CreateFromCart(r.Context(), userID, req.options())
	respondCheckout(w, r, order, err)
}

func (h *OrdersHandler) CreateFromRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateOrderRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.orders.CreateFromRequest(r.Context(), userID, service.OrderRequest{
		Lines:           req.Lines,
		CheckoutOptions: req.options(),
	})
	respondCheckout(w, r, order, err)
}

func respondCheckout(w http.ResponseWriter, r *http.Request, order *models.Order, err error) {
	if err != nil && order == nil {
		handleServiceError(w, r, err)
		return
	}
	resp := CheckoutResponseDTO{Order: order}
	status := http.StatusCreated
	if err != nil {
		resp.PaymentError = err.Error()
		status = statusFor(apperr.KindOf(err))
	}
	respondJSON(w, status, resp)
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	page, err := h.orders.ListByUser(r.Context(), userID, r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.Get(r.Context(), orderID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.Cancel(r.Context(), orderID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) OrderPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}

	payments, err := h.payments.PaymentsByOrder(r.Context(), orderID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, payments)
}

func (h *OrdersHandler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.Ship(r.Context(), orderID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetByNumber(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := models.ParseOrderStatus(r.URL.Query().Get("status"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	orders, err := h.orders.ListByStatus(r.Context(), status, queryLimit(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}
