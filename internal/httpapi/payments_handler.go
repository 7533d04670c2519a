package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-shop-settlement/internal/apperr"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/safar/go-shop-settlement/internal/service"
	"github.com/shopspring/decimal"
)

type PaymentsHandler struct {
	payments PaymentService
}

func NewPaymentsHandler(payments PaymentService) *PaymentsHandler {
	return &PaymentsHandler{payments: payments}
}

type CreatePaymentRequestDTO struct {
	OrderID       int64           `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	TransactionID string          `json:"transaction_id"`
}

func (d CreatePaymentRequestDTO) request() service.PaymentRequest {
	return service.PaymentRequest{
		OrderID:       d.OrderID,
		Amount:        d.Amount,
		Method:        d.Method,
		TransactionID: d.TransactionID,
	}
}

type RefundRequestDTO struct {
	Amount decimal.Decimal `json:"amount"`
}

// PaymentResponseDTO reports a settlement attempt. A refused payment is
// still returned, with the reason.
type PaymentResponseDTO struct {
	Payment *models.Payment `json:"payment"`
	Error   string          `json:"error,omitempty"`
}

func (h *PaymentsHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.payments.CreatePayment)
}

func (h *PaymentsHandler) CreateGatewayPayment(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.payments.CreateGatewayPayment)
}

type createFunc func(ctx context.Context, userID int64, req service.PaymentRequest) (*models.Payment, error)

func (h *PaymentsHandler) create(w http.ResponseWriter, r *http.Request, create createFunc) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreatePaymentRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	payment, err := create(r.Context(), userID, req.request())
	if err != nil && payment == nil {
		handleServiceError(w, r, err)
		return
	}
	resp := PaymentResponseDTO{Payment: payment}
	status := http.StatusCreated
	if err != nil {
		resp.Error = err.Error()
		status = statusFor(apperr.KindOf(err))
	}
	respondJSON(w, status, resp)
}

func (h *PaymentsHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.payments.CancelPayment(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, payment)
}

func (h *PaymentsHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	var req RefundRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	payment, err := h.payments.RefundPayment(r.Context(), chi.URLParam(r, "transactionID"), req.Amount)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, payment)
}

func (h *PaymentsHandler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := models.ParsePaymentStatus(r.URL.Query().Get("status"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	payments, err := h.payments.ListByStatus(r.Context(), status, queryLimit(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, payments)
}
