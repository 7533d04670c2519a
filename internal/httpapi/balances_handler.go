package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/shopspring/decimal"
)

type BalancesHandler struct {
	ledgers LedgerService
}

func NewBalancesHandler(ledgers LedgerService) *BalancesHandler {
	return &BalancesHandler{ledgers: ledgers}
}

type AmountRequestDTO struct {
	Amount decimal.Decimal `json:"amount"`
}

type BalanceResponseDTO struct {
	Kind    models.LedgerKind `json:"kind"`
	Balance decimal.Decimal   `json:"balance"`
}

func (h *BalancesHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	summary, err := h.ledgers.Summary(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *BalancesHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	kind, err := models.ParseLedgerKind(chi.URLParam(r, "kind"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	balance, err := h.ledgers.Balance(r.Context(), userID, kind)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, BalanceResponseDTO{Kind: kind, Balance: balance})
}

func (h *BalancesHandler) Credit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	kind, err := models.ParseLedgerKind(chi.URLParam(r, "kind"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	var req AmountRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	balance, err := h.ledgers.Credit(r.Context(), userID, kind, req.Amount)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

func (h *BalancesHandler) TopUpCredit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req AmountRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	balance, err := h.ledgers.TopUp(r.Context(), userID, req.Amount)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

func (h *BalancesHandler) ChargePoints(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req AmountRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	summary, err := h.ledgers.ChargePointsFromWallet(r.Context(), userID, req.Amount)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *BalancesHandler) RefundPoints(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req AmountRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	summary, err := h.ledgers.RefundPointsToWallet(r.Context(), userID, req.Amount)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}
