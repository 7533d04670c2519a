package httpapi

import (
	"net/http"

	"github.com/safar/go-shop-settlement/internal/models"
)

type CartHandler struct {
	carts CartService
}

func NewCartHandler(carts CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

type AddItemRequestDTO struct {
	ProductID int64                   `json:"product_id"`
	Quantity  int                     `json:"quantity"`
	Options   []models.CartItemOption `json:"options"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type RemoveItemsRequestDTO struct {
	ItemIDs []int64 `json:"item_ids"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	view, err := h.carts.Get(r.Context(), owner)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *CartHandler) Count(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	count, err := h.carts.ItemCount(r.Context(), owner)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	view, err := h.carts.AddItem(r.Context(), owner, req.ProductID, req.Quantity, req.Options)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.carts.UpdateQuantity(r.Context(), owner, itemID, req.Quantity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}

	view, err := h.carts.RemoveItem(r.Context(), owner, itemID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *CartHandler) RemoveItems(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req RemoveItemsRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	removed, err := h.carts.RemoveItems(r.Context(), owner, req.ItemIDs)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	if err := h.carts.Clear(r.Context(), owner); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Merge folds the anonymous session cart into the signed-in user's cart.
// Both identity headers are required.
func (h *CartHandler) Merge(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if id.UserID == 0 || id.SessionToken == "" {
		respondError(w, http.StatusBadRequest, "invalid_argument", "merge needs "+HeaderUserID+" and "+HeaderSessionToken)
		return
	}

	view, err := h.carts.Merge(r.Context(), id.UserID, id.SessionToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// WithdrawProduct removes a product from every active cart.
func (h *CartHandler) WithdrawProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "productID")
	if !ok {
		return
	}

	removed, err := h.carts.RemoveProductEverywhere(r.Context(), productID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
