package handler

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-fulfillment/internal/domain/fault"
)

// AddToCart handles POST /api/cart/add.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var (
		userID, itemID string
		qty            int
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			userID, err = d.Str()
		case "itemId":
			itemID, err = d.Str()
		case "quantity":
			qty, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if userID == "" || itemID == "" {
		writeError(w, r, fault.Invalid("userId and itemId are required"))
		return
	}

	line, err := h.carts.Add(r.Context(), userID, itemID, qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeLine(e, line) })
}

// GetCart handles GET /api/cart/{userId}.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	seq, err := h.carts.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	lines := slices.Collect(seq)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, userID, lines) })
}

// ClearCart handles DELETE /api/cart/{userId}/clear.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), chi.URLParam(r, "userId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Cart cleared successfully")
}

// RemoveCartLine handles DELETE /api/cart/item/{lineId}.
func (h *Handler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.RemoveLine(r.Context(), chi.URLParam(r, "lineId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Item removed from cart")
}
