package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-fulfillment/internal/domain/catalog"
)

// ListItems handles GET /api/items.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItems(e, items) })
}

// SearchItems handles GET /api/items/search?q=.
func (h *Handler) SearchItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItems(e, items) })
}

// GetItem handles GET /api/items/{id}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItem(e, item) })
}

// CreateItem handles POST /api/items.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var item catalog.Item
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			item.ID, err = d.Str()
		case "name":
			item.Name, err = d.Str()
		case "description":
			item.Description, err = d.Str()
		case "price":
			item.Price, err = decodeDecimal(d)
		case "stock":
			item.Stock, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.catalog.Create(r.Context(), item)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeItem(e, created) })
}

// UpdateItem handles PUT /api/items/{id}. Only the fields present in the
// body change; stock is adjusted through restock and orders.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var u catalog.Update
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			v, err := d.Str()
			u.Name = &v
			return err
		case "description":
			v, err := d.Str()
			u.Description = &v
			return err
		case "price":
			v, err := decodeDecimal(d)
			u.Price = &v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItem(e, item) })
}

// DeleteItem handles DELETE /api/items/{id}.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Item deleted successfully")
}

// RestockItem handles POST /api/items/{id}/restock.
func (h *Handler) RestockItem(w http.ResponseWriter, r *http.Request) {
	var qty int
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key == "quantity" {
			v, err := d.Int()
			qty = v
			return err
		}
		return d.Skip()
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := h.catalog.Restock(r.Context(), chi.URLParam(r, "id"), qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItem(e, item) })
}
