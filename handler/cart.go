package handler

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	storefront "gofalre.io/storefront"
)

// updateCartRequest accepts the quantity as a number or a numeric string.
type updateCartRequest struct {
	Quantity any `json:"quantity"`
}

var errInvalidQuantity = errors.New("invalid quantity")

// quantity truncates fractional numbers toward zero. A missing or null
// quantity means 1.
func (req updateCartRequest) quantity() (int, error) {
	switch v := req.Quantity.(type) {
	case nil:
		return 1, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return clampQuantity(float64(n))
		}
		f, err := v.Float64()
		if err != nil {
			return 0, errInvalidQuantity
		}
		return clampQuantity(f)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, errInvalidQuantity
		}
		return n, nil
	default:
		return 0, errInvalidQuantity
	}
}

func clampQuantity(f float64) (int, error) {
	if math.IsNaN(f) || math.Abs(f) > math.MaxInt32 {
		return 0, errInvalidQuantity
	}
	return int(math.Trunc(f)), nil
}

type clearCartResponse struct {
	Status    string `json:"status"`
	CartCount int    `json:"cart_count"`
}

func productID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) cartPage(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetCart(r.Context(), SessionID(r.Context()))
	if err != nil {
		h.logger.Error("Failed to load cart", zap.Error(err))
		http.Error(w, "failed to load cart", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err = h.tmpl.ExecuteTemplate(w, "cart.html", view); err != nil {
		h.logger.Error("Failed to render cart page", zap.Error(err))
	}
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetCart(r.Context(), SessionID(r.Context()))
	if err != nil {
		h.logger.Error("Failed to load cart", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load cart")
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid form")
		return
	}

	quantity, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("quantity")))
	if err != nil {
		quantity = 1
	}

	summary, err := h.svc.AddToCart(r.Context(), SessionID(r.Context()), id, quantity, r.PostFormValue("size"))
	switch {
	case errors.Is(err, storefront.ErrProductNotFound):
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	case errors.Is(err, storefront.ErrInvalidSize):
		h.writeError(w, http.StatusBadRequest, "invalid size selected")
		return
	case err != nil:
		h.logger.Error("Failed to add to cart", zap.Int64("product_id", id), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to add to cart")
		return
	}

	if wantsJSON(r) {
		h.writeJSON(w, http.StatusOK, summary)
		return
	}

	target := r.Referer()
	if target == "" {
		target = "/cart"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) updateCart(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	var req updateCartRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	quantity, err := req.quantity()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	update, err := h.svc.UpdateCart(r.Context(), SessionID(r.Context()), id, quantity)
	if err != nil {
		h.logger.Error("Failed to update cart", zap.Int64("product_id", id), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to update cart")
		return
	}
	h.writeJSON(w, http.StatusOK, update)
}

func (h *Handler) removeFromCart(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	summary, err := h.svc.RemoveFromCart(r.Context(), SessionID(r.Context()), id)
	if err != nil {
		h.logger.Error("Failed to remove from cart", zap.Int64("product_id", id), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to remove from cart")
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCart(r.Context(), SessionID(r.Context())); err != nil {
		h.logger.Error("Failed to clear cart", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to clear cart")
		return
	}
	h.writeJSON(w, http.StatusOK, clearCartResponse{Status: "success", CartCount: 0})
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
