package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	storefront "gofalre.io/storefront"
	"gofalre.io/storefront/models"
)

const defaultProductPageSize = 50

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	var (
		products []*models.Product
		err      error
	)

	if category := r.URL.Query().Get("category"); category != "" {
		products, err = h.svc.ListProductsByCategory(r.Context(), strings.ToLower(category))
	} else {
		limit := queryUint(r, "limit", defaultProductPageSize)
		offset := queryUint(r, "offset", 0)
		products, err = h.svc.ListProducts(r.Context(), limit, offset)
	}
	if err != nil {
		h.logger.Error("Failed to list products", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []*models.Product{}
	}
	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) productPage(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	page, err := h.svc.GetProductPage(r.Context(), id)
	switch {
	case errors.Is(err, storefront.ErrProductNotFound):
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	case err != nil:
		h.logger.Error("Failed to load product", zap.Int64("product_id", id), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load product")
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.SearchProducts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.logger.Error("Failed to search products", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to search products")
		return
	}
	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) searchSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.svc.SearchSuggestions(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.logger.Error("Failed to load search suggestions", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to search products")
		return
	}
	h.writeJSON(w, http.StatusOK, suggestions)
}

func (h *Handler) listStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.svc.ListStores(r.Context())
	if err != nil {
		h.logger.Error("Failed to list stores", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list stores")
		return
	}
	h.writeJSON(w, http.StatusOK, stores)
}

func (h *Handler) storePage(w http.ResponseWriter, r *http.Request) {
	store := chi.URLParam(r, "store")
	page, err := h.svc.GetStorePage(r.Context(), store, r.URL.Query().Get("filter_category"))
	if err != nil {
		h.logger.Error("Failed to load store", zap.String("store", store), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load store")
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

func queryUint(r *http.Request, key string, def uint64) uint64 {
	v, err := strconv.ParseUint(r.URL.Query().Get(key), 10, 64)
	if err != nil {
		return def
	}
	return v
}
