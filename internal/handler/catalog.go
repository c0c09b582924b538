package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/station/internal/model"
)

// CatalogSource defines the backend calls needed by catalog handlers.
// Satisfied by *upstream.Conn; narrow interface for testability.
type CatalogSource interface {
	Products(ctx context.Context, categoryID string) ([]model.Product, error)
	Categories(ctx context.Context) ([]model.Category, error)
}

// CatalogHandler serves the product catalog to the POS screen.
type CatalogHandler struct {
	connect func(sid string) CatalogSource
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(connect func(sid string) CatalogSource) *CatalogHandler {
	return &CatalogHandler{connect: connect}
}

// RegisterRoutes registers catalog endpoints on the given Chi router.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/catalog/products", h.Products)
	r.Get("/catalog/categories", h.Categories)
}

// Products handles GET /catalog/products. Inactive products are hidden unless
// ?all=true.
func (h *CatalogHandler) Products(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}

	products, err := h.connect(sid).Products(r.Context(), r.URL.Query().Get("categoryId"))
	if err != nil {
		writeError(w, "list products", err)
		return
	}

	out := make([]model.Product, 0, len(products))
	all := r.URL.Query().Get("all") == "true"
	for _, p := range products {
		if all || p.IsActive {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Categories handles GET /catalog/categories.
func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}

	categories, err := h.connect(sid).Categories(r.Context())
	if err != nil {
		writeError(w, "list categories", err)
		return
	}
	if categories == nil {
		categories = []model.Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}
