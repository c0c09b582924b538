package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/station/internal/cache"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/service"
	"github.com/shopspring/decimal"
)

// maxImageSize caps a single cart image upload.
const maxImageSize = 10 << 20

// CartServicer defines the service methods needed by cart handlers.
// Satisfied by *service.CartService; narrow interface for testability.
type CartServicer interface {
	Cart(ctx context.Context, sid string) (*service.CartView, error)
	AddItem(ctx context.Context, sid string, req service.AddItemRequest) (*service.CartView, error)
	UpdateItem(ctx context.Context, sid, itemID string, req service.UpdateItemRequest) (*service.CartView, error)
	RemoveItem(ctx context.Context, sid, itemID string) (*service.CartView, error)
	ClearCart(ctx context.Context, sid string) error
	AttachImage(ctx context.Context, sid, itemID string, img service.ImageUpload) (*service.CartView, error)
	RemoveImage(ctx context.Context, sid, itemID, imageID string) (*service.CartView, error)
	Preview(ctx context.Context, id string) (cache.Preview, error)
	SaveCheckout(ctx context.Context, sid string, d model.CheckoutDetails, open bool) (*service.CartView, error)
	Checkout(ctx context.Context, sid string) (*model.Order, error)
	QueueCart(ctx context.Context, sid, label string) (*model.QueuedOrder, error)
	QueuedOrders(ctx context.Context, sid string) ([]model.QueuedOrder, error)
	ResumeQueued(ctx context.Context, sid, id string) (*service.CartView, error)
	DeleteQueued(ctx context.Context, sid, id string) error
	Reorder(ctx context.Context, sid, orderID string) (*service.CartView, error)
}

// CartHandler handles the cart, checkout and queued order endpoints.
type CartHandler struct {
	svc CartServicer
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(svc CartServicer) *CartHandler {
	return &CartHandler{svc: svc}
}

// RegisterRoutes registers cart endpoints on the given Chi router.
func (h *CartHandler) RegisterRoutes(r chi.Router) {
	r.Get("/cart", h.Get)
	r.Delete("/cart", h.Clear)
	r.Post("/cart/items", h.AddItem)
	r.Patch("/cart/items/{id}", h.UpdateItem)
	r.Delete("/cart/items/{id}", h.RemoveItem)
	r.Post("/cart/items/{id}/images", h.AttachImage)
	r.Delete("/cart/items/{id}/images/{imageId}", h.RemoveImage)
	r.Get("/previews/{id}", h.Preview)

	r.Get("/checkout", h.Get)
	r.Put("/checkout", h.SaveCheckout)
	r.Post("/checkout", h.Checkout)

	r.Get("/queue", h.ListQueued)
	r.Post("/queue", h.Queue)
	r.Post("/queue/{id}/resume", h.Resume)
	r.Delete("/queue/{id}", h.DeleteQueued)

	r.Post("/orders/{id}/reorder", h.Reorder)
}

// --- Request types ---

type addItemRequest struct {
	ProductID   string                    `json:"productId"`
	Quantity    int                       `json:"quantity"`
	Variations  []service.VariationChoice `json:"variations"`
	CustomPrice *decimal.Decimal          `json:"customPrice"`
	Notes       string                    `json:"notes"`
}

type updateItemRequest struct {
	Quantity    *int                       `json:"quantity"`
	Variations  *[]service.VariationChoice `json:"variations"`
	CustomPrice *decimal.Decimal           `json:"customPrice"`
	Notes       *string                    `json:"notes"`
}

type checkoutRequest struct {
	model.CheckoutDetails
	Open *bool `json:"open"`
}

type queueRequest struct {
	Label string `json:"label"`
}

// --- Handlers ---

// Get handles GET /cart and GET /checkout.
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Cart(r.Context(), sid)
	if err != nil {
		writeError(w, "load cart", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Clear handles DELETE /cart.
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	if err := h.svc.ClearCart(r.Context(), sid); err != nil {
		writeError(w, "clear cart", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem handles POST /cart/items.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "productId is required"})
		return
	}

	view, err := h.svc.AddItem(r.Context(), sid, service.AddItemRequest{
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		Variations:  req.Variations,
		CustomPrice: req.CustomPrice,
		Notes:       req.Notes,
	})
	if err != nil {
		writeError(w, "add cart item", err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// UpdateItem handles PATCH /cart/items/{id}.
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.svc.UpdateItem(r.Context(), sid, chi.URLParam(r, "id"), service.UpdateItemRequest{
		Quantity:    req.Quantity,
		Variations:  req.Variations,
		CustomPrice: req.CustomPrice,
		Notes:       req.Notes,
	})
	if err != nil {
		writeError(w, "update cart item", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RemoveItem handles DELETE /cart/items/{id}.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	view, err := h.svc.RemoveItem(r.Context(), sid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "remove cart item", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AttachImage handles POST /cart/items/{id}/images as multipart form data
// with an "image" file and an optional "comment".
func (h *CartHandler) AttachImage(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize+(1<<20))
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageSize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read image"})
		return
	}
	if len(data) > maxImageSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "image too large"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	view, err := h.svc.AttachImage(r.Context(), sid, chi.URLParam(r, "id"), service.ImageUpload{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
		Comment:     r.FormValue("comment"),
	})
	if err != nil {
		writeError(w, "attach image", err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// RemoveImage handles DELETE /cart/items/{id}/images/{imageId}.
func (h *CartHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	view, err := h.svc.RemoveImage(r.Context(), sid, chi.URLParam(r, "id"), chi.URLParam(r, "imageId"))
	if err != nil {
		writeError(w, "remove image", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Preview handles GET /previews/{id}, serving a held image.
func (h *CartHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := session(w, r); !ok {
		return
	}
	p, err := h.svc.Preview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "load preview", err)
		return
	}
	w.Header().Set("Content-Type", p.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(p.Data)
}

// SaveCheckout handles PUT /checkout. "open" defaults to true.
func (h *CartHandler) SaveCheckout(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	open := true
	if req.Open != nil {
		open = *req.Open
	}

	view, err := h.svc.SaveCheckout(r.Context(), sid, req.CheckoutDetails, open)
	if err != nil {
		writeError(w, "save checkout", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Checkout handles POST /checkout.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	order, err := h.svc.Checkout(r.Context(), sid)
	if err != nil {
		writeError(w, "checkout", err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// ListQueued handles GET /queue.
func (h *CartHandler) ListQueued(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	queued, err := h.svc.QueuedOrders(r.Context(), sid)
	if err != nil {
		writeError(w, "list queued orders", err)
		return
	}
	if queued == nil {
		queued = []model.QueuedOrder{}
	}
	writeJSON(w, http.StatusOK, queued)
}

// Queue handles POST /queue.
func (h *CartHandler) Queue(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	var req queueRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	queued, err := h.svc.QueueCart(r.Context(), sid, req.Label)
	if err != nil {
		writeError(w, "queue cart", err)
		return
	}
	writeJSON(w, http.StatusCreated, queued)
}

// Resume handles POST /queue/{id}/resume.
func (h *CartHandler) Resume(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	view, err := h.svc.ResumeQueued(r.Context(), sid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "resume queued order", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DeleteQueued handles DELETE /queue/{id}.
func (h *CartHandler) DeleteQueued(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteQueued(r.Context(), sid, chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete queued order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reorder handles POST /orders/{id}/reorder.
func (h *CartHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Reorder(r.Context(), sid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "reorder", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
