package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/station/internal/middleware"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/orderflow"
	"github.com/kiwari-pos/station/internal/service"
	"github.com/shopspring/decimal"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	Board(ctx context.Context, sid, display string, staff model.Staff) ([]service.BoardEntry, error)
	Order(ctx context.Context, sid, id string) (*service.OrderDetail, error)
	Perform(ctx context.Context, sid string, req service.ActionRequest) (*model.Order, error)
	PayRemaining(ctx context.Context, sid, orderID string, in service.PaymentInput) (*service.OrderDetail, error)
}

// OrderHandler handles the display boards, staff actions and follow-up payments.
type OrderHandler struct {
	svc OrderServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers order endpoints on the given Chi router. Board
// routes check the caller's role against the {display} in the path.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequireDisplay).Get("/displays/{display}/orders", h.Board)
	r.With(middleware.RequireDisplay).Post("/displays/{display}/orders/{id}/actions", h.Action)

	r.Get("/orders/{id}", h.Get)
	r.Get("/orders/{id}/payment-summary", h.PaymentSummary)
	r.Post("/orders/{id}/payments", h.Pay)
}

// --- Request types ---

type actionRequest struct {
	Action       string           `json:"action"`
	Notes        string           `json:"notes"`
	TeamNotes    string           `json:"teamNotes"`
	ReturnReason string           `json:"returnReason"`
	RefundAmount *decimal.Decimal `json:"refundAmount"`
}

type paymentRequest struct {
	Method              string           `json:"method"`
	Amount              *decimal.Decimal `json:"amount"`
	AmountReceived      *decimal.Decimal `json:"amountReceived"`
	CashPortion         *decimal.Decimal `json:"cashPortion"`
	Reference           string           `json:"reference"`
	FuturePaymentMethod string           `json:"futurePaymentMethod"`
}

// --- Handlers ---

// Board handles GET /displays/{display}/orders.
func (h *OrderHandler) Board(w http.ResponseWriter, r *http.Request) {
	sid, staff, ok := session(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.Board(r.Context(), sid, displayParam(r), staff)
	if err != nil {
		writeError(w, "load board", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Action handles POST /displays/{display}/orders/{id}/actions.
func (h *OrderHandler) Action(w http.ResponseWriter, r *http.Request) {
	sid, staff, ok := session(w, r)
	if !ok {
		return
	}
	var req actionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Action == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "action is required"})
		return
	}

	order, err := h.svc.Perform(r.Context(), sid, service.ActionRequest{
		OrderID: chi.URLParam(r, "id"),
		Display: displayParam(r),
		Action:  orderflow.Action(strings.ToUpper(req.Action)),
		Staff:   staff,
		Input: orderflow.Input{
			Notes:        strings.TrimSpace(req.Notes),
			TeamNotes:    strings.TrimSpace(req.TeamNotes),
			ReturnReason: strings.TrimSpace(req.ReturnReason),
			RefundAmount: req.RefundAmount,
		},
	})
	if err != nil {
		writeError(w, "order action", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	detail, err := h.svc.Order(r.Context(), sid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// PaymentSummary handles GET /orders/{id}/payment-summary.
func (h *OrderHandler) PaymentSummary(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	detail, err := h.svc.Order(r.Context(), sid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "payment summary", err)
		return
	}
	writeJSON(w, http.StatusOK, detail.Payment)
}

// Pay handles POST /orders/{id}/payments, collecting the remaining amount.
func (h *OrderHandler) Pay(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	detail, err := h.svc.PayRemaining(r.Context(), sid, chi.URLParam(r, "id"), service.PaymentInput{
		Method:              req.Method,
		Amount:              req.Amount,
		AmountReceived:      req.AmountReceived,
		CashPortion:         req.CashPortion,
		Reference:           req.Reference,
		FuturePaymentMethod: req.FuturePaymentMethod,
	})
	if err != nil {
		writeError(w, "pay remaining", err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}
