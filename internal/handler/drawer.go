package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/service"
	"github.com/shopspring/decimal"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DrawerServicer defines the service methods needed by drawer handlers.
// Satisfied by *service.DrawerService; narrow interface for testability.
type DrawerServicer interface {
	Current(ctx context.Context, sid string) (*service.DrawerView, error)
	Open(ctx context.Context, sid string, amount decimal.Decimal, notes string) (*service.DrawerView, error)
	Close(ctx context.Context, sid string, closing decimal.Decimal, notes string) (*service.DrawerView, error)
	CashIn(ctx context.Context, sid string, amount decimal.Decimal, notes string) (*service.DrawerView, error)
	CashOut(ctx context.Context, sid string, amount decimal.Decimal, notes string) (*service.DrawerView, error)
	Sessions(ctx context.Context, sid string, limit int) ([]service.DrawerView, error)
	Transactions(ctx context.Context, sid, sessionID string) ([]model.DrawerOperation, error)
	Logs(ctx context.Context, sid, sessionID string) ([]model.DrawerOperation, error)
	Export(ctx context.Context, sid string, limit int, w io.Writer) error
}

// DrawerHandler handles the cash drawer endpoints.
type DrawerHandler struct {
	svc DrawerServicer
}

// NewDrawerHandler creates a new DrawerHandler.
func NewDrawerHandler(svc DrawerServicer) *DrawerHandler {
	return &DrawerHandler{svc: svc}
}

// RegisterRoutes registers drawer endpoints on the given Chi router.
func (h *DrawerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/drawer", h.Current)
	r.Post("/drawer/open", h.Open)
	r.Post("/drawer/close", h.Close)
	r.Post("/drawer/cash-in", h.CashIn)
	r.Post("/drawer/cash-out", h.CashOut)
	r.Get("/drawer/sessions", h.Sessions)
	r.Get("/drawer/sessions/export", h.Export)
	r.Get("/drawer/transactions", h.Transactions)
	r.Get("/drawer/logs", h.Logs)
}

// --- Request types ---

type drawerAmountRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Notes  string           `json:"notes"`
}

// --- Handlers ---

// Current handles GET /drawer. A closed drawer returns {"session": null}.
func (h *DrawerHandler) Current(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Current(r.Context(), sid)
	if err != nil {
		writeError(w, "current drawer", err)
		return
	}
	if view == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"session": nil})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *DrawerHandler) amount(w http.ResponseWriter, r *http.Request) (string, drawerAmountRequest, bool) {
	sid, _, ok := session(w, r)
	if !ok {
		return "", drawerAmountRequest{}, false
	}
	var req drawerAmountRequest
	if !decodeJSON(w, r, &req) {
		return "", drawerAmountRequest{}, false
	}
	if req.Amount == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount is required"})
		return "", drawerAmountRequest{}, false
	}
	return sid, req, true
}

// Open handles POST /drawer/open.
func (h *DrawerHandler) Open(w http.ResponseWriter, r *http.Request) {
	sid, req, ok := h.amount(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Open(r.Context(), sid, *req.Amount, req.Notes)
	if err != nil {
		writeError(w, "open drawer", err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// Close handles POST /drawer/close. amount is the counted closing cash.
func (h *DrawerHandler) Close(w http.ResponseWriter, r *http.Request) {
	sid, req, ok := h.amount(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Close(r.Context(), sid, *req.Amount, req.Notes)
	if err != nil {
		writeError(w, "close drawer", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CashIn handles POST /drawer/cash-in.
func (h *DrawerHandler) CashIn(w http.ResponseWriter, r *http.Request) {
	sid, req, ok := h.amount(w, r)
	if !ok {
		return
	}
	view, err := h.svc.CashIn(r.Context(), sid, *req.Amount, req.Notes)
	if err != nil {
		writeError(w, "cash in", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CashOut handles POST /drawer/cash-out.
func (h *DrawerHandler) CashOut(w http.ResponseWriter, r *http.Request) {
	sid, req, ok := h.amount(w, r)
	if !ok {
		return
	}
	view, err := h.svc.CashOut(r.Context(), sid, *req.Amount, req.Notes)
	if err != nil {
		writeError(w, "cash out", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Sessions handles GET /drawer/sessions?limit=N.
func (h *DrawerHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	views, err := h.svc.Sessions(r.Context(), sid, limitParam(r))
	if err != nil {
		writeError(w, "list drawer sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// Export handles GET /drawer/sessions/export, returning an xlsx workbook.
// The workbook is built in memory so a failure still yields a JSON error.
func (h *DrawerHandler) Export(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.svc.Export(r.Context(), sid, limitParam(r), &buf); err != nil {
		writeError(w, "export drawer sessions", err)
		return
	}

	filename := fmt.Sprintf("drawer-sessions-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("WARN: write drawer export: %v", err)
	}
}

// Transactions handles GET /drawer/transactions?sessionId=ID. No id means the
// open session.
func (h *DrawerHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	ops, err := h.svc.Transactions(r.Context(), sid, r.URL.Query().Get("sessionId"))
	if err != nil {
		writeError(w, "drawer transactions", err)
		return
	}
	if ops == nil {
		ops = []model.DrawerOperation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

// Logs handles GET /drawer/logs?sessionId=ID.
func (h *DrawerHandler) Logs(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}
	ops, err := h.svc.Logs(r.Context(), sid, r.URL.Query().Get("sessionId"))
	if err != nil {
		writeError(w, "drawer logs", err)
		return
	}
	if ops == nil {
		ops = []model.DrawerOperation{}
	}
	writeJSON(w, http.StatusOK, ops)
}
