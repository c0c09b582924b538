package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kiwari-pos/station/internal/enum"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/orderflow"
	"github.com/kiwari-pos/station/internal/pricing"
	"github.com/kiwari-pos/station/internal/upstream"
	"github.com/kiwari-pos/station/internal/ws"
)

// OrderBackend defines the backend calls needed by the order service.
// Satisfied by *upstream.Conn; narrow interface for testability.
type OrderBackend interface {
	Orders(ctx context.Context, f upstream.OrderFilter) ([]model.Order, error)
	Order(ctx context.Context, id string) (model.Order, error)
	UpdateStatus(ctx context.Context, id string, u orderflow.StatusUpdate) (model.OrderPatch, error)
	AddPayment(ctx context.Context, orderID string, p upstream.PaymentRequest) (model.Order, error)
}

// BoardEntry is an order as one screen shows it.
type BoardEntry struct {
	Order       model.Order            `json:"order"`
	Lane        string                 `json:"lane"`
	ScheduledAt *time.Time             `json:"scheduledAt,omitempty"`
	Actions     []orderflow.Option     `json:"actions"`
	Payment     pricing.PaymentSummary `json:"payment"`
}

// OrderDetail is a single order with its reconciliation views.
type OrderDetail struct {
	Order      model.Order            `json:"order"`
	Payment    pricing.PaymentSummary `json:"payment"`
	TotalCheck pricing.TotalCheck     `json:"totalCheck"`
}

// ActionRequest is a staff action on an order from a screen.
type ActionRequest struct {
	OrderID string
	Display string
	Action  orderflow.Action
	Staff   model.Staff
	Input   orderflow.Input
}

// OrderService keeps the order board and submits staff actions.
type OrderService struct {
	connect func(sid string) OrderBackend
	latest  func() (string, bool)
	hub     Broadcaster
	trigger Notifier

	mu          sync.RWMutex
	orders      []model.Order
	loaded      bool
	refreshedAt time.Time
}

// NewOrderService creates a new OrderService. latest names the session used
// for background refreshes.
func NewOrderService(connect func(sid string) OrderBackend, latest func() (string, bool), hub Broadcaster, trigger Notifier) *OrderService {
	return &OrderService{connect: connect, latest: latest, hub: hub, trigger: trigger}
}

// Refresh re-fetches the full order list and replaces the board. No delta is
// merged.
func (s *OrderService) Refresh(ctx context.Context) error {
	sid, ok := s.latest()
	if !ok {
		return nil
	}
	orders, err := s.fetch(ctx, sid)
	if err != nil {
		return err
	}
	s.hub.Broadcast(ws.NewEvent(enum.EventOrdersRefreshed, map[string]int{"count": len(orders)}))
	return nil
}

func (s *OrderService) fetch(ctx context.Context, sid string) ([]model.Order, error) {
	orders, err := s.connect(sid).Orders(ctx, upstream.OrderFilter{})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.orders = orders
	s.loaded = true
	s.refreshedAt = time.Now()
	s.mu.Unlock()
	return orders, nil
}

func (s *OrderService) snapshot() ([]model.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Order, len(s.orders))
	copy(out, s.orders)
	return out, s.loaded
}

// replace swaps one order on the board for the version the backend returned.
func (s *OrderService) replace(o model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == o.ID {
			s.orders[i] = o
			return
		}
	}
	if s.loaded {
		s.orders = append(s.orders, o)
	}
}

// Board returns the orders a display shows to staff, in schedule order. The
// first call on an empty board fetches through the caller's session.
func (s *OrderService) Board(ctx context.Context, sid, display string, staff model.Staff) ([]BoardEntry, error) {
	orders, loaded := s.snapshot()
	if !loaded {
		var err error
		if orders, err = s.fetch(ctx, sid); err != nil {
			return nil, err
		}
	}

	visible := orderflow.Board(orders, display, staff)
	entries := make([]BoardEntry, 0, len(visible))
	for _, o := range visible {
		e := BoardEntry{
			Order:   o,
			Lane:    orderflow.Lane(o, display),
			Actions: orderflow.Actions(o, display, staff),
			Payment: pricing.Summarize(o),
		}
		if at, ok := orderflow.ScheduledAt(o); ok {
			e.ScheduledAt = &at
		}
		if e.Actions == nil {
			e.Actions = []orderflow.Option{}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Order fetches one order from the backend.
func (s *OrderService) Order(ctx context.Context, sid, id string) (*OrderDetail, error) {
	o, err := s.connect(sid).Order(ctx, id)
	if err != nil {
		return nil, err
	}
	check := pricing.CheckOrderTotal(o)
	if !check.Consistent {
		log.Printf("WARN: order %s total %s differs from lines by %s", o.ID, check.Stated, check.Difference)
	}
	return &OrderDetail{Order: o, Payment: pricing.Summarize(o), TotalCheck: check}, nil
}

// Perform submits a staff action. The order is read fresh from the backend,
// the update is planned against it, and only the fields the backend reports
// back are applied. Any failure leaves the board untouched.
func (s *OrderService) Perform(ctx context.Context, sid string, req ActionRequest) (*model.Order, error) {
	conn := s.connect(sid)
	o, err := conn.Order(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	update, err := orderflow.Plan(o, req.Display, req.Action, req.Staff, req.Input)
	if err != nil {
		return nil, err
	}

	patch, err := conn.UpdateStatus(ctx, o.ID, update)
	if err != nil {
		return nil, err
	}

	orderflow.Apply(&o, patch)
	s.replace(o)
	s.hub.Broadcast(ws.NewEvent(enum.EventOrderStatusUpdate, o))
	s.trigger.Notify()
	return &o, nil
}

// PayRemaining records a follow-up payment on a partially paid order.
func (s *OrderService) PayRemaining(ctx context.Context, sid, orderID string, in PaymentInput) (*OrderDetail, error) {
	conn := s.connect(sid)
	o, err := conn.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}

	due := pricing.RemainingAmount(o)
	if due.LessThan(pricing.Epsilon) {
		return nil, ErrAlreadyPaid
	}
	payment, err := buildPayment(due, in)
	if err != nil {
		return nil, err
	}

	updated, err := conn.AddPayment(ctx, o.ID, payment)
	if err != nil {
		return nil, err
	}
	if updated.ID == "" {
		// The payment was recorded but not echoed back; read the order again.
		updated, err = conn.Order(ctx, o.ID)
		if err != nil {
			s.trigger.Notify()
			return nil, fmt.Errorf("reload order %s after payment: %w", o.ID, err)
		}
	}
	s.replace(updated)
	s.hub.BroadcastToDisplay(enum.DisplayPOS, ws.NewEvent(enum.EventOrderStatusUpdate, updated))
	s.trigger.Notify()
	return &OrderDetail{Order: updated, Payment: pricing.Summarize(updated), TotalCheck: pricing.CheckOrderTotal(updated)}, nil
}

// HandleEvent reacts to a backend push. The payload is opaque: it is relayed
// to screens and the board is re-fetched.
func (s *OrderService) HandleEvent(ev upstream.Event) {
	s.hub.Broadcast(ws.Event{Type: ev.Type, Payload: ev.Payload})
	s.trigger.Notify()
}

// RefreshedAt reports when the board was last replaced.
func (s *OrderService) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}
