package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kiwari-pos/station/internal/cache"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/orderflow"
	"github.com/kiwari-pos/station/internal/upstream"
	"github.com/kiwari-pos/station/internal/ws"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

// mockBackend implements every backend interface with configurable behavior.
// Calls to functions a test did not set panic so accidental calls are caught.
type mockBackend struct {
	ordersFn             func(ctx context.Context, f upstream.OrderFilter) ([]model.Order, error)
	orderFn              func(ctx context.Context, id string) (model.Order, error)
	updateStatusFn       func(ctx context.Context, id string, u orderflow.StatusUpdate) (model.OrderPatch, error)
	addPaymentFn         func(ctx context.Context, orderID string, p upstream.PaymentRequest) (model.Order, error)
	productsByIDsFn      func(ctx context.Context, ids []string) ([]model.Product, error)
	createOrderFn        func(ctx context.Context, r upstream.OrderRequest) (model.Order, error)
	uploadImageFn        func(ctx context.Context, filename, contentType string, data []byte) (string, error)
	queueOrderFn         func(ctx context.Context, label string, items []model.CartItem, checkout model.CheckoutDetails) (model.QueuedOrder, error)
	queuedOrdersFn       func(ctx context.Context) ([]model.QueuedOrder, error)
	queuedOrderFn        func(ctx context.Context, id string) (model.QueuedOrder, error)
	deleteQueuedOrderFn  func(ctx context.Context, id string) error
	currentDrawerFn      func(ctx context.Context) (*model.DrawerSession, error)
	openDrawerFn         func(ctx context.Context, amount decimal.Decimal, notes string) (model.DrawerSession, error)
	closeDrawerFn        func(ctx context.Context, r upstream.CloseRequest) (model.DrawerSession, error)
	addCashFn            func(ctx context.Context, amount decimal.Decimal, notes string) (model.DrawerSession, error)
	takeCashFn           func(ctx context.Context, amount decimal.Decimal, notes string) (model.DrawerSession, error)
	drawerSessionsFn     func(ctx context.Context, limit int) ([]model.DrawerSession, error)
	drawerTransactionsFn func(ctx context.Context, sessionID string) ([]model.DrawerOperation, error)
	drawerLogsFn         func(ctx context.Context, sessionID string) ([]model.DrawerOperation, error)
	logoutFn             func(ctx context.Context) error
	accessTokenFn        func(ctx context.Context) (string, error)
}

func (m *mockBackend) Orders(ctx context.Context, f upstream.OrderFilter) ([]model.Order, error) {
	return m.ordersFn(ctx, f)
}
func (m *mockBackend) Order(ctx context.Context, id string) (model.Order, error) {
	return m.orderFn(ctx, id)
}
func (m *mockBackend) UpdateStatus(ctx context.Context, id string, u orderflow.StatusUpdate) (model.OrderPatch, error) {
	return m.updateStatusFn(ctx, id, u)
}
func (m *mockBackend) AddPayment(ctx context.Context, orderID string, p upstream.PaymentRequest) (model.Order, error) {
	return m.addPaymentFn(ctx, orderID, p)
}
func (m *mockBackend) ProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	return m.productsByIDsFn(ctx, ids)
}
func (m *mockBackend) CreateOrder(ctx context.Context, r upstream.OrderRequest) (model.Order, error) {
	return m.createOrderFn(ctx, r)
}
func (m *mockBackend) UploadImage(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	return m.uploadImageFn(ctx, filename, contentType, data)
}
func (m *mockBackend) QueueOrder(ctx context.Context, label string, items []model.CartItem, checkout model.CheckoutDetails) (model.QueuedOrder, error) {
	return m.queueOrderFn(ctx, label, items, checkout)
}
func (m *mockBackend) QueuedOrders(ctx context.Context) ([]model.QueuedOrder, error) {
	return m.queuedOrdersFn(ctx)
}
func (m *mockBackend) QueuedOrder(ctx context.Context, id string) (model.QueuedOrder, error) {
	return m.queuedOrderFn(ctx, id)
}
func (m *mockBackend) DeleteQueuedOrder(ctx context.Context, id string) error {
	return m.deleteQueuedOrderFn(ctx, id)
}
func (m *mockBackend) CurrentDrawer(ctx context.Context) (*model.DrawerSession, error) {
	return m.currentDrawerFn(ctx)
}
func (m *mockBackend) OpenDrawer(ctx context.Context, amount decimal.Decimal, notes string) (model.DrawerSession, error) {
	return m.openDrawerFn(ctx, amount, notes)
}
func (m *mockBackend) CloseDrawer(ctx context.Context, r upstream.CloseRequest) (model.DrawerSession, error) {
	return m.closeDrawerFn(ctx, r)
}
func (m *mockBackend) AddCash(ctx context.Context, amount decimal.Decimal, notes string) (model.DrawerSession, error) {
	return m.addCashFn(ctx, amount, notes)
}
func (m *mockBackend) TakeCash(ctx context.Context, amount decimal.Decimal, notes string) (model.DrawerSession, error) {
	return m.takeCashFn(ctx, amount, notes)
}
func (m *mockBackend) DrawerSessions(ctx context.Context, limit int) ([]model.DrawerSession, error) {
	return m.drawerSessionsFn(ctx, limit)
}
func (m *mockBackend) DrawerTransactions(ctx context.Context, sessionID string) ([]model.DrawerOperation, error) {
	return m.drawerTransactionsFn(ctx, sessionID)
}
func (m *mockBackend) DrawerLogs(ctx context.Context, sessionID string) ([]model.DrawerOperation, error) {
	return m.drawerLogsFn(ctx, sessionID)
}
func (m *mockBackend) Logout(ctx context.Context) error {
	return m.logoutFn(ctx)
}
func (m *mockBackend) AccessToken(ctx context.Context) (string, error) {
	return m.accessTokenFn(ctx)
}

// mockHub records broadcast events.
type mockHub struct {
	mu     sync.Mutex
	events []ws.Event
	rooms  []string
}

func (h *mockHub) Broadcast(event ws.Event) {
	h.BroadcastToDisplay("", event)
}

func (h *mockHub) BroadcastToDisplay(display string, event ws.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	h.rooms = append(h.rooms, display)
}

func (h *mockHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	for i, e := range h.events {
		out[i] = e.Type
	}
	return out
}

// mockTrigger counts refresh requests.
type mockTrigger struct {
	mu    sync.Mutex
	count int
}

func (t *mockTrigger) Notify() {
	t.mu.Lock()
	t.count++
	t.mu.Unlock()
}

func (t *mockTrigger) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// slowStore wraps a Store, adding a round-trip delay to reads and optional
// write failures by key prefix.
type slowStore struct {
	cache.Store
	delay     time.Duration
	setErr    map[string]error
	deleteErr error
}

func (s *slowStore) Get(ctx context.Context, key string) ([]byte, error) {
	time.Sleep(s.delay)
	return s.Store.Get(ctx, key)
}

func (s *slowStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	for prefix, err := range s.setErr {
		if strings.HasPrefix(key, prefix) {
			return err
		}
	}
	return s.Store.Set(ctx, key, value, ttl)
}

func (s *slowStore) Delete(ctx context.Context, keys ...string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Store.Delete(ctx, keys...)
}

// --- Test helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func newLocal() *cache.Local {
	return cache.NewLocal(cache.NewMemoryStore())
}
