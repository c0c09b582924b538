package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/kiwari-pos/station/internal/enum"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/orderflow"
	"github.com/shopspring/decimal"
)

// --- Test helpers ---

type memTokens struct {
	mu     sync.Mutex
	tokens Tokens
	saved  int
}

func (m *memTokens) Tokens(ctx context.Context) (Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens, nil
}

func (m *memTokens) SaveTokens(ctx context.Context, t Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = t
	m.saved++
	return nil
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": success, "message": message, "data": data})
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("backend-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

// =====================
// Envelope and errors
// =====================

func TestConn_UnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" || r.URL.Query().Get("status") != "DESIGN_QUEUE,KITCHEN_QUEUE" {
			t.Errorf("unexpected request: %s", r.URL)
		}
		writeEnvelope(w, http.StatusOK, true, "", []map[string]any{
			{"_id": "o-1", "status": "DESIGN_QUEUE", "totalAmount": 56},
		})
	}))
	defer srv.Close()

	conn := NewClient(srv.URL, time.Second).WithTokens(&memTokens{tokens: Tokens{Access: "a", Refresh: "r"}})
	orders, err := conn.Orders(context.Background(), OrderFilter{Statuses: []string{"DESIGN_QUEUE", "KITCHEN_QUEUE"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "o-1" || !orders[0].TotalAmount.Equal(decimal.NewFromInt(56)) {
		t.Fatalf("orders: got %+v", orders)
	}
}

func TestConn_RejectedMessageVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadRequest, false, "Drawer is already open for this outlet", nil)
	}))
	defer srv.Close()

	conn := NewClient(srv.URL, time.Second).WithTokens(&memTokens{tokens: Tokens{Access: "a"}})
	_, err := conn.OpenDrawer(context.Background(), decimal.NewFromInt(500), "")

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected *RejectedError, got %v", err)
	}
	if rejected.Message != "Drawer is already open for this outlet" {
		t.Errorf("message: got %q", rejected.Message)
	}
}

func TestConn_SuccessFalseWith200IsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, false, "Order already completed", nil)
	}))
	defer srv.Close()

	conn := NewClient(srv.URL, time.Second).WithTokens(&memTokens{tokens: Tokens{Access: "a"}})
	_, err := conn.UpdateStatus(context.Background(), "o-1", orderflow.StatusUpdate{Status: enum.OrderStatusCompleted})

	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.Message != "Order already completed" {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestConn_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	conn := NewClient(url, time.Second).WithTokens(&memTokens{tokens: Tokens{Access: "a"}})
	if _, err := conn.Categories(context.Background()); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestConn_ServerErrorWithoutEnvelopeIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "<html>bad gateway</html>")
	}))
	defer srv.Close()

	conn := NewClient(srv.URL, time.Second).WithTokens(&memTokens{tokens: Tokens{Access: "a"}})
	if _, err := conn.Products(context.Background(), ""); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

// =====================
// Token refresh
// =====================

func TestConn_RefreshOnceAndRetry(t *testing.T) {
	var orderCalls, refreshCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			atomic.AddInt32(&refreshCalls, 1)
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["refreshToken"] != "r1" {
				t.Errorf("refresh token: got %q", body["refreshToken"])
			}
			writeEnvelope(w, http.StatusOK, true, "", map[string]any{"accessToken": "a2", "refreshToken": "r2"})
		case "/orders/o-1":
			atomic.AddInt32(&orderCalls, 1)
			if bearer(r) != "a2" {
				writeEnvelope(w, http.StatusUnauthorized, false, "jwt expired", nil)
				return
			}
			writeEnvelope(w, http.StatusOK, true, "", map[string]any{"_id": "o-1", "status": "PENDING"})
		}
	}))
	defer srv.Close()

	tokens := &memTokens{tokens: Tokens{Access: "a1", Refresh: "r1"}}
	conn := NewClient(srv.URL, time.Second).WithTokens(tokens)

	o, err := conn.Order(context.Background(), "o-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.ID != "o-1" {
		t.Errorf("order: got %+v", o)
	}
	if refreshCalls != 1 || orderCalls != 2 {
		t.Errorf("calls: refresh=%d orders=%d, want 1 and 2", refreshCalls, orderCalls)
	}
	if tokens.tokens.Access != "a2" || tokens.tokens.Refresh != "r2" {
		t.Errorf("tokens not saved: %+v", tokens.tokens)
	}
}

func TestConn_SecondUnauthorizedExpiresSession(t *testing.T) {
	var orderCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			writeEnvelope(w, http.StatusOK, true, "", map[string]any{"accessToken": "a2"})
			return
		}
		atomic.AddInt32(&orderCalls, 1)
		writeEnvelope(w, http.StatusUnauthorized, false, "nope", nil)
	}))
	defer srv.Close()

	tokens := &memTokens{tokens: Tokens{Access: "a1", Refresh: "r1"}}
	conn := NewClient(srv.URL, time.Second).WithTokens(tokens)

	if _, err := conn.Order(context.Background(), "o-1"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if orderCalls != 2 {
		t.Errorf("request retried %d times, want exactly one retry", orderCalls-1)
	}
	if tokens.tokens.Refresh != "r1" {
		t.Errorf("unrotated refresh token should be kept, got %q", tokens.tokens.Refresh)
	}
}

func TestConn_RefreshFailureExpiresSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			writeEnvelope(w, http.StatusUnauthorized, false, "refresh token revoked", nil)
			return
		}
		writeEnvelope(w, http.StatusUnauthorized, false, "jwt expired", nil)
	}))
	defer srv.Close()

	conn := NewClient(srv.URL, time.Second).WithTokens(&memTokens{tokens: Tokens{Access: "a1", Refresh: "r1"}})
	if _, err := conn.QueuedOrders(context.Background()); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestConn_ProactiveRefresh(t *testing.T) {
	var refreshCalls int32
	fresh := signedToken(t, time.Now().Add(time.Hour))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			atomic.AddInt32(&refreshCalls, 1)
			writeEnvelope(w, http.StatusOK, true, "", map[string]any{"token": fresh})
			return
		}
		if bearer(r) != fresh {
			t.Errorf("request sent with stale token")
		}
		writeEnvelope(w, http.StatusOK, true, "", []any{})
	}))
	defer srv.Close()

	tokens := &memTokens{tokens: Tokens{Access: signedToken(t, time.Now().Add(10*time.Second)), Refresh: "r1"}}
	conn := NewClient(srv.URL, time.Second).WithTokens(tokens)

	if _, err := conn.Categories(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refreshCalls != 1 {
		t.Errorf("refresh calls: got %d, want 1", refreshCalls)
	}
}

func TestConn_AccessTokenRefreshesNearExpiry(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "", map[string]any{"accessToken": fresh})
	}))
	defer srv.Close()

	tokens := &memTokens{tokens: Tokens{Access: signedToken(t, time.Now().Add(5*time.Second)), Refresh: "r1"}}
	got, err := NewClient(srv.URL, time.Second).WithTokens(tokens).AccessToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != fresh {
		t.Errorf("expected refreshed token")
	}
	if tokens.tokens.Refresh != "r1" {
		t.Errorf("refresh token: got %q, want kept r1", tokens.tokens.Refresh)
	}
}

func TestClient_Login(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("login must not send a bearer token")
		}
		writeEnvelope(w, http.StatusOK, true, "", map[string]any{
			"accessToken":  "a",
			"refreshToken": "r",
			"user":         map[string]any{"_id": "u-1", "name": "Sari", "role": "CASHIER"},
		})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, time.Second).Login(context.Background(), "sari", "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Tokens.Access != "a" || res.Staff.ID != "u-1" || res.Staff.Role != "CASHIER" {
		t.Fatalf("login: got %+v", res)
	}
}

// =====================
// Request bodies
// =====================

func TestConn_UpdateStatusBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/orders/o-1/status" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		dec.Decode(&got)
		writeEnvelope(w, http.StatusOK, true, "", map[string]any{
			"status":             "PARALLEL_PROCESSING",
			"parallelProcessing": map[string]any{"designStatus": "DESIGN_READY", "kitchenStatus": "KITCHEN_READY"},
		})
	}))
	defer srv.Close()

	conn := NewClient(srv.URL, time.Second).WithTokens(&memTokens{tokens: Tokens{Access: "a"}})
	patch, err := conn.UpdateStatus(context.Background(), "o-1", orderflow.StatusUpdate{
		ParallelProcessing: &model.ParallelProcessing{DesignStatus: enum.OrderStatusDesignReady},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got["status"]; ok {
		t.Errorf("lane update must not send a top-level status: %v", got)
	}
	pp, _ := got["parallelProcessing"].(map[string]any)
	if pp["designStatus"] != "DESIGN_READY" || pp["kitchenStatus"] != nil {
		t.Errorf("parallelProcessing body: %v", pp)
	}
	if patch.ParallelProcessing == nil || patch.ParallelProcessing.KitchenStatus != enum.OrderStatusKitchenReady {
		t.Errorf("patch: got %+v", patch)
	}
}

func TestConn_MoneyIsSentAsNumber(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		dec.Decode(&got)
		writeEnvelope(w, http.StatusOK, true, "", map[string]any{"session": map[string]any{"_id": "d-1", "status": "CLOSED"}})
	}))
	defer srv.Close()

	conn := NewClient(srv.URL, time.Second).WithTokens(&memTokens{tokens: Tokens{Access: "a"}})
	s, err := conn.CloseDrawer(context.Background(), CloseRequest{
		ClosingAmount:  decimal.RequireFromString("800"),
		ExpectedAmount: decimal.RequireFromString("830"),
		Discrepancy:    decimal.RequireFromString("-30"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != "d-1" || s.Status != enum.DrawerStatusClosed {
		t.Errorf("session: got %+v", s)
	}
	if got["discrepancy"] != json.Number("-30.00") || got["expectedAmount"] != json.Number("830.00") {
		t.Errorf("body: got %v", got)
	}
}

func TestConn_CurrentDrawerClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "", nil)
	}))
	defer srv.Close()

	conn := NewClient(srv.URL, time.Second).WithTokens(&memTokens{tokens: Tokens{Access: "a"}})
	s, err := conn.CurrentDrawer(context.Background())
	if err != nil || s != nil {
		t.Fatalf("closed drawer: got %+v %v", s, err)
	}
}

func TestConn_UploadImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Errorf("form file: %v", err)
			writeEnvelope(w, http.StatusBadRequest, false, "no image", nil)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "cake.png" || string(data) != "PNGDATA" {
			t.Errorf("upload: %s %q", header.Filename, data)
		}
		writeEnvelope(w, http.StatusOK, true, "", map[string]any{"url": "https://cdn.example/cake.png"})
	}))
	defer srv.Close()

	conn := NewClient(srv.URL, time.Second).WithTokens(&memTokens{tokens: Tokens{Access: "a"}})
	u, err := conn.UploadImage(context.Background(), "cake.png", "image/png", []byte("PNGDATA"))
	if err != nil || u != "https://cdn.example/cake.png" {
		t.Fatalf("upload: %q %v", u, err)
	}
}

// =====================
// Notifier
// =====================

func TestNotifier_DeliversStatusEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "a" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"PING_ONLY"}`+"\n"+`{"type":"ORDER_STATUS_UPDATE","payload":{"orderId":"o-1"}}`))
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	events := make(chan Event, 4)
	n := NewNotifier("ws"+strings.TrimPrefix(srv.URL, "http"), func(ctx context.Context) (string, error) {
		return "a", nil
	}, func(ev Event) { events <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	select {
	case ev := <-events:
		if ev.Type != enum.EventOrderStatusUpdate {
			t.Errorf("event type: got %q", ev.Type)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("notifier did not stop")
	}
	if len(events) != 0 {
		t.Errorf("non-status events must be ignored, got %d extra", len(events))
	}
}
