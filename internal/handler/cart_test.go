package handler_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/kiwari-pos/station/internal/cache"
	"github.com/kiwari-pos/station/internal/enum"
	"github.com/kiwari-pos/station/internal/handler"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/service"
	"github.com/kiwari-pos/station/internal/upstream"
	"github.com/shopspring/decimal"
)

// --- Mock CartServicer ---

// mockCart embeds the interface so tests only implement what they exercise.
type mockCart struct {
	handler.CartServicer
	cartFn         func(ctx context.Context, sid string) (*service.CartView, error)
	addItemFn      func(ctx context.Context, sid string, req service.AddItemRequest) (*service.CartView, error)
	updateItemFn   func(ctx context.Context, sid, itemID string, req service.UpdateItemRequest) (*service.CartView, error)
	attachImageFn  func(ctx context.Context, sid, itemID string, img service.ImageUpload) (*service.CartView, error)
	previewFn      func(ctx context.Context, id string) (cache.Preview, error)
	saveCheckoutFn func(ctx context.Context, sid string, d model.CheckoutDetails, open bool) (*service.CartView, error)
	checkoutFn     func(ctx context.Context, sid string) (*model.Order, error)
	queueCartFn    func(ctx context.Context, sid, label string) (*model.QueuedOrder, error)
	queuedFn       func(ctx context.Context, sid string) ([]model.QueuedOrder, error)
	deleteQueuedFn func(ctx context.Context, sid, id string) error
}

func (m *mockCart) Cart(ctx context.Context, sid string) (*service.CartView, error) {
	return m.cartFn(ctx, sid)
}
func (m *mockCart) AddItem(ctx context.Context, sid string, req service.AddItemRequest) (*service.CartView, error) {
	return m.addItemFn(ctx, sid, req)
}
func (m *mockCart) UpdateItem(ctx context.Context, sid, itemID string, req service.UpdateItemRequest) (*service.CartView, error) {
	return m.updateItemFn(ctx, sid, itemID, req)
}
func (m *mockCart) AttachImage(ctx context.Context, sid, itemID string, img service.ImageUpload) (*service.CartView, error) {
	return m.attachImageFn(ctx, sid, itemID, img)
}
func (m *mockCart) Preview(ctx context.Context, id string) (cache.Preview, error) {
	return m.previewFn(ctx, id)
}
func (m *mockCart) SaveCheckout(ctx context.Context, sid string, d model.CheckoutDetails, open bool) (*service.CartView, error) {
	return m.saveCheckoutFn(ctx, sid, d, open)
}
func (m *mockCart) Checkout(ctx context.Context, sid string) (*model.Order, error) {
	return m.checkoutFn(ctx, sid)
}
func (m *mockCart) QueueCart(ctx context.Context, sid, label string) (*model.QueuedOrder, error) {
	return m.queueCartFn(ctx, sid, label)
}
func (m *mockCart) QueuedOrders(ctx context.Context, sid string) ([]model.QueuedOrder, error) {
	return m.queuedFn(ctx, sid)
}
func (m *mockCart) DeleteQueued(ctx context.Context, sid, id string) error {
	return m.deleteQueuedFn(ctx, sid, id)
}

func emptyView() *service.CartView {
	return &service.CartView{Items: []model.CartItem{}, Total: decimal.Zero}
}

// --- Tests ---

func TestCart_Get(t *testing.T) {
	sess := newTestSession(enum.UserRoleCashier)
	svc := &mockCart{cartFn: func(ctx context.Context, sid string) (*service.CartView, error) {
		if sid != sess.ID.String() {
			t.Errorf("session: got %q", sid)
		}
		return &service.CartView{
			Items: []model.CartItem{{ID: "c-1", OrderItem: model.OrderItem{ProductID: "p-1", Quantity: 2, TotalPrice: decimal.NewFromInt(56)}}},
			Total: decimal.NewFromInt(56),
		}, nil
	}}
	r := setupRouter(handler.NewCartHandler(svc))

	rr := doRequest(t, r, "GET", "/cart", nil, &sess)
	assertStatus(t, rr, http.StatusOK)
	if resp := decodeMap(t, rr); resp["total"] != "56" {
		t.Errorf("total: got %v", resp["total"])
	}
}

func TestCart_RequiresAuth(t *testing.T) {
	r := setupRouter(handler.NewCartHandler(&mockCart{}))
	rr := doRequest(t, r, "GET", "/cart", nil, nil)
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestCart_AddItem(t *testing.T) {
	sess := newTestSession(enum.UserRoleCashier)
	svc := &mockCart{addItemFn: func(ctx context.Context, sid string, req service.AddItemRequest) (*service.CartView, error) {
		if req.ProductID != "p-1" || req.Quantity != 2 || len(req.Variations) != 1 || req.Variations[0].Value != "Large" {
			t.Errorf("request: %+v", req)
		}
		return emptyView(), nil
	}}
	r := setupRouter(handler.NewCartHandler(svc))

	rr := doRequest(t, r, "POST", "/cart/items", map[string]interface{}{
		"productId":  "p-1",
		"quantity":   2,
		"variations": []map[string]string{{"type": "Size", "value": "Large"}},
	}, &sess)
	assertStatus(t, rr, http.StatusCreated)
}

func TestCart_AddItemErrors(t *testing.T) {
	sess := newTestSession(enum.UserRoleCashier)
	tests := []struct {
		name string
		body interface{}
		err  error
		want int
	}{
		{"missing product", map[string]interface{}{"quantity": 1}, nil, http.StatusBadRequest},
		{"unknown variation", map[string]interface{}{"productId": "p-1", "quantity": 1}, service.ErrUnknownVariation, http.StatusBadRequest},
		{"product gone", map[string]interface{}{"productId": "p-1", "quantity": 1}, service.ErrProductNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCart{addItemFn: func(ctx context.Context, sid string, req service.AddItemRequest) (*service.CartView, error) {
				return nil, tt.err
			}}
			rr := doRequest(t, setupRouter(handler.NewCartHandler(svc)), "POST", "/cart/items", tt.body, &sess)
			assertStatus(t, rr, tt.want)
		})
	}
}

func TestCart_UpdateItem(t *testing.T) {
	sess := newTestSession(enum.UserRoleCashier)
	svc := &mockCart{updateItemFn: func(ctx context.Context, sid, itemID string, req service.UpdateItemRequest) (*service.CartView, error) {
		if itemID != "c-1" || req.Quantity == nil || *req.Quantity != 3 || req.Variations != nil {
			t.Errorf("update: %s %+v", itemID, req)
		}
		return emptyView(), nil
	}}
	rr := doRequest(t, setupRouter(handler.NewCartHandler(svc)), "PATCH", "/cart/items/c-1", map[string]int{"quantity": 3}, &sess)
	assertStatus(t, rr, http.StatusOK)
}

func TestCart_AttachImage(t *testing.T) {
	sess := newTestSession(enum.UserRoleCashier)
	svc := &mockCart{attachImageFn: func(ctx context.Context, sid, itemID string, img service.ImageUpload) (*service.CartView, error) {
		if itemID != "c-1" || img.Filename != "cake.png" || img.ContentType != "image/png" || img.Comment != "on top" {
			t.Errorf("upload: %s %+v", itemID, img)
		}
		if string(img.Data) != "png-bytes" {
			t.Errorf("data: got %q", img.Data)
		}
		return emptyView(), nil
	}}
	r := setupRouter(handler.NewCartHandler(svc))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="cake.png"`)
	hdr.Set("Content-Type", "image/png")
	part, _ := mw.CreatePart(hdr)
	io.WriteString(part, "png-bytes")
	mw.WriteField("comment", "on top")
	mw.Close()

	req := httptest.NewRequest("POST", "/cart/items/c-1/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+sess.token(t))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assertStatus(t, rr, http.StatusCreated)
}

func TestCart_AttachImageMissingFile(t *testing.T) {
	sess := newTestSession(enum.UserRoleCashier)
	r := setupRouter(handler.NewCartHandler(&mockCart{}))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("comment", "nothing")
	mw.Close()

	req := httptest.NewRequest("POST", "/cart/items/c-1/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+sess.token(t))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assertStatus(t, rr, http.StatusBadRequest)
}

func TestCart_Preview(t *testing.T) {
	sess := newTestSession(enum.UserRoleCashier)
	svc := &mockCart{previewFn: func(ctx context.Context, id string) (cache.Preview, error) {
		if id != "pv-1" {
			return cache.Preview{}, cache.ErrNotFound
		}
		return cache.Preview{ID: id, ContentType: "image/jpeg", Data: []byte("jpeg")}, nil
	}}
	r := setupRouter(handler.NewCartHandler(svc))

	rr := doRequest(t, r, "GET", "/previews/pv-1", nil, &sess)
	assertStatus(t, rr, http.StatusOK)
	if rr.Header().Get("Content-Type") != "image/jpeg" || rr.Body.String() != "jpeg" {
		t.Errorf("preview: %s %q", rr.Header().Get("Content-Type"), rr.Body.String())
	}

	rr = doRequest(t, r, "GET", "/previews/expired", nil, &sess)
	assertStatus(t, rr, http.StatusNotFound)
}

func TestCart_SaveCheckoutDefaultsOpen(t *testing.T) {
	sess := newTestSession(enum.UserRoleCashier)
	var gotOpen bool
	var got model.CheckoutDetails
	svc := &mockCart{saveCheckoutFn: func(ctx context.Context, sid string, d model.CheckoutDetails, open bool) (*service.CartView, error) {
		got, gotOpen = d, open
		return emptyView(), nil
	}}
	r := setupRouter(handler.NewCartHandler(svc))

	rr := doRequest(t, r, "PUT", "/checkout", map[string]interface{}{
		"customerName":   "Rina",
		"deliveryMethod": "DELIVERY",
		"delivery":       map[string]string{"address": "Jl. Mawar 1", "deliveryCharge": "4"},
		"paymentMethod":  "CASH",
		"amountReceived": 100,
	}, &sess)
	assertStatus(t, rr, http.StatusOK)
	if !gotOpen || got.CustomerName != "Rina" || got.Delivery.Address != "Jl. Mawar 1" {
		t.Errorf("checkout: open=%v %+v", gotOpen, got)
	}
	if got.AmountReceived == nil || !got.AmountReceived.Equal(decimal.NewFromInt(100)) {
		t.Errorf("amount received: %v", got.AmountReceived)
	}

	doRequest(t, r, "PUT", "/checkout", map[string]interface{}{"open": false}, &sess)
	if gotOpen {
		t.Error("explicit open=false ignored")
	}
}

func TestCart_Checkout(t *testing.T) {
	sess := newTestSession(enum.UserRoleCashier)
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"created", nil, http.StatusCreated},
		{"empty cart", service.ErrEmptyCart, http.StatusBadRequest},
		{"short cash", service.ErrInsufficientCash, http.StatusBadRequest},
		{"backend rejected", &upstream.RejectedError{Status: 400, Message: "Out of stock"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCart{checkoutFn: func(ctx context.Context, sid string) (*model.Order, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return &model.Order{ID: "o-1", Status: enum.OrderStatusPending}, nil
			}}
			rr := doRequest(t, setupRouter(handler.NewCartHandler(svc)), "POST", "/checkout", nil, &sess)
			assertStatus(t, rr, tt.want)
		})
	}
}

func TestCart_Queue(t *testing.T) {
	sess := newTestSession(enum.UserRoleCashier)
	svc := &mockCart{
		queueCartFn: func(ctx context.Context, sid, label string) (*model.QueuedOrder, error) {
			return &model.QueuedOrder{ID: "q-1", Label: label}, nil
		},
		queuedFn: func(ctx context.Context, sid string) ([]model.QueuedOrder, error) {
			return nil, nil
		},
		deleteQueuedFn: func(ctx context.Context, sid, id string) error {
			if id != "q-1" {
				t.Errorf("deleted: got %q", id)
			}
			return nil
		},
	}
	r := setupRouter(handler.NewCartHandler(svc))

	rr := doRequest(t, r, "POST", "/queue", map[string]string{"label": "table 4"}, &sess)
	assertStatus(t, rr, http.StatusCreated)
	if resp := decodeMap(t, rr); resp["label"] != "table 4" {
		t.Errorf("label: got %v", resp["label"])
	}

	rr = doRequest(t, r, "POST", "/queue", nil, &sess)
	assertStatus(t, rr, http.StatusCreated)

	rr = doRequest(t, r, "GET", "/queue", nil, &sess)
	assertStatus(t, rr, http.StatusOK)
	if body := bytes.TrimSpace(rr.Body.Bytes()); string(body) != "[]" {
		t.Errorf("empty list: got %s", body)
	}

	rr = doRequest(t, r, "DELETE", "/queue/q-1", nil, &sess)
	assertStatus(t, rr, http.StatusNoContent)
}
