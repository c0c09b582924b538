package upstream

import (
	"context"
	"net/http"
	"net/url"

	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/normalize"
)

type queuedItemBody struct {
	ID string `json:"id"`
	itemBody
}

type queueBody struct {
	Label    string                `json:"label,omitempty"`
	Items    []queuedItemBody      `json:"items"`
	Checkout model.CheckoutDetails `json:"checkout"`
}

// QueueOrder saves a cart and its checkout form on the backend for later.
func (c *Conn) QueueOrder(ctx context.Context, label string, items []model.CartItem, checkout model.CheckoutDetails) (model.QueuedOrder, error) {
	body := queueBody{Label: label, Items: make([]queuedItemBody, 0, len(items)), Checkout: checkout}
	for _, it := range items {
		body.Items = append(body.Items, queuedItemBody{ID: it.ID, itemBody: toItemBody(it.OrderItem)})
	}
	data, err := c.do(ctx, request{method: http.MethodPost, path: "/queue-orders", body: body})
	if err != nil {
		return model.QueuedOrder{}, err
	}
	m := normalize.Map(data)
	if inner, ok := m["queuedOrder"].(map[string]any); ok {
		m = inner
	}
	return normalize.QueuedOrder(m), nil
}

// QueuedOrders lists saved carts.
func (c *Conn) QueuedOrders(ctx context.Context) ([]model.QueuedOrder, error) {
	data, err := c.do(ctx, request{method: http.MethodGet, path: "/queue-orders"})
	if err != nil {
		return nil, err
	}
	return normalize.QueuedOrders(data), nil
}

// QueuedOrder fetches one saved cart.
func (c *Conn) QueuedOrder(ctx context.Context, id string) (model.QueuedOrder, error) {
	data, err := c.do(ctx, request{method: http.MethodGet, path: "/queue-orders/" + url.PathEscape(id)})
	if err != nil {
		return model.QueuedOrder{}, err
	}
	m := normalize.Map(data)
	if inner, ok := m["queuedOrder"].(map[string]any); ok {
		m = inner
	}
	return normalize.QueuedOrder(m), nil
}

// DeleteQueuedOrder removes a saved cart.
func (c *Conn) DeleteQueuedOrder(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: "/queue-orders/" + url.PathEscape(id)})
	return err
}
