package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/normalize"
)

// Products lists the catalog, optionally narrowed to one category.
func (c *Conn) Products(ctx context.Context, categoryID string) ([]model.Product, error) {
	q := url.Values{}
	if categoryID != "" {
		q.Set("category", categoryID)
	}
	data, err := c.do(ctx, request{method: http.MethodGet, path: "/products", query: q})
	if err != nil {
		return nil, err
	}
	return normalize.Products(data), nil
}

// ProductsByIDs fetches the listed products in one call.
func (c *Conn) ProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	data, err := c.do(ctx, request{method: http.MethodGet, path: "/products", query: q})
	if err != nil {
		return nil, err
	}
	return normalize.Products(data), nil
}

// Categories lists product categories.
func (c *Conn) Categories(ctx context.Context) ([]model.Category, error) {
	data, err := c.do(ctx, request{method: http.MethodGet, path: "/categories"})
	if err != nil {
		return nil, err
	}
	return normalize.Categories(data), nil
}
