package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/normalize"
	"github.com/shopspring/decimal"
)

type cashBody struct {
	Amount json.Number `json:"amount"`
	Notes  string      `json:"notes,omitempty"`
}

type closeBody struct {
	ClosingAmount  json.Number `json:"closingAmount"`
	ExpectedAmount json.Number `json:"expectedAmount"`
	Discrepancy    json.Number `json:"discrepancy"`
	Notes          string      `json:"notes,omitempty"`
}

// CloseRequest closes a drawer with the counted cash and the station's
// advisory figures.
type CloseRequest struct {
	ClosingAmount  decimal.Decimal
	ExpectedAmount decimal.Decimal
	Discrepancy    decimal.Decimal
	Notes          string
}

// CurrentDrawer returns the open session, or nil when the drawer is closed.
func (c *Conn) CurrentDrawer(ctx context.Context) (*model.DrawerSession, error) {
	data, err := c.do(ctx, request{method: http.MethodGet, path: "/drawer/current"})
	if err != nil {
		return nil, err
	}
	return sessionOrNil(data), nil
}

// OpenDrawer starts a session with an opening float.
func (c *Conn) OpenDrawer(ctx context.Context, amount decimal.Decimal, notes string) (model.DrawerSession, error) {
	return c.drawerCall(ctx, "/drawer/open", cashBody{Amount: money(amount), Notes: notes})
}

// CloseDrawer ends the open session.
func (c *Conn) CloseDrawer(ctx context.Context, r CloseRequest) (model.DrawerSession, error) {
	return c.drawerCall(ctx, "/drawer/close", closeBody{
		ClosingAmount:  money(r.ClosingAmount),
		ExpectedAmount: money(r.ExpectedAmount),
		Discrepancy:    money(r.Discrepancy),
		Notes:          r.Notes,
	})
}

// AddCash records a pay-in.
func (c *Conn) AddCash(ctx context.Context, amount decimal.Decimal, notes string) (model.DrawerSession, error) {
	return c.drawerCall(ctx, "/drawer/add-cash", cashBody{Amount: money(amount), Notes: notes})
}

// TakeCash records a pay-out.
func (c *Conn) TakeCash(ctx context.Context, amount decimal.Decimal, notes string) (model.DrawerSession, error) {
	return c.drawerCall(ctx, "/drawer/take-cash", cashBody{Amount: money(amount), Notes: notes})
}

func (c *Conn) drawerCall(ctx context.Context, path string, body any) (model.DrawerSession, error) {
	data, err := c.do(ctx, request{method: http.MethodPost, path: path, body: body})
	if err != nil {
		return model.DrawerSession{}, err
	}
	if s := sessionOrNil(data); s != nil {
		return *s, nil
	}
	return model.DrawerSession{}, nil
}

// DrawerSessions lists past sessions, newest first.
func (c *Conn) DrawerSessions(ctx context.Context, limit int) ([]model.DrawerSession, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	data, err := c.do(ctx, request{method: http.MethodGet, path: "/drawer/sessions", query: q})
	if err != nil {
		return nil, err
	}
	return normalize.DrawerSessions(data), nil
}

// DrawerTransactions lists the operations of a session; empty id means the open one.
func (c *Conn) DrawerTransactions(ctx context.Context, sessionID string) ([]model.DrawerOperation, error) {
	return c.drawerList(ctx, "/drawer/transactions", sessionID)
}

// DrawerLogs lists the audit log of a session; empty id means the open one.
func (c *Conn) DrawerLogs(ctx context.Context, sessionID string) ([]model.DrawerOperation, error) {
	return c.drawerList(ctx, "/drawer/logs", sessionID)
}

func (c *Conn) drawerList(ctx context.Context, path, sessionID string) ([]model.DrawerOperation, error) {
	q := url.Values{}
	if sessionID != "" {
		q.Set("sessionId", sessionID)
	}
	data, err := c.do(ctx, request{method: http.MethodGet, path: path, query: q})
	if err != nil {
		return nil, err
	}
	return normalize.DrawerOperations(data), nil
}

// sessionOrNil accepts {session: {...}}, a bare session, or null.
func sessionOrNil(data any) *model.DrawerSession {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	if inner, ok := m["session"]; ok {
		if inner == nil {
			return nil
		}
		m = normalize.Map(inner)
	}
	if len(m) == 0 {
		return nil
	}
	s := normalize.DrawerSession(m)
	return &s
}
