// Package upstream talks to the remote POS backend, the system of record for
// orders, catalog, queued orders and drawer sessions.
//
// Every response is wrapped in {success, message, data}. A success:false
// envelope surfaces as *RejectedError carrying the backend message verbatim.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kiwari-pos/station/internal/normalize"
	"golang.org/x/sync/singleflight"
)

// Errors returned by the client.
var (
	ErrTransport      = errors.New("backend unreachable")
	ErrSessionExpired = errors.New("session expired")
)

// RejectedError is a request the backend refused.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// refreshLeeway is how close to expiry an access token is refreshed before use.
const refreshLeeway = time.Minute

// Tokens is the backend token pair held for a station session.
type Tokens struct {
	Access  string
	Refresh string
}

// TokenSource reads and replaces the tokens of one station session.
type TokenSource interface {
	Tokens(ctx context.Context) (Tokens, error)
	SaveTokens(ctx context.Context, t Tokens) error
}

// Client is the shared backend client. Authenticated calls go through a Conn.
type Client struct {
	baseURL    string
	httpClient *http.Client
	refreshes  singleflight.Group
	now        func() time.Time
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Conn is a Client bound to one station session's tokens.
type Conn struct {
	client *Client
	tokens TokenSource
}

// WithTokens binds the client to a session.
func (c *Client) WithTokens(ts TokenSource) *Conn {
	return &Conn{client: c, tokens: ts}
}

// request is one backend call. body is JSON-encoded unless raw is set.
type request struct {
	method      string
	path        string
	query       url.Values
	body        any
	raw         []byte
	contentType string
}

// do sends req with the session's access token. A 401 triggers one token
// refresh and one retry; a second 401 or a failed refresh ends the session.
func (c *Conn) do(ctx context.Context, req request) (any, error) {
	tokens, err := c.tokens.Tokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	if tokens.Refresh != "" && c.client.expiresSoon(tokens.Access) {
		if tokens, err = c.refresh(ctx, tokens); err != nil {
			return nil, err
		}
	}

	status, data, err := c.client.send(ctx, req, tokens.Access)
	if status != http.StatusUnauthorized {
		return data, err
	}

	tokens, err = c.refresh(ctx, tokens)
	if err != nil {
		return nil, err
	}
	status, data, err = c.client.send(ctx, req, tokens.Access)
	if status == http.StatusUnauthorized {
		return nil, ErrSessionExpired
	}
	return data, err
}

// AccessToken returns the session's access token, refreshing it first when it
// is about to expire.
func (c *Conn) AccessToken(ctx context.Context) (string, error) {
	tokens, err := c.tokens.Tokens(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	if tokens.Refresh != "" && c.client.expiresSoon(tokens.Access) {
		if tokens, err = c.refresh(ctx, tokens); err != nil {
			return "", err
		}
	}
	return tokens.Access, nil
}

// refresh exchanges the refresh token for a new pair. Concurrent refreshes of
// the same token share one backend call.
func (c *Conn) refresh(ctx context.Context, old Tokens) (Tokens, error) {
	if old.Refresh == "" {
		return Tokens{}, ErrSessionExpired
	}
	v, err, _ := c.client.refreshes.Do(old.Refresh, func() (interface{}, error) {
		t, err := c.client.Refresh(ctx, old.Refresh)
		if err != nil {
			return nil, err
		}
		return t, nil
	})
	if err != nil {
		if errors.Is(err, ErrTransport) {
			return Tokens{}, err
		}
		return Tokens{}, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	fresh := v.(Tokens)
	if fresh.Refresh == "" {
		fresh.Refresh = old.Refresh
	}
	if err := c.tokens.SaveTokens(ctx, fresh); err != nil {
		return Tokens{}, fmt.Errorf("save refreshed tokens: %w", err)
	}
	return fresh, nil
}

// expiresSoon reports whether a JWT access token is within refreshLeeway of
// its exp claim. Tokens that are not JWTs, or carry no exp, never expire here.
func (c *Client) expiresSoon(token string) bool {
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return c.now().Add(refreshLeeway).After(exp.Time)
}

// send performs one HTTP round trip and unwraps the envelope. The returned
// status is 0 when the backend could not be reached.
func (c *Client) send(ctx context.Context, req request, accessToken string) (int, any, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	contentType := req.contentType
	switch {
	case req.raw != nil:
		body = bytes.NewReader(req.raw)
	case req.body != nil:
		b, err := json.Marshal(req.body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s %s: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, req.method, req.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read %s %s: %v", ErrTransport, req.method, req.path, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, nil, &RejectedError{Status: resp.StatusCode, Message: envelopeMessage(raw, resp.StatusCode)}
	}

	data, err := unwrap(raw, resp.StatusCode)
	return resp.StatusCode, data, err
}

// unwrap returns the envelope's data, or the whole body when the backend
// answered without an envelope.
func unwrap(raw []byte, status int) (any, error) {
	var v any
	if len(bytes.TrimSpace(raw)) > 0 {
		decoded, err := normalize.Decode(raw)
		if err != nil {
			if status >= http.StatusInternalServerError {
				return nil, fmt.Errorf("%w: status %d", ErrTransport, status)
			}
			if status >= http.StatusBadRequest {
				return nil, &RejectedError{Status: status, Message: http.StatusText(status)}
			}
			return nil, fmt.Errorf("decode response: %w", err)
		}
		v = decoded
	}

	m, isMap := v.(map[string]any)
	success, hasEnvelope := m["success"]
	if isMap && hasEnvelope {
		if !normalize.Bool(success) {
			return nil, &RejectedError{Status: status, Message: messageOr(m, status)}
		}
		if status >= http.StatusBadRequest {
			return nil, &RejectedError{Status: status, Message: messageOr(m, status)}
		}
		return m["data"], nil
	}

	if status >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrTransport, status)
	}
	if status >= http.StatusBadRequest {
		return nil, &RejectedError{Status: status, Message: messageOr(m, status)}
	}
	return v, nil
}

func envelopeMessage(raw []byte, status int) string {
	v, err := normalize.Decode(raw)
	if err != nil {
		return http.StatusText(status)
	}
	return messageOr(normalize.Map(v), status)
}

func messageOr(m map[string]any, status int) string {
	for _, k := range []string{"message", "error"} {
		if s := normalize.String(m[k]); s != "" {
			return s
		}
	}
	if status >= http.StatusBadRequest {
		return http.StatusText(status)
	}
	return "request rejected"
}
