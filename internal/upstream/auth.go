package upstream

import (
	"context"
	"net/http"

	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/normalize"
)

// LoginResult is a successful backend login.
type LoginResult struct {
	Tokens Tokens
	Staff  model.Staff
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Login authenticates staff credentials against the backend.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	_, data, err := c.send(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   loginRequest{Username: username, Password: password},
	}, "")
	if err != nil {
		return LoginResult{}, err
	}
	m := normalize.Map(data)
	user := normalize.Map(first(m, "user", "staff"))
	return LoginResult{
		Tokens: tokensFrom(m),
		Staff: model.Staff{
			ID:   normalize.ID(user),
			Name: normalize.String(first(user, "name", "fullName", "username")),
			Role: normalize.String(user["role"]),
		},
	}, nil
}

// Refresh exchanges a refresh token for a new token pair. The backend may
// omit the refresh token when it does not rotate it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	_, data, err := c.send(ctx, request{
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   refreshRequest{RefreshToken: refreshToken},
	}, "")
	if err != nil {
		return Tokens{}, err
	}
	t := tokensFrom(normalize.Map(data))
	if t.Access == "" {
		return Tokens{}, &RejectedError{Status: http.StatusUnauthorized, Message: "refresh returned no access token"}
	}
	return t, nil
}

// Logout revokes the session's refresh token on the backend.
func (c *Conn) Logout(ctx context.Context) error {
	tokens, err := c.tokens.Tokens(ctx)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/logout",
		body:   refreshRequest{RefreshToken: tokens.Refresh},
	})
	return err
}

func tokensFrom(m map[string]any) Tokens {
	return Tokens{
		Access:  normalize.String(first(m, "accessToken", "token", "access_token")),
		Refresh: normalize.String(first(m, "refreshToken", "refresh_token")),
	}
}

// first returns the first non-nil value among keys.
func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
