package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/station/internal/auth"
	"github.com/kiwari-pos/station/internal/middleware"
	"github.com/kiwari-pos/station/internal/service"
)

// SessionServicer defines the session methods needed by auth handlers.
// Satisfied by *service.SessionService; narrow interface for testability.
type SessionServicer interface {
	Login(ctx context.Context, username, password string) (*service.LoginResponse, error)
	Logout(ctx context.Context, sid string) error
}

// AuthHandler handles login and logout.
type AuthHandler struct {
	svc          SessionServicer
	secureCookie bool
}

// NewAuthHandler creates a new AuthHandler. secureCookie marks the session
// cookie Secure; disable it only for plain-HTTP development.
func NewAuthHandler(svc SessionServicer, secureCookie bool) *AuthHandler {
	return &AuthHandler{svc: svc, secureCookie: secureCookie}
}

// RegisterRoutes registers the public auth endpoints.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
}

// RegisterSessionRoutes registers endpoints that need an authenticated session.
func (h *AuthHandler) RegisterSessionRoutes(r chi.Router) {
	r.Post("/auth/logout", h.Logout)
	r.Get("/auth/me", h.Me)
}

// --- Request / Response types ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// --- Handlers ---

// Login handles POST /auth/login. The token is returned in the body and set
// as the pos_token cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, "login", err)
		return
	}

	http.SetCookie(w, h.cookie(resp.Token, resp.ExpiresAt, int(auth.TokenTTL.Seconds())))
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sid, _, ok := session(w, r)
	if !ok {
		return
	}

	if err := h.svc.Logout(r.Context(), sid); err != nil {
		writeError(w, "logout", err)
		return
	}

	http.SetCookie(w, h.cookie("", time.Unix(0, 0), -1))
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	_, staff, ok := session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, staff)
}

func (h *AuthHandler) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	}
}
