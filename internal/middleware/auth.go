package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kiwari-pos/station/internal/auth"
	"github.com/kiwari-pos/station/internal/enum"
)

type contextKey string

const claimsKey contextKey = "claims"

// CookieName is the cookie carrying the station session token.
const CookieName = "pos_token"

// Authenticate accepts a bearer token or the pos_token cookie.
func Authenticate(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := tokenFromRequest(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing authorization"})
				return
			}

			claims, err := auth.ValidateToken(jwtSecret, tokenStr)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

// displayRoles lists who may work each screen besides admins.
var displayRoles = map[string][]string{
	enum.DisplayPOS:        {enum.UserRoleCashier},
	enum.DisplayDesign:     {enum.UserRoleDesigner},
	enum.DisplayKitchen:    {enum.UserRoleKitchen},
	enum.DisplayFinalCheck: {enum.UserRoleCashier, enum.UserRoleDesigner, enum.UserRoleKitchen},
}

// CanUseDisplay reports whether role may work the display.
func CanUseDisplay(role, display string) bool {
	roles, ok := displayRoles[display]
	if !ok {
		return false
	}
	if role == enum.UserRoleSuperAdmin || role == enum.UserRoleAdmin {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// RequireDisplay checks the {display} path value against the caller's role.
func RequireDisplay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return
		}

		display := strings.ToUpper(r.PathValue("display"))
		if _, ok := displayRoles[display]; !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown display"})
			return
		}

		if !CanUseDisplay(claims.Role, display) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied for this display"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient permissions"})
		})
	}
}

func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// WithClaims returns ctx carrying claims, as Authenticate would.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
