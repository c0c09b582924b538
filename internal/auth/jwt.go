package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/station/internal/model"
)

// TokenTTL is the lifetime of a station session token. It matches the
// pos_token cookie.
const TokenTTL = 7 * 24 * time.Hour

// Claims identify a station session and the staff member behind it. The
// backend tokens stay server-side, looked up by SessionID.
type Claims struct {
	SessionID uuid.UUID `json:"sid"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	jwt.RegisteredClaims
}

// Staff returns the staff member the token was issued to.
func (c *Claims) Staff() model.Staff {
	return model.Staff{ID: c.UserID, Name: c.Name, Role: c.Role}
}

func GenerateToken(secret string, sessionID uuid.UUID, staff model.Staff) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		UserID:    staff.ID,
		Name:      staff.Name,
		Role:      staff.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staff.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.SessionID == uuid.Nil {
		return nil, fmt.Errorf("token has no session")
	}
	return claims, nil
}
