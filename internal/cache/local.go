package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/normalize"
)

// Default lifetimes of cached state.
const (
	SessionTTL = 7 * 24 * time.Hour
	CartTTL    = 7 * 24 * time.Hour
	PreviewTTL = 24 * time.Hour
)

// Session is a station login: who is at the screen and the backend tokens
// acting on their behalf.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Staff returns the staff member the session belongs to.
func (s Session) Staff() model.Staff {
	return model.Staff{ID: s.UserID, Name: s.Name, Role: s.Role}
}

// Preview is an image held by the station until checkout uploads it.
type Preview struct {
	ID          string `json:"id"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
	Data        []byte `json:"data"`
}

// Local is the typed view over a Store, keyed by station session id.
type Local struct {
	store Store
}

// NewLocal wraps store.
func NewLocal(store Store) *Local {
	return &Local{store: store}
}

func cartKey(sid string) string         { return "cart:" + sid }
func checkoutKey(sid string) string     { return "checkout:" + sid }
func checkoutOpenKey(sid string) string { return "checkout-open:" + sid }
func sessionKey(sid string) string      { return "session:" + sid }
func previewKey(id string) string       { return "preview:" + id }

// Cart loads the session's cart. Every line is re-validated: lines that no
// longer decode are dropped and the cleaned cart is written back.
func (l *Local) Cart(ctx context.Context, sid string) ([]model.CartItem, error) {
	raw, err := l.store.Get(ctx, cartKey(sid))
	if errors.Is(err, ErrNotFound) {
		return []model.CartItem{}, nil
	}
	if err != nil {
		return nil, err
	}
	v, err := normalize.Decode(raw)
	if err != nil {
		log.Printf("WARN: discarding unreadable cart for session %s: %v", sid, err)
		if err := l.store.Delete(ctx, cartKey(sid)); err != nil {
			return nil, err
		}
		return []model.CartItem{}, nil
	}
	items, dropped := normalize.CartItems(v)
	if dropped > 0 {
		log.Printf("WARN: dropped %d invalid cart items for session %s", dropped, sid)
		if err := l.SaveCart(ctx, sid, items); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// SaveCart replaces the session's cart.
func (l *Local) SaveCart(ctx context.Context, sid string, items []model.CartItem) error {
	return l.putJSON(ctx, cartKey(sid), items, CartTTL)
}

// Checkout loads the in-progress checkout form. A missing or unreadable form
// yields empty details.
func (l *Local) Checkout(ctx context.Context, sid string) (model.CheckoutDetails, error) {
	raw, err := l.store.Get(ctx, checkoutKey(sid))
	if errors.Is(err, ErrNotFound) {
		return model.CheckoutDetails{}, nil
	}
	if err != nil {
		return model.CheckoutDetails{}, err
	}
	v, err := normalize.Decode(raw)
	if err != nil {
		log.Printf("WARN: discarding unreadable checkout for session %s: %v", sid, err)
		return model.CheckoutDetails{}, nil
	}
	return normalize.CheckoutDetails(normalize.Map(v)), nil
}

// SaveCheckout replaces the checkout form.
func (l *Local) SaveCheckout(ctx context.Context, sid string, d model.CheckoutDetails) error {
	return l.putJSON(ctx, checkoutKey(sid), d, CartTTL)
}

// CheckoutOpen reports whether the checkout form was left open.
func (l *Local) CheckoutOpen(ctx context.Context, sid string) (bool, error) {
	raw, err := l.store.Get(ctx, checkoutOpenKey(sid))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return string(raw) == "1", nil
}

// SetCheckoutOpen records whether the checkout form is open.
func (l *Local) SetCheckoutOpen(ctx context.Context, sid string, open bool) error {
	if !open {
		return l.store.Delete(ctx, checkoutOpenKey(sid))
	}
	return l.store.Set(ctx, checkoutOpenKey(sid), []byte("1"), CartTTL)
}

// Clear drops the cart, checkout form and open flag together.
func (l *Local) Clear(ctx context.Context, sid string) error {
	return l.store.Delete(ctx, cartKey(sid), checkoutKey(sid), checkoutOpenKey(sid))
}

// Session loads a station session. Returns ErrNotFound once it has expired.
func (l *Local) Session(ctx context.Context, sid string) (Session, error) {
	raw, err := l.store.Get(ctx, sessionKey(sid))
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", sid, err)
	}
	return s, nil
}

// SaveSession stores a station session.
func (l *Local) SaveSession(ctx context.Context, s Session) error {
	return l.putJSON(ctx, sessionKey(s.ID), s, SessionTTL)
}

// DeleteSession removes the session and all state keyed by it.
func (l *Local) DeleteSession(ctx context.Context, sid string) error {
	return l.store.Delete(ctx, sessionKey(sid), cartKey(sid), checkoutKey(sid), checkoutOpenKey(sid))
}

// PutPreview stores an image and returns its preview id.
func (l *Local) PutPreview(ctx context.Context, contentType, filename string, data []byte) (string, error) {
	p := Preview{ID: uuid.NewString(), ContentType: contentType, Filename: filename, Data: data}
	if err := l.putJSON(ctx, previewKey(p.ID), p, PreviewTTL); err != nil {
		return "", err
	}
	return p.ID, nil
}

// Preview loads a held image.
func (l *Local) Preview(ctx context.Context, id string) (Preview, error) {
	raw, err := l.store.Get(ctx, previewKey(id))
	if err != nil {
		return Preview{}, err
	}
	var p Preview
	if err := json.Unmarshal(raw, &p); err != nil {
		return Preview{}, fmt.Errorf("decode preview %s: %w", id, err)
	}
	return p, nil
}

// ReleasePreviews frees held images. Empty ids are ignored.
func (l *Local) ReleasePreviews(ctx context.Context, ids ...string) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			keys = append(keys, previewKey(id))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return l.store.Delete(ctx, keys...)
}

// PreviewIDs collects the preview ids held by cart lines.
func PreviewIDs(items ...model.CartItem) []string {
	var ids []string
	for _, it := range items {
		for _, img := range it.CustomImages {
			if img.PreviewID != "" {
				ids = append(ids, img.PreviewID)
			}
		}
	}
	return ids
}

func (l *Local) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return l.store.Set(ctx, key, b, ttl)
}
