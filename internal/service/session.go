package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/station/internal/auth"
	"github.com/kiwari-pos/station/internal/cache"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/upstream"
)

// Authenticator logs staff in against the backend. Satisfied by *upstream.Client.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (upstream.LoginResult, error)
}

// SessionBackend is the per-session backend surface used by the session
// service. Satisfied by *upstream.Conn.
type SessionBackend interface {
	Logout(ctx context.Context) error
	AccessToken(ctx context.Context) (string, error)
}

// LoginResponse is a new station session.
type LoginResponse struct {
	Token     string      `json:"token"`
	SessionID string      `json:"sessionId"`
	Staff     model.Staff `json:"user"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// SessionService creates and ends station sessions and hands out the backend
// tokens bound to them.
type SessionService struct {
	auth    Authenticator
	local   *cache.Local
	connect func(ts upstream.TokenSource) SessionBackend
	secret  string
	now     func() time.Time

	mu     sync.Mutex
	latest string
}

// NewSessionService creates a SessionService. connect binds a token source to
// a backend connection.
func NewSessionService(a Authenticator, local *cache.Local, connect func(ts upstream.TokenSource) SessionBackend, jwtSecret string) *SessionService {
	return &SessionService{auth: a, local: local, connect: connect, secret: jwtSecret, now: time.Now}
}

// Login authenticates against the backend and opens a station session.
func (s *SessionService) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	res, err := s.auth.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	now := s.now()
	sess := cache.Session{
		ID:           id.String(),
		UserID:       res.Staff.ID,
		Name:         res.Staff.Name,
		Role:         res.Staff.Role,
		AccessToken:  res.Tokens.Access,
		RefreshToken: res.Tokens.Refresh,
		CreatedAt:    now,
	}
	if err := s.local.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	token, err := auth.GenerateToken(s.secret, id, res.Staff)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	s.touch(sess.ID)

	return &LoginResponse{
		Token:     token,
		SessionID: sess.ID,
		Staff:     res.Staff,
		ExpiresAt: now.Add(auth.TokenTTL),
	}, nil
}

// Logout ends the session on the backend and drops everything the station
// holds for it. Backend failures are logged; the local session always ends.
func (s *SessionService) Logout(ctx context.Context, sid string) error {
	if err := s.connect(s.Tokens(sid)).Logout(ctx); err != nil {
		log.Printf("WARN: backend logout for session %s: %v", sid, err)
	}

	if items, err := s.local.Cart(ctx, sid); err == nil {
		if err := s.local.ReleasePreviews(ctx, cache.PreviewIDs(items...)...); err != nil {
			log.Printf("WARN: release previews for session %s: %v", sid, err)
		}
	}
	if err := s.local.DeleteSession(ctx, sid); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	s.mu.Lock()
	if s.latest == sid {
		s.latest = ""
	}
	s.mu.Unlock()
	return nil
}

// Latest returns the most recently active session, used for background
// backend calls.
func (s *SessionService) Latest() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latest != ""
}

// BackendToken returns a fresh access token of the latest session.
func (s *SessionService) BackendToken(ctx context.Context) (string, error) {
	sid, ok := s.Latest()
	if !ok {
		return "", ErrNoSession
	}
	return s.connect(s.Tokens(sid)).AccessToken(ctx)
}

func (s *SessionService) touch(sid string) {
	s.mu.Lock()
	s.latest = sid
	s.mu.Unlock()
}

// Tokens returns the backend token source of a station session.
func (s *SessionService) Tokens(sid string) upstream.TokenSource {
	return &sessionTokens{svc: s, sid: sid}
}

// sessionTokens reads and rotates backend tokens stored in the cache.
type sessionTokens struct {
	svc *SessionService
	sid string
}

func (t *sessionTokens) Tokens(ctx context.Context) (upstream.Tokens, error) {
	sess, err := t.svc.local.Session(ctx, t.sid)
	if err != nil {
		return upstream.Tokens{}, err
	}
	t.svc.touch(t.sid)
	return upstream.Tokens{Access: sess.AccessToken, Refresh: sess.RefreshToken}, nil
}

func (t *sessionTokens) SaveTokens(ctx context.Context, tokens upstream.Tokens) error {
	sess, err := t.svc.local.Session(ctx, t.sid)
	if err != nil {
		return err
	}
	sess.AccessToken = tokens.Access
	sess.RefreshToken = tokens.Refresh
	return t.svc.local.SaveSession(ctx, sess)
}
