package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kiwari-pos/station/internal/drawer"
	"github.com/kiwari-pos/station/internal/enum"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/upstream"
	"github.com/shopspring/decimal"
)

// DrawerBackend defines the backend calls needed by the drawer service.
// Satisfied by *upstream.Conn; narrow interface for testability.
type DrawerBackend interface {
	CurrentDrawer(ctx context.Context) (*model.DrawerSession, error)
	OpenDrawer(ctx context.Context, amount decimal.Decimal, notes string) (model.DrawerSession, error)
	CloseDrawer(ctx context.Context, r upstream.CloseRequest) (model.DrawerSession, error)
	AddCash(ctx context.Context, amount decimal.Decimal, notes string) (model.DrawerSession, error)
	TakeCash(ctx context.Context, amount decimal.Decimal, notes string) (model.DrawerSession, error)
	DrawerSessions(ctx context.Context, limit int) ([]model.DrawerSession, error)
	DrawerTransactions(ctx context.Context, sessionID string) ([]model.DrawerOperation, error)
	DrawerLogs(ctx context.Context, sessionID string) ([]model.DrawerOperation, error)
}

// DrawerView is a till session with its report.
type DrawerView struct {
	Session model.DrawerSession `json:"session"`
	Summary drawer.Summary      `json:"summary"`
}

// DefaultSessionLimit caps drawer history listings.
const DefaultSessionLimit = 50

// DrawerService runs the till: opening, cash movements, closing and history.
type DrawerService struct {
	connect func(sid string) DrawerBackend
}

// NewDrawerService creates a new DrawerService.
func NewDrawerService(connect func(sid string) DrawerBackend) *DrawerService {
	return &DrawerService{connect: connect}
}

func viewOf(s model.DrawerSession, closing *decimal.Decimal) *DrawerView {
	return &DrawerView{Session: s, Summary: drawer.Summarize(s, closing)}
}

// Current returns the open session, or nil when the drawer is closed.
func (s *DrawerService) Current(ctx context.Context, sid string) (*DrawerView, error) {
	session, err := s.connect(sid).CurrentDrawer(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	return viewOf(*session, nil), nil
}

func (s *DrawerService) open(ctx context.Context, conn DrawerBackend) (*model.DrawerSession, error) {
	session, err := conn.CurrentDrawer(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Status != enum.DrawerStatusOpen {
		return nil, ErrDrawerNotOpen
	}
	return session, nil
}

// Open starts a till session with the counted opening float.
func (s *DrawerService) Open(ctx context.Context, sid string, amount decimal.Decimal, notes string) (*DrawerView, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	conn := s.connect(sid)
	current, err := conn.CurrentDrawer(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Status == enum.DrawerStatusOpen {
		return nil, ErrDrawerOpen
	}

	session, err := conn.OpenDrawer(ctx, amount, strings.TrimSpace(notes))
	if err != nil {
		return nil, err
	}
	return viewOf(session, nil), nil
}

// Close ends the open session. The discrepancy against the expected amount is
// computed here and sent along; it is advisory and never blocks closing.
func (s *DrawerService) Close(ctx context.Context, sid string, closing decimal.Decimal, notes string) (*DrawerView, error) {
	if closing.IsNegative() {
		return nil, ErrInvalidAmount
	}
	conn := s.connect(sid)
	current, err := s.open(ctx, conn)
	if err != nil {
		return nil, err
	}

	report := drawer.Summarize(*current, &closing)
	closed, err := conn.CloseDrawer(ctx, upstream.CloseRequest{
		ClosingAmount:  closing,
		ExpectedAmount: report.Expected,
		Discrepancy:    *report.Discrepancy,
		Notes:          strings.TrimSpace(notes),
	})
	if err != nil {
		return nil, err
	}
	if closed.ID == "" {
		closed = *current
		closed.Status = enum.DrawerStatusClosed
	}
	if closed.ClosingAmount == nil {
		closed.ClosingAmount = &closing
	}
	return viewOf(closed, &closing), nil
}

// CashIn records a pay-in to the open session.
func (s *DrawerService) CashIn(ctx context.Context, sid string, amount decimal.Decimal, notes string) (*DrawerView, error) {
	return s.move(ctx, sid, amount, notes, DrawerBackend.AddCash)
}

// CashOut records a pay-out from the open session.
func (s *DrawerService) CashOut(ctx context.Context, sid string, amount decimal.Decimal, notes string) (*DrawerView, error) {
	return s.move(ctx, sid, amount, notes, DrawerBackend.TakeCash)
}

func (s *DrawerService) move(ctx context.Context, sid string, amount decimal.Decimal, notes string,
	call func(DrawerBackend, context.Context, decimal.Decimal, string) (model.DrawerSession, error)) (*DrawerView, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	conn := s.connect(sid)
	if _, err := s.open(ctx, conn); err != nil {
		return nil, err
	}
	session, err := call(conn, ctx, amount, strings.TrimSpace(notes))
	if err != nil {
		return nil, err
	}
	return viewOf(session, nil), nil
}

// Sessions returns the session history, each with its report.
func (s *DrawerService) Sessions(ctx context.Context, sid string, limit int) ([]DrawerView, error) {
	if limit <= 0 || limit > DefaultSessionLimit {
		limit = DefaultSessionLimit
	}
	sessions, err := s.connect(sid).DrawerSessions(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]DrawerView, 0, len(sessions))
	for _, ds := range sessions {
		out = append(out, *viewOf(ds, nil))
	}
	return out, nil
}

// Transactions lists sales and cash movements of a session.
func (s *DrawerService) Transactions(ctx context.Context, sid, sessionID string) ([]model.DrawerOperation, error) {
	return s.connect(sid).DrawerTransactions(ctx, sessionID)
}

// Logs lists the audit log of a session.
func (s *DrawerService) Logs(ctx context.Context, sid, sessionID string) ([]model.DrawerOperation, error) {
	return s.connect(sid).DrawerLogs(ctx, sessionID)
}

// Export writes the session history as a spreadsheet.
func (s *DrawerService) Export(ctx context.Context, sid string, limit int, w io.Writer) error {
	if limit <= 0 || limit > DefaultSessionLimit {
		limit = DefaultSessionLimit
	}
	sessions, err := s.connect(sid).DrawerSessions(ctx, limit)
	if err != nil {
		return err
	}
	if err := drawer.ExportSessions(w, sessions); err != nil {
		return fmt.Errorf("export drawer sessions: %w", err)
	}
	return nil
}
