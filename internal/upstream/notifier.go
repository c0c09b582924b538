package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kiwari-pos/station/internal/enum"
)

const (
	// Time allowed to write a control message to the backend
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the backend
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// Event is a push message from the backend. The payload is opaque: it only
// tells the station that something changed.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Notifier keeps a websocket open to the backend and reports order status
// events. It reconnects with exponential backoff until its context ends.
type Notifier struct {
	url        string
	token      func(ctx context.Context) (string, error)
	handle     func(Event)
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewNotifier creates a notifier for wsURL. token supplies the access token
// for each connection attempt; handle is called for every status event.
func NewNotifier(wsURL string, token func(ctx context.Context) (string, error), handle func(Event)) *Notifier {
	return &Notifier{
		url:        wsURL,
		token:      token,
		handle:     handle,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		minBackoff: time.Second,
		maxBackoff: time.Minute,
	}
}

// Run connects and listens until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	backoff := n.minBackoff
	for {
		connected, err := n.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = n.minBackoff
		}
		log.Printf("WARN: backend notifier: %v (retry in %s)", err, backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > n.maxBackoff {
			backoff = n.maxBackoff
		}
	}
}

// listen holds one connection. connected reports whether the dial succeeded.
func (n *Notifier) listen(ctx context.Context) (connected bool, err error) {
	token, err := n.token(ctx)
	if err != nil {
		return false, fmt.Errorf("no backend token: %w", err)
	}
	u, err := url.Parse(n.url)
	if err != nil {
		return false, fmt.Errorf("parse notifier url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := n.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go n.pingLoop(ctx, conn, done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		n.dispatch(message)
	}
}

// pingLoop keeps the connection alive and closes it when ctx ends, which
// unblocks the read loop.
func (n *Notifier) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// dispatch handles a frame, which may batch several newline-separated events.
func (n *Notifier) dispatch(message []byte) {
	for _, line := range bytes.Split(message, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			log.Printf("WARN: backend notifier: malformed event: %v", err)
			continue
		}
		if ev.Type == enum.EventOrderStatusUpdate {
			n.handle(ev)
		}
	}
}
