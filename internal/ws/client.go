package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/kiwari-pos/station/internal/auth"
	"github.com/kiwari-pos/station/internal/enum"
	"github.com/kiwari-pos/station/internal/middleware"
)

const (
	writeWait = 10 * time.Second

	// A screen that misses pongs for this long is dropped.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Screens only send control frames.
	maxMessageSize = 512

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // access is checked against the session token
	},
}

// Client is one connected screen.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	display string
	send    chan []byte
}

// Hello is the first event a screen receives after connecting.
type Hello struct {
	Display string `json:"display"`
	Role    string `json:"role"`
}

// readLoop waits for the screen to go away. Pongs extend the read deadline.
func (c *Client) readLoop() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WARN: %s screen disconnected: %v", c.display, err)
			}
			return
		}
	}
}

// writeLoop sends each event as its own text frame, so screens can decode
// every frame as one JSON event, and pings the screen between events.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Dropped by the hub.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// screenToken reads the session token from the query string, falling back to
// the session cookie browsers send with the upgrade request.
func screenToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if c, err := r.Cookie(middleware.CookieName); err == nil {
		return c.Value
	}
	return ""
}

// ServeWS connects a screen to its display room.
// Endpoint: WS /ws/displays/{display}?token=JWT
func ServeWS(hub *Hub, jwtSecret string, w http.ResponseWriter, r *http.Request) {
	tokenStr := screenToken(r)
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := auth.ValidateToken(jwtSecret, tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	display := strings.ToUpper(chi.URLParam(r, "display"))
	if !middleware.CanUseDisplay(claims.Role, display) {
		http.Error(w, "display access denied", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ERROR: websocket upgrade for %s: %v", display, err)
		return
	}

	client := &Client{
		hub:     hub,
		conn:    conn,
		display: display,
		send:    make(chan []byte, sendBuffer),
	}
	if hello, err := json.Marshal(NewEvent(enum.EventDisplayConnected, Hello{Display: display, Role: claims.Role})); err == nil {
		client.send <- hello
	}
	hub.register <- client

	go client.writeLoop()
	go client.readLoop()
}
