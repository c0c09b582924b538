package ws

import (
	"encoding/json"
	"sync"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent marshals payload into an Event. A payload that cannot be encoded
// is sent as null.
func NewEvent(eventType string, payload any) Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return Event{Type: eventType, Payload: raw}
}

// displayEvent routes an event to one display room, or to every room when
// Display is empty.
type displayEvent struct {
	Display string
	Event   Event
}

// Hub maintains the set of connected screens and broadcasts messages to them
type Hub struct {
	// Registered clients by display
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	broadcast chan *displayEvent

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *displayEvent, 256),
	}
}

// Run starts the hub's main loop
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.display] == nil {
				h.rooms[client.display] = make(map[*Client]bool)
			}
			h.rooms[client.display][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				continue
			}

			h.mu.Lock()
			if event.Display == "" {
				for display := range h.rooms {
					h.send(display, message)
				}
			} else {
				h.send(event.Display, message)
			}
			h.mu.Unlock()
		}
	}
}

// send delivers message to one room. Caller holds mu.
func (h *Hub) send(display string, message []byte) {
	for client := range h.rooms[display] {
		select {
		case client.send <- message:
		default:
			// Client's send buffer is full, close and unregister
			h.remove(client)
		}
	}
}

// remove drops a client and closes its send channel. Caller holds mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.display]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.display)
	}
}

// BroadcastToDisplay sends an event to every screen showing display.
func (h *Hub) BroadcastToDisplay(display string, event Event) {
	h.broadcast <- &displayEvent{
		Display: display,
		Event:   event,
	}
}

// Broadcast sends an event to every connected screen.
func (h *Hub) Broadcast(event Event) {
	h.broadcast <- &displayEvent{Event: event}
}

// Clients returns the number of screens connected to display.
func (h *Hub) Clients(display string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[display])
}
