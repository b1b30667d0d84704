package notifications

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// Event represents a payload delivered to notification subscribers.
type Event struct {
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub fans notification events out to connected subscribers, keyed by user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

// NewHub constructs a notification hub instance.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
	}
}

// Serve upgrades the HTTP connection to a WebSocket and registers the user
// subscriber.
func (h *Hub) Serve(userID string, w http.ResponseWriter, r *http.Request) {
	server := websocket.Server{
		Handshake: func(config *websocket.Config, req *http.Request) error {
			config.Protocol = append(config.Protocol, "json")
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			_ = conn.SetDeadline(time.Now().Add(5 * time.Minute))
			cl := &client{
				conn: conn,
				send: make(chan Event, 16),
			}

			h.addClient(userID, cl)
			defer h.removeClient(userID, cl)

			go h.writeLoop(cl)
			h.readLoop(cl)
		},
	}

	server.ServeHTTP(w, r)
}

// Broadcast delivers an event to all subscribers for the provided user ID.
func (h *Hub) Broadcast(userID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for cl := range h.clients[userID] {
		select {
		case cl.send <- event:
		default:
			// Drop when the buffer is full to avoid blocking other clients.
		}
	}
}

// BroadcastMany delivers an event to each supplied user ID.
func (h *Hub) BroadcastMany(userIDs []string, event Event) {
	for _, userID := range userIDs {
		h.Broadcast(userID, event)
	}
}

// Subscribers reports the number of connected clients for a user.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[userID])
}

func (h *Hub) addClient(userID string, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][cl] = struct{}{}
}

func (h *Hub) removeClient(userID string, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[userID]; ok {
		delete(clients, cl)
		if len(clients) == 0 {
			delete(h.clients, userID)
		}
	}
	close(cl.send)
	_ = cl.conn.Close()
}

func (h *Hub) writeLoop(cl *client) {
	for event := range cl.send {
		if err := websocket.JSON.Send(cl.conn, event); err != nil {
			return
		}
	}
}

func (h *Hub) readLoop(cl *client) {
	for {
		var discard string
		if err := websocket.Message.Receive(cl.conn, &discard); err != nil {
			return
		}
	}
}
