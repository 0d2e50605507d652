package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"vault_go/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 64
)

// client is one subscriber. All writes to the connection go through the send
// channel and a single writer goroutine; gorilla/websocket allows at most one
// concurrent writer per connection. The done channel is closed exactly once
// when the client is dropped; send stays open so broadcasters never race a
// close.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Hub broadcasts vault events to websocket subscribers. Subscribers are
// receive-only; a client whose send buffer fills up is dropped rather than
// allowed to block the broadcast path.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]bool
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("stream upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	infra.GlobalMetrics.IncrementSubscribers()
	slog.Debug("stream subscriber connected", slog.String("remote", conn.RemoteAddr().String()))

	go h.writePump(c)

	// Read pump: subscribers send nothing meaningful, but reading detects
	// closes and answers pings.
	go func() {
		defer h.drop(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writePump is the connection's only writer. It exits when the client is
// dropped or a write fails.
func (h *Hub) writePump(c *client) {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("dropping stream subscriber on failed write", slog.Any("error", err))
				h.drop(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

// Broadcast queues the event for every subscriber as JSON. A subscriber with
// a full send buffer is dropped.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal stream event", slog.Any("error", err))
		return
	}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			slog.Debug("dropping slow stream subscriber")
			h.drop(c)
		}
	}
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.drop(c)
	}
}

// SubscriberCount returns the number of connected clients.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// drop unregisters the client exactly once and stops its write pump.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		close(c.done)
		c.conn.Close()
		infra.GlobalMetrics.DecrementSubscribers()
	}
}
