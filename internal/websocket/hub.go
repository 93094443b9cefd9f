// Package websocket carries the operator telemetry feed: audit events and
// ledger credits are pushed to connected admin clients as they happen.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Telemetry message kinds.
const (
	KindAudit  = "audit"
	KindCredit = "credit"
)

// Message is one telemetry event on the admin feed.
type Message struct {
	Kind       string         `json:"kind"`
	ProviderID string         `json:"provider_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	At         time.Time      `json:"at"`
	Data       map[string]any `json:"data,omitempty"`
}

// NewMessage creates a telemetry message stamped with the current time.
func NewMessage(kind, providerID, userID string, data map[string]any) Message {
	return Message{
		Kind:       kind,
		ProviderID: providerID,
		UserID:     userID,
		At:         time.Now().UTC(),
		Data:       data,
	}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients. A client whose
// buffer is full misses the message; the postback path never waits on a
// slow admin connection.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
