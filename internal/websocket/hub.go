// Package websocket pushes ledger changes to connected status pages.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/duesbot/internal/model"
)

const (
	TypeSnapshot = "ledger_snapshot"
	TypeUpdated  = "ledger_updated"
)

// Message is one frame sent to clients. Ledger is the full state at send time.
type Message struct {
	Type        string       `json:"type"`
	Ledger      model.Ledger `json:"ledger"`
	PaidCount   int          `json:"paid_count"`
	UnpaidCount int          `json:"unpaid_count"`
}

func NewMessage(typ string, l model.Ledger) Message {
	return Message{
		Type:        typ,
		Ledger:      l,
		PaidCount:   l.PaidCount(),
		UnpaidCount: l.UnpaidCount(),
	}
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes c and closes its send channel. Calling it twice is safe.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast queues msg for every client. Clients whose buffer is full miss it.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("slow clients missed an update", "type", msg.Type, "count", dropped)
	}
}

// LedgerChanged broadcasts l as an update. It matches ledger.Engine.OnChange.
func (h *Hub) LedgerChanged(l model.Ledger) {
	h.Broadcast(NewMessage(TypeUpdated, l))
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
