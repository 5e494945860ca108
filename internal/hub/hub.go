// Package hub tracks connected bridge clients and delivers response lines
// to them without ever blocking the device worker.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-notecard-server/internal/logging"
	"github.com/kstaniek/go-notecard-server/internal/metrics"
)

type BackpressurePolicy int

const (
	PolicyDrop BackpressurePolicy = iota
	PolicyKick
)

// ParsePolicy maps "drop" and "kick"; ok is false for anything else.
func ParsePolicy(s string) (BackpressurePolicy, bool) {
	switch s {
	case "drop":
		return PolicyDrop, true
	case "kick":
		return PolicyKick, true
	}
	return PolicyDrop, false
}

var nextID atomic.Uint64

// Client is one bridge connection. Out carries complete response lines
// (without the trailing newline) to the connection writer.
type Client struct {
	ID        uint64
	Out       chan []byte
	Closed    chan struct{}
	closeOnce sync.Once
}

// NewClient allocates a client with an out-queue of size buf.
func NewClient(buf int) *Client {
	if buf < 1 {
		buf = 1
	}
	return &Client{
		ID:     nextID.Add(1),
		Out:    make(chan []byte, buf),
		Closed: make(chan struct{}),
	}
}

// Close signals the client is closed (idempotent).
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.Closed)
	})
}

type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

func New() *Hub { return &Hub{clients: make(map[*Client]struct{})} }

// Add registers a client with the hub.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	prev := len(h.clients)
	h.clients[c] = struct{}{}
	cur := len(h.clients)
	h.mu.Unlock()
	metrics.SetHubClients(cur)
	if prev == 0 && cur == 1 {
		logging.L().Info("clients_first_connected")
	}
}

// Remove unregisters a client and updates metrics; safe to call multiple times.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	if existed {
		delete(h.clients, c)
	}
	cur := len(h.clients)
	h.mu.Unlock()
	c.Close()
	metrics.SetHubClients(cur)
	if existed && cur == 0 {
		logging.L().Info("clients_last_disconnected")
	}
}

// Deliver hands a response line to c honoring the backpressure policy. It
// reports whether the line was queued. Lines for clients that already left
// are discarded silently.
func (h *Hub) Deliver(c *Client, line []byte) bool {
	select {
	case <-c.Closed:
		return false
	default:
	}
	select {
	case c.Out <- line:
		return true
	default:
	}
	if h.Policy == PolicyKick {
		metrics.IncHubKick()
		logging.L().Warn("client_kicked", "client", c.ID, "queued", len(c.Out))
		c.Close() // writer exits; server removes on disconnect
	} else {
		metrics.IncHubDrop()
	}
	return false
}

// Broadcast delivers line to every client.
func (h *Hub) Broadcast(line []byte) {
	for _, c := range h.Snapshot() {
		h.Deliver(c, line)
	}
}

// Snapshot returns a slice copy of current clients (read-only use).
func (h *Hub) Snapshot() []*Client {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	return clients
}

// Count returns the number of active clients.
func (h *Hub) Count() int { h.mu.RLock(); n := len(h.clients); h.mu.RUnlock(); return n }
