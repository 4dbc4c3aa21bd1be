package api

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/geofence-relay/internal/infrastructure/config"
	"github.com/nerrad567/geofence-relay/internal/infrastructure/logging"
)

// Hub fans relay events out to WebSocket clients. It implements
// bridge.Emitter.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - The hub lock is never held while a client lock is taken.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex

	dropped atomic.Uint64
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", client.subject, "clients", n)
}

// Unregister removes a client and closes its send channel. Calling it for a
// client that is already gone is a no-op.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		client.close()
		h.logger.Debug("websocket client disconnected", "subject", client.subject, "clients", n)
	}
}

// Broadcast sends an event to every client subscribed to channel.
// A client whose buffer is full misses the event and the drop is counted.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}

	sent := 0
	for _, client := range h.snapshot(false) {
		if !client.isSubscribed(channel) {
			continue
		}
		if client.trySend(data) {
			sent++
		} else {
			h.dropped.Add(1)
			h.logger.Warn("websocket client too slow, event dropped", "subject", client.subject, "channel", channel)
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were not delivered because a client's
// send buffer was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// snapshot copies the client set so sends happen without the hub lock.
// With clear set the hub is emptied in the same critical section.
func (h *Hub) snapshot(clear bool) []*WSClient {
	if clear {
		h.mu.Lock()
		defer h.mu.Unlock()
	} else {
		h.mu.RLock()
		defer h.mu.RUnlock()
	}
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	if clear {
		h.clients = make(map[*WSClient]struct{})
	}
	return clients
}

func (h *Hub) closeAll() {
	for _, client := range h.snapshot(true) {
		client.close()
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// encodeFrame stamps an outbound frame with the current UTC time.
func encodeFrame(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}
