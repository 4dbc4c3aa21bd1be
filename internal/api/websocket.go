package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/geofence-relay/internal/auth"
	"github.com/nerrad567/geofence-relay/internal/bridge"
	"github.com/nerrad567/geofence-relay/internal/infrastructure/config"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// channels lists what a client may subscribe to.
var channels = map[string]struct{}{
	bridge.TransitionChannel: {},
}

// WSMessage is the envelope for every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// WSClient is one connected scripting-layer socket.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn

	mu            sync.RWMutex
	send          chan []byte
	closed        bool
	subscriptions map[string]struct{}

	// Identity from the WebSocket ticket. Empty with auth off.
	subject string
	role    auth.Role
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
}

// handleWebSocket upgrades the connection. With API auth on, a ticket from
// POST /ws/ticket is required. New clients start subscribed to onTransition.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var entry wsTicket
	if s.secCfg.APIAuth.Enabled {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		var ok bool
		if entry, ok = s.tickets.redeem(ticket); !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, entry)
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func newWSClient(hub *Hub, conn *websocket.Conn, entry wsTicket) *WSClient {
	return &WSClient{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{bridge.TransitionChannel: {}},
		subject:       entry.subject,
		role:          entry.role,
	}
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(deadline)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		// Application pings count as liveness too.
		extend() //nolint:errcheck // Best-effort deadline reset
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // Write error caught below
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // Best-effort close frame
				return
			}
			if err := write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsFrame is an inbound frame. The payload stays raw until the handler for
// its type decodes it.
type wsFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (c *WSClient) handleMessage(data []byte) {
	var f wsFrame
	if err := json.Unmarshal(data, &f); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch f.Type {
	case WSTypeSubscribe:
		c.updateSubscriptions(f, true)
	case WSTypeUnsubscribe:
		c.updateSubscriptions(f, false)
	case WSTypePing:
		c.sendResponse(f.ID, WSTypePong, nil)
	default:
		c.sendError(f.ID, "unknown message type: "+f.Type)
	}
}

// updateSubscriptions applies a subscribe or unsubscribe frame. Subscribing
// is all-or-nothing: one unknown channel rejects the whole frame.
func (c *WSClient) updateSubscriptions(f wsFrame, subscribe bool) {
	var body WSSubscribePayload
	if len(f.Payload) == 0 || json.Unmarshal(f.Payload, &body) != nil {
		c.sendError(f.ID, "invalid "+f.Type+" payload")
		return
	}
	if subscribe {
		for _, ch := range body.Channels {
			if _, ok := channels[ch]; !ok {
				c.sendError(f.ID, "unknown channel: "+ch)
				return
			}
		}
	}

	c.mu.Lock()
	for _, ch := range body.Channels {
		if subscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if subscribe {
		key = "subscribed"
		c.hub.logger.Debug("websocket client subscribed", "subject", c.subject, "channels", body.Channels)
	}
	c.sendResponse(f.ID, WSTypeResponse, map[string]any{key: body.Channels})
}

// trySend queues data without blocking. It reports false when the buffer is
// full. A closed client accepts and discards.
func (c *WSClient) trySend(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close closes the send channel once, ending writePump.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	if data, err := encodeFrame(WSMessage{Type: msgType, ID: id, Payload: payload}); err == nil {
		c.trySend(data)
	}
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
