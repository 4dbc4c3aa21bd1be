package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/geofence-relay/internal/infrastructure/config"
)

// Client owns the relay's single broker connection. The platform adapter,
// the host monitor feeds and the headless task sink all share it.
//
// Subscriptions are tracked client-side and replayed after every reconnect,
// and the retained geofence/relay/status topic follows the connection.
// All methods are safe for concurrent use.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	subMu sync.RWMutex
	subs  map[string]subscription

	connected atomic.Bool
	connects  atomic.Uint64
	received  atomic.Uint64
	published atomic.Uint64
	failures  atomic.Uint64

	hookMu       sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one message. topic has wildcards expanded.
// Handlers run on paho goroutines and should return quickly; a returned
// error is logged and counted but does not affect acknowledgement.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Stats is a point-in-time view of the connection.
type Stats struct {
	Connected     bool   `json:"connected"`
	Subscriptions int    `json:"subscriptions"`
	Reconnects    uint64 `json:"reconnects"`
	Received      uint64 `json:"messages_received"`
	Published     uint64 `json:"messages_published"`
	HandlerErrors uint64 `json:"handler_errors"`
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{cfg: cfg, subs: make(map[string]subscription)}
}

// Connect dials the broker and waits for the first CONNACK, bounded by ctx
// and the connect timeout. The broker publishes a retained offline status
// on the relay's behalf if the connection later drops uncleanly.
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	opts, err := buildClientOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()

	waitCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	select {
	case <-token.Done():
	case <-waitCtx.Done():
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, waitCtx.Err())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; callers may subscribe as
	// soon as Connect returns.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.connects.Add(1)

	c.subMu.RLock()
	for topic, sub := range c.subs {
		c.paho.Subscribe(topic, sub.qos, c.wrap(sub.handler))
	}
	c.subMu.RUnlock()

	c.publishStatus(statusOnline, "")

	c.hookMu.RLock()
	fn := c.onConnect
	c.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.hookMu.RLock()
	fn := c.onDisconnect
	c.hookMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Client) publishStatus(status, reason string) pahomqtt.Token {
	payload := buildStatusPayload(c.cfg.Broker.ClientID, status, reason)
	return c.paho.Publish(Topics{}.RelayStatus(), byte(c.cfg.QoS), true, payload)
}

// Close publishes a retained offline status and disconnects. Closing a
// client that never connected is a no-op.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishStatus(statusOffline, "graceful_shutdown").WaitTimeout(defaultPublishTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.paho != nil && c.paho.IsConnected()
}

// QoS returns the configured default QoS level.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

// Stats returns connection counters for the metrics endpoint.
func (c *Client) Stats() Stats {
	s := Stats{
		Connected:     c.IsConnected(),
		Subscriptions: c.SubscriptionCount(),
		Received:      c.received.Load(),
		Published:     c.published.Load(),
		HandlerErrors: c.failures.Load(),
	}
	if n := c.connects.Load(); n > 1 {
		s.Reconnects = n - 1
	}
	return s
}

// SetOnConnect registers fn to run after the initial connect and every
// reconnect, once subscriptions have been restored.
func (c *Client) SetOnConnect(fn func()) {
	c.hookMu.Lock()
	c.onConnect = fn
	c.hookMu.Unlock()
}

// SetOnDisconnect registers fn to run when the connection is lost.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.hookMu.Lock()
	c.onDisconnect = fn
	c.hookMu.Unlock()
}

// SetLogger sets where handler errors and recovered panics are reported.
func (c *Client) SetLogger(logger Logger) {
	c.hookMu.Lock()
	c.logger = logger
	c.hookMu.Unlock()
}

func (c *Client) currentLogger() Logger {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.logger
}

func (c *Client) wrap(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs handler with panic recovery. A panic counts as a handler
// error.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	c.received.Add(1)
	defer func() {
		if r := recover(); r != nil {
			c.failures.Add(1)
			if logger := c.currentLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		c.failures.Add(1)
		if logger := c.currentLogger(); logger != nil {
			logger.Warn("MQTT handler returned error", "topic", topic, "error", err)
		}
	}
}
