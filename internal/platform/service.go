package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/geofence-relay/internal/geofence"
	"github.com/nerrad567/geofence-relay/internal/infrastructure/mqtt"
)

// DefaultRequestTimeout applies when Config.RequestTimeout is zero.
const DefaultRequestTimeout = 30 * time.Second

// MQTTClient is the broker surface the adapter needs.
// main.go adapts *mqtt.Client to it.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Logger defines the logging interface used by the adapter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config configures the platform adapter.
type Config struct {
	// QoS for requests and subscriptions. Default: 1.
	QoS byte

	// RequestTimeout rejects an unanswered request. Default: 30s.
	RequestTimeout time.Duration
}

type pendingRequest struct {
	op     string
	result *geofence.Result[struct{}]
	timer  *time.Timer
}

// Service implements geofence.Platform over MQTT.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Service struct {
	client  MQTTClient
	qos     byte
	timeout time.Duration
	logger  Logger
	topics  mqtt.Topics
	newID   func() string

	mu      sync.Mutex
	pending map[string]*pendingRequest
	started bool
	closed  bool
}

// NewService creates an adapter. Call Start before issuing requests.
func NewService(client MQTTClient, cfg Config) *Service {
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Service{
		client:  client,
		qos:     cfg.QoS,
		timeout: cfg.RequestTimeout,
		logger:  noopLogger{},
		newID:   func() string { return "req-" + uuid.NewString() },
		pending: make(map[string]*pendingRequest),
	}
}

// SetLogger sets the logger for the adapter.
func (s *Service) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// Start subscribes to platform responses.
func (s *Service) Start(_ context.Context) error {
	if err := s.client.Subscribe(s.topics.AllPlatformResponses(), s.qos, s.handleResponse); err != nil {
		return fmt.Errorf("subscribing to platform responses: %w", err)
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

// Close rejects every pending request with ErrClosed.
func (s *Service) Close() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]*pendingRequest)
	s.closed = true
	s.mu.Unlock()

	for _, p := range pending {
		p.timer.Stop()
		p.result.Reject(geofence.Unknown("relay shutting down", ErrClosed))
	}
}

// PendingCount returns the number of requests awaiting a response.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// AddGeofences asks the platform to monitor req.Geofences under req.Handle.
// ctx is not used to cancel the request; once published it always settles.
func (s *Service) AddGeofences(_ context.Context, req geofence.AddRequest) *geofence.Result[struct{}] {
	handle := req.Handle
	return s.send(mqtt.OpAdd, Request{
		Geofences:      req.Geofences,
		Handle:         &handle,
		InitialTrigger: req.InitialTrigger,
	})
}

// RemoveGeofences asks the platform to stop monitoring ids.
func (s *Service) RemoveGeofences(_ context.Context, ids []string) *geofence.Result[struct{}] {
	return s.send(mqtt.OpRemove, Request{IDs: ids})
}

// RemoveHandle asks the platform to drop every region routed to handle.
func (s *Service) RemoveHandle(_ context.Context, handle geofence.Handle) *geofence.Result[struct{}] {
	return s.send(mqtt.OpClear, Request{Handle: &handle})
}

func (s *Service) send(op string, req Request) *geofence.Result[struct{}] {
	result := geofence.NewResult[struct{}]()

	req.RequestID = s.newID()
	req.Op = op

	payload, err := json.Marshal(req)
	if err != nil {
		result.Reject(geofence.Unknown("encoding platform request", err))
		return result
	}

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		result.Reject(geofence.Unknown("relay shutting down", ErrClosed))
		return result
	case !s.started:
		s.mu.Unlock()
		result.Reject(geofence.Unknown("platform adapter", ErrNotStarted))
		return result
	}
	p := &pendingRequest{op: op, result: result}
	p.timer = time.AfterFunc(s.timeout, func() { s.expire(req.RequestID) })
	s.pending[req.RequestID] = p
	logger := s.logger
	s.mu.Unlock()

	// Register before publishing so a fast response cannot race the map.
	if err := s.client.Publish(s.topics.PlatformRequest(op), payload, s.qos, false); err != nil {
		if p := s.take(req.RequestID); p != nil {
			p.timer.Stop()
			p.result.Reject(geofence.Unknown("publishing platform request", err))
		}
		return result
	}

	logger.Debug("platform request published", "op", op, "request_id", req.RequestID)
	return result
}

// take removes and returns the pending request for id, or nil.
func (s *Service) take(id string) *pendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return nil
	}
	delete(s.pending, id)
	return p
}

func (s *Service) expire(id string) {
	p := s.take(id)
	if p == nil {
		return
	}
	s.log().Warn("platform request timed out", "op", p.op, "request_id", id, "timeout", s.timeout)
	p.result.Reject(&geofence.Error{
		Kind:    geofence.UnknownError,
		Code:    geofence.CodeUnknown,
		Message: fmt.Sprintf("platform did not answer %s within %v", p.op, s.timeout),
		Err:     ErrTimeout,
	})
}

func (s *Service) log() Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// handleResponse settles the request named by the response topic.
func (s *Service) handleResponse(topic string, payload []byte) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		s.log().Warn("discarding platform response", "topic", topic, "error", fmt.Errorf("%w: %w", ErrBadResponse, err))
		return
	}

	id := mqtt.LastSegment(topic)
	if id == "" {
		id = resp.RequestID
	}

	p := s.take(id)
	if p == nil {
		s.log().Debug("ignoring response for unknown or settled request", "request_id", id)
		return
	}
	p.timer.Stop()

	if resp.StatusCode == geofence.StatusSuccess {
		p.result.Resolve(struct{}{})
		return
	}

	message := resp.Message
	if p.op == mqtt.OpClear && message == "" {
		message = "Could not remove all locations"
	}
	p.result.Reject(geofence.FromStatus(resp.StatusCode, message))
}
