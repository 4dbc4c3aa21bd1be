package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/geofence-relay/internal/infrastructure/mqtt"
)

// Permissions tracks the host's location permission state.
type Permissions struct {
	client MQTTClient
	qos    byte
	topics mqtt.Topics

	mu        sync.RWMutex
	granted   bool
	known     bool
	updatedAt time.Time
	logger    Logger
	onChange  func(granted bool)
}

// NewPermissions creates a permission tracker. Call Start to begin
// receiving the host's state.
func NewPermissions(client MQTTClient, qos byte) *Permissions {
	if qos == 0 {
		qos = 1
	}
	return &Permissions{client: client, qos: qos, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (p *Permissions) SetLogger(logger Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = logger
}

// OnChange registers a callback run after each state change.
func (p *Permissions) OnChange(fn func(granted bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// Start subscribes to the retained permission topic.
func (p *Permissions) Start(_ context.Context) error {
	if err := p.client.Subscribe(p.topics.HostPermission(), p.qos, p.handleState); err != nil {
		return fmt.Errorf("subscribing to permission state: %w", err)
	}
	return nil
}

// Granted reports whether fine location permission is held.
// It is false until the host has published its state.
func (p *Permissions) Granted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.known && p.granted
}

// Known reports whether the host has published a state yet.
func (p *Permissions) Known() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.known
}

// UpdatedAt returns when the state was last received.
func (p *Permissions) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

// Request asks the host to prompt the user. The outcome arrives later as a
// new state on the permission topic.
func (p *Permissions) Request(_ context.Context) error {
	payload, err := json.Marshal(PermissionRequest{
		Permission:  FineLocationPermission,
		RequestCode: PermissionRequestCode,
	})
	if err != nil {
		return fmt.Errorf("encoding permission request: %w", err)
	}
	if err := p.client.Publish(p.topics.HostPermissionRequest(), payload, p.qos, false); err != nil {
		return fmt.Errorf("publishing permission request: %w", err)
	}
	return nil
}

func (p *Permissions) handleState(topic string, payload []byte) {
	var state PermissionState
	if err := json.Unmarshal(payload, &state); err != nil {
		p.mu.RLock()
		logger := p.logger
		p.mu.RUnlock()
		logger.Warn("discarding permission state", "topic", topic, "error", err)
		return
	}

	p.mu.Lock()
	changed := !p.known || p.granted != state.Granted
	p.granted = state.Granted
	p.known = true
	p.updatedAt = time.Now()
	fn := p.onChange
	logger := p.logger
	p.mu.Unlock()

	if changed {
		logger.Info("location permission state", "granted", state.Granted)
		if fn != nil {
			fn(state.Granted)
		}
	}
}
