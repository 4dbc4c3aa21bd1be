package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// State is the dispatcher's attachment state.
type State string

// Dispatcher states.
const (
	StateDetached State = "DETACHED"
	StateAttached State = "ATTACHED"
)

// LifecycleEvent is a host lifecycle notification.
type LifecycleEvent string

// Lifecycle events.
const (
	EventResume  LifecycleEvent = "resume"
	EventPause   LifecycleEvent = "pause"
	EventDestroy LifecycleEvent = "destroy"
)

// ParseLifecycleEvent accepts resume, pause and destroy in any case.
func ParseLifecycleEvent(s string) (LifecycleEvent, error) {
	switch e := LifecycleEvent(strings.ToLower(strings.TrimSpace(s))); e {
	case EventResume, EventPause, EventDestroy:
		return e, nil
	default:
		return "", fmt.Errorf("unknown lifecycle event %q", s)
	}
}

type lifecycleMessage struct {
	Event string `json:"event"`
}

// DecodeLifecycle parses a geofence/host/lifecycle payload.
func DecodeLifecycle(payload []byte) (LifecycleEvent, error) {
	var msg lifecycleMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", fmt.Errorf("decoding lifecycle message: %w", err)
	}
	return ParseLifecycleEvent(msg.Event)
}
