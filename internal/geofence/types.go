package geofence

import (
	"encoding/json"
	"fmt"
	"time"
)

// TransitionType is the normalised transition kind delivered to subscribers.
type TransitionType string

// Transition types.
const (
	TransitionEnter   TransitionType = "ENTER"
	TransitionExit    TransitionType = "EXIT"
	TransitionUnknown TransitionType = "UNKNOWN"
)

// Platform transition codes, as carried in RawSignal.Transition and in a
// Definition's mask.
const (
	PlatformEnter = 1
	PlatformExit  = 2
	PlatformDwell = 4
)

// TransitionMask is a bitset over the platform transition codes.
type TransitionMask int

// DefaultTransitions requests enter and exit. Dwell is never requested.
const DefaultTransitions = TransitionMask(PlatformEnter | PlatformExit)

// Has reports whether the mask includes the platform code.
func (m TransitionMask) Has(code int) bool {
	return int(m)&code != 0
}

// NeverExpire keeps a region registered until it is removed.
const NeverExpire time.Duration = -1

// InitialTriggerEnter asks the platform to fire ENTER at registration time if
// the device is already inside the region.
const InitialTriggerEnter = 1

// Definition is a validated circular region. It is a value object and is not
// modified after Options.Definition builds it.
type Definition struct {
	ID             string         `json:"id"`
	Latitude       float64        `json:"latitude"`
	Longitude      float64        `json:"longitude"`
	Radius         float32        `json:"radius"`
	Transitions    TransitionMask `json:"transition_types"`
	LoiteringDelay int            `json:"loitering_delay"`

	// Expiration is NeverExpire or a positive duration.
	Expiration time.Duration `json:"-"`
}

// ExpirationMillis returns the expiration in the platform's wire form:
// milliseconds, or -1 for NeverExpire.
func (d Definition) ExpirationMillis() int64 {
	if d.Expiration == NeverExpire {
		return -1
	}
	return d.Expiration.Milliseconds()
}

// MarshalJSON adds expiration_duration in milliseconds.
func (d Definition) MarshalJSON() ([]byte, error) {
	type plain Definition
	return json.Marshal(struct {
		plain
		ExpirationDuration int64 `json:"expiration_duration"`
	}{plain(d), d.ExpirationMillis()})
}

// TransitionEvent is a classified transition ready for delivery.
type TransitionEvent struct {
	IDs  []string       `json:"ids"`
	Type TransitionType `json:"transitionType"`
}

// MarshalJSON always writes ids as an array, never null.
func (e TransitionEvent) MarshalJSON() ([]byte, error) {
	ids := e.IDs
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(struct {
		IDs  []string       `json:"ids"`
		Type TransitionType `json:"transitionType"`
	}{ids, e.Type})
}

// String implements fmt.Stringer.
func (e TransitionEvent) String() string {
	return fmt.Sprintf("%s%v", e.Type, e.IDs)
}

// RawSignal is a transition signal as the platform publishes it.
type RawSignal struct {
	HasError      bool     `json:"has_error"`
	ErrorCode     int      `json:"error_code,omitempty"`
	Transition    int      `json:"transition"`
	TriggeringIDs []string `json:"triggering_ids"`
}

// Constants returns the values exposed to the scripting layer.
func Constants() map[string]any {
	return map[string]any{
		"TRANSITION_TYPES": map[string]string{
			string(TransitionEnter): string(TransitionEnter),
			string(TransitionExit):  string(TransitionExit),
		},
	}
}
