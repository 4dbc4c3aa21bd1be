package platform

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/geofence-relay/internal/geofence"
)

// SignalHandler receives decoded raw signals.
type SignalHandler func(raw geofence.RawSignal)

// SubscribeSignals routes raw signals delivered to handle into fn.
// Undecodable payloads are logged and dropped.
func (s *Service) SubscribeSignals(handle geofence.Handle, fn SignalHandler) error {
	err := s.client.Subscribe(handle.Topic, s.qos, func(topic string, payload []byte) {
		raw, err := DecodeSignal(payload)
		if err != nil {
			s.log().Warn("discarding undecodable signal", "topic", topic, "error", err)
			return
		}
		fn(raw)
	})
	if err != nil {
		return fmt.Errorf("subscribing to signals on %s: %w", handle.Topic, err)
	}
	return nil
}

// DecodeSignal parses a raw signal payload.
func DecodeSignal(payload []byte) (geofence.RawSignal, error) {
	var raw geofence.RawSignal
	if err := json.Unmarshal(payload, &raw); err != nil {
		return geofence.RawSignal{}, fmt.Errorf("decoding signal: %w", err)
	}
	return raw, nil
}
