package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementTransition = "geofence_transition"
	MeasurementOperation  = "geofence_operation"
	MeasurementDropped    = "geofence_signal_dropped"
)

// WriteTransition records one delivered transition.
//
// Parameters:
//   - transitionType: "ENTER" or "EXIT"
//   - path: Delivery path ("immediate" or "deferred")
//   - regionCount: Number of triggering region ids
//
// Region ids are deliberately not tags; they are unbounded.
func (c *Client) WriteTransition(transitionType, path string, regionCount int) {
	c.writePoint(transitionPoint(transitionType, path, regionCount, time.Now()))
}

// WriteOperation records one settled scripting-layer operation.
//
// Parameters:
//   - op: add, add_all, remove, remove_all, clear
//   - outcome: ok or rejected
//   - statusCode: Platform status code (0 on success)
//   - latency: Time from call to settlement
func (c *Client) WriteOperation(op, outcome string, statusCode int, latency time.Duration) {
	c.writePoint(operationPoint(op, outcome, statusCode, latency, time.Now()))
}

// WriteSignalDropped records an inbound signal that produced no event.
func (c *Client) WriteSignalDropped(reason string) {
	c.writePoint(write.NewPoint(
		MeasurementDropped,
		map[string]string{"reason": reason},
		map[string]interface{}{"count": 1},
		time.Now(),
	))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
	c.written.Add(1)
}

func transitionPoint(transitionType, path string, regionCount int, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementTransition,
		map[string]string{
			"transition": transitionType,
			"path":       path,
		},
		map[string]interface{}{
			"regions": regionCount,
		},
		ts,
	)
}

func operationPoint(op, outcome string, statusCode int, latency time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementOperation,
		map[string]string{
			"op":          op,
			"outcome":     outcome,
			"status_code": strconv.Itoa(statusCode),
		},
		map[string]interface{}{
			"latency_ms": float64(latency) / float64(time.Millisecond),
		},
		ts,
	)
}
