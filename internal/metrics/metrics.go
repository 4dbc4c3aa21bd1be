// Package metrics exposes the relay's Prometheus instruments.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for geofence operations and deliveries.
type Metrics struct {
	// Settled façade operations by op and outcome
	Operations *prometheus.CounterVec

	// Platform round-trip latency by op
	OperationLatency *prometheus.HistogramVec

	// Delivered transitions by type and path
	Transitions *prometheus.CounterVec

	// Signals that never produced an event, by reason
	SignalsDropped *prometheus.CounterVec

	// Deferred tasks by result
	HeadlessTasks *prometheus.CounterVec

	// Regions currently registered
	Regions prometheus.Gauge

	// Platform requests awaiting a response
	PendingRequests prometheus.Gauge

	// Scripting-layer HTTP requests by route pattern and status class
	HTTPRequests *prometheus.HistogramVec
}

// New registers the relay metrics on the default registry.
// Call it once per process.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the relay metrics on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "geofence_operations_total",
			Help: "Total geofence operations by op and outcome",
		}, []string{"op", "outcome"}), // outcome: "ok", "rejected"

		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geofence_operation_duration_seconds",
			Help:    "Duration from request to platform acknowledgement",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "geofence_transitions_total",
			Help: "Delivered transitions by type and delivery path",
		}, []string{"type", "path"}),

		SignalsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "geofence_signals_dropped_total",
			Help: "Signals dropped before delivery by reason",
		}, []string{"reason"}),

		HeadlessTasks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "geofence_headless_tasks_total",
			Help: "Deferred tasks by result",
		}, []string{"result"}), // result: "ok", "timeout", "error"

		Regions: f.NewGauge(prometheus.GaugeOpts{
			Name: "geofence_regions",
			Help: "Regions currently registered",
		}),

		PendingRequests: f.NewGauge(prometheus.GaugeOpts{
			Name: "geofence_platform_pending_requests",
			Help: "Platform requests awaiting a response",
		}),

		HTTPRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geofence_http_request_duration_seconds",
			Help:    "Scripting-layer API request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}), // status: "2xx", "4xx", "5xx"
	}
}

// IncrementOperation records a settled operation.
func (m *Metrics) IncrementOperation(op, outcome string) {
	if m != nil {
		m.Operations.WithLabelValues(op, outcome).Inc()
	}
}

// ObserveOperationLatency records how long the platform took to answer.
func (m *Metrics) ObserveOperationLatency(op string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}

// IncrementTransition records a delivered transition.
func (m *Metrics) IncrementTransition(transitionType, path string) {
	if m != nil {
		m.Transitions.WithLabelValues(transitionType, path).Inc()
	}
}

// IncrementSignalDropped records a dropped signal.
func (m *Metrics) IncrementSignalDropped(reason string) {
	if m != nil {
		m.SignalsDropped.WithLabelValues(reason).Inc()
	}
}

// IncrementHeadlessTask records a finished deferred task.
func (m *Metrics) IncrementHeadlessTask(result string) {
	if m != nil {
		m.HeadlessTasks.WithLabelValues(result).Inc()
	}
}

// SetRegions sets the registered region gauge.
func (m *Metrics) SetRegions(n int) {
	if m != nil {
		m.Regions.Set(float64(n))
	}
}

// ObserveHTTPRequest records one API request. status is collapsed to its
// class to bound cardinality.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(method, route, statusClass(status)).Observe(d.Seconds())
	}
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// SetPendingRequests sets the pending request gauge.
func (m *Metrics) SetPendingRequests(n int) {
	if m != nil {
		m.PendingRequests.Set(float64(n))
	}
}
