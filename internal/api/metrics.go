package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/geofence-relay/internal/infrastructure/mqtt"
)

// SystemMetrics is the GET /metrics snapshot. Counters and histograms are
// served separately in Prometheus format on /metrics/prometheus.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	MQTT          MQTTMetrics       `json:"mqtt"`
	Geofence      GeofenceMetrics   `json:"geofence"`
	Database      DatabaseMetrics   `json:"database"`
	Telemetry     *TelemetryMetrics `json:"telemetry,omitempty"`
}

// TelemetryMetrics is present when InfluxDB export is enabled.
type TelemetryMetrics struct {
	PointsWritten uint64 `json:"points_written"`
	WriteFailures uint64 `json:"write_failures"`
	LastError     string `json:"last_error,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics describes the onTransition stream.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	EventsDropped    uint64 `json:"events_dropped"`
}

// MQTTMetrics reports broker connectivity. The counters are present when
// the connection is a *mqtt.Client.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
	*mqtt.Stats
}

// brokerStats is implemented by *mqtt.Client.
type brokerStats interface {
	Stats() mqtt.Stats
}

// GeofenceMetrics summarises the registry and dispatcher.
type GeofenceMetrics struct {
	Regions    int    `json:"regions"`
	State      string `json:"state"`
	QueueDepth int    `json:"queue_depth"`
}

// DatabaseMetrics contains audit database pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	WaitCount       int64 `json:"wait_count"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime:       runtimeMetrics(),
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			EventsDropped:    s.hub.Dropped(),
		},
		MQTT:      s.mqttMetrics(),
		Geofence:  s.geofenceMetrics(),
		Database:  s.databaseMetrics(),
		Telemetry: s.telemetryMetrics(),
	})
}

func (s *Server) telemetryMetrics() *TelemetryMetrics {
	if s.telemetry == nil {
		return nil
	}
	written, failed, lastErr := s.telemetry.WriteStats()
	m := &TelemetryMetrics{PointsWritten: written, WriteFailures: failed}
	if lastErr != nil {
		m.LastError = lastErr.Error()
	}
	return m
}

func runtimeMetrics() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return RuntimeMetrics{
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
		NumGC:         mem.NumGC,
	}
}

func (s *Server) mqttMetrics() MQTTMetrics {
	if s.mqtt == nil {
		return MQTTMetrics{}
	}
	m := MQTTMetrics{Connected: s.mqtt.IsConnected()}
	if bs, ok := s.mqtt.(brokerStats); ok {
		st := bs.Stats()
		m.Stats = &st
	}
	return m
}

func (s *Server) geofenceMetrics() GeofenceMetrics {
	return GeofenceMetrics{
		Regions:    s.geofence.Count(),
		State:      string(s.geofence.State()),
		QueueDepth: s.geofence.QueueDepth(),
	}
}

func (s *Server) databaseMetrics() DatabaseMetrics {
	if s.db == nil {
		return DatabaseMetrics{}
	}
	stats := s.db.Stats()
	return DatabaseMetrics{
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		WaitCount:       stats.WaitCount,
	}
}
