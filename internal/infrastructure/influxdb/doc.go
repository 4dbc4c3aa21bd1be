// Package influxdb provides optional transition telemetry for the relay.
//
// It wraps the official influxdb-client-go v2 library. When enabled, the
// bridge writes one point per delivered transition, per settled operation and
// per dropped signal:
//
//	geofence_transition      tags: transition, path        fields: regions
//	geofence_operation       tags: op, outcome, status_code fields: latency_ms
//	geofence_signal_dropped  tags: reason                  fields: count
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Relay.ID)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteTransition("ENTER", "immediate", 1)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to batch_size and flush_interval; async failures are
// reported through SetOnError.
package influxdb
