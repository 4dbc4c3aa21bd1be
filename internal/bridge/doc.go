// Package bridge is the geofence façade the scripting layer calls.
//
// It composes the region registry, permission state, the transition
// classifier and the dispatcher, and records every settled operation and
// every signal to the audit trail, Prometheus and InfluxDB.
//
// Inbound flow:
//
//	platform signal ─► Classify ─► Registry.Admit ─► queue ─► Dispatcher.Run
//	                                                           │
//	                              ┌────────────────────────────┴───────┐
//	                        LocalChannel ─► Emitter("onTransition")   HeadlessRunner
//
// Every call returns a Result that settles exactly once.
package bridge
