// Package geofence holds the relay's region bookkeeping and signal
// classification.
//
// The platform location service owns containment detection and persistence.
// This package only tracks what the relay has asked the platform to monitor:
//
//   - Registry records each add/remove/clear as a pending intent, issues the
//     platform call and commits local state once the platform acknowledges.
//   - Classify turns a raw platform signal into a TransitionEvent or drops it.
//   - Result is the exactly-once future every asynchronous call settles through.
//   - HandleProvider lazily creates the one correlation handle per process.
//
// # Thread Safety
//
// Registry, Result and HandleProvider are safe for concurrent use.
package geofence
