// Package foreground decides whether the host process is in the foreground.
//
// The host publishes one retained message per process on
// geofence/host/presence/{process}:
//
//	{"process": "com.example.app", "importance": 100}
//
// A PresenceTable holds the latest entry per process. The Detector answers
// a single question against it: is the configured process present with
// importance FOREGROUND (100)? Anything else, including a missing or stale
// table, counts as background.
package foreground
