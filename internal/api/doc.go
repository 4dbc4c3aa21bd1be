// Package api implements the HTTP REST API and WebSocket server for the
// geofence relay.
//
// This package provides:
//   - REST endpoints for every geofence operation under /api/v1
//   - A WebSocket hub that streams onTransition events
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - JSON and Prometheus metrics endpoints
//
// # Results
//
// Geofence operations settle asynchronously. Handlers wait up to the
// configured operation timeout; a caller that gives up gets 504 while the
// operation still settles and is audited.
//
// # Errors
//
// Failures use one body shape:
//
//	{"status": 502, "code": "GEOFENCE_NOT_AVAILABLE", "message": "...", "status_code": 1000}
//
// PermissionDenied maps to 403, InvalidArgument to 400, PlatformApiError to
// 502 and UnknownError to 500.
package api
