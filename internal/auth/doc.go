// Package auth issues and verifies the bearer tokens that guard the relay API.
//
// Tokens are HS256 JWTs with iss=geofence-relay and aud=geofence-api,
// carrying a subject (the calling app or operator) and a role. Roles are
// cumulative:
//
//	client   geofence:read, geofence:write, permission:request
//	operator client + lifecycle:control, audit:read
//	admin    operator + system:admin
//
// Verification is stateless; there is no token store or revocation list.
package auth
