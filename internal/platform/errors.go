package platform

import "errors"

// Errors returned by the platform adapter.
var (
	// ErrNotStarted is returned when a call is made before Start.
	ErrNotStarted = errors.New("platform: not started")

	// ErrTimeout is the cause attached to requests the platform never answered.
	ErrTimeout = errors.New("platform: no response before timeout")

	// ErrClosed is the cause attached to requests still pending at Close.
	ErrClosed = errors.New("platform: adapter closed")

	// ErrBadResponse is returned by the response handler for undecodable payloads.
	ErrBadResponse = errors.New("platform: malformed response")
)
