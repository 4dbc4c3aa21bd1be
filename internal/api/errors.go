package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/geofence-relay/internal/geofence"
)

// Error represents a structured error response.
type Error struct {
	Status     int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeInternal     = "internal_error"
	ErrCodeTimeout      = "timeout"
	ErrCodeUnavailable  = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// httpStatusFor maps a geofence error kind to an HTTP status.
func httpStatusFor(kind geofence.ErrorKind) int {
	switch kind {
	case geofence.PermissionDenied:
		return http.StatusForbidden
	case geofence.InvalidArgumentKind:
		return http.StatusBadRequest
	case geofence.PlatformAPIError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeGeofenceError writes the response for a rejected operation.
func writeGeofenceError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "operation still pending with the platform")
		return
	}
	if errors.Is(err, context.Canceled) {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "request cancelled")
		return
	}

	ge := geofence.AsError(err)
	message := ge.Message
	if message == "" {
		message = ge.Error()
	}
	status := httpStatusFor(ge.Kind)
	writeJSON(w, status, Error{
		Status:     status,
		Code:       ge.Code,
		Message:    message,
		StatusCode: ge.StatusCode,
	})
}
