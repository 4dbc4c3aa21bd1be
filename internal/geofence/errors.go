package geofence

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrorKind classifies every failure a caller or log line can see.
type ErrorKind string

// Error kinds.
const (
	PermissionDenied      ErrorKind = "PermissionDenied"
	PlatformAPIError      ErrorKind = "PlatformApiError"
	UnknownError          ErrorKind = "UnknownError"
	ClassificationDropped ErrorKind = "ClassificationDropped"
	InvalidArgumentKind   ErrorKind = "InvalidArgument"
)

// Platform status codes.
const (
	StatusSuccess                = 0
	StatusInternalError          = 8
	StatusError                  = 13
	StatusNotAvailable           = 1000
	StatusTooManyGeofences       = 1001
	StatusTooManyPendingIntents  = 1002
	StatusInsufficientPermission = 1004
	StatusRequestTooFrequently   = 1005
)

var statusNames = map[int]string{
	StatusSuccess:                "SUCCESS",
	StatusInternalError:          "INTERNAL_ERROR",
	StatusError:                  "ERROR",
	StatusNotAvailable:           "GEOFENCE_NOT_AVAILABLE",
	StatusTooManyGeofences:       "GEOFENCE_TOO_MANY_GEOFENCES",
	StatusTooManyPendingIntents:  "GEOFENCE_TOO_MANY_PENDING_INTENTS",
	StatusInsufficientPermission: "GEOFENCE_INSUFFICIENT_LOCATION_PERMISSION",
	StatusRequestTooFrequently:   "GEOFENCE_REQUEST_TOO_FREQUENTLY",
}

// Stable error codes for non-platform failures.
const (
	CodeUnknown           = "UNKNOWN_ERROR"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeUnknownTransition = "UNKNOWN_TRANSITION"
)

// StatusName returns the platform's name for a status code, or the number
// itself for codes outside the table.
func StatusName(code int) string {
	if name, ok := statusNames[code]; ok {
		return name
	}
	return strconv.Itoa(code)
}

// Error is the relay's typed failure. It carries a stable Code plus the
// platform StatusCode when one exists.
//
// errors.Is matches by Kind against the package sentinels, and also by
// StatusCode when the target sets one:
//
//	errors.Is(err, geofence.ErrPlatformAPI)           // any platform failure
//	errors.Is(err, &geofence.Error{Kind: geofence.PlatformAPIError, StatusCode: 1000})
type Error struct {
	Kind       ErrorKind
	Code       string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("geofence: %s: %s", e.Kind, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality, plus status code equality when target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

// Sentinels for errors.Is.
var (
	ErrPermissionDenied      = &Error{Kind: PermissionDenied, Code: CodePermissionDenied}
	ErrPlatformAPI           = &Error{Kind: PlatformAPIError}
	ErrUnknown               = &Error{Kind: UnknownError, Code: CodeUnknown}
	ErrClassificationDropped = &Error{Kind: ClassificationDropped, Code: CodeUnknownTransition}
	ErrInvalidArgument       = &Error{Kind: InvalidArgumentKind, Code: CodeInvalidArgument}
)

// FromStatus builds the error for a non-zero platform status code.
// Code 1004 is a permission failure; every other code is a platform API error.
func FromStatus(statusCode int, message string) *Error {
	kind := PlatformAPIError
	if statusCode == StatusInsufficientPermission {
		kind = PermissionDenied
	}
	if message == "" {
		message = StatusName(statusCode)
	}
	return &Error{
		Kind:       kind,
		Code:       StatusName(statusCode),
		StatusCode: statusCode,
		Message:    message,
	}
}

// InvalidArgument builds a validation failure.
func InvalidArgument(message string) *Error {
	return &Error{Kind: InvalidArgumentKind, Code: CodeInvalidArgument, Message: message}
}

// PermissionError builds the failure returned when location permission is missing.
func PermissionError(message string) *Error {
	return &Error{Kind: PermissionDenied, Code: CodePermissionDenied, Message: message}
}

// Unknown wraps an untyped failure.
func Unknown(message string, err error) *Error {
	return &Error{Kind: UnknownError, Code: CodeUnknown, Message: message, Err: err}
}

// AsError returns err as *Error, wrapping anything else as UnknownError.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return Unknown("", err)
}

func messageOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Message
	}
	return err.Error()
}
