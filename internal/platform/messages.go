package platform

import (
	"github.com/nerrad567/geofence-relay/internal/geofence"
)

// Request is the payload published to geofence/platform/request/{op}.
type Request struct {
	RequestID      string                `json:"request_id"`
	Op             string                `json:"op"`
	Geofences      []geofence.Definition `json:"geofences,omitempty"`
	IDs            []string              `json:"ids,omitempty"`
	Handle         *geofence.Handle      `json:"handle,omitempty"`
	InitialTrigger int                   `json:"initial_trigger,omitempty"`
}

// Response is the payload the platform publishes on
// geofence/platform/response/{request_id}.
type Response struct {
	RequestID  string `json:"request_id"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"message,omitempty"`
}

// PermissionState is the retained payload on geofence/host/permission.
type PermissionState struct {
	Granted bool `json:"granted"`
}

// PermissionRequest asks the host to prompt for location permission.
type PermissionRequest struct {
	Permission  string `json:"permission"`
	RequestCode int    `json:"request_code"`
}

// Permission prompt constants.
const (
	FineLocationPermission = "ACCESS_FINE_LOCATION"
	PermissionRequestCode  = 34
)
