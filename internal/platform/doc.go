// Package platform talks to the platform geofencing service and the host's
// permission subsystem over MQTT.
//
// # Request correlation
//
// Every add, remove and clear is published to geofence/platform/request/{op}
// with a fresh request_id. The platform answers on
// geofence/platform/response/{request_id}; the matching Result settles from
// the response's status_code. A request the platform never answers is
// rejected after the configured timeout, so no caller waits forever. A
// response that arrives later is logged and ignored.
//
// # Signals
//
// Raw transition signals for the relay's handle arrive on
// geofence/signal/{token} and are decoded into geofence.RawSignal.
//
// # Permissions
//
// The host publishes a retained {granted} state on geofence/host/permission.
// Until the first message arrives, permission is treated as not granted.
package platform
