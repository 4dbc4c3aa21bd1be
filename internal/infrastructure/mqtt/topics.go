package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the geofence relay MQTT hierarchy.
//
// The platform location service, host process monitor and deferred task
// executor all live on the far side of the broker:
//
//	geofence/platform/request/{op}          relay -> platform
//	geofence/platform/response/{request_id} platform -> relay
//	geofence/signal/{handle}                platform -> relay
//	geofence/host/...                       host -> relay
//	geofence/task/{name}                    relay -> task executor
//	geofence/relay/status                   relay (retained, LWT)
const (
	// TopicPrefix is the root of every relay topic.
	TopicPrefix = "geofence"

	// TopicPrefixPlatform is the base for platform location service traffic.
	TopicPrefixPlatform = "geofence/platform"

	// TopicPrefixHost is the base for host process and permission traffic.
	TopicPrefixHost = "geofence/host"

	// TopicPrefixRelay is the base for topics the relay owns.
	TopicPrefixRelay = "geofence/relay"
)

// Platform request operations.
const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpClear  = "clear"
)

// Topics provides builders for relay MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	reqTopic := topics.PlatformRequest(mqtt.OpAdd)
//	// Returns: "geofence/platform/request/add"
type Topics struct{}

// =============================================================================
// Platform Topics
// =============================================================================

// PlatformRequest returns the topic for a request to the platform service.
//
// Example: geofence/platform/request/add
func (Topics) PlatformRequest(op string) string {
	return fmt.Sprintf("%s/request/%s", TopicPrefixPlatform, op)
}

// PlatformResponse returns the topic the platform answers a request on.
//
// Example: geofence/platform/response/req-abc123
func (Topics) PlatformResponse(requestID string) string {
	return fmt.Sprintf("%s/response/%s", TopicPrefixPlatform, requestID)
}

// Signal returns the topic raw transition signals for a handle arrive on.
//
// Example: geofence/signal/3f0c...
func (Topics) Signal(handle string) string {
	return fmt.Sprintf("%s/signal/%s", TopicPrefix, handle)
}

// =============================================================================
// Host Topics
// =============================================================================

// HostPresence returns the retained presence topic for one process.
//
// Example: geofence/host/presence/com.example.app
func (Topics) HostPresence(process string) string {
	return fmt.Sprintf("%s/presence/%s", TopicPrefixHost, process)
}

// HostLifecycle returns the topic host lifecycle events arrive on.
//
// Example: geofence/host/lifecycle
func (Topics) HostLifecycle() string {
	return TopicPrefixHost + "/lifecycle"
}

// HostPermission returns the retained permission state topic.
//
// Example: geofence/host/permission
func (Topics) HostPermission() string {
	return TopicPrefixHost + "/permission"
}

// HostPermissionRequest returns the topic used to ask the host to prompt
// the user for location permission.
//
// Example: geofence/host/permission/request
func (Topics) HostPermissionRequest() string {
	return TopicPrefixHost + "/permission/request"
}

// =============================================================================
// Task and Relay Topics
// =============================================================================

// Task returns the topic a deferred headless task is published on.
//
// Example: geofence/task/geofence
func (Topics) Task(name string) string {
	return fmt.Sprintf("%s/task/%s", TopicPrefix, name)
}

// RelayStatus returns the relay's retained status topic (also the LWT).
//
// Example: geofence/relay/status
func (Topics) RelayStatus() string {
	return TopicPrefixRelay + "/status"
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllPlatformResponses returns a pattern matching every platform response.
//
// Pattern: geofence/platform/response/+
func (Topics) AllPlatformResponses() string {
	return TopicPrefixPlatform + "/response/+"
}

// AllHostPresence returns a pattern matching every process presence topic.
//
// Pattern: geofence/host/presence/+
func (Topics) AllHostPresence() string {
	return TopicPrefixHost + "/presence/+"
}

// LastSegment returns the final path element of a topic, such as the
// request ID of a response or the process name of a presence update.
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
