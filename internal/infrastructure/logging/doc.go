// Package logging builds the relay's log/slog logger.
//
// Output is JSON by default or text for development, on stdout or stderr.
// Entries carry service and version fields, and Component adds a component
// field per subsystem:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("dispatch").Info("attached", "queued", 3)
//
// The level can be raised or lowered at runtime with SetLevel; the API
// exposes this as PUT /api/v1/system/log-level. Attributes whose key
// mentions a token, secret, password or ticket are written as [REDACTED].
package logging
