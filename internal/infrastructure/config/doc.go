// Package config loads the relay's YAML configuration.
//
// Load starts from built-in defaults, decodes the file over them, applies
// GEOFENCE_* environment overrides and then validates the result. Every
// validation problem is reported at once rather than the first only.
//
// Credentials (GEOFENCE_MQTT_PASSWORD, GEOFENCE_INFLUXDB_TOKEN,
// GEOFENCE_JWT_SECRET) are meant to come from the environment; keep the
// file itself at 0600 if it holds any.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
