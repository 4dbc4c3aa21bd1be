package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the geofence relay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Relay     RelayConfig     `yaml:"relay"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Geofence  GeofenceConfig  `yaml:"geofence"`
	Host      HostConfig      `yaml:"host"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Platform  PlatformConfig  `yaml:"platform"`
}

// RelayConfig identifies this relay instance.
type RelayConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings for the audit trail.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays prunes audit entries older than this many days.
	// 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`

	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile string `yaml:"ca_file"`

	// KeepAlive is the MQTT keep-alive in seconds.
	KeepAlive int `yaml:"keep_alive"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
//
// Operation is how long a handler waits for the platform to acknowledge an
// add/remove/clear before answering 504. The operation itself still settles.
type APITimeoutConfig struct {
	Read      int `yaml:"read"`
	Write     int `yaml:"write"`
	Idle      int `yaml:"idle"`
	Operation int `yaml:"operation"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT     JWTConfig     `yaml:"jwt"`
	APIAuth APIAuthConfig `yaml:"api_auth"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// APIAuthConfig controls bearer-token checks on the scripting-layer API.
type APIAuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// GeofenceConfig holds the defaults applied to caller-supplied region options.
type GeofenceConfig struct {
	// DefaultRadius is used when a region omits its radius (metres).
	// Default: 50
	DefaultRadius float64 `yaml:"default_radius"`

	// LoiteringDelay is passed through to the platform (milliseconds).
	// Dwell transitions are never requested, so the platform ignores it.
	// Default: 10
	LoiteringDelay int `yaml:"loitering_delay"`
}

// HostConfig describes the scripting host whose foreground state selects
// the delivery path.
type HostConfig struct {
	// ProcessName is the host process looked up in the presence table.
	ProcessName string `yaml:"process_name"`

	// PresenceTTL is how long a presence entry stays valid (seconds).
	// Default: 120
	PresenceTTL int `yaml:"presence_ttl"`
}

// DispatchConfig controls transition delivery.
type DispatchConfig struct {
	// QueueSize bounds the inbound signal queue.
	// Default: 256
	QueueSize int `yaml:"queue_size"`

	// TaskName is the deferred task name published under geofence/task/.
	// Default: "geofence"
	TaskName string `yaml:"task_name"`

	// TaskTimeout is the deferred task execution budget (seconds).
	// Default: 10
	TaskTimeout int `yaml:"task_timeout"`
}

// PlatformConfig controls calls to the platform geofencing service.
type PlatformConfig struct {
	// RequestTimeout rejects a platform request that was never answered (seconds).
	// Default: 30
	RequestTimeout int `yaml:"request_timeout"`
}

// Load builds the configuration in three layers: built-in defaults, then
// the YAML file at path, then GEOFENCE_* environment variables (for example
// GEOFENCE_DATABASE_PATH or GEOFENCE_MQTT_HOST). The result is validated
// before it is returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
// Tests and tools use it as a base.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			ID:   "relay-001",
			Name: "Geofence Relay",
		},
		Database: DatabaseConfig{
			Path:          "./data/geofence.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:      "localhost",
				Port:      1883,
				ClientID:  "geofence-relay",
				KeepAlive: 60,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:      30,
				Write:     30,
				Idle:      60,
				Operation: 20,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		Geofence: GeofenceConfig{
			DefaultRadius:  50,
			LoiteringDelay: 10,
		},
		Host: HostConfig{
			PresenceTTL: 120,
		},
		Dispatch: DispatchConfig{
			QueueSize:   256,
			TaskName:    "geofence",
			TaskTimeout: 10,
		},
		Platform: PlatformConfig{
			RequestTimeout: 30,
		},
	}
}

// applyEnvOverrides copies non-empty GEOFENCE_* variables over the loaded
// values. Integer variables that do not parse are ignored.
func applyEnvOverrides(cfg *Config) {
	strs := map[string]*string{
		"GEOFENCE_RELAY_ID":          &cfg.Relay.ID,
		"GEOFENCE_DATABASE_PATH":     &cfg.Database.Path,
		"GEOFENCE_MQTT_HOST":         &cfg.MQTT.Broker.Host,
		"GEOFENCE_MQTT_USERNAME":     &cfg.MQTT.Auth.Username,
		"GEOFENCE_MQTT_PASSWORD":     &cfg.MQTT.Auth.Password,
		"GEOFENCE_API_HOST":          &cfg.API.Host,
		"GEOFENCE_INFLUXDB_TOKEN":    &cfg.InfluxDB.Token,
		"GEOFENCE_HOST_PROCESS_NAME": &cfg.Host.ProcessName,
		"GEOFENCE_JWT_SECRET":        &cfg.Security.JWT.Secret,
		"GEOFENCE_LOG_LEVEL":         &cfg.Logging.Level,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"GEOFENCE_MQTT_PORT": &cfg.MQTT.Broker.Port,
		"GEOFENCE_API_PORT":  &cfg.API.Port,
	}
	for key, dst := range ints {
		if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
			*dst = n
		}
	}
}

// Validate reports every problem found in one error.
func (c *Config) Validate() error {
	var errs []string

	if c.Relay.ID == "" {
		errs = append(errs, "relay.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Host.ProcessName == "" {
		errs = append(errs, "host.process_name is required (set GEOFENCE_HOST_PROCESS_NAME)")
	}

	if c.Geofence.DefaultRadius <= 0 {
		errs = append(errs, "geofence.default_radius must be positive")
	}

	if c.Dispatch.TaskTimeout <= 0 {
		errs = append(errs, "dispatch.task_timeout must be positive")
	}
	if c.Dispatch.TaskName == "" {
		errs = append(errs, "dispatch.task_name is required")
	}

	// A bearer token is only checked when API auth is on, but then a weak
	// secret lets anyone mint tokens.
	const minJWTSecretLength = 32
	if c.Security.APIAuth.Enabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when api_auth is enabled (set GEOFENCE_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// GetReadTimeout returns api.timeouts.read.
func (c *Config) GetReadTimeout() time.Duration { return seconds(c.API.Timeouts.Read) }

// GetWriteTimeout returns api.timeouts.write.
func (c *Config) GetWriteTimeout() time.Duration { return seconds(c.API.Timeouts.Write) }

// GetIdleTimeout returns api.timeouts.idle.
func (c *Config) GetIdleTimeout() time.Duration { return seconds(c.API.Timeouts.Idle) }

// GetTaskTimeout returns the deferred task budget.
func (c *Config) GetTaskTimeout() time.Duration { return seconds(c.Dispatch.TaskTimeout) }

// GetPresenceTTL returns how long a host presence entry stays valid.
func (c *Config) GetPresenceTTL() time.Duration { return seconds(c.Host.PresenceTTL) }

// GetRequestTimeout returns how long a platform request may wait for its
// response.
func (c *Config) GetRequestTimeout() time.Duration { return seconds(c.Platform.RequestTimeout) }
