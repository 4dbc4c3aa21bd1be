// Geofence Relay
//
// This is the main entry point for the geofence relay. The relay sits
// between a scripting layer and the platform geofencing service:
//   - Registers and removes circular regions with the platform over MQTT
//   - Classifies platform transition signals into ENTER and EXIT events
//   - Delivers events to open WebSocket clients, or to a deferred task when
//     the scripting host is in the background
//
// Configuration is read from configs/config.yaml, or from GEOFENCE_CONFIG.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/geofence-relay/internal/api"
	"github.com/nerrad567/geofence-relay/internal/audit"
	"github.com/nerrad567/geofence-relay/internal/auth"
	"github.com/nerrad567/geofence-relay/internal/bridge"
	"github.com/nerrad567/geofence-relay/internal/dispatch"
	"github.com/nerrad567/geofence-relay/internal/foreground"
	"github.com/nerrad567/geofence-relay/internal/geofence"
	"github.com/nerrad567/geofence-relay/internal/infrastructure/config"
	"github.com/nerrad567/geofence-relay/internal/infrastructure/database"
	"github.com/nerrad567/geofence-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/geofence-relay/internal/infrastructure/logging"
	"github.com/nerrad567/geofence-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/geofence-relay/internal/metrics"
	"github.com/nerrad567/geofence-relay/internal/platform"
	"github.com/nerrad567/geofence-relay/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

const (
	// gaugeInterval is how often registry and platform gauges are refreshed.
	gaugeInterval = 5 * time.Second

	pruneInterval = 24 * time.Hour
)

func main() {
	issue := flag.Bool("issue-token", false, "print an API access token and exit")
	subject := flag.String("subject", "scripting-layer", "token subject (with -issue-token)")
	role := flag.String("role", string(auth.RoleClient), "token role: client, operator or admin (with -issue-token)")
	flag.Parse()

	if *issue {
		if err := issueToken(getConfigPath(), *subject, *role, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting geofence relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Audit trail
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Broker
	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Time-series telemetry (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Relay.ID)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	m := metrics.New()
	b, svc, hub, err := wire(ctx, cfg, log, m, mqttClient, influxClient, auditRepo)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("stopping bridge")
		b.Stop()
		svc.Close()
	}()

	checks := map[string]api.HealthCheck{
		"database": db.HealthCheck,
		"mqtt":     mqttClient.HealthCheck,
	}
	var telemetry api.TelemetryStats
	if influxClient != nil {
		checks["influxdb"] = influxClient.HealthCheck
		telemetry = influxClient
	}

	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log.Component("api"),
		Geofence:  b,
		Audit:     auditRepo,
		MQTT:      mqttClient,
		DB:        db.DB,
		Metrics:   m,
		Telemetry: telemetry,
		Health:    checks,
		Hub:       hub,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if days := cfg.Database.RetentionDays; days > 0 {
		go pruneAuditLog(ctx, auditRepo, time.Duration(days)*24*time.Hour, log.Component("audit"))
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	log.Info("geofence relay stopped")
	return nil
}

// wire builds the geofencing subsystem on top of the broker connection and
// starts its subscriptions.
//
// Returns:
//   - *bridge.Bridge: Started façade, stopped by the caller. Stop also
//     closes the headless runner, before the broker and database close.
//   - *platform.Service: Platform adapter, closed by the caller
//   - *api.Hub: WebSocket hub the bridge broadcasts to
//   - error: If any subscription fails
func wire(ctx context.Context, cfg *config.Config, log *logging.Logger, m *metrics.Metrics, mqttClient *mqtt.Client, influxClient *influxdb.Client, auditRepo audit.Repository) (*bridge.Bridge, *platform.Service, *api.Hub, error) {
	var topics mqtt.Topics
	qos := mqttClient.QoS()
	broker := &mqttAdapter{client: mqttClient}

	svc := platform.NewService(broker, platform.Config{
		QoS:            qos,
		RequestTimeout: cfg.GetRequestTimeout(),
	})
	svc.SetLogger(log.Component("platform"))
	if err := svc.Start(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("starting platform adapter: %w", err)
	}

	perms := platform.NewPermissions(broker, qos)
	perms.SetLogger(log.Component("permissions"))
	perms.OnChange(func(granted bool) {
		log.Info("location permission changed", "granted", granted)
	})
	if err := perms.Start(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("subscribing to permission state: %w", err)
	}

	presence := foreground.NewPresenceTable(cfg.GetPresenceTTL())
	err := mqttClient.Subscribe(topics.AllHostPresence(), qos, func(topic string, payload []byte) error {
		return presence.HandleMessage(mqtt.LastSegment(topic), payload)
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("subscribing to host presence: %w", err)
	}
	detector := foreground.NewDetector(presence, cfg.Host.ProcessName)
	detector.SetLogger(log.Component("foreground"))

	runner := dispatch.NewHeadlessRunner(
		dispatch.MQTTTaskHandler(mqttClient, qos),
		bridge.TaskReporter(m, log.Component("headless")),
	)

	local := dispatch.NewLocalChannel()
	dispatcher := dispatch.New(local, runner, detector, dispatch.Config{
		TaskName:    cfg.Dispatch.TaskName,
		TaskTimeout: cfg.GetTaskTimeout(),
	})
	dispatcher.SetLogger(log.Component("dispatch"))

	handles := geofence.NewHandleProvider(cfg.MQTT.Broker.ClientID, topics.Signal)
	registry := geofence.NewRegistry(svc, handles)
	registry.SetLogger(log.Component("registry"))

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	deps := bridge.Deps{
		Registry:    registry,
		Permissions: perms,
		Dispatcher:  dispatcher,
		Local:       local,
		Emitter:     hub,
		Audit:       auditRepo,
		Metrics:     m,
		Tasks:       runner,
		Logger:      log.Component("bridge"),
		Defaults: geofence.Defaults{
			Radius:         cfg.Geofence.DefaultRadius,
			LoiteringDelay: cfg.Geofence.LoiteringDelay,
		},
		QueueSize: cfg.Dispatch.QueueSize,
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
	}
	b, err := bridge.New(deps)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating bridge: %w", err)
	}
	b.Start(ctx)

	if err := svc.SubscribeSignals(handles.Handle(), func(raw geofence.RawSignal) {
		if err := b.HandleSignal(raw); err != nil {
			log.Debug("signal not delivered", "error", err)
		}
	}); err != nil {
		b.Stop()
		return nil, nil, nil, err
	}

	err = mqttClient.Subscribe(topics.HostLifecycle(), qos, func(_ string, payload []byte) error {
		event, err := dispatch.DecodeLifecycle(payload)
		if err != nil {
			return err
		}
		log.Info("host lifecycle", "event", event)
		return b.Lifecycle(event)
	})
	if err != nil {
		b.Stop()
		return nil, nil, nil, fmt.Errorf("subscribing to host lifecycle: %w", err)
	}

	go refreshGauges(ctx, m, b, svc)

	log.Info("geofencing subsystem ready",
		"signal_topic", handles.Handle().Topic,
		"host_process", cfg.Host.ProcessName,
	)
	return b, svc, hub, nil
}

// refreshGauges samples registry size and pending platform requests until
// ctx is done.
func refreshGauges(ctx context.Context, m *metrics.Metrics, b *bridge.Bridge, svc *platform.Service) {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetRegions(b.Count())
			m.SetPendingRequests(svc.PendingCount())
		}
	}
}

// pruneAuditLog deletes audit entries older than retention on startup and
// then once per pruneInterval.
func pruneAuditLog(ctx context.Context, repo *audit.SQLiteRepository, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := repo.Prune(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error("pruning audit log", "error", err)
		case n > 0:
			log.Info("pruned audit log", "deleted", n, "retention", retention.String())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses GEOFENCE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GEOFENCE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck runs every dependency probe and returns the first failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthCheck) error {
	for name, check := range checks {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// issueToken writes a signed access token for the API to w, using the
// secret and TTL from the config at path.
func issueToken(path, subject, role string, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return auth.ErrNoSecret
	}
	token, err := auth.GenerateAccessToken(subject, auth.Role(role), cfg.Security.JWT.Secret, time.Duration(cfg.Security.JWT.AccessTokenTTL)*time.Minute)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// mqttAdapter adapts the infrastructure MQTT client to platform.MQTTClient.
// The platform handlers never fail, so the adapter returns nil for them.
type mqttAdapter struct {
	client *mqtt.Client
}

// Publish implements platform.MQTTClient.
func (a *mqttAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements platform.MQTTClient.
func (a *mqttAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements platform.MQTTClient.
func (a *mqttAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
