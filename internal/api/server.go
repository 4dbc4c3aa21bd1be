package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/geofence-relay/internal/audit"
	"github.com/nerrad567/geofence-relay/internal/bridge"
	"github.com/nerrad567/geofence-relay/internal/dispatch"
	"github.com/nerrad567/geofence-relay/internal/geofence"
	"github.com/nerrad567/geofence-relay/internal/infrastructure/config"
	"github.com/nerrad567/geofence-relay/internal/infrastructure/logging"
	"github.com/nerrad567/geofence-relay/internal/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultOperationTimeout applies when api.timeouts.operation is unset.
const defaultOperationTimeout = 20 * time.Second

// GeofenceService is the façade the handlers drive. *bridge.Bridge
// implements it.
type GeofenceService interface {
	Initialize(ctx context.Context, opts bridge.InitOptions) error
	RequestPermission(ctx context.Context) error
	CheckPermission(ctx context.Context) (bool, error)
	Add(ctx context.Context, opts geofence.Options) *geofence.Result[string]
	AddAll(ctx context.Context, opts []geofence.Options) *geofence.Result[[]string]
	Remove(ctx context.Context, id string) *geofence.Result[string]
	RemoveAll(ctx context.Context, ids []string) *geofence.Result[[]string]
	Clear(ctx context.Context) *geofence.Result[struct{}]
	Count() int
	IDs() []string
	Constants() map[string]any
	Lifecycle(event dispatch.LifecycleEvent) error
	State() dispatch.State
	QueueDepth() int
}

// ConnectionStatus reports broker connectivity.
type ConnectionStatus interface {
	IsConnected() bool
}

// TelemetryStats reports the InfluxDB writer. *influxdb.Client implements it.
type TelemetryStats interface {
	WriteStats() (written, failed uint64, lastErr error)
}

// HealthCheck is a named dependency probe for GET /health.
type HealthCheck func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Geofence GeofenceService

	// Optional
	Audit     audit.Repository
	MQTT      ConnectionStatus
	DB        *sql.DB
	Gatherer  prometheus.Gatherer
	Metrics   *metrics.Metrics
	Telemetry TelemetryStats
	Health    map[string]HealthCheck
	Hub       *Hub // If set, the server uses this hub instead of creating its own
	Version   string
}

// Server is the HTTP API server for the relay.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	geofence  GeofenceService
	auditRepo audit.Repository
	mqtt      ConnectionStatus
	db        *sql.DB
	gatherer  prometheus.Gatherer
	metrics   *metrics.Metrics
	telemetry TelemetryStats
	health    map[string]HealthCheck
	version   string
	startTime time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	tickets     *ticketStore       // single-use WebSocket tickets
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, geofence service)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Geofence == nil {
		return nil, fmt.Errorf("geofence service is required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		geofence:  deps.Geofence,
		auditRepo: deps.Audit,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		gatherer:  deps.Gatherer,
		metrics:   deps.Metrics,
		telemetry: deps.Telemetry,
		health:    deps.Health,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless injected) and the ticket cleanup loop,
// and launches the HTTP listener in a background goroutine.
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	go s.tickets.sweepLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

func (s *Server) operationTimeout() time.Duration {
	if s.cfg.Timeouts.Operation > 0 {
		return time.Duration(s.cfg.Timeouts.Operation) * time.Second
	}
	return defaultOperationTimeout
}
