package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/geofence-relay/internal/audit"
	"github.com/nerrad567/geofence-relay/internal/dispatch"
	"github.com/nerrad567/geofence-relay/internal/geofence"
	"github.com/nerrad567/geofence-relay/internal/metrics"
)

// TransitionChannel is the scripting-layer channel transitions are emitted on.
const TransitionChannel = "onTransition"

// DefaultQueueSize bounds signals waiting for the dispatcher.
const DefaultQueueSize = 256

// auditTimeout bounds audit writes made from settlement callbacks.
const auditTimeout = 5 * time.Second

// Drop reasons for signals that never become events.
const (
	DropPlatformError     = "platform_error"
	DropUnknownTransition = "unknown_transition"
	DropNotRegistered     = "not_registered"
	DropQueueFull         = "queue_full"
)

// ErrQueueFull is returned by HandleSignal when the dispatcher is saturated.
var ErrQueueFull = errors.New("bridge: dispatch queue full")

// Permissions reports and requests location permission.
type Permissions interface {
	Granted() bool
	Request(ctx context.Context) error
}

// Emitter delivers scripting-layer events.
type Emitter interface {
	Broadcast(channel string, payload any)
}

// Telemetry receives time-series points. The InfluxDB client satisfies it.
type Telemetry interface {
	WriteTransition(transitionType, path string, regionCount int)
	WriteOperation(op, outcome string, statusCode int, latency time.Duration)
	WriteSignalDropped(reason string)
}

// TaskCloser is the deferred-task runner. Stop closes it once the
// dispatcher loop has ended, cancelling tasks still in flight.
type TaskCloser interface {
	Close()
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the bridge's collaborators.
type Deps struct {
	// Required
	Registry    *geofence.Registry
	Permissions Permissions
	Dispatcher  *dispatch.Dispatcher
	Local       *dispatch.LocalChannel

	// Optional
	Emitter   Emitter
	Audit     audit.Repository
	Metrics   *metrics.Metrics
	Telemetry Telemetry
	Tasks     TaskCloser
	Logger    Logger

	Defaults  geofence.Defaults
	QueueSize int
}

// InitOptions are passed by the scripting layer on start-up.
type InitOptions struct {
	RequestPermission bool `json:"requestPermission"`
}

// Bridge is the façade over the geofencing subsystem.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Bridge struct {
	registry    *geofence.Registry
	permissions Permissions
	dispatcher  *dispatch.Dispatcher
	local       *dispatch.LocalChannel
	emitter     Emitter
	audit       audit.Repository
	metrics     *metrics.Metrics
	telemetry   Telemetry
	tasks       TaskCloser
	logger      Logger
	defaults    geofence.Defaults

	queue chan geofence.TransitionEvent
	// drops holds signal-drop audit entries for the audit worker, so the
	// MQTT callback never waits on the database.
	drops chan *audit.Entry

	mu          sync.Mutex
	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
}

// New validates deps and creates a bridge. Call Start to begin dispatching.
func New(deps Deps) (*Bridge, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("bridge: registry is required")
	case deps.Permissions == nil:
		return nil, errors.New("bridge: permissions are required")
	case deps.Dispatcher == nil:
		return nil, errors.New("bridge: dispatcher is required")
	case deps.Local == nil:
		return nil, errors.New("bridge: local channel is required")
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.QueueSize <= 0 {
		deps.QueueSize = DefaultQueueSize
	}
	if deps.Defaults == (geofence.Defaults{}) {
		deps.Defaults = geofence.StandardDefaults()
	}

	b := &Bridge{
		registry:    deps.Registry,
		permissions: deps.Permissions,
		dispatcher:  deps.Dispatcher,
		local:       deps.Local,
		emitter:     deps.Emitter,
		audit:       deps.Audit,
		metrics:     deps.Metrics,
		telemetry:   deps.Telemetry,
		tasks:       deps.Tasks,
		logger:      deps.Logger,
		defaults:    deps.Defaults,
		queue:       make(chan geofence.TransitionEvent, deps.QueueSize),
		drops:       make(chan *audit.Entry, deps.QueueSize),
	}
	b.dispatcher.SetObserver(b.observeDispatch)
	return b, nil
}

// Start runs the dispatcher loop until ctx is cancelled or Stop is called.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		return
	}
	ctx, b.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	b.done = done

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.dispatcher.Run(ctx, b.queue)
	}()
	go func() {
		defer wg.Done()
		b.auditDrops(ctx)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()
}

// Stop ends the dispatcher loop, removes the transition listener and closes
// the deferred-task runner. Queued drop audits are written before it returns.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel, done, unsub := b.cancel, b.done, b.unsubscribe
	b.cancel, b.done, b.unsubscribe = nil, nil, nil
	b.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
		<-done
	}
	if b.tasks != nil {
		b.tasks.Close()
	}
}

// Initialize registers the transition listener, attaches the dispatcher
// and optionally prompts for permission. The host calls it from a resumed
// state, so a later pause is the first detach. Repeated calls register the
// listener once.
func (b *Bridge) Initialize(ctx context.Context, opts InitOptions) error {
	b.mu.Lock()
	if b.unsubscribe == nil {
		b.unsubscribe = b.local.Subscribe(b.emit)
	}
	b.mu.Unlock()
	b.dispatcher.Resume()

	if opts.RequestPermission {
		return b.RequestPermission(ctx)
	}
	return nil
}

// Initialized reports whether Initialize has registered the listener.
func (b *Bridge) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsubscribe != nil
}

func (b *Bridge) emit(event geofence.TransitionEvent) {
	if b.emitter != nil {
		b.emitter.Broadcast(TransitionChannel, event)
	}
}

// RequestPermission asks the host to prompt for location permission.
func (b *Bridge) RequestPermission(ctx context.Context) error {
	b.logger.Info("requesting location permission")
	err := b.permissions.Request(ctx)
	outcome := audit.OutcomeOK
	if err != nil {
		outcome = audit.OutcomeRejected
	}
	b.writeAudit(&audit.Entry{
		Action:     audit.ActionPermissionRequest,
		EntityType: audit.EntityPermission,
		Outcome:    outcome,
	})
	if err != nil {
		return geofence.Unknown("permission request failed", err)
	}
	return nil
}

// CheckPermission reports whether location permission is granted.
func (b *Bridge) CheckPermission(_ context.Context) (bool, error) {
	return b.permissions.Granted(), nil
}

// Add registers one region and resolves with its id.
func (b *Bridge) Add(ctx context.Context, opts geofence.Options) *geofence.Result[string] {
	start := time.Now()
	if err := b.requirePermission(); err != nil {
		return track(b, audit.ActionAdd, []string{opts.ID}, start, geofence.Rejected[string](err))
	}
	def, err := opts.Definition(b.defaults)
	if err != nil {
		return track(b, audit.ActionAdd, []string{opts.ID}, start, geofence.Rejected[string](err))
	}
	return track(b, audit.ActionAdd, []string{def.ID}, start, b.registry.Add(ctx, def))
}

// AddAll registers regions in one platform call and resolves with their ids
// in input order.
func (b *Bridge) AddAll(ctx context.Context, opts []geofence.Options) *geofence.Result[[]string] {
	start := time.Now()
	ids := make([]string, len(opts))
	for i, o := range opts {
		ids[i] = o.ID
	}
	if err := b.requirePermission(); err != nil {
		return track(b, audit.ActionAddAll, ids, start, geofence.Rejected[[]string](err))
	}
	defs, err := geofence.Definitions(opts, b.defaults)
	if err != nil {
		return track(b, audit.ActionAddAll, ids, start, geofence.Rejected[[]string](err))
	}
	return track(b, audit.ActionAddAll, ids, start, b.registry.AddAll(ctx, defs))
}

// Remove unregisters one region. Unknown ids succeed.
func (b *Bridge) Remove(ctx context.Context, id string) *geofence.Result[string] {
	return track(b, audit.ActionRemove, []string{id}, time.Now(), b.registry.Remove(ctx, id))
}

// RemoveAll unregisters regions. Unknown ids succeed.
func (b *Bridge) RemoveAll(ctx context.Context, ids []string) *geofence.Result[[]string] {
	return track(b, audit.ActionRemoveAll, ids, time.Now(), b.registry.RemoveAll(ctx, ids))
}

// Clear removes every region routed to this relay.
func (b *Bridge) Clear(ctx context.Context) *geofence.Result[struct{}] {
	return track(b, audit.ActionClear, nil, time.Now(), b.registry.Clear(ctx))
}

// Count returns the number of regions this relay has registered.
func (b *Bridge) Count() int {
	return b.registry.Len()
}

// IDs returns the registered region ids, sorted.
func (b *Bridge) IDs() []string {
	return b.registry.IDs()
}

// Constants returns the values exposed to the scripting layer.
func (b *Bridge) Constants() map[string]any {
	return geofence.Constants()
}

// Lifecycle applies a host lifecycle event to the dispatcher.
func (b *Bridge) Lifecycle(event dispatch.LifecycleEvent) error {
	return b.dispatcher.Apply(event)
}

// State returns the dispatcher's attachment state.
func (b *Bridge) State() dispatch.State {
	return b.dispatcher.State()
}

// QueueDepth returns the number of events waiting for the dispatcher.
func (b *Bridge) QueueDepth() int {
	return len(b.queue)
}

func (b *Bridge) requirePermission() error {
	if b.permissions.Granted() {
		return nil
	}
	return geofence.PermissionError("location permission not granted")
}

// track records the outcome of r once it settles and returns r unchanged.
func track[T any](b *Bridge, action string, ids []string, start time.Time, r *geofence.Result[T]) *geofence.Result[T] {
	r.Then(func(_ T, err error) {
		b.recordOperation(action, ids, time.Since(start), err)
	})
	return r
}

func (b *Bridge) recordOperation(action string, ids []string, latency time.Duration, err error) {
	outcome := audit.OutcomeOK
	statusCode := 0
	details := map[string]any{"ids": ids}
	if err != nil {
		outcome = audit.OutcomeRejected
		ge := geofence.AsError(err)
		statusCode = ge.StatusCode
		details["kind"] = string(ge.Kind)
		details["code"] = ge.Code
		details["message"] = ge.Message
		if ge.StatusCode != 0 {
			details["status_code"] = ge.StatusCode
		}
		b.logger.Warn("geofence operation rejected", "op", action, "ids", ids, "error", err)
	} else {
		b.logger.Info("geofence operation completed", "op", action, "ids", ids, "latency", latency)
		b.metrics.ObserveOperationLatency(action, latency)
	}

	b.metrics.IncrementOperation(action, outcome)
	b.metrics.SetRegions(b.registry.Len())
	if b.telemetry != nil {
		b.telemetry.WriteOperation(action, outcome, statusCode, latency)
	}
	b.writeAudit(&audit.Entry{
		Action:     action,
		EntityType: audit.EntityGeofence,
		EntityID:   joinIDs(ids),
		Outcome:    outcome,
		Details:    details,
	})
}

func (b *Bridge) writeAudit(entry *audit.Entry) {
	if b.audit == nil {
		return
	}
	if entry.Source == "" {
		entry.Source = "relay"
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := b.audit.Create(ctx, entry); err != nil {
		b.logger.Warn("audit write failed", "action", entry.Action, "error", fmt.Errorf("creating audit entry: %w", err))
	}
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}
