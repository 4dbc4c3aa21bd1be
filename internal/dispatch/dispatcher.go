package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/geofence-relay/internal/geofence"
)

// Path is the delivery route an event took.
type Path string

// Delivery paths.
const (
	PathImmediate Path = "immediate"
	PathDeferred  Path = "deferred"
)

// ForegroundDetector reports whether the host process is in the foreground.
type ForegroundDetector interface {
	IsForeground() bool
}

// Logger defines the logging interface used by the dispatcher.
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

// Config configures a Dispatcher.
type Config struct {
	// TaskName names deferred tasks. Default: "geofence".
	TaskName string

	// TaskTimeout is the budget for each deferred task. Default: 10s.
	TaskTimeout time.Duration
}

// Dispatcher routes transition events to the immediate or deferred path.
//
// Thread Safety:
//   - Lifecycle methods are safe to call while Run is active.
type Dispatcher struct {
	local    *LocalChannel
	runner   TaskRunner
	detector ForegroundDetector
	cfg      Config
	logger   Logger

	mu       sync.RWMutex
	state    State
	observer func(geofence.TransitionEvent, Path, error)
}

// New creates a detached Dispatcher.
func New(local *LocalChannel, runner TaskRunner, detector ForegroundDetector, cfg Config) *Dispatcher {
	if cfg.TaskName == "" {
		cfg.TaskName = DefaultTaskName
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	return &Dispatcher{
		local:    local,
		runner:   runner,
		detector: detector,
		cfg:      cfg,
		logger:   noopLogger{},
		state:    StateDetached,
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = logger
}

// SetObserver registers a callback run after each event Run dispatches.
func (d *Dispatcher) SetObserver(fn func(event geofence.TransitionEvent, path Path, err error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = fn
}

// State returns the current attachment state.
func (d *Dispatcher) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Resume attaches the dispatcher. Repeated calls have no further effect.
func (d *Dispatcher) Resume() { d.setState(StateAttached) }

// Pause detaches the dispatcher.
func (d *Dispatcher) Pause() { d.setState(StateDetached) }

// Destroy detaches the dispatcher.
func (d *Dispatcher) Destroy() { d.setState(StateDetached) }

// Apply maps a lifecycle event to the matching transition.
func (d *Dispatcher) Apply(event LifecycleEvent) error {
	switch event {
	case EventResume:
		d.Resume()
	case EventPause:
		d.Pause()
	case EventDestroy:
		d.Destroy()
	default:
		return fmt.Errorf("unknown lifecycle event %q", event)
	}
	return nil
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	prev := d.state
	d.state = s
	logger := d.logger
	d.mu.Unlock()
	if prev != s {
		logger.Info("dispatcher state changed", "from", prev, "to", s)
	}
}

// Dispatch delivers one event and reports which path it took.
// Exactly one path is used per event.
func (d *Dispatcher) Dispatch(_ context.Context, event geofence.TransitionEvent) (Path, error) {
	if d.State() == StateAttached && d.detector != nil && d.detector.IsForeground() {
		d.local.Publish(event)
		return PathImmediate, nil
	}

	task := HeadlessTask{
		Name:    d.cfg.TaskName,
		Payload: event,
		Timeout: d.cfg.TaskTimeout,
	}
	if err := d.runner.Submit(task); err != nil {
		return PathDeferred, fmt.Errorf("submitting headless task: %w", err)
	}
	return PathDeferred, nil
}

// Run dispatches events from in, one at a time and in order, until ctx is
// cancelled or in is closed.
func (d *Dispatcher) Run(ctx context.Context, in <-chan geofence.TransitionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-in:
			if !ok {
				return
			}
			path, err := d.Dispatch(ctx, event)

			d.mu.RLock()
			logger, observer := d.logger, d.observer
			d.mu.RUnlock()

			if err != nil {
				logger.Error("dispatch failed", "event", event.String(), "path", path, "error", err)
			} else {
				logger.Debug("event dispatched", "event", event.String(), "path", path)
			}
			if observer != nil {
				observer(event, path, err)
			}
		}
	}
}
