package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/geofence-relay/internal/geofence"
	"github.com/nerrad567/geofence-relay/internal/infrastructure/mqtt"
)

// Defaults for deferred delivery.
const (
	DefaultTaskName    = "geofence"
	DefaultTaskTimeout = 10 * time.Second
)

// Errors returned by the headless runner.
var (
	// ErrTaskTimeout reports a task abandoned when its budget ran out.
	ErrTaskTimeout = errors.New("dispatch: headless task exceeded its time budget")

	// ErrRunnerClosed is returned by Submit after Close.
	ErrRunnerClosed = errors.New("dispatch: headless runner closed")
)

// HeadlessTask is a unit of deferred work.
type HeadlessTask struct {
	Name    string                   `json:"name"`
	Payload geofence.TransitionEvent `json:"payload"`
	Timeout time.Duration            `json:"-"`
}

// MarshalJSON writes the budget in milliseconds.
func (t HeadlessTask) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name      string                   `json:"name"`
		Payload   geofence.TransitionEvent `json:"payload"`
		TimeoutMs int64                    `json:"timeout_ms"`
	}{t.Name, t.Payload, t.Timeout.Milliseconds()})
}

// TaskRunner accepts deferred work.
type TaskRunner interface {
	Submit(task HeadlessTask) error
}

// TaskHandler performs a task. It must return when ctx is cancelled.
type TaskHandler func(ctx context.Context, task HeadlessTask) error

// TaskReport is passed to the completion callback.
type TaskReport struct {
	Task    HeadlessTask
	Err     error
	Elapsed time.Duration
}

// HeadlessRunner runs each task on its own goroutine under its time budget.
//
// Thread Safety:
//   - Submit and Close are safe for concurrent use.
type HeadlessRunner struct {
	handler    TaskHandler
	onComplete func(TaskReport)

	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewHeadlessRunner creates a runner for handler. onComplete may be nil.
func NewHeadlessRunner(handler TaskHandler, onComplete func(TaskReport)) *HeadlessRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &HeadlessRunner{
		handler:    handler,
		onComplete: onComplete,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Submit starts task and returns immediately.
func (r *HeadlessRunner) Submit(task HeadlessTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}
	if task.Timeout <= 0 {
		task.Timeout = DefaultTaskTimeout
	}
	r.wg.Add(1)
	go r.run(task)
	return nil
}

func (r *HeadlessRunner) run(task HeadlessTask) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(r.ctx, task.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("headless task panicked: %v", p)
			}
		}()
		done <- r.handler(ctx, task)
	}()

	var err error
	select {
	case err = <-done:
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			err = r.abandoned()
		}
	case <-ctx.Done():
		err = r.abandoned()
	}

	if r.onComplete != nil {
		r.onComplete(TaskReport{Task: task, Err: err, Elapsed: time.Since(start)})
	}
}

func (r *HeadlessRunner) abandoned() error {
	if r.ctx.Err() != nil {
		return ErrRunnerClosed
	}
	return ErrTaskTimeout
}

// Close cancels running tasks and waits for their reports.
func (r *HeadlessRunner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// Publisher is the broker surface the task publisher needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTTaskHandler returns a handler that publishes each task to
// geofence/task/{name} for an out-of-process worker.
func MQTTTaskHandler(client Publisher, qos byte) TaskHandler {
	var topics mqtt.Topics
	return func(ctx context.Context, task HeadlessTask) error {
		payload, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("encoding task %s: %w", task.Name, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := client.Publish(topics.Task(task.Name), payload, qos, false); err != nil {
			return fmt.Errorf("publishing task %s: %w", task.Name, err)
		}
		return nil
	}
}
