package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/geofence-relay/internal/geofence"
)

func collectReports() (func(TaskReport), <-chan TaskReport) {
	ch := make(chan TaskReport, 4)
	return func(r TaskReport) { ch <- r }, ch
}

func awaitReport(t *testing.T, ch <-chan TaskReport) TaskReport {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no task report")
		return TaskReport{}
	}
}

func TestHeadlessRunnerCompletes(t *testing.T) {
	onComplete, reports := collectReports()
	var got HeadlessTask
	r := NewHeadlessRunner(func(_ context.Context, task HeadlessTask) error {
		got = task
		return nil
	}, onComplete)
	defer r.Close()

	if err := r.Submit(HeadlessTask{Name: "geofence", Payload: enter("a")}); err != nil {
		t.Fatal(err)
	}
	rep := awaitReport(t, reports)
	if rep.Err != nil {
		t.Errorf("Err = %v", rep.Err)
	}
	if got.Timeout != DefaultTaskTimeout {
		t.Errorf("Timeout = %v, want default", got.Timeout)
	}
}

func TestHeadlessRunnerTimeout(t *testing.T) {
	onComplete, reports := collectReports()
	r := NewHeadlessRunner(func(ctx context.Context, _ HeadlessTask) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	}, onComplete)
	defer r.Close()

	if err := r.Submit(HeadlessTask{Name: "slow", Timeout: 20 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}
	rep := awaitReport(t, reports)
	if !errors.Is(rep.Err, ErrTaskTimeout) {
		t.Errorf("Err = %v, want ErrTaskTimeout", rep.Err)
	}
}

func TestHeadlessRunnerPanic(t *testing.T) {
	onComplete, reports := collectReports()
	r := NewHeadlessRunner(func(context.Context, HeadlessTask) error { panic("boom") }, onComplete)
	defer r.Close()

	if err := r.Submit(HeadlessTask{Name: "p"}); err != nil {
		t.Fatal(err)
	}
	if rep := awaitReport(t, reports); rep.Err == nil {
		t.Error("panic not reported")
	}
}

func TestHeadlessRunnerClose(t *testing.T) {
	onComplete, reports := collectReports()
	r := NewHeadlessRunner(func(ctx context.Context, _ HeadlessTask) error {
		<-ctx.Done()
		return ctx.Err()
	}, onComplete)

	if err := r.Submit(HeadlessTask{Name: "long", Timeout: time.Hour}); err != nil {
		t.Fatal(err)
	}
	r.Close()

	rep := awaitReport(t, reports)
	if !errors.Is(rep.Err, ErrRunnerClosed) {
		t.Errorf("Err = %v, want ErrRunnerClosed", rep.Err)
	}
	if err := r.Submit(HeadlessTask{Name: "late"}); !errors.Is(err, ErrRunnerClosed) {
		t.Errorf("Submit() after Close = %v", err)
	}
}

type capturePublisher struct {
	topic   string
	payload []byte
	err     error
}

func (c *capturePublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	c.topic, c.payload = topic, payload
	return c.err
}

func TestMQTTTaskHandler(t *testing.T) {
	pub := &capturePublisher{}
	handler := MQTTTaskHandler(pub, 1)

	task := HeadlessTask{
		Name:    "geofence",
		Payload: geofence.TransitionEvent{IDs: []string{"a", "b"}, Type: geofence.TransitionEnter},
		Timeout: 10 * time.Second,
	}
	if err := handler(context.Background(), task); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if pub.topic != "geofence/task/geofence" {
		t.Errorf("topic = %q", pub.topic)
	}

	var body struct {
		Name    string `json:"name"`
		Payload struct {
			IDs            []string `json:"ids"`
			TransitionType string   `json:"transitionType"`
		} `json:"payload"`
		TimeoutMs int64 `json:"timeout_ms"`
	}
	if err := json.Unmarshal(pub.payload, &body); err != nil {
		t.Fatal(err)
	}
	if body.TimeoutMs != 10000 || body.Payload.TransitionType != "ENTER" || len(body.Payload.IDs) != 2 {
		t.Errorf("body = %+v", body)
	}

	pub.err = errors.New("down")
	if err := handler(context.Background(), task); err == nil {
		t.Error("handler swallowed publish error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := handler(ctx, task); !errors.Is(err, context.Canceled) {
		t.Errorf("handler with cancelled ctx = %v", err)
	}
}
