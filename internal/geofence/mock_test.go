package geofence

import (
	"context"
	"sync"
	"testing"
	"time"
)

// mockPlatform records calls. By default it acknowledges immediately; set
// fail to reject, or manual to leave results for the test to settle.
type mockPlatform struct {
	mu      sync.Mutex
	adds    []AddRequest
	removes [][]string
	clears  []Handle
	results []*Result[struct{}]

	fail   error
	manual bool
}

func (m *mockPlatform) respond() *Result[struct{}] {
	r := NewResult[struct{}]()
	m.results = append(m.results, r)
	switch {
	case m.manual:
	case m.fail != nil:
		r.Reject(m.fail)
	default:
		r.Resolve(struct{}{})
	}
	return r
}

func (m *mockPlatform) AddGeofences(_ context.Context, req AddRequest) *Result[struct{}] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adds = append(m.adds, req)
	return m.respond()
}

func (m *mockPlatform) RemoveGeofences(_ context.Context, ids []string) *Result[struct{}] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes = append(m.removes, ids)
	return m.respond()
}

func (m *mockPlatform) RemoveHandle(_ context.Context, h Handle) *Result[struct{}] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears = append(m.clears, h)
	return m.respond()
}

func (m *mockPlatform) last() *Result[struct{}] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[len(m.results)-1]
}

func newTestRegistry() (*Registry, *mockPlatform) {
	p := &mockPlatform{}
	h := NewHandleProvider("relay-test", func(token string) string { return "geofence/signal/" + token })
	return NewRegistry(p, h), p
}

// wait settles a result or fails the test after a second.
func wait[T any](t *testing.T, r *Result[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := r.Wait(ctx)
	if err == context.DeadlineExceeded {
		t.Fatal("result did not settle")
	}
	return v, err
}

func mustDef(t *testing.T, id string, lat, lng float64) Definition {
	t.Helper()
	d, err := Options{ID: id, Latitude: lat, Longitude: lng}.Definition(StandardDefaults())
	if err != nil {
		t.Fatalf("Definition(%q) error = %v", id, err)
	}
	return d
}
