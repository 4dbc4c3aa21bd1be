package geofence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// Compatible with logging.Logger and slog.Logger.
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

// AddRequest is one platform registration call.
type AddRequest struct {
	Geofences      []Definition `json:"geofences"`
	InitialTrigger int          `json:"initial_trigger"`
	Handle         Handle       `json:"handle"`
}

// Platform is the platform geofencing service. Every call settles its
// Result exactly once, rejecting with *Error on a non-zero status.
type Platform interface {
	AddGeofences(ctx context.Context, req AddRequest) *Result[struct{}]
	RemoveGeofences(ctx context.Context, ids []string) *Result[struct{}]
	RemoveHandle(ctx context.Context, handle Handle) *Result[struct{}]
}

// Op names a registry mutation.
type Op string

// Registry operations.
const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
	OpClear  Op = "clear"
)

// Intent is a mutation sent to the platform and not yet acknowledged.
type Intent struct {
	Op        Op        `json:"op"`
	IDs       []string  `json:"ids,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Registry tracks the regions this relay has registered with the platform.
//
// Local state changes only on platform acknowledgement. A failed call leaves
// the registry exactly as it was.
//
// Registry also filters inbound signals. Ids removed in this process stay
// blocked until re-added, and after Clear only ids added since the clear
// are admitted.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Registry struct {
	platform Platform
	handles  *HandleProvider
	logger   Logger

	mu      sync.RWMutex
	regions map[string]Definition
	pending map[uint64]Intent
	nextID  uint64

	// removed holds ids removed since the last clear.
	removed map[string]struct{}

	// cleared is set by the first successful Clear; from then on only ids
	// in sinceClear are admitted.
	cleared    bool
	sinceClear map[string]struct{}

	now func() time.Time
}

// NewRegistry creates an empty registry.
//
// Parameters:
//   - platform: The platform geofencing service
//   - handles: Supplies the correlation handle for add and clear calls
func NewRegistry(platform Platform, handles *HandleProvider) *Registry {
	return &Registry{
		platform:   platform,
		handles:    handles,
		logger:     noopLogger{},
		regions:    make(map[string]Definition),
		pending:    make(map[uint64]Intent),
		removed:    make(map[string]struct{}),
		sinceClear: make(map[string]struct{}),
		now:        time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

func (r *Registry) begin(op Op, ids []string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.pending[r.nextID] = Intent{Op: op, IDs: ids, StartedAt: r.now()}
	return r.nextID
}

// finish drops the intent and, on success, applies commit under the lock.
func (r *Registry) finish(id uint64, err error, commit func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	intent := r.pending[id]
	delete(r.pending, id)
	if err != nil {
		r.logger.Warn("platform rejected intent", "op", intent.Op, "ids", intent.IDs, "error", err)
		return
	}
	commit()
	r.logger.Debug("platform acknowledged intent", "op", intent.Op, "ids", intent.IDs)
}

// Add registers one region. It resolves with def.ID once the platform
// acknowledges.
func (r *Registry) Add(ctx context.Context, def Definition) *Result[string] {
	return Map(r.AddAll(ctx, []Definition{def}), func(ids []string) string { return ids[0] })
}

// AddAll registers regions in one platform call. It resolves with their ids
// in input order. An empty batch is rejected with InvalidArgument.
func (r *Registry) AddAll(ctx context.Context, defs []Definition) *Result[[]string] {
	if len(defs) == 0 {
		return Rejected[[]string](InvalidArgument("at least one geofence is required"))
	}

	ids := make([]string, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
	}

	req := AddRequest{
		Geofences:      append([]Definition(nil), defs...),
		InitialTrigger: InitialTriggerEnter,
		Handle:         r.handles.Handle(),
	}

	intent := r.begin(OpAdd, ids)
	out := NewResult[[]string]()
	r.platform.AddGeofences(ctx, req).Then(func(_ struct{}, err error) {
		r.finish(intent, err, func() {
			for _, d := range req.Geofences {
				r.regions[d.ID] = d
				delete(r.removed, d.ID)
				if r.cleared {
					r.sinceClear[d.ID] = struct{}{}
				}
			}
		})
		if err != nil {
			out.Reject(AsError(err))
			return
		}
		out.Resolve(ids)
	})
	return out
}

// Remove unregisters one region. It resolves with id whether or not the id
// was registered.
func (r *Registry) Remove(ctx context.Context, id string) *Result[string] {
	return Map(r.RemoveAll(ctx, []string{id}), func(ids []string) string { return ids[0] })
}

// RemoveAll unregisters regions. It resolves with ids in input order whether
// or not they were registered. An empty list resolves immediately.
func (r *Registry) RemoveAll(ctx context.Context, ids []string) *Result[[]string] {
	ids = append([]string{}, ids...)
	if len(ids) == 0 {
		return Resolved(ids)
	}

	intent := r.begin(OpRemove, ids)
	out := NewResult[[]string]()
	r.platform.RemoveGeofences(ctx, ids).Then(func(_ struct{}, err error) {
		r.finish(intent, err, func() {
			for _, id := range ids {
				delete(r.regions, id)
				delete(r.sinceClear, id)
				r.removed[id] = struct{}{}
			}
		})
		if err != nil {
			out.Reject(AsError(err))
			return
		}
		out.Resolve(ids)
	})
	return out
}

// Clear removes every region routed to this process's handle, including
// regions the registry never saw.
func (r *Registry) Clear(ctx context.Context) *Result[struct{}] {
	intent := r.begin(OpClear, nil)
	out := NewResult[struct{}]()
	r.platform.RemoveHandle(ctx, r.handles.Handle()).Then(func(_ struct{}, err error) {
		r.finish(intent, err, func() {
			r.regions = make(map[string]Definition)
			r.removed = make(map[string]struct{})
			r.sinceClear = make(map[string]struct{})
			r.cleared = true
		})
		if err != nil {
			out.Reject(AsError(err))
			return
		}
		out.Resolve(struct{}{})
	})
	return out
}

// Admit filters the ids of an inbound signal.
//
// An empty id list passes unchanged. Otherwise ids blocked by a remove or a
// clear are stripped, and ok is false if none remain.
func (r *Registry) Admit(ids []string) (admitted []string, ok bool) {
	if len(ids) == 0 {
		return ids, true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	admitted = make([]string, 0, len(ids))
	for _, id := range ids {
		if r.admissible(id) {
			admitted = append(admitted, id)
		}
	}
	return admitted, len(admitted) > 0
}

func (r *Registry) admissible(id string) bool {
	if r.cleared {
		_, ok := r.sinceClear[id]
		return ok
	}
	_, gone := r.removed[id]
	return !gone
}

// Len returns the number of registered regions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.regions)
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.regions))
	for id := range r.regions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns the registered definition for id.
func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.regions[id]
	return d, ok
}

// Pending returns the number of unacknowledged platform calls.
func (r *Registry) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

// PendingIntents returns the unacknowledged calls, oldest first.
func (r *Registry) PendingIntents() []Intent {
	r.mu.RLock()
	keys := make([]uint64, 0, len(r.pending))
	for k := range r.pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]Intent, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.pending[k])
	}
	r.mu.RUnlock()
	return out
}
