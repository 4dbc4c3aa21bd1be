package foreground

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ImportanceForeground is the importance value of a process the user is
// interacting with.
const ImportanceForeground = 100

// ErrUnavailable is returned when the process table cannot be read.
var ErrUnavailable = errors.New("foreground: process table unavailable")

// Process is one entry in the host's process table.
type Process struct {
	Name       string    `json:"process"`
	Importance int       `json:"importance"`
	SeenAt     time.Time `json:"-"`
}

// ProcessTable lists running processes and their importance.
type ProcessTable interface {
	Processes() ([]Process, error)
}

// PresenceTable is a ProcessTable fed by host presence messages.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type PresenceTable struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]Process
}

// NewPresenceTable creates an empty table. Entries older than ttl are
// ignored; a ttl of zero keeps entries forever.
func NewPresenceTable(ttl time.Duration) *PresenceTable {
	return &PresenceTable{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]Process),
	}
}

// Update records the latest state of a process.
func (t *PresenceTable) Update(p Process) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p.SeenAt.IsZero() {
		p.SeenAt = t.now()
	}
	t.entries[p.Name] = p
}

// Forget removes a process from the table.
func (t *PresenceTable) Forget(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, name)
}

// HandleMessage applies a presence message. process is the topic's last
// segment and wins over the payload's name. An empty payload clears the
// entry, which is how a retained message is deleted.
func (t *PresenceTable) HandleMessage(process string, payload []byte) error {
	if len(payload) == 0 {
		t.Forget(process)
		return nil
	}
	var p Process
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding presence for %q: %w", process, err)
	}
	if process != "" {
		p.Name = process
	}
	if p.Name == "" {
		return errors.New("presence message has no process name")
	}
	p.SeenAt = time.Time{}
	t.Update(p)
	return nil
}

// Processes returns the fresh entries. It fails with ErrUnavailable when no
// fresh entry exists.
func (t *PresenceTable) Processes() ([]Process, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	out := make([]Process, 0, len(t.entries))
	for _, p := range t.entries {
		if t.ttl > 0 && now.Sub(p.SeenAt) > t.ttl {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, ErrUnavailable
	}
	return out, nil
}

// Len returns the number of entries, fresh or stale.
func (t *PresenceTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
