package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/geofence-relay/internal/auth"
)

const (
	// ticketTTL bounds the gap between POST /ws/ticket and the upgrade.
	ticketTTL = 60 * time.Second

	ticketBytes = 32
)

// wsTicket carries the bearer's identity across the WebSocket upgrade,
// which cannot send an Authorization header from a browser.
type wsTicket struct {
	subject   string
	role      auth.Role
	expiresAt time.Time
}

// ticketStore holds single-use WebSocket tickets.
type ticketStore struct {
	mu      sync.Mutex
	pending map[string]wsTicket
	now     func() time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{pending: make(map[string]wsTicket), now: time.Now}
}

// issue mints a ticket for the given identity.
func (ts *ticketStore) issue(subject string, role auth.Role) string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	id := hex.EncodeToString(b)

	ts.mu.Lock()
	ts.pending[id] = wsTicket{subject: subject, role: role, expiresAt: ts.now().Add(ticketTTL)}
	ts.mu.Unlock()
	return id
}

// redeem consumes a ticket. A ticket is removed on first use even when it
// has already expired.
func (ts *ticketStore) redeem(id string) (wsTicket, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	t, ok := ts.pending[id]
	if !ok {
		return wsTicket{}, false
	}
	delete(ts.pending, id)
	return t, ts.now().Before(t.expiresAt)
}

// sweep drops expired tickets and reports how many remain.
func (ts *ticketStore) sweep() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	for id, t := range ts.pending {
		if !now.Before(t.expiresAt) {
			delete(ts.pending, id)
		}
	}
	return len(ts.pending)
}

func (ts *ticketStore) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts.sweep()
		}
	}
}

// handleWSTicket issues a ticket bound to the caller's token claims. With
// API auth disabled the ticket is anonymous.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	var subject string
	var role auth.Role
	if claims := claimsFromContext(r.Context()); claims != nil {
		subject, role = claims.Subject, claims.Role
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     s.tickets.issue(subject, role),
		"expires_in": int(ticketTTL.Seconds()),
	})
}
