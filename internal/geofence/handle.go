package geofence

import (
	"sync"

	"github.com/google/uuid"
)

// handleNamespace seeds the name-based handle token.
var handleNamespace = uuid.MustParse("6f2b1c1e-2a52-4d4c-9f0e-53a1c6f0b7d1")

// Handle routes platform signals back to this relay.
// The platform publishes transitions for every region registered under the
// handle on Topic.
type Handle struct {
	Token string `json:"token"`
	Topic string `json:"topic"`
}

// HandleProvider creates the process's single Handle on first use and
// returns the same value afterwards.
//
// The token is a SHA-1 name-based UUID of the relay client ID, so a process
// that restarts with the same client ID routes to the same signal topic.
type HandleProvider struct {
	clientID string
	topic    func(token string) string

	once   sync.Once
	handle Handle
}

// NewHandleProvider creates a provider. topic maps a token to the signal
// topic the platform should publish on.
func NewHandleProvider(clientID string, topic func(token string) string) *HandleProvider {
	return &HandleProvider{clientID: clientID, topic: topic}
}

// Handle returns the process handle, creating it on first call.
func (p *HandleProvider) Handle() Handle {
	p.once.Do(func() {
		token := uuid.NewSHA1(handleNamespace, []byte(p.clientID)).String()
		p.handle = Handle{Token: token, Topic: p.topic(token)}
	})
	return p.handle
}
