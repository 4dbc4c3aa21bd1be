package dispatch

import (
	"sync"

	"github.com/nerrad567/geofence-relay/internal/geofence"
)

// Listener receives events from a LocalChannel.
type Listener func(event geofence.TransitionEvent)

// LocalChannel is the in-process transport for the immediate path.
// Publish calls every listener synchronously, in subscription order.
type LocalChannel struct {
	mu        sync.RWMutex
	next      int
	listeners []subscription
}

type subscription struct {
	id int
	fn Listener
}

// NewLocalChannel creates a channel with no listeners.
func NewLocalChannel() *LocalChannel {
	return &LocalChannel{}
}

// Subscribe adds a listener and returns a function that removes it.
func (c *LocalChannel) Subscribe(fn Listener) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	c.listeners = append(c.listeners, subscription{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.listeners {
			if s.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers event to every listener and returns how many received it.
func (c *LocalChannel) Publish(event geofence.TransitionEvent) int {
	c.mu.RLock()
	listeners := make([]subscription, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, s := range listeners {
		s.fn(event)
	}
	return len(listeners)
}

// Len returns the number of listeners.
func (c *LocalChannel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners)
}
