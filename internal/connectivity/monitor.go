// Package connectivity abstracts the host environment's connectivity
// signal. Browser-like embeddings feed online/offline transitions into a
// Manual monitor; headless embeddings without any signal use AlwaysOnline.
package connectivity

import "sync"

// Monitor reports whether the device currently believes it has network
// connectivity and exposes a channel that receives a tick whenever
// connectivity is restored after an offline period.
type Monitor interface {
	// Online reports the current connectivity belief.
	Online() bool

	// Restored returns a channel receiving a signal on each offline to
	// online transition.
	Restored() <-chan struct{}
}

// AlwaysOnline is a Monitor for embeddings without a connectivity signal.
// It never reports offline and never fires restore events.
type AlwaysOnline struct{}

// Online implements Monitor.
func (AlwaysOnline) Online() bool { return true }

// Restored implements Monitor.
func (AlwaysOnline) Restored() <-chan struct{} { return nil }

// Manual is a Monitor driven explicitly by the host through SetOnline.
type Manual struct {
	mu       sync.Mutex
	online   bool
	restored chan struct{}
}

// NewManual creates a Manual monitor with the given initial state.
func NewManual(online bool) *Manual {
	return &Manual{
		online:   online,
		restored: make(chan struct{}, 1),
	}
}

// Online implements Monitor.
func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Restored implements Monitor.
func (m *Manual) Restored() <-chan struct{} {
	return m.restored
}

// SetOnline records a connectivity change. A transition from offline to
// online fires the restored channel; the send never blocks, so coalescing
// rapid flaps into one tick is acceptable.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	m.mu.Unlock()

	if online && !wasOnline {
		select {
		case m.restored <- struct{}{}:
		default:
		}
	}
}
