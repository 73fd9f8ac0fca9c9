// Package connmon reports the set of live network connections and their
// cost-relevant properties to the scheduler. The production implementation
// binds to NetworkManager over the system D-Bus; a static in-memory
// implementation serves tests and fixed configurations.
package connmon

import (
	"context"
	"sync"
)

// Metered describes whether a connection is metered (the user pays per unit
// of traffic), including a coarse measure of certainty.
type Metered int

const (
	MeteredUnknown Metered = iota
	MeteredYes
	MeteredNo
	MeteredGuessYes
	MeteredGuessNo
)

// String returns a stable textual form.
func (m Metered) String() string {
	switch m {
	case MeteredYes:
		return "yes"
	case MeteredNo:
		return "no"
	case MeteredGuessYes:
		return "guess-yes"
	case MeteredGuessNo:
		return "guess-no"
	default:
		return "unknown"
	}
}

// Unmetered reports whether the connection is known or guessed to carry no
// per-unit cost. Unknown counts as metered: ambiguity must block, not
// permit.
func (m Metered) Unmetered() bool {
	return m == MeteredNo || m == MeteredGuessNo
}

// CombinePessimistic combines two metered values, preferring the more
// costly of the two. Unknown is the identity: a device that reports nothing
// neither permits nor vetoes, so a definite answer from another device wins.
// A fold that stays Unknown still blocks via Unmetered.
func CombinePessimistic(a, b Metered) Metered {
	if a == MeteredUnknown {
		return b
	}
	if b == MeteredUnknown {
		return a
	}
	order := func(m Metered) int {
		switch m {
		case MeteredYes:
			return 3
		case MeteredGuessYes:
			return 2
		case MeteredGuessNo:
			return 1
		default: // MeteredNo
			return 0
		}
	}
	if order(a) >= order(b) {
		return a
	}
	return b
}

// Connection is the monitor-reported state of one live network connection.
// Read-only to the scheduler.
type Connection struct {
	ID      string
	Metered Metered
	Usable  bool
}

// Handler receives the full current connection list, replacing any
// previously delivered list wholesale.
type Handler func([]Connection)

// Monitor exposes the currently live network connections. Implementations
// deliver a fresh full snapshot to the handler on every relevant change.
type Monitor interface {
	// Start begins monitoring and delivers an initial snapshot. It
	// returns once monitoring is established; delivery continues in the
	// background until ctx is cancelled.
	Start(ctx context.Context) error

	// Connections returns the most recent snapshot.
	Connections() []Connection

	// OnUpdate registers the snapshot handler. Must be called before
	// Start.
	OnUpdate(h Handler)
}

// Static is an in-memory Monitor fed by explicit SetConnections calls.
type Static struct {
	mu      sync.Mutex
	conns   []Connection
	handler Handler
}

// NewStatic creates a Static monitor holding the given initial snapshot.
func NewStatic(initial []Connection) *Static {
	return &Static{conns: append([]Connection(nil), initial...)}
}

// OnUpdate registers the snapshot handler.
func (s *Static) OnUpdate(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Start delivers the initial snapshot.
func (s *Static) Start(ctx context.Context) error {
	s.mu.Lock()
	h, conns := s.handler, append([]Connection(nil), s.conns...)
	s.mu.Unlock()
	if h != nil {
		h(conns)
	}
	return nil
}

// Connections returns the current snapshot.
func (s *Static) Connections() []Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Connection(nil), s.conns...)
}

// SetConnections replaces the snapshot and delivers it to the handler.
func (s *Static) SetConnections(conns []Connection) {
	s.mu.Lock()
	s.conns = append([]Connection(nil), conns...)
	h, snapshot := s.handler, append([]Connection(nil), s.conns...)
	s.mu.Unlock()
	if h != nil {
		h(snapshot)
	}
}

var _ Monitor = (*Static)(nil)
