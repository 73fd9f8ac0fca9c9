// Package peers tracks the identity and liveness of client sessions that
// own scheduler entries. The production binding lives in the server, where
// each accepted socket connection is one peer; this package defines the
// contract and an in-memory implementation for tests and embedding.
package peers

import (
	"context"
	"sync"

	"github.com/tollgate/tollgate/internal/sched"
)

// VanishHandler is called when a peer's session ends.
type VanishHandler func(sched.PeerID)

// Manager resolves peer identities to credentials and reports peer death.
type Manager interface {
	// EnsureCredentials resolves and caches the peer's credentials (for
	// the socket binding, the executable path of the calling process).
	// It fails for peers the manager has never seen.
	EnsureCredentials(ctx context.Context, peer sched.PeerID) (string, error)

	// Credentials returns the cached credentials, or "" when the peer is
	// unknown or EnsureCredentials was never called for it.
	Credentials(peer sched.PeerID) string

	// OnVanished registers the handler called when a peer's session ends.
	// Only one handler is supported; later calls replace it.
	OnVanished(fn VanishHandler)
}

// InMemory is a Manager for tests: credentials are set explicitly and
// vanishes are triggered by the test.
type InMemory struct {
	mu      sync.Mutex
	creds   map[sched.PeerID]string
	handler VanishHandler
}

// NewInMemory creates an empty in-memory manager.
func NewInMemory() *InMemory {
	return &InMemory{creds: make(map[sched.PeerID]string)}
}

// SetCredentials primes the credentials for a peer.
func (m *InMemory) SetCredentials(peer sched.PeerID, creds string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[peer] = creds
}

// EnsureCredentials returns the primed credentials.
func (m *InMemory) EnsureCredentials(ctx context.Context, peer sched.PeerID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	creds, ok := m.creds[peer]
	if !ok {
		return "", ErrUnknownPeer
	}
	return creds, nil
}

// Credentials returns the primed credentials, or "".
func (m *InMemory) Credentials(peer sched.PeerID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds[peer]
}

// OnVanished registers the vanish handler.
func (m *InMemory) OnVanished(fn VanishHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

// Vanish forgets the peer and delivers the vanish signal.
func (m *InMemory) Vanish(peer sched.PeerID) {
	m.mu.Lock()
	delete(m.creds, peer)
	fn := m.handler
	m.mu.Unlock()
	if fn != nil {
		fn(peer)
	}
}

var _ Manager = (*InMemory)(nil)
