package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/tollgate/tollgate/internal/peers"
	"github.com/tollgate/tollgate/internal/sched"
	"github.com/tollgate/tollgate/pkg/logger"
)

// SessionPeerManager binds peer identities to accepted socket connections.
// Unix sockets yield the caller's pid and uid via SO_PEERCRED; anything else
// falls back to the remote address. A session counter keeps identities
// unique across reconnects, so a vanished peer's identity is never reissued.
type SessionPeerManager struct {
	log logger.Logger

	mu      sync.Mutex
	pids    map[sched.PeerID]int
	creds   map[sched.PeerID]string
	handler peers.VanishHandler
	counter uint64
}

func NewSessionPeerManager(log logger.Logger) *SessionPeerManager {
	return &SessionPeerManager{
		log:   log,
		pids:  make(map[sched.PeerID]int),
		creds: make(map[sched.PeerID]string),
	}
}

// Bind derives a fresh peer identity for an accepted connection.
func (m *SessionPeerManager) Bind(conn net.Conn) sched.PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	if pid, uid, ok := peerCred(conn); ok {
		peer := sched.PeerID(fmt.Sprintf("unix:%d:%d#%d", uid, pid, m.counter))
		m.pids[peer] = pid
		return peer
	}
	return sched.PeerID(fmt.Sprintf("net:%s#%d", conn.RemoteAddr(), m.counter))
}

// EnsureCredentials resolves and caches the peer's executable path.
func (m *SessionPeerManager) EnsureCredentials(_ context.Context, peer sched.PeerID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.creds[peer]; ok {
		return c, nil
	}
	pid, ok := m.pids[peer]
	if !ok {
		return "", fmt.Errorf("credentials of %s: %w", peer, peers.ErrUnknownPeer)
	}
	exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return "", fmt.Errorf("resolving executable of %s: %w", peer, err)
	}
	m.creds[peer] = exe
	return exe, nil
}

// Credentials returns the cached executable path, or "".
func (m *SessionPeerManager) Credentials(peer sched.PeerID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds[peer]
}

// OnVanished registers the vanish handler.
func (m *SessionPeerManager) OnVanished(fn peers.VanishHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

// SessionClosed forgets the peer and delivers the vanish signal.
func (m *SessionPeerManager) SessionClosed(peer sched.PeerID) {
	m.mu.Lock()
	delete(m.pids, peer)
	delete(m.creds, peer)
	fn := m.handler
	m.mu.Unlock()
	if fn != nil {
		fn(peer)
	}
}

var _ peers.Manager = (*SessionPeerManager)(nil)
