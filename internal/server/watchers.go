package server

import (
	"sync"

	"github.com/tollgate/tollgate/pkg/logger"
)

// Watchers is the set of client connections subscribed to decision updates
// via the watch method. Broadcasts go to every member; connections that fail
// a write are dropped from the set.
type Watchers struct {
	log logger.Logger

	mu    sync.Mutex
	conns map[*SyncConn]struct{}
}

func NewWatchers(log logger.Logger) *Watchers {
	return &Watchers{
		log:   log,
		conns: make(map[*SyncConn]struct{}),
	}
}

// Add subscribes a connection. Adding twice is a no-op.
func (w *Watchers) Add(conn *SyncConn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conns[conn] = struct{}{}
}

// Remove unsubscribes a connection.
func (w *Watchers) Remove(conn *SyncConn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.conns, conn)
}

// Count returns the number of subscribed connections.
func (w *Watchers) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.conns)
}

// Broadcast writes one framed message to every subscribed connection.
func (w *Watchers) Broadcast(data []byte) {
	w.mu.Lock()
	conns := make([]*SyncConn, 0, len(w.conns))
	for c := range w.conns {
		conns = append(conns, c)
	}
	w.mu.Unlock()

	var failed []*SyncConn
	for _, c := range conns {
		if err := c.Write(data); err != nil {
			w.log.Warning("dropping watcher after failed write: %v", err)
			failed = append(failed, c)
		}
	}
	if len(failed) > 0 {
		w.mu.Lock()
		for _, c := range failed {
			delete(w.conns, c)
		}
		w.mu.Unlock()
	}
}
