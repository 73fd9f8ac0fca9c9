package connmon

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/tollgate/tollgate/pkg/logger"
)

const (
	nmService    = "org.freedesktop.NetworkManager"
	nmPath       = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmIface      = "org.freedesktop.NetworkManager"
	nmActiveConn = "org.freedesktop.NetworkManager.Connection.Active"
	nmDevice     = "org.freedesktop.NetworkManager.Device"

	// NM_ACTIVE_CONNECTION_STATE_ACTIVATED
	nmActiveConnStateActivated = uint32(2)
)

// NetworkManager is the production Monitor. It reads active connections and
// per-device metered state from NetworkManager over the system D-Bus and
// re-snapshots on every property change under the NetworkManager path
// namespace. Anything it cannot read degrades to unusable or metered-
// unknown, never to a permissive value.
type NetworkManager struct {
	log  logger.Logger
	conn *dbus.Conn

	mu      sync.Mutex
	conns   []Connection
	handler Handler
}

// NewNetworkManager connects to the system bus. The returned monitor does
// nothing until Start is called.
func NewNetworkManager(log logger.Logger) (*NetworkManager, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return &NetworkManager{log: log, conn: conn}, nil
}

// OnUpdate registers the snapshot handler. Must be called before Start.
func (m *NetworkManager) OnUpdate(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// Connections returns the most recent snapshot.
func (m *NetworkManager) Connections() []Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Connection(nil), m.conns...)
}

// Start takes an initial snapshot, subscribes to property changes, and
// keeps re-snapshotting in the background until ctx is cancelled.
func (m *NetworkManager) Start(ctx context.Context) error {
	if err := m.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchPathNamespace("/org/freedesktop/NetworkManager"),
	); err != nil {
		return fmt.Errorf("subscribe to NetworkManager signals: %w", err)
	}

	signals := make(chan *dbus.Signal, 32)
	m.conn.Signal(signals)

	m.publish(m.snapshot())

	go func() {
		defer m.conn.RemoveSignal(signals)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if sig == nil {
					continue
				}
				m.publish(m.snapshot())
			}
		}
	}()
	return nil
}

// publish replaces the stored snapshot and delivers it when it differs
// from the previous one.
func (m *NetworkManager) publish(conns []Connection) {
	m.mu.Lock()
	changed := !snapshotsEqual(m.conns, conns)
	m.conns = conns
	h := m.handler
	m.mu.Unlock()
	if changed && h != nil {
		h(append([]Connection(nil), conns...))
	}
}

// snapshot reads the current active connections from NetworkManager.
func (m *NetworkManager) snapshot() []Connection {
	root := m.conn.Object(nmService, nmPath)

	var activePaths []dbus.ObjectPath
	v, err := root.GetProperty(nmIface + ".ActiveConnections")
	if err != nil {
		m.log.Warning("NetworkManager: reading ActiveConnections failed: %v", err)
		return nil
	}
	if err := v.Store(&activePaths); err != nil {
		m.log.Warning("NetworkManager: unexpected ActiveConnections type: %v", err)
		return nil
	}

	conns := make([]Connection, 0, len(activePaths))
	for _, path := range activePaths {
		conns = append(conns, m.readActiveConnection(path))
	}
	return conns
}

// readActiveConnection builds one Connection from an active-connection
// object, combining the metered state of every underlying device
// pessimistically.
func (m *NetworkManager) readActiveConnection(path dbus.ObjectPath) Connection {
	obj := m.conn.Object(nmService, path)
	c := Connection{ID: string(path), Metered: MeteredUnknown}

	if v, err := obj.GetProperty(nmActiveConn + ".Id"); err == nil {
		var id string
		if v.Store(&id) == nil && id != "" {
			c.ID = id
		}
	}

	var state uint32
	if v, err := obj.GetProperty(nmActiveConn + ".State"); err == nil && v.Store(&state) == nil {
		c.Usable = state == nmActiveConnStateActivated
	}

	var devices []dbus.ObjectPath
	if v, err := obj.GetProperty(nmActiveConn + ".Devices"); err == nil && v.Store(&devices) == nil {
		for _, devPath := range devices {
			dev := m.conn.Object(nmService, devPath)
			var metered uint32
			if v, err := dev.GetProperty(nmDevice + ".Metered"); err == nil && v.Store(&metered) == nil {
				c.Metered = CombinePessimistic(c.Metered, meteredFromNM(metered))
			}
		}
	}
	return c
}

// meteredFromNM maps NMMetered values to Metered. The enums share their
// numbering, but the mapping is explicit so a NetworkManager extension
// cannot leak through as a permissive value.
func meteredFromNM(v uint32) Metered {
	switch v {
	case 1:
		return MeteredYes
	case 2:
		return MeteredNo
	case 3:
		return MeteredGuessYes
	case 4:
		return MeteredGuessNo
	default:
		return MeteredUnknown
	}
}

func snapshotsEqual(a, b []Connection) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var _ Monitor = (*NetworkManager)(nil)
