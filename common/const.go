package common

import (
	"os"
	"path/filepath"
)

// Method identifies an operation on the daemon socket. It is carried in the
// "method" field of every request frame.
type Method string

const (
	MethodRegister     Method = "register"
	MethodUnregister   Method = "unregister"
	MethodHold         Method = "hold"
	MethodRelease      Method = "release"
	MethodState        Method = "state"
	MethodList         Method = "list"
	MethodWatch        Method = "watch"
	MethodHistory      Method = "history"
	MethodTariffGet    Method = "tariff_get"
	MethodTariffReload Method = "tariff_reload"

	// UpdateDecision is pushed to watching connections whenever an entry's
	// decision changes or an entry is removed.
	UpdateDecision Method = "decision"
)

const (
	// MaxMessageSize limits a single request or response frame.
	MaxMessageSize = 1 << 20

	// TCPHost is the host used for the TCP fallback listener.
	TCPHost = "localhost"

	// DefaultTCPPort is the TCP fallback port when the unix socket is
	// unavailable.
	DefaultTCPPort = 4340
)

// SocketPath returns the daemon socket path, honouring SocketPathEnv.
func SocketPath() string {
	if path := os.Getenv(SocketPathEnv); path != "" {
		return path
	}
	return filepath.Join(os.TempDir(), "tollgated.sock")
}
