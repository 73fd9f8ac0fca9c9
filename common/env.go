// Package common provides shared types and constants used across the
// tollgate client-daemon communication layer.
package common

// Environment variable names for configuration.
const (
	// SocketPathEnv is the environment variable for a custom socket path.
	SocketPathEnv = "TOLLGATE_SOCKET_PATH"

	// TCPPortEnv is the environment variable for a custom TCP fallback port.
	TCPPortEnv = "TOLLGATE_TCP_PORT"

	// BridgeTokenEnv is the environment variable carrying the monitoring
	// bridge token. Overrides the keyring-stored token when set.
	BridgeTokenEnv = "TOLLGATE_BRIDGE_TOKEN"

	// DebugEnv is the environment variable to enable debug logging.
	DebugEnv = "TOLLGATE_DEBUG"
)
