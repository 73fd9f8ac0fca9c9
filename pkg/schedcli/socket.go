package schedcli

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"

	"github.com/tollgate/tollgate/common"
)

// tcpPort returns the TCP fallback port from the environment, or the
// default.
func tcpPort() int {
	if port := os.Getenv(common.TCPPortEnv); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			if p >= 1 && p <= 65535 {
				return p
			}
			debugLog("invalid TCP port %d, using default %d", p, common.DefaultTCPPort)
		}
	}
	return common.DefaultTCPPort
}

func debugMode() bool {
	return os.Getenv(common.DebugEnv) == "1"
}

func tcpAddress() string {
	return fmt.Sprintf("%s:%d", common.TCPHost, tcpPort())
}

func debugLog(format string, args ...any) {
	if debugMode() {
		log.Printf(format, args...)
	}
}

// dial connects to the daemon. Transport priority: unix socket > TCP.
func dial() (net.Conn, error) {
	debugLog("Attempting connection via unix socket at %s", common.SocketPath())
	conn, unixErr := net.Dial("unix", common.SocketPath())
	if unixErr != nil {
		debugLog("Unix socket connection failed: %v, falling back to TCP", unixErr)
		conn, err := net.Dial("tcp", tcpAddress())
		if err != nil {
			return nil, fmt.Errorf("failed to connect: unix socket error: %v; tcp error: %w", unixErr, err)
		}
		debugLog("Successfully connected via TCP fallback to %s", tcpAddress())
		return conn, nil
	}
	debugLog("Successfully connected via unix socket")
	return conn, nil
}
