package cmd

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/tollgate/tollgate/common"
)

// defaultBridgePort is where the JSON-RPC monitoring bridge listens when
// enabled.
const defaultBridgePort = 4341

var (
	tariffPath      string
	dbPath          string
	noHistory       bool
	maxActive       int
	port            int
	bridgePort      int
	logFile         string
	assumeUnmetered bool

	daemonFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "tariff, t",
			Usage:       "path to the tariff file (optional)",
			Destination: &tariffPath,
		},
		cli.StringFlag{
			Name:        "db",
			Usage:       "path to the history database (default: <config-dir>/history.db)",
			Destination: &dbPath,
		},
		cli.BoolFlag{
			Name:        "no-history",
			Usage:       "run without the decision-history log",
			Destination: &noHistory,
		},
		cli.IntFlag{
			Name:        "max-active, m",
			Usage:       "cap on concurrently allowed entries (0 disables the cap)",
			Destination: &maxActive,
		},
		cli.IntFlag{
			Name:        "port, p",
			Usage:       "TCP fallback port for the daemon socket",
			Value:       common.DefaultTCPPort,
			EnvVar:      common.TCPPortEnv,
			Destination: &port,
		},
		cli.IntFlag{
			Name:        "bridge-port",
			Usage:       "port for the JSON-RPC monitoring bridge",
			Value:       defaultBridgePort,
			Destination: &bridgePort,
		},
		cli.StringFlag{
			Name:        "log-file",
			Usage:       "append daemon logs to this file in addition to the console",
			Destination: &logFile,
		},
		cli.BoolFlag{
			Name:        "assume-unmetered",
			Usage:       "without NetworkManager, assume one usable unmetered connection instead of blocking everything",
			Destination: &assumeUnmetered,
		},
	}
)

// configDir returns the directory for tollgate's own files (history db,
// bridge token fallback).
func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "tollgate")
}

// historyPath resolves the database path from the --db flag.
func historyPath() string {
	if dbPath != "" {
		return dbPath
	}
	return filepath.Join(configDir(), "history.db")
}
