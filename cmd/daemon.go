package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	cmdcommon "github.com/tollgate/tollgate/cmd/common"
	"github.com/tollgate/tollgate/internal/connmon"
	"github.com/tollgate/tollgate/internal/sched"
	"github.com/tollgate/tollgate/internal/server"
	"github.com/tollgate/tollgate/internal/store"
	"github.com/tollgate/tollgate/pkg/logger"
	"github.com/tollgate/tollgate/pkg/secrets"
	"github.com/tollgate/tollgate/pkg/tariff"
)

// DaemonComponents holds all initialized daemon components, allowing unified
// initialization and cleanup.
type DaemonComponents struct {
	Store     *store.Store
	Scheduler *sched.Scheduler
	Monitor   connmon.Monitor
	Server    *server.Server

	cancelSub func()
	logger    logger.Logger
}

// Close releases all daemon component resources in reverse order of
// initialization. The server itself shuts down with the run context.
func (c *DaemonComponents) Close() {
	c.logger.Info("Shutting down daemon...")

	if c.cancelSub != nil {
		c.cancelSub()
	}
	if c.Scheduler != nil {
		_ = c.Scheduler.Close()
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.logger.Error("Closing history store: %v", err)
		}
	}

	c.logger.Info("Daemon stopped")
}

// initDaemonComponents initializes all daemon components with the provided
// logger. On error, any partially initialized components are cleaned up
// before returning.
var initDaemonComponents = func(log logger.Logger) (*DaemonComponents, error) {
	var st *store.Store
	if !noHistory {
		path := historyPath()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		var err error
		st, err = store.Open(path, log)
		if err != nil {
			log.Error("History store initialization failed: %v", err)
			return nil, err
		}
	}

	loader := tariff.NewLoader(afero.NewOsFs())
	var tf *tariff.Tariff
	if tariffPath != "" {
		var err error
		tf, err = loader.LoadFile(tariffPath)
		if err != nil {
			log.Error("Tariff load failed: %v", err)
			if st != nil {
				st.Close()
			}
			return nil, err
		}
		log.Info("Tariff %q loaded", tf.Name())
	}

	opts := sched.Options{
		Log:       log,
		MaxActive: maxActive,
	}
	if st != nil {
		opts.Recorder = st
	}
	scheduler := sched.New(opts)
	if tf != nil {
		scheduler.SetTariff(tf)
	}

	monitor := newMonitor(log)
	monitor.OnUpdate(scheduler.UpdateConnections)

	peerMgr := server.NewSessionPeerManager(log)
	peerMgr.OnVanished(scheduler.PeerVanished)

	ws := newBridge(log, scheduler, st)

	serv := server.NewServer(log, peerMgr, ws, port)
	svc := server.NewService(log, scheduler, st, loader, tariffPath)
	svc.RegisterHandlers(serv)

	updates, cancelSub := scheduler.Subscribe(64)
	go func() {
		for u := range updates {
			serv.Broadcast(u)
		}
	}()

	return &DaemonComponents{
		Store:     st,
		Scheduler: scheduler,
		Monitor:   monitor,
		Server:    serv,
		cancelSub: cancelSub,
		logger:    log,
	}, nil
}

// newMonitor connects to NetworkManager. Without it the daemon falls back to
// a static snapshot: empty (everything blocks) unless --assume-unmetered.
func newMonitor(log logger.Logger) connmon.Monitor {
	nm, err := connmon.NewNetworkManager(log)
	if err == nil {
		return nm
	}
	if assumeUnmetered {
		log.Warning("NetworkManager unavailable (%v), assuming one unmetered connection", err)
		return connmon.NewStatic([]connmon.Connection{
			{ID: "assumed", Metered: connmon.MeteredGuessNo, Usable: true},
		})
	}
	log.Warning("NetworkManager unavailable (%v), all entries will be blocked", err)
	return connmon.NewStatic(nil)
}

// newBridge builds the monitoring bridge when a token is configured, nil
// otherwise.
func newBridge(log logger.Logger, scheduler *sched.Scheduler, st *store.Store) *server.WebServer {
	token := secrets.BridgeToken(secrets.Open(configDir()))
	if token == "" {
		log.Info("Monitoring bridge disabled (no token configured)")
		return nil
	}
	rpc := server.NewRPCServer(&server.RPCConfig{
		Secret:  token,
		Version: currentBuildArgs.Version,
		Commit:  currentBuildArgs.Commit,
	}, scheduler, st)
	return server.NewWebServer(log, rpc, bridgePort)
}

// daemonLogger builds the daemon's logger: console, plus a file when
// --log-file is set.
func daemonLogger() (logger.Logger, error) {
	console := logger.NewStandardLogger(log.Default())
	if logFile == "" {
		return console, nil
	}
	fl, err := logger.NewFileLogger(logFile)
	if err != nil {
		return nil, err
	}
	return logger.NewMultiLogger(console, fl), nil
}

func daemon(ctx *cli.Context) error {
	l, err := daemonLogger()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "daemon", "log_file", err)
		return nil
	}
	defer l.Close()

	comps, err := initDaemonComponents(l)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "daemon", "init", err)
		return nil
	}
	defer comps.Close()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := comps.Monitor.Start(runCtx); err != nil {
		l.Warning("Connection monitor failed to start (%v), all entries will be blocked", err)
	}

	l.Info("Daemon started")
	return comps.Server.Start(runCtx)
}
