package server

import (
	"context"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/tollgate/tollgate/common"
	"github.com/tollgate/tollgate/internal/sched"
	"github.com/tollgate/tollgate/internal/store"
)

// Custom JSON-RPC error codes for schedule queries.
const (
	codeEntryNotFound = jrpc2.Code(-32001)
	codeInvalidParams = jrpc2.Code(-32602)
	codeNoHistory     = jrpc2.Code(-32002)
)

// RPCConfig holds configuration for the JSON-RPC monitoring endpoint.
type RPCConfig struct {
	Secret  string // Auth token (required -- empty means the bridge is disabled)
	Version string // Daemon version
	Commit  string // Git commit
}

// RPCServer exposes read-only schedule queries over JSON-RPC 2.0. Mutations
// stay on the unix socket, where the caller's identity is known.
type RPCServer struct {
	bridge  jhttp.Bridge
	methods handler.Map
	secret  string
	version string
	commit  string
	sched   *sched.Scheduler
	store   *store.Store
}

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
}

// StateParams is the input for schedule.state.
type StateParams struct {
	ID string `json:"id"`
}

// NewRPCServer creates an RPCServer with its method handlers and HTTP
// bridge. st may be nil; schedule.history then reports an error.
func NewRPCServer(cfg *RPCConfig, scheduler *sched.Scheduler, st *store.Store) *RPCServer {
	rs := &RPCServer{
		secret:  cfg.Secret,
		version: cfg.Version,
		commit:  cfg.Commit,
		sched:   scheduler,
		store:   st,
	}

	rs.methods = handler.Map{
		"system.getVersion": handler.New(rs.systemGetVersion),
		"schedule.list":     handler.New(rs.scheduleList),
		"schedule.state":    handler.New(rs.scheduleState),
		"schedule.tariff":   handler.New(rs.scheduleTariff),
		"schedule.history":  handler.New(rs.scheduleHistory),
	}

	rs.bridge = jhttp.NewBridge(rs.methods, nil)
	return rs
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*VersionResult, error) {
	return &VersionResult{
		Version: rs.version,
		Commit:  rs.commit,
	}, nil
}

func (rs *RPCServer) scheduleList(_ context.Context) (*common.ListResponse, error) {
	return &common.ListResponse{Entries: rs.sched.Entries()}, nil
}

func (rs *RPCServer) scheduleState(_ context.Context, p *StateParams) (*common.EntryState, error) {
	if p.ID == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: id"}
	}
	decision, err := rs.sched.EntryState(p.ID)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeEntryNotFound, Message: "entry not found"}
	}
	return &common.EntryState{ID: p.ID, Decision: decision}, nil
}

func (rs *RPCServer) scheduleTariff(_ context.Context) (*common.TariffStatus, error) {
	st := rs.sched.TariffStatus()
	return &st, nil
}

func (rs *RPCServer) scheduleHistory(_ context.Context, p *common.HistoryRequest) (*common.HistoryResponse, error) {
	if rs.store == nil {
		return nil, &jrpc2.Error{Code: codeNoHistory, Message: "history disabled"}
	}
	rs.store.Sync()
	events, err := rs.store.Events(*p)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeNoHistory, Message: "history query failed"}
	}
	return &common.HistoryResponse{Events: events}, nil
}

// Close shuts down the jrpc2 bridge, releasing internal goroutines.
func (rs *RPCServer) Close() {
	rs.bridge.Close()
}
