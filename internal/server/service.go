package server

import (
	"encoding/json"
	"errors"

	"github.com/tollgate/tollgate/common"
	"github.com/tollgate/tollgate/internal/sched"
	"github.com/tollgate/tollgate/internal/store"
	"github.com/tollgate/tollgate/pkg/logger"
	"github.com/tollgate/tollgate/pkg/tariff"
)

// ErrHistoryDisabled is returned for history requests when the daemon runs
// without an event log.
var ErrHistoryDisabled = errors.New("history disabled")

// ErrNoTariffFile is returned for reload requests when no tariff file is
// configured.
var ErrNoTariffFile = errors.New("no tariff file configured")

// Service implements the schedule methods on top of the scheduler. The
// store and the tariff loader are optional.
type Service struct {
	log        logger.Logger
	sched      *sched.Scheduler
	store      *store.Store
	loader     *tariff.Loader
	tariffPath string
}

func NewService(log logger.Logger, scheduler *sched.Scheduler, st *store.Store, loader *tariff.Loader, tariffPath string) *Service {
	return &Service{
		log:        log,
		sched:      scheduler,
		store:      st,
		loader:     loader,
		tariffPath: tariffPath,
	}
}

// RegisterHandlers wires every schedule method into the server.
func (svc *Service) RegisterHandlers(s *Server) {
	s.RegisterHandler(common.MethodRegister, svc.register)
	s.RegisterHandler(common.MethodUnregister, svc.unregister)
	s.RegisterHandler(common.MethodHold, svc.hold)
	s.RegisterHandler(common.MethodRelease, svc.release)
	s.RegisterHandler(common.MethodState, svc.state)
	s.RegisterHandler(common.MethodList, svc.list)
	s.RegisterHandler(common.MethodHistory, svc.history)
	s.RegisterHandler(common.MethodTariffGet, svc.tariffGet)
	s.RegisterHandler(common.MethodTariffReload, svc.tariffReload)
	s.RegisterHandler(common.MethodWatch, func(_ sched.PeerID, conn *SyncConn, _ json.RawMessage) (common.Method, any, error) {
		s.Watchers().Add(conn)
		return common.MethodWatch, common.Ack{}, nil
	})
}

func (svc *Service) register(peer sched.PeerID, _ *SyncConn, body json.RawMessage) (common.Method, any, error) {
	var spec common.EntrySpec
	if len(body) > 0 {
		if err := json.Unmarshal(body, &spec); err != nil {
			return "", nil, wireError(sched.ErrInvalidEntry)
		}
	}
	id, err := svc.sched.Register(peer, spec)
	if err != nil {
		return "", nil, wireError(err)
	}
	return common.MethodRegister, common.EntryID{ID: id}, nil
}

func (svc *Service) unregister(_ sched.PeerID, _ *SyncConn, body json.RawMessage) (common.Method, any, error) {
	id, err := parseEntryID(body)
	if err != nil {
		return "", nil, err
	}
	if err := svc.sched.Unregister(id); err != nil {
		return "", nil, wireError(err)
	}
	return common.MethodUnregister, common.Ack{}, nil
}

func (svc *Service) hold(_ sched.PeerID, _ *SyncConn, body json.RawMessage) (common.Method, any, error) {
	id, err := parseEntryID(body)
	if err != nil {
		return "", nil, err
	}
	if err := svc.sched.Hold(id); err != nil {
		return "", nil, wireError(err)
	}
	return common.MethodHold, common.Ack{}, nil
}

func (svc *Service) release(_ sched.PeerID, _ *SyncConn, body json.RawMessage) (common.Method, any, error) {
	id, err := parseEntryID(body)
	if err != nil {
		return "", nil, err
	}
	if err := svc.sched.Release(id); err != nil {
		return "", nil, wireError(err)
	}
	return common.MethodRelease, common.Ack{}, nil
}

func (svc *Service) state(_ sched.PeerID, _ *SyncConn, body json.RawMessage) (common.Method, any, error) {
	id, err := parseEntryID(body)
	if err != nil {
		return "", nil, err
	}
	decision, err := svc.sched.EntryState(id)
	if err != nil {
		return "", nil, wireError(err)
	}
	return common.MethodState, common.EntryState{ID: id, Decision: decision}, nil
}

func (svc *Service) list(_ sched.PeerID, _ *SyncConn, _ json.RawMessage) (common.Method, any, error) {
	return common.MethodList, common.ListResponse{Entries: svc.sched.Entries()}, nil
}

func (svc *Service) history(_ sched.PeerID, _ *SyncConn, body json.RawMessage) (common.Method, any, error) {
	if svc.store == nil {
		return "", nil, ErrHistoryDisabled
	}
	var req common.HistoryRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return "", nil, errors.New("malformed history request")
		}
	}
	svc.store.Sync()
	events, err := svc.store.Events(req)
	if err != nil {
		svc.log.Error("history query: %v", err)
		return "", nil, errors.New("history query failed")
	}
	return common.MethodHistory, common.HistoryResponse{Events: events}, nil
}

func (svc *Service) tariffGet(_ sched.PeerID, _ *SyncConn, _ json.RawMessage) (common.Method, any, error) {
	return common.MethodTariffGet, svc.sched.TariffStatus(), nil
}

// tariffReload re-reads the tariff file. A file that fails to load or
// validate leaves the previously loaded tariff active.
func (svc *Service) tariffReload(_ sched.PeerID, _ *SyncConn, _ json.RawMessage) (common.Method, any, error) {
	if svc.loader == nil || svc.tariffPath == "" {
		return "", nil, ErrNoTariffFile
	}
	t, err := svc.loader.LoadFile(svc.tariffPath)
	if err != nil {
		svc.log.Warning("tariff reload rejected: %v", err)
		return "", nil, err
	}
	svc.sched.SetTariff(t)
	svc.log.Info("tariff %q reloaded", t.Name())
	return common.MethodTariffReload, svc.sched.TariffStatus(), nil
}

func parseEntryID(body json.RawMessage) (string, error) {
	var req common.EntryID
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return "", errors.New("malformed entry id")
		}
	}
	if req.ID == "" {
		return "", errors.New("missing entry id")
	}
	return req.ID, nil
}

// wireError collapses wrapped scheduler errors to their sentinel so clients
// see a stable error string.
func wireError(err error) error {
	for _, sentinel := range []error{
		sched.ErrInvalidEntry,
		sched.ErrNotFound,
		sched.ErrPeerGone,
		sched.ErrFull,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return err
}
