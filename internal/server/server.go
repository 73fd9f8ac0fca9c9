// Package server exposes the scheduler over a unix socket using framed JSON
// requests, plus an optional read-only JSON-RPC 2.0 monitoring bridge over
// HTTP and WebSocket. Each accepted socket connection is one peer session;
// when it closes, every entry it registered is removed.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/tollgate/tollgate/common"
	"github.com/tollgate/tollgate/internal/sched"
	"github.com/tollgate/tollgate/pkg/logger"
)

// Server accepts client sessions on a unix socket (TCP fallback) and
// dispatches framed requests to registered handlers.
type Server struct {
	log      logger.Logger
	watchers *Watchers
	peerMgr  *SessionPeerManager
	ws       *WebServer
	handler  map[common.Method]HandlerFunc
	port     int
	listener net.Listener
	mu       sync.Mutex
}

// NewServer creates a Server. ws may be nil to disable the monitoring
// bridge.
func NewServer(log logger.Logger, peerMgr *SessionPeerManager, ws *WebServer, port int) *Server {
	return &Server{
		log:      log,
		watchers: NewWatchers(log),
		peerMgr:  peerMgr,
		ws:       ws,
		handler:  make(map[common.Method]HandlerFunc),
		port:     port,
	}
}

// RegisterHandler associates a handler with a request method.
func (s *Server) RegisterHandler(method common.Method, handler HandlerFunc) {
	s.handler[method] = handler
}

// Watchers returns the watch subscription set, for handlers that push.
func (s *Server) Watchers() *Watchers {
	return s.watchers
}

// Broadcast pushes a decision update to every watching socket client and to
// the monitoring bridge.
func (s *Server) Broadcast(u common.EntryUpdate) {
	s.watchers.Broadcast(MakeResult(common.UpdateDecision, u))
	if s.ws != nil {
		s.ws.NotifyDecision(u)
	}
}

func (s *Server) createListener() (net.Listener, error) {
	socketPath := common.SocketPath()
	_ = os.Remove(socketPath)
	l, err := net.ListenUnix("unix", &net.UnixAddr{
		Name: socketPath,
		Net:  "unix",
	})
	if err != nil {
		s.log.Warning("unix socket unavailable (%v), falling back to tcp", err)
		tcpListener, tcpErr := net.Listen("tcp", fmt.Sprintf("%s:%d", common.TCPHost, s.port))
		if tcpErr != nil {
			return nil, fmt.Errorf("error listening: %w", tcpErr)
		}
		return tcpListener, nil
	}
	// The socket grants scheduling control; keep it owner-only.
	_ = os.Chmod(socketPath, 0600)
	return l, nil
}

// Start begins listening and blocks until the context is canceled. Each
// accepted connection is served in its own goroutine.
func (s *Server) Start(ctx context.Context) error {
	if s.ws != nil {
		go func() {
			if err := s.ws.Start(); err != nil {
				s.log.Error("monitoring bridge: %v", err)
			}
		}()
	}

	l, err := s.createListener()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			s.log.Error("accepting connection: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// Shutdown closes the listener, the monitoring bridge and the socket file.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.log.Error("closing listener: %v", err)
		}
		s.listener = nil
	}

	if s.ws != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.ws.Shutdown(shutdownCtx); err != nil {
			s.log.Error("shutting down monitoring bridge: %v", err)
		}
	}

	if err := os.Remove(common.SocketPath()); err != nil && !os.IsNotExist(err) {
		s.log.Error("removing socket file: %v", err)
	}
	return nil
}

func (s *Server) handleConnection(conn net.Conn) {
	sconn := NewSyncConn(conn)
	peer := s.peerMgr.Bind(conn)
	s.log.Info("session %s connected", peer)
	defer func() {
		conn.Close()
		s.watchers.Remove(sconn)
		// The session is the peer: a closed connection means every entry
		// it registered loses its owner.
		s.peerMgr.SessionClosed(peer)
		s.log.Info("session %s closed", peer)
	}()
	for {
		buf, err := sconn.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warning("reading from %s: %v", peer, err)
			}
			return
		}
		if err := s.handlerWrapper(peer, sconn, buf); err != nil {
			s.log.Warning("handling request from %s: %v", peer, err)
			return
		}
	}
}

func (s *Server) handlerWrapper(peer sched.PeerID, sconn *SyncConn, b []byte) error {
	req, err := ParseRequest(b)
	if err != nil {
		return fmt.Errorf("error parsing request: %w", err)
	}
	rHandler, ok := s.handler[req.Method]
	if !ok {
		if err := sconn.Write(CreateError("unknown method: " + string(req.Method))); err != nil {
			return fmt.Errorf("error writing response: %w", err)
		}
		return nil
	}
	utype, msg, err := rHandler(peer, sconn, req.Message)
	if err != nil {
		if err := sconn.Write(InitError(err)); err != nil {
			return fmt.Errorf("error writing response: %w", err)
		}
		return nil
	}
	if err := sconn.Write(MakeResult(utype, msg)); err != nil {
		return fmt.Errorf("error writing response: %w", err)
	}
	return nil
}
