package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"

	"github.com/tollgate/tollgate/common"
	"github.com/tollgate/tollgate/pkg/logger"
)

// WebServer hosts the read-only JSON-RPC 2.0 monitoring bridge: request/
// response over HTTP POST at /jsonrpc, and a WebSocket endpoint at
// /jsonrpc/ws that additionally receives pushed decision notifications.
// Both require Bearer-token auth.
type WebServer struct {
	port     int
	log      logger.Logger
	rpc      *RPCServer
	notifier *RPCNotifier
	server   *http.Server
	mu       sync.Mutex
}

// NewWebServer creates the bridge host. rpc carries the method handlers and
// the shared auth secret.
func NewWebServer(log logger.Logger, rpc *RPCServer, port int) *WebServer {
	return &WebServer{
		port:     port,
		log:      log,
		rpc:      rpc,
		notifier: NewRPCNotifier(log),
	}
}

// NotifyDecision pushes a decision change to every connected ws client.
func (s *WebServer) NotifyDecision(u common.EntryUpdate) {
	s.notifier.Broadcast("schedule.decision", u)
}

// serveWS upgrades the request and runs a jrpc2 server over the WebSocket
// until the client disconnects. Push notifications flow through the
// notifier for as long as the server is registered.
func (s *WebServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, nil)
	if err != nil {
		s.log.Warning("websocket accept: %v", err)
		return
	}

	ch := &wsChannel{conn: conn, ctx: r.Context()}
	srv := jrpc2.NewServer(s.rpc.methods, &jrpc2.ServerOptions{AllowPush: true})
	srv.Start(ch)
	s.notifier.Register(srv)
	defer s.notifier.Unregister(srv)

	if err := srv.Wait(); err != nil {
		s.log.Info("websocket session ended: %v", err)
	}
	_ = conn.Close(cws.StatusNormalClosure, "")
}

func (s *WebServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/jsonrpc", requireToken(s.rpc.secret, s.rpc.bridge))
	mux.Handle("/jsonrpc/ws", requireToken(s.rpc.secret, http.HandlerFunc(s.serveWS)))
	return mux
}

func (s *WebServer) addr() string {
	return fmt.Sprintf("%s:%d", common.TCPHost, s.port)
}

func (s *WebServer) Start() error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:    s.addr(),
		Handler: s.handler(),
	}
	s.mu.Unlock()

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the web server and the rpc bridge.
func (s *WebServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rpc.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
