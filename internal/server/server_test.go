package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tollgate/tollgate/common"
	"github.com/tollgate/tollgate/internal/connmon"
	"github.com/tollgate/tollgate/internal/sched"
	"github.com/tollgate/tollgate/pkg/logger"
)

// clientResponse mirrors Response with a raw update payload, for decoding on
// the client side of the tests.
type clientResponse struct {
	Ok     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Update *struct {
		Type    common.Method   `json:"type"`
		Message json.RawMessage `json:"message,omitempty"`
	} `json:"update,omitempty"`
}

// startTestServer runs a full daemon socket (scheduler + service + server)
// on a per-test unix socket and returns the scheduler plus the socket path.
func startTestServer(t *testing.T) (*sched.Scheduler, string) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "tollgated.sock")
	t.Setenv(common.SocketPathEnv, sockPath)

	scheduler := sched.New(sched.Options{})
	scheduler.UpdateConnections([]connmon.Connection{
		{ID: "wifi", Metered: connmon.MeteredNo, Usable: true},
	})

	log := logger.NewNopLogger()
	peerMgr := NewSessionPeerManager(log)
	peerMgr.OnVanished(scheduler.PeerVanished)

	srv := NewServer(log, peerMgr, nil, 0)
	NewService(log, scheduler, nil, nil, "").RegisterHandlers(srv)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Start(ctx)
	t.Cleanup(func() {
		cancel()
		scheduler.Close()
	})

	// Forward decision updates to watchers, the way the daemon wires it.
	updates, stop := scheduler.Subscribe(64)
	t.Cleanup(stop)
	go func() {
		for u := range updates {
			srv.Broadcast(u)
		}
	}()

	waitForSocket(t, sockPath)
	return scheduler, sockPath
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server socket never appeared")
}

func dialDaemon(t *testing.T, path string) *SyncConn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewSyncConn(conn)
}

func call(t *testing.T, sconn *SyncConn, method common.Method, msg any) *clientResponse {
	t.Helper()
	var raw json.RawMessage
	if msg != nil {
		b, err := json.Marshal(msg)
		if err != nil {
			t.Fatal(err)
		}
		raw = b
	}
	req, err := json.Marshal(Request{Method: method, Message: raw})
	if err != nil {
		t.Fatal(err)
	}
	if err := sconn.Write(req); err != nil {
		t.Fatalf("write request: %v", err)
	}
	buf, err := sconn.Read()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp clientResponse
	if err := json.Unmarshal(buf, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &resp
}

func mustCall(t *testing.T, sconn *SyncConn, method common.Method, msg, out any) {
	t.Helper()
	resp := call(t, sconn, method, msg)
	if !resp.Ok {
		t.Fatalf("%s failed: %s", method, resp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Update.Message, out); err != nil {
			t.Fatalf("decode %s payload: %v", method, err)
		}
	}
}

func TestServerRegisterStateList(t *testing.T) {
	_, sockPath := startTestServer(t)
	sconn := dialDaemon(t, sockPath)

	var reg common.EntryID
	mustCall(t, sconn, common.MethodRegister, common.EntrySpec{Priority: 5}, &reg)
	if reg.ID == "" {
		t.Fatal("register returned empty id")
	}

	var state common.EntryState
	mustCall(t, sconn, common.MethodState, common.EntryID{ID: reg.ID}, &state)
	if state.Decision != common.DecisionAllowed {
		t.Errorf("decision = %v, want allowed", state.Decision)
	}

	var list common.ListResponse
	mustCall(t, sconn, common.MethodList, nil, &list)
	if len(list.Entries) != 1 || list.Entries[0].ID != reg.ID {
		t.Errorf("list = %+v", list.Entries)
	}
	if list.Entries[0].Priority != 5 {
		t.Errorf("priority lost on the wire: %+v", list.Entries[0])
	}
}

func TestServerHoldRelease(t *testing.T) {
	_, sockPath := startTestServer(t)
	sconn := dialDaemon(t, sockPath)

	var reg common.EntryID
	mustCall(t, sconn, common.MethodRegister, common.EntrySpec{}, &reg)

	mustCall(t, sconn, common.MethodHold, common.EntryID{ID: reg.ID}, nil)
	var state common.EntryState
	mustCall(t, sconn, common.MethodState, common.EntryID{ID: reg.ID}, &state)
	if state.Decision != common.DecisionHeld {
		t.Errorf("decision after hold = %v", state.Decision)
	}

	mustCall(t, sconn, common.MethodRelease, common.EntryID{ID: reg.ID}, nil)
	mustCall(t, sconn, common.MethodState, common.EntryID{ID: reg.ID}, &state)
	if state.Decision != common.DecisionAllowed {
		t.Errorf("decision after release = %v", state.Decision)
	}
}

func TestServerErrorMapping(t *testing.T) {
	_, sockPath := startTestServer(t)
	sconn := dialDaemon(t, sockPath)

	resp := call(t, sconn, common.MethodState, common.EntryID{ID: "entry-nope"})
	if resp.Ok {
		t.Fatal("state of unknown entry succeeded")
	}
	if resp.Error != sched.ErrNotFound.Error() {
		t.Errorf("wire error = %q, want %q", resp.Error, sched.ErrNotFound.Error())
	}

	resp = call(t, sconn, common.Method("bogus"), nil)
	if resp.Ok || resp.Error == "" {
		t.Errorf("unknown method response = %+v", resp)
	}

	resp = call(t, sconn, common.MethodHistory, common.HistoryRequest{})
	if resp.Ok || resp.Error != ErrHistoryDisabled.Error() {
		t.Errorf("history without store = %+v", resp)
	}

	resp = call(t, sconn, common.MethodTariffReload, nil)
	if resp.Ok || resp.Error != ErrNoTariffFile.Error() {
		t.Errorf("reload without tariff file = %+v", resp)
	}
}

func TestServerWatchReceivesPush(t *testing.T) {
	_, sockPath := startTestServer(t)
	owner := dialDaemon(t, sockPath)
	watcher := dialDaemon(t, sockPath)

	mustCall(t, watcher, common.MethodWatch, nil, nil)

	var reg common.EntryID
	mustCall(t, owner, common.MethodRegister, common.EntrySpec{}, &reg)
	mustCall(t, owner, common.MethodHold, common.EntryID{ID: reg.ID}, nil)

	watcher.Conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	seen := map[common.Decision]bool{}
	for len(seen) < 2 {
		buf, err := watcher.Read()
		if err != nil {
			t.Fatalf("reading pushed update: %v", err)
		}
		var resp clientResponse
		if err := json.Unmarshal(buf, &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Update == nil || resp.Update.Type != common.UpdateDecision {
			t.Fatalf("unexpected push %+v", resp)
		}
		var u common.EntryUpdate
		if err := json.Unmarshal(resp.Update.Message, &u); err != nil {
			t.Fatal(err)
		}
		if u.ID != reg.ID {
			t.Fatalf("push for unexpected entry %q", u.ID)
		}
		seen[u.Decision] = true
	}
	if !seen[common.DecisionAllowed] || !seen[common.DecisionHeld] {
		t.Errorf("pushed decisions = %v", seen)
	}
}

func TestServerPeerVanishRemovesEntries(t *testing.T) {
	scheduler, sockPath := startTestServer(t)

	short := dialDaemon(t, sockPath)
	var reg common.EntryID
	mustCall(t, short, common.MethodRegister, common.EntrySpec{}, &reg)

	short.Conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := scheduler.EntryState(reg.ID); errors.Is(err, sched.ErrNotFound) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("entry survived its session")
}
