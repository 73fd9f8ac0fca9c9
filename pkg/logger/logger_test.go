package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMockLoggerRecords(t *testing.T) {
	m := NewMockLogger()
	m.Info("hello %s", "world")
	m.Warning("warn")
	m.Error("boom %d", 7)

	if len(m.InfoCalls) != 1 || m.InfoCalls[0] != "hello world" {
		t.Errorf("InfoCalls = %v", m.InfoCalls)
	}
	if len(m.WarningCalls) != 1 || m.WarningCalls[0] != "warn" {
		t.Errorf("WarningCalls = %v", m.WarningCalls)
	}
	if len(m.ErrorCalls) != 1 || m.ErrorCalls[0] != "boom 7" {
		t.Errorf("ErrorCalls = %v", m.ErrorCalls)
	}
	if err := m.Close(); err != nil || !m.CloseCalled {
		t.Error("Close not recorded")
	}
}

func TestMultiLoggerBroadcasts(t *testing.T) {
	a, b := NewMockLogger(), NewMockLogger()
	m := NewMultiLogger(a, b)
	m.Info("x")
	m.Warning("y")
	m.Error("z")

	for _, l := range []*MockLogger{a, b} {
		if len(l.InfoCalls) != 1 || len(l.WarningCalls) != 1 || len(l.ErrorCalls) != 1 {
			t.Errorf("backend missed a message: %+v", l)
		}
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.CloseCalled || !b.CloseCalled {
		t.Error("Close not propagated to all backends")
	}
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	fl, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	fl.Info("started %d", 1)
	fl.Warning("careful")
	fl.Error("failed")
	if err := fl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Closing twice is safe.
	if err := fl.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"[INFO] started 1", "[WARNING] careful", "[ERROR] failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestToStdLoggerForwardsToInfo(t *testing.T) {
	m := NewMockLogger()
	std := ToStdLogger(m)
	std.Println("passed through")
	if len(m.InfoCalls) != 1 || m.InfoCalls[0] != "passed through" {
		t.Errorf("InfoCalls = %v", m.InfoCalls)
	}
}
