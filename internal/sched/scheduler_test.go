package sched

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tollgate/tollgate/common"
	"github.com/tollgate/tollgate/internal/connmon"
	"github.com/tollgate/tollgate/pkg/tariff"
)

func unmeteredSnapshot() []connmon.Connection {
	return []connmon.Connection{{ID: "wifi", Metered: connmon.MeteredNo, Usable: true}}
}

func meteredSnapshot() []connmon.Connection {
	return []connmon.Connection{{ID: "lte", Metered: connmon.MeteredYes, Usable: true}}
}

// nightOwl builds a tariff that is unrestricted 22:00-06:00 and capped
// 06:00-22:00, repeating daily.
func nightOwl(t *testing.T) *tariff.Tariff {
	t.Helper()
	day := func(s string) time.Time {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			t.Fatal(err)
		}
		return ts
	}
	night, err := tariff.NewPeriod(day("2024-01-01T22:00:00Z"), day("2024-01-02T06:00:00Z"),
		tariff.RepeatDay, 1, tariff.Unrestricted)
	if err != nil {
		t.Fatal(err)
	}
	dayPeriod, err := tariff.NewPeriod(day("2024-01-01T06:00:00Z"), day("2024-01-01T22:00:00Z"),
		tariff.RepeatDay, 1, tariff.Capped)
	if err != nil {
		t.Fatal(err)
	}
	tf, err := tariff.New("night-owl", []*tariff.Period{night, dayPeriod})
	if err != nil {
		t.Fatal(err)
	}
	return tf
}

func mustRegister(t *testing.T, s *Scheduler, peer PeerID, spec common.EntrySpec) string {
	t.Helper()
	id, err := s.Register(peer, spec)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return id
}

func mustState(t *testing.T, s *Scheduler, id string) common.Decision {
	t.Helper()
	d, err := s.EntryState(id)
	if err != nil {
		t.Fatalf("EntryState(%s): %v", id, err)
	}
	return d
}

func drain(ch <-chan common.EntryUpdate) []common.EntryUpdate {
	var got []common.EntryUpdate
	for {
		select {
		case u := <-ch:
			got = append(got, u)
		default:
			return got
		}
	}
}

func TestRegisterComputesDecisionImmediately(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	s.UpdateConnections(unmeteredSnapshot())

	id := mustRegister(t, s, "peer-1", common.EntrySpec{})
	if d := mustState(t, s, id); d != common.DecisionAllowed {
		t.Errorf("decision = %v, want allowed", d)
	}
}

func TestFailClosedOnEmptySnapshot(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	id := mustRegister(t, s, "peer-1", common.EntrySpec{})
	if d := mustState(t, s, id); d != common.DecisionBlockedConnection {
		t.Errorf("decision with no connections = %v, want blocked-connection", d)
	}

	// An unusable connection must not admit either.
	s.UpdateConnections([]connmon.Connection{{ID: "down", Metered: connmon.MeteredNo, Usable: false}})
	if d := mustState(t, s, id); d != common.DecisionBlockedConnection {
		t.Errorf("decision with unusable connection = %v, want blocked-connection", d)
	}
}

func TestRecomputeIdempotent(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	s.UpdateConnections(unmeteredSnapshot())
	mustRegister(t, s, "peer-1", common.EntrySpec{})

	ch, cancel := s.Subscribe(16)
	defer cancel()

	// Same snapshot again: nothing changed, nothing may be emitted.
	s.UpdateConnections(unmeteredSnapshot())
	if got := drain(ch); len(got) != 0 {
		t.Errorf("unchanged snapshot emitted %v", got)
	}
}

func TestHoldTakesPrecedence(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	s.UpdateConnections(unmeteredSnapshot())
	id := mustRegister(t, s, "peer-1", common.EntrySpec{})

	if err := s.Hold(id); err != nil {
		t.Fatalf("Hold: %v", err)
	}
	if d := mustState(t, s, id); d != common.DecisionHeld {
		t.Errorf("held decision = %v, want held", d)
	}

	// Hold wins over every other blocker.
	s.UpdateConnections(nil)
	if d := mustState(t, s, id); d != common.DecisionHeld {
		t.Errorf("held decision with no connections = %v, want held", d)
	}

	if err := s.Release(id); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if d := mustState(t, s, id); d != common.DecisionBlockedConnection {
		t.Errorf("released decision = %v, want blocked-connection", d)
	}
}

func TestTariffWraparoundOverThreeDays(t *testing.T) {
	start, _ := time.Parse(time.RFC3339, "2024-01-02T23:00:00Z")
	clock := NewManualClock(start)
	s := New(Options{Clock: clock})
	defer s.Close()
	s.UpdateConnections(unmeteredSnapshot())
	s.SetTariff(nightOwl(t))

	id := mustRegister(t, s, "peer-1", common.EntrySpec{})
	costly := mustRegister(t, s, "peer-1", common.EntrySpec{AllowCostly: true})

	for day := 0; day < 3; day++ {
		if d := mustState(t, s, id); d != common.DecisionAllowed {
			t.Fatalf("day %d 23:00: decision = %v, want allowed", day, d)
		}
		// The boundary alarm at 06:00 flips the decision without any
		// external call.
		clock.Advance(8 * time.Hour) // 07:00
		if d := mustState(t, s, id); d != common.DecisionBlockedTariff {
			t.Fatalf("day %d 07:00: decision = %v, want blocked-tariff", day, d)
		}
		if d := mustState(t, s, costly); d != common.DecisionAllowed {
			t.Fatalf("day %d 07:00: costly decision = %v, want allowed", day, d)
		}
		clock.Advance(16 * time.Hour) // 23:00 next day
	}
}

func TestTariffAlarmRearmed(t *testing.T) {
	start, _ := time.Parse(time.RFC3339, "2024-01-02T23:00:00Z")
	clock := NewManualClock(start)
	s := New(Options{Clock: clock})
	defer s.Close()
	s.SetTariff(nightOwl(t))

	at, ok := clock.NextAlarm()
	if !ok {
		t.Fatal("no alarm armed after SetTariff")
	}
	want, _ := time.Parse(time.RFC3339, "2024-01-03T06:00:00Z")
	if !at.Equal(want) {
		t.Errorf("alarm at %v, want %v", at, want)
	}

	clock.Advance(8 * time.Hour)
	if at, ok := clock.NextAlarm(); !ok || !at.After(want) {
		t.Errorf("alarm not re-armed past the fired boundary: %v %v", at, ok)
	}
}

func TestPeerVanishedCascade(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	s.UpdateConnections(unmeteredSnapshot())

	a1 := mustRegister(t, s, "peer-a", common.EntrySpec{})
	a2 := mustRegister(t, s, "peer-a", common.EntrySpec{})
	b1 := mustRegister(t, s, "peer-b", common.EntrySpec{})

	ch, cancel := s.Subscribe(16)
	defer cancel()

	s.PeerVanished("peer-a")

	removed := map[string]bool{}
	for _, u := range drain(ch) {
		if !u.Removed {
			t.Errorf("unexpected non-removal update %v", u)
			continue
		}
		removed[u.ID] = true
	}
	if !removed[a1] || !removed[a2] || len(removed) != 2 {
		t.Errorf("removals = %v, want exactly {%s, %s}", removed, a1, a2)
	}
	if d := mustState(t, s, b1); d != common.DecisionAllowed {
		t.Errorf("survivor decision = %v, want allowed", d)
	}
	if _, err := s.EntryState(a1); !errors.Is(err, ErrNotFound) {
		t.Errorf("vanished entry state error = %v, want ErrNotFound", err)
	}
}

func TestRegisterAfterPeerVanishedRejected(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	s.PeerVanished("peer-a")

	if _, err := s.Register("peer-a", common.EntrySpec{}); !errors.Is(err, ErrPeerGone) {
		t.Errorf("Register after vanish = %v, want ErrPeerGone", err)
	}
	if _, err := s.Register("peer-b", common.EntrySpec{}); err != nil {
		t.Errorf("Register for live peer: %v", err)
	}
}

func TestMeteredSwapNotifiesExactlyOnce(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	s.UpdateConnections(meteredSnapshot())
	id := mustRegister(t, s, "peer-1", common.EntrySpec{RequireUnmetered: true})
	if d := mustState(t, s, id); d != common.DecisionBlockedConnection {
		t.Fatalf("decision on metered connection = %v, want blocked-connection", d)
	}

	ch, cancel := s.Subscribe(16)
	defer cancel()

	s.UpdateConnections(unmeteredSnapshot())
	got := drain(ch)
	if len(got) != 1 {
		t.Fatalf("snapshot swap emitted %d updates, want 1: %v", len(got), got)
	}
	if got[0].ID != id || got[0].Decision != common.DecisionAllowed {
		t.Errorf("update = %v, want %s allowed", got[0], id)
	}
}

func TestConcurrentSnapshotUpdatesEmitInRecomputeOrder(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	s.UpdateConnections(meteredSnapshot())
	id := mustRegister(t, s, "peer-1", common.EntrySpec{RequireUnmetered: true})

	ch, cancel := s.Subscribe(1024)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if (seed+j)%2 == 0 {
					s.UpdateConnections(unmeteredSnapshot())
				} else {
					s.UpdateConnections(meteredSnapshot())
				}
			}
		}(i)
	}
	wg.Wait()

	got := drain(ch)
	if len(got) == 0 {
		t.Fatal("no updates emitted across snapshot flips")
	}
	// The last update a subscriber sees must match the registry: stale
	// finals mean emission ran out of recompute order.
	final := mustState(t, s, id)
	if last := got[len(got)-1]; last.ID != id || last.Decision != final {
		t.Errorf("last emitted update = %v, registry says %s %v", last, id, final)
	}
}

func TestMaxActiveQueuesByPriority(t *testing.T) {
	s := New(Options{MaxActive: 1})
	defer s.Close()
	s.UpdateConnections(unmeteredSnapshot())

	low := mustRegister(t, s, "peer-1", common.EntrySpec{Priority: 1})
	high := mustRegister(t, s, "peer-1", common.EntrySpec{Priority: 9})

	if d := mustState(t, s, high); d != common.DecisionAllowed {
		t.Errorf("high priority = %v, want allowed", d)
	}
	if d := mustState(t, s, low); d != common.DecisionQueued {
		t.Errorf("low priority = %v, want queued", d)
	}

	// Freeing the slot promotes the queued entry.
	if err := s.Unregister(high); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if d := mustState(t, s, low); d != common.DecisionAllowed {
		t.Errorf("promoted decision = %v, want allowed", d)
	}
}

func TestUnregisterErrors(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	s.UpdateConnections(unmeteredSnapshot())
	id := mustRegister(t, s, "peer-1", common.EntrySpec{})

	if err := s.Unregister(id); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := s.Unregister(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("double unregister = %v, want ErrNotFound", err)
	}
	if err := s.Hold(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("hold after unregister = %v, want ErrNotFound", err)
	}
}

func TestRegistryFull(t *testing.T) {
	s := New(Options{MaxEntries: 1})
	defer s.Close()
	mustRegister(t, s, "peer-1", common.EntrySpec{})
	if _, err := s.Register("peer-1", common.EntrySpec{}); !errors.Is(err, ErrFull) {
		t.Errorf("Register over capacity = %v, want ErrFull", err)
	}
}

func TestRegisterRejectsEmptyPeer(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	if _, err := s.Register("", common.EntrySpec{}); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Register with empty peer = %v, want ErrInvalidEntry", err)
	}
}

func TestEntriesSortedAndComplete(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	s.UpdateConnections(unmeteredSnapshot())
	first := mustRegister(t, s, "peer-1", common.EntrySpec{Priority: 3, Resumable: true})
	second := mustRegister(t, s, "peer-2", common.EntrySpec{RequireUnmetered: true})

	infos := s.Entries()
	if len(infos) != 2 {
		t.Fatalf("Entries() returned %d, want 2", len(infos))
	}
	if infos[0].ID != first || infos[1].ID != second {
		t.Errorf("entries out of order: %v", infos)
	}
	if !infos[0].Resumable || infos[0].Priority != 3 {
		t.Errorf("first entry lost spec fields: %+v", infos[0])
	}
	if !infos[1].RequireUnmetered {
		t.Errorf("second entry lost spec fields: %+v", infos[1])
	}
}

type recordingSink struct {
	events []common.HistoryEvent
}

func (r *recordingSink) RecordEvent(ev common.HistoryEvent) {
	r.events = append(r.events, ev)
}

func TestRecorderReceivesLifecycle(t *testing.T) {
	sink := &recordingSink{}
	s := New(Options{Recorder: sink})
	defer s.Close()
	s.UpdateConnections(unmeteredSnapshot())

	id := mustRegister(t, s, "peer-1", common.EntrySpec{})
	if err := s.Unregister(id); err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, ev := range sink.events {
		if ev.EntryID == id {
			names = append(names, ev.Event)
		}
	}
	want := []string{common.EventRegistered, common.EventDecision, common.EventUnregistered}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("events = %v, want %v", names, want)
		}
	}
}
