package sched

import (
	"testing"
	"time"
)

func TestManualClockAdvanceFiresDueAlarm(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	fired := 0
	c.SetAlarm(start.Add(time.Hour), func() { fired++ })

	c.Advance(30 * time.Minute)
	if fired != 0 {
		t.Fatal("alarm fired before its instant")
	}
	c.Advance(30 * time.Minute)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	// An alarm fires once.
	c.Advance(time.Hour)
	if fired != 1 {
		t.Fatalf("fired = %d after extra advance, want 1", fired)
	}
}

func TestManualClockAlarmReplaced(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	var got string
	c.SetAlarm(start.Add(time.Hour), func() { got = "first" })
	c.SetAlarm(start.Add(2*time.Hour), func() { got = "second" })

	c.Advance(90 * time.Minute)
	if got != "" {
		t.Fatalf("replaced alarm fired: %q", got)
	}
	c.Advance(time.Hour)
	if got != "second" {
		t.Fatalf("got = %q, want second", got)
	}
}

func TestManualClockCallbackMayRearm(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	fired := 0
	next := start.Add(time.Hour)
	var rearm func()
	rearm = func() {
		fired++
		next = next.Add(time.Hour)
		c.SetAlarm(next, rearm)
	}
	c.SetAlarm(next, rearm)

	// One jump across several boundaries fires each due alarm in turn.
	c.Advance(3*time.Hour + time.Minute)
	if fired != 3 {
		t.Fatalf("fired = %d, want 3", fired)
	}
}

func TestManualClockClearAndFire(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	fired := false
	c.SetAlarm(start.Add(time.Hour), func() { fired = true })
	c.ClearAlarm()
	c.Advance(2 * time.Hour)
	if fired {
		t.Fatal("cleared alarm fired")
	}
	if c.Fire() {
		t.Fatal("Fire reported a pending alarm after ClearAlarm")
	}

	c.SetAlarm(c.Now().Add(time.Hour), func() { fired = true })
	if !c.Fire() {
		t.Fatal("Fire did not fire the pending alarm")
	}
	if !fired {
		t.Fatal("Fire did not run the callback")
	}
}

func TestSystemClockAlarm(t *testing.T) {
	c := NewSystemClock()
	defer c.ClearAlarm()

	ch := make(chan struct{})
	c.SetAlarm(c.Now().Add(5*time.Millisecond), func() { close(ch) })
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("system alarm did not fire")
	}
}
