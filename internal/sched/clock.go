package sched

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock time and a single wake-up alarm so scheduling
// decisions can be driven deterministically in tests. At most one alarm is
// outstanding; SetAlarm replaces any previous one.
type Clock interface {
	// Now returns the current instant.
	Now() time.Time

	// SetAlarm arranges for fn to be called once at or after the given
	// instant, replacing any previously set alarm.
	SetAlarm(at time.Time, fn func())

	// ClearAlarm cancels the pending alarm, if any.
	ClearAlarm()
}

// SystemClock is the production Clock, backed by the wall clock and
// time.AfterFunc.
type SystemClock struct {
	mu    sync.Mutex
	timer *time.Timer
}

// NewSystemClock creates a SystemClock with no alarm set.
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now returns the current wall-clock time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// SetAlarm schedules fn at the given instant. An instant in the past fires
// immediately.
func (c *SystemClock) SetAlarm(at time.Time, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	c.timer = time.AfterFunc(d, fn)
}

// ClearAlarm cancels the pending alarm.
func (c *SystemClock) ClearAlarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// ManualClock is a test Clock whose time only moves when told to. Advancing
// past a pending alarm fires it synchronously on the advancing goroutine.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	alarmAt time.Time
	alarmFn func()
}

// NewManualClock creates a ManualClock frozen at the given instant.
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

// Now returns the clock's current instant.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// SetAlarm replaces the pending alarm.
func (c *ManualClock) SetAlarm(at time.Time, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alarmAt, c.alarmFn = at, fn
}

// ClearAlarm drops the pending alarm.
func (c *ManualClock) ClearAlarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alarmFn = nil
}

// NextAlarm reports the pending alarm instant, if one is set.
func (c *ManualClock) NextAlarm() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alarmAt, c.alarmFn != nil
}

// Set moves the clock to the given instant and fires any alarms that fall
// due, repeatedly, until none remain due.
func (c *ManualClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	c.fireDue()
}

// Advance moves the clock forward by d and fires any alarms that fall due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	c.fireDue()
}

// Fire fires the pending alarm regardless of its instant. It reports whether
// an alarm was pending.
func (c *ManualClock) Fire() bool {
	c.mu.Lock()
	fn := c.alarmFn
	c.alarmFn = nil
	c.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// fireDue fires due alarms one at a time. The alarm callback may set a new
// alarm, so the loop re-checks after every fire. The clock lock is released
// around the callback.
func (c *ManualClock) fireDue() {
	for {
		c.mu.Lock()
		fn := c.alarmFn
		due := fn != nil && !c.alarmAt.After(c.now)
		if due {
			c.alarmFn = nil
		}
		c.mu.Unlock()
		if !due {
			return
		}
		fn()
	}
}

var (
	_ Clock = (*SystemClock)(nil)
	_ Clock = (*ManualClock)(nil)
)
