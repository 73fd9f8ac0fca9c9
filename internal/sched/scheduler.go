// Package sched holds the admission scheduler: the in-memory registry of
// transfer entries and the decision logic that grants or blocks each one
// based on manual holds, the live connection snapshot, the active tariff
// period, and an optional active-entry cap.
package sched

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tollgate/tollgate/common"
	"github.com/tollgate/tollgate/internal/connmon"
	"github.com/tollgate/tollgate/pkg/logger"
	"github.com/tollgate/tollgate/pkg/tariff"
)

// vanishedPeerMemory bounds how many vanished peer identities are remembered
// for late-registration rejection. Oldest identities are forgotten first.
const vanishedPeerMemory = 1024

// Recorder receives entry lifecycle events for the history log. Calls must
// not block; the sqlite store buffers internally.
type Recorder interface {
	RecordEvent(ev common.HistoryEvent)
}

// Options configures a Scheduler. The zero value is usable: system clock,
// no logging, 1024-entry registry, no active-entry cap, no history.
type Options struct {
	// Clock drives time lookups and tariff-boundary alarms. Defaults to
	// the system clock.
	Clock Clock

	// Log receives scheduler diagnostics. Defaults to a nop logger.
	Log logger.Logger

	// MaxEntries caps the registry size. Defaults to 1024.
	MaxEntries int

	// MaxActive, when positive, caps how many entries may be allowed at
	// once; surplus admissible entries are reported as queued, ordered by
	// priority then id. Zero disables the cap.
	MaxActive int

	// Recorder, when non-nil, receives lifecycle events for the history
	// log.
	Recorder Recorder
}

// Scheduler owns the entry registry and computes each entry's admission
// decision. All methods are safe for concurrent use; a single mutex
// serializes every mutation, and decision recomputation is pure in-memory
// work bounded by the entry count.
type Scheduler struct {
	log      logger.Logger
	clock    Clock
	recorder Recorder

	maxEntries int
	maxActive  int

	mu sync.Mutex
	// emitMu keeps update batches in recompute order: it is acquired while
	// mu is still held, so subscribers see batches in the order the
	// recomputes ran.
	emitMu       sync.Mutex
	entries      map[string]*entry
	conns        []connmon.Connection
	tariff       *tariff.Tariff
	nextID       uint64
	vanished     map[PeerID]struct{}
	vanishedFIFO []PeerID

	subMu   sync.Mutex
	subs    map[int]chan common.EntryUpdate
	nextSub int
}

// New creates a Scheduler. The initial connection snapshot is empty, which
// blocks every entry until the first UpdateConnections call.
func New(opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = NewSystemClock()
	}
	if opts.Log == nil {
		opts.Log = logger.NewNopLogger()
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1024
	}
	return &Scheduler{
		log:        opts.Log,
		clock:      opts.Clock,
		recorder:   opts.Recorder,
		maxEntries: opts.MaxEntries,
		maxActive:  opts.MaxActive,
		entries:    make(map[string]*entry),
		vanished:   make(map[PeerID]struct{}),
		subs:       make(map[int]chan common.EntryUpdate),
	}
}

// Close cancels the pending tariff alarm. The scheduler holds no other
// resources.
func (s *Scheduler) Close() error {
	s.clock.ClearAlarm()
	return nil
}

// Register adds an entry owned by the given peer, computes its decision
// immediately and returns its id. Registrations from peers that already
// vanished are rejected with ErrPeerGone.
func (s *Scheduler) Register(peer PeerID, spec common.EntrySpec) (string, error) {
	if peer == "" {
		return "", fmt.Errorf("%w: empty peer identity", ErrInvalidEntry)
	}

	s.mu.Lock()
	if _, gone := s.vanished[peer]; gone {
		s.mu.Unlock()
		return "", ErrPeerGone
	}
	if len(s.entries) >= s.maxEntries {
		s.mu.Unlock()
		return "", ErrFull
	}
	s.nextID++
	e := &entry{
		id:   fmt.Sprintf("entry-%08d", s.nextID),
		peer: peer,
		spec: spec,
	}
	s.entries[e.id] = e
	updates := s.recomputeLocked()
	s.emitMu.Lock()
	s.mu.Unlock()

	s.record(common.HistoryEvent{
		At:      s.clock.Now(),
		EntryID: e.id,
		Event:   common.EventRegistered,
		Owner:   string(peer),
	})
	s.finish(updates)
	s.emitMu.Unlock()
	s.log.Info("registered %s for peer %s", e.id, peer)
	return e.id, nil
}

// Unregister removes the entry. Removing an unknown (or already removed) id
// is an error.
func (s *Scheduler) Unregister(id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unregister %q: %w", id, ErrNotFound)
	}
	delete(s.entries, id)
	removal := common.EntryUpdate{ID: id, Decision: e.decision, Removed: true}
	updates := s.recomputeLocked()
	s.emitMu.Lock()
	s.mu.Unlock()

	s.record(common.HistoryEvent{
		At:      s.clock.Now(),
		EntryID: id,
		Event:   common.EventUnregistered,
		Owner:   string(e.peer),
	})
	s.emit([]common.EntryUpdate{removal})
	s.finish(updates)
	s.emitMu.Unlock()
	return nil
}

// Hold pauses the entry manually. A held entry stays held across connection
// and tariff changes until Release.
func (s *Scheduler) Hold(id string) error {
	return s.setHeld(id, true)
}

// Release lifts a manual hold.
func (s *Scheduler) Release(id string) error {
	return s.setHeld(id, false)
}

func (s *Scheduler) setHeld(id string, held bool) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("hold state of %q: %w", id, ErrNotFound)
	}
	e.held = held
	updates := s.recomputeLocked()
	s.emitMu.Lock()
	s.mu.Unlock()
	s.finish(updates)
	s.emitMu.Unlock()
	return nil
}

// EntryState returns the entry's current decision.
func (s *Scheduler) EntryState(id string) (common.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return "", fmt.Errorf("state of %q: %w", id, ErrNotFound)
	}
	return e.decision, nil
}

// Entries returns every registered entry, ordered by id.
func (s *Scheduler) Entries() []common.EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]common.EntryInfo, 0, len(s.entries))
	for _, e := range s.entries {
		infos = append(infos, e.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// UpdateConnections replaces the connection snapshot wholesale and
// recomputes every decision in one pass.
func (s *Scheduler) UpdateConnections(snapshot []connmon.Connection) {
	s.mu.Lock()
	s.conns = append([]connmon.Connection(nil), snapshot...)
	updates := s.recomputeLocked()
	s.emitMu.Lock()
	s.mu.Unlock()
	s.finish(updates)
	s.emitMu.Unlock()
}

// SetTariff replaces the active tariff. A nil tariff removes all tariff
// constraints. The next period boundary arms a clock alarm so decisions
// flip without any external trigger.
func (s *Scheduler) SetTariff(t *tariff.Tariff) {
	s.mu.Lock()
	s.tariff = t
	updates := s.recomputeLocked()
	s.emitMu.Lock()
	s.mu.Unlock()
	s.finish(updates)
	s.emitMu.Unlock()
}

// Tariff returns the currently active tariff, or nil.
func (s *Scheduler) Tariff() *tariff.Tariff {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tariff
}

// TariffStatus summarises the loaded tariff as of now.
func (s *Scheduler) TariffStatus() common.TariffStatus {
	s.mu.Lock()
	t := s.tariff
	s.mu.Unlock()
	if t == nil {
		return common.TariffStatus{}
	}
	class, next, hasNext := t.Classify(s.clock.Now())
	st := common.TariffStatus{
		Loaded:         true,
		Name:           t.Name(),
		Classification: class.String(),
	}
	if hasNext {
		boundary := next
		st.NextBoundary = &boundary
	}
	return st
}

// PeerVanished removes every entry owned by the peer in one pass and
// remembers the identity so a late Register from it fails with ErrPeerGone.
func (s *Scheduler) PeerVanished(peer PeerID) {
	s.mu.Lock()
	s.rememberVanishedLocked(peer)
	var removals []common.EntryUpdate
	var removed []*entry
	for id, e := range s.entries {
		if e.peer != peer {
			continue
		}
		delete(s.entries, id)
		removals = append(removals, common.EntryUpdate{ID: id, Decision: e.decision, Removed: true})
		removed = append(removed, e)
	}
	sort.Slice(removals, func(i, j int) bool { return removals[i].ID < removals[j].ID })
	updates := s.recomputeLocked()
	s.emitMu.Lock()
	s.mu.Unlock()

	for _, e := range removed {
		s.record(common.HistoryEvent{
			At:      s.clock.Now(),
			EntryID: e.id,
			Event:   common.EventUnregistered,
			Owner:   string(peer),
		})
	}
	s.emit(removals)
	s.finish(updates)
	s.emitMu.Unlock()
	if len(removed) > 0 {
		s.log.Info("peer %s vanished, removed %d entries", peer, len(removed))
	}
}

// Subscribe returns a channel of decision updates and a cancel function.
// Only entries whose decision actually changed are delivered; a subscriber
// that falls behind loses updates rather than blocking the scheduler.
func (s *Scheduler) Subscribe(buf int) (<-chan common.EntryUpdate, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan common.EntryUpdate, buf)
	s.subMu.Lock()
	s.nextSub++
	key := s.nextSub
	s.subs[key] = ch
	s.subMu.Unlock()
	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subs[key]; ok {
			delete(s.subs, key)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Scheduler) rememberVanishedLocked(peer PeerID) {
	if _, ok := s.vanished[peer]; ok {
		return
	}
	if len(s.vanishedFIFO) >= vanishedPeerMemory {
		delete(s.vanished, s.vanishedFIFO[0])
		s.vanishedFIFO = s.vanishedFIFO[1:]
	}
	s.vanished[peer] = struct{}{}
	s.vanishedFIFO = append(s.vanishedFIFO, peer)
}

// alarmFired is the tariff-boundary alarm callback.
func (s *Scheduler) alarmFired() {
	s.mu.Lock()
	updates := s.recomputeLocked()
	s.emitMu.Lock()
	s.mu.Unlock()
	s.finish(updates)
	s.emitMu.Unlock()
}

// recomputeLocked recomputes every entry's decision and returns the set of
// entries whose decision changed, ordered by id. It also re-arms the clock
// alarm for the next tariff boundary. Callers hold s.mu.
func (s *Scheduler) recomputeLocked() []common.EntryUpdate {
	now := s.clock.Now()
	class := tariff.Unrestricted
	if s.tariff != nil {
		c, next, hasNext := s.tariff.Classify(now)
		class = c
		if hasNext {
			s.clock.SetAlarm(next, s.alarmFired)
		} else {
			s.clock.ClearAlarm()
		}
	} else {
		s.clock.ClearAlarm()
	}

	var updates []common.EntryUpdate
	var admissible []*entry
	for _, e := range s.entries {
		d := s.baseDecisionLocked(e, class)
		if d == common.DecisionAllowed && s.maxActive > 0 {
			admissible = append(admissible, e)
			continue
		}
		if e.decision != d {
			e.decision = d
			updates = append(updates, common.EntryUpdate{ID: e.id, Decision: d})
		}
	}

	if s.maxActive > 0 {
		sort.Slice(admissible, func(i, j int) bool {
			if admissible[i].spec.Priority != admissible[j].spec.Priority {
				return admissible[i].spec.Priority > admissible[j].spec.Priority
			}
			return admissible[i].id < admissible[j].id
		})
		for i, e := range admissible {
			d := common.DecisionAllowed
			if i >= s.maxActive {
				d = common.DecisionQueued
			}
			if e.decision != d {
				e.decision = d
				updates = append(updates, common.EntryUpdate{ID: e.id, Decision: d})
			}
		}
	}

	sort.Slice(updates, func(i, j int) bool { return updates[i].ID < updates[j].ID })
	return updates
}

// baseDecisionLocked applies the decision precedence short of the
// active-entry cap: hold, then connections, then tariff. An empty or
// unusable snapshot blocks; ambiguity never admits.
func (s *Scheduler) baseDecisionLocked(e *entry, class tariff.Classification) common.Decision {
	if e.held {
		return common.DecisionHeld
	}
	if !s.connectionSatisfiedLocked(e) {
		return common.DecisionBlockedConnection
	}
	if class == tariff.Capped && !e.spec.AllowCostly {
		return common.DecisionBlockedTariff
	}
	return common.DecisionAllowed
}

// connectionSatisfiedLocked reports whether at least one usable connection
// satisfies the entry's requirements.
func (s *Scheduler) connectionSatisfiedLocked(e *entry) bool {
	for _, c := range s.conns {
		if !c.Usable {
			continue
		}
		if e.spec.RequireUnmetered && !c.Metered.Unmetered() {
			continue
		}
		return true
	}
	return false
}

// finish records and emits a recompute's decision changes. Called with
// s.emitMu held, after s.mu is released.
func (s *Scheduler) finish(updates []common.EntryUpdate) {
	if len(updates) == 0 {
		return
	}
	if s.recorder != nil {
		now := s.clock.Now()
		for _, u := range updates {
			s.recorder.RecordEvent(common.HistoryEvent{
				At:       now,
				EntryID:  u.ID,
				Event:    common.EventDecision,
				Decision: u.Decision,
			})
		}
	}
	s.emit(updates)
}

func (s *Scheduler) emit(updates []common.EntryUpdate) {
	if len(updates) == 0 {
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		for _, u := range updates {
			select {
			case ch <- u:
			default:
				s.log.Warning("dropping decision update for slow subscriber: %s", u.ID)
			}
		}
	}
}

func (s *Scheduler) record(ev common.HistoryEvent) {
	if s.recorder != nil {
		s.recorder.RecordEvent(ev)
	}
}
