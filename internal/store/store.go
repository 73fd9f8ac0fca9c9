// Package store persists the entry lifecycle log: registrations, decision
// changes and removals, with timestamps. The scheduler's registry itself is
// memory-only (entries die with their peers); the log exists so an operator
// can reconstruct what the daemon decided and when.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tollgate/tollgate/common"
	"github.com/tollgate/tollgate/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS entry_events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	at       TEXT NOT NULL,
	entry_id TEXT NOT NULL,
	event    TEXT NOT NULL,
	decision TEXT NOT NULL DEFAULT '',
	owner    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS entry_events_entry ON entry_events(entry_id);
`

// writeQueueSize bounds the pending event queue. The scheduler must never
// block on the log, so overflow drops events with a warning instead.
const writeQueueSize = 256

// defaultQueryLimit caps history queries that name no limit.
const defaultQueryLimit = 100

type record struct {
	ev   common.HistoryEvent
	sync chan struct{}
}

// Store is an append-only sqlite event log. Writes are queued to a single
// writer goroutine; RecordEvent never blocks.
type Store struct {
	db  *sql.DB
	log logger.Logger

	queue chan record
	done  chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// Open opens (or creates) the event log at path. Use ":memory:" for an
// ephemeral store.
func Open(path string, log logger.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open event log %q: %w", path, err)
	}
	// The sqlite file handles one writer; funnel everything through one
	// connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create event log schema: %w", err)
	}

	s := &Store{
		db:    db,
		log:   log,
		queue: make(chan record, writeQueueSize),
		done:  make(chan struct{}),
	}
	go s.writer()
	return s, nil
}

// RecordEvent queues one event for persistence. It never blocks; when the
// queue is full the event is dropped and a warning logged.
func (s *Store) RecordEvent(ev common.HistoryEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- record{ev: ev}:
	default:
		s.log.Warning("event log queue full, dropping %s event for %s", ev.Event, ev.EntryID)
	}
}

// Sync blocks until every event queued before the call is persisted.
func (s *Store) Sync() {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	done := make(chan struct{})
	s.queue <- record{sync: done}
	s.mu.RUnlock()
	<-done
}

// Events returns logged events, newest first. An empty request ID matches
// all entries; a zero limit applies the default.
func (s *Store) Events(req common.HistoryRequest) ([]common.HistoryEvent, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	var rows *sql.Rows
	var err error
	if req.ID != "" {
		rows, err = s.db.Query(
			`SELECT at, entry_id, event, decision, owner FROM entry_events
			 WHERE entry_id = ? ORDER BY id DESC LIMIT ?`, req.ID, limit)
	} else {
		rows, err = s.db.Query(
			`SELECT at, entry_id, event, decision, owner FROM entry_events
			 ORDER BY id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query event log: %w", err)
	}
	defer rows.Close()

	var events []common.HistoryEvent
	for rows.Next() {
		var at string
		var ev common.HistoryEvent
		var decision string
		if err := rows.Scan(&at, &ev.EntryID, &ev.Event, &decision, &ev.Owner); err != nil {
			return nil, fmt.Errorf("scan event log row: %w", err)
		}
		ev.Decision = common.Decision(decision)
		ev.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse event timestamp %q: %w", at, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close drains the queue and closes the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		<-s.done
		err = s.db.Close()
	})
	return err
}

func (s *Store) writer() {
	defer close(s.done)
	for rec := range s.queue {
		if rec.sync != nil {
			close(rec.sync)
			continue
		}
		_, err := s.db.Exec(
			`INSERT INTO entry_events (at, entry_id, event, decision, owner)
			 VALUES (?, ?, ?, ?, ?)`,
			rec.ev.At.UTC().Format(time.RFC3339Nano),
			rec.ev.EntryID, rec.ev.Event, string(rec.ev.Decision), rec.ev.Owner)
		if err != nil {
			s.log.Error("persisting %s event for %s failed: %v", rec.ev.Event, rec.ev.EntryID, err)
		}
	}
}
