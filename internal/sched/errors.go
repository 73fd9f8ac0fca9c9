package sched

import "errors"

// Sentinel errors returned by Scheduler operations. Callers match them with
// errors.Is; the server maps them to stable wire error strings.
var (
	// ErrInvalidEntry is returned when a registration carries an invalid
	// entry specification or an empty peer identity.
	ErrInvalidEntry = errors.New("invalid entry")

	// ErrNotFound is returned when an operation names an entry id that is
	// not registered.
	ErrNotFound = errors.New("entry not found")

	// ErrPeerGone is returned when a registration arrives for a peer that
	// already vanished.
	ErrPeerGone = errors.New("peer gone")

	// ErrFull is returned when the registry holds MaxEntries entries.
	ErrFull = errors.New("entry registry full")
)
