package common

import "time"

// Decision is an entry's current admission state. Exactly one decision
// applies to an entry at any time.
type Decision string

const (
	// DecisionAllowed means the transfer may run now.
	DecisionAllowed Decision = "allowed"

	// DecisionHeld means the entry is manually paused by its owner.
	DecisionHeld Decision = "held"

	// DecisionBlockedConnection means no current connection satisfies the
	// entry's connection requirements.
	DecisionBlockedConnection Decision = "blocked-connection"

	// DecisionBlockedTariff means the current tariff period is capped and
	// the entry carries no cost override.
	DecisionBlockedTariff Decision = "blocked-tariff"

	// DecisionQueued means the entry would be allowed but the daemon's
	// active-entry cap is already filled by higher-priority entries. Only
	// reported when a cap is configured.
	DecisionQueued Decision = "queued"
)

// EntrySpec describes a transfer a client wants permission to run. Peer
// identity is never part of the spec; the daemon binds it from the calling
// session.
type EntrySpec struct {
	// Priority orders entries when an active-entry cap applies. Higher
	// runs first. Informational otherwise.
	Priority uint32 `json:"priority,omitempty"`

	// Resumable records whether the client can resume the transfer after
	// an interruption. Informational; it does not affect admission.
	Resumable bool `json:"resumable,omitempty"`

	// RequireUnmetered restricts the entry to connections known (or
	// guessed) to be unmetered.
	RequireUnmetered bool `json:"require_unmetered,omitempty"`

	// AllowCostly exempts the entry from tariff capping.
	AllowCostly bool `json:"allow_costly,omitempty"`
}

// EntryState pairs an entry id with its current decision.
type EntryState struct {
	ID       string   `json:"id"`
	Decision Decision `json:"decision"`
}

// EntryInfo is the full externally visible state of an entry.
type EntryInfo struct {
	ID               string   `json:"id"`
	Priority         uint32   `json:"priority"`
	Resumable        bool     `json:"resumable"`
	RequireUnmetered bool     `json:"require_unmetered"`
	AllowCostly      bool     `json:"allow_costly"`
	Held             bool     `json:"held"`
	Decision         Decision `json:"decision"`
}

// EntryUpdate is pushed to watchers when an entry's decision changes, or
// when the entry is removed (Removed true; Decision then carries the last
// decision the entry had).
type EntryUpdate struct {
	ID       string   `json:"id"`
	Decision Decision `json:"decision"`
	Removed  bool     `json:"removed,omitempty"`
}

// EntryID carries just an entry id, used by several request methods.
type EntryID struct {
	ID string `json:"id"`
}

// ListResponse is the response for the list method.
type ListResponse struct {
	Entries []EntryInfo `json:"entries"`
}

// HistoryRequest queries the decision-history log. An empty ID returns
// events for all entries.
type HistoryRequest struct {
	ID    string `json:"id,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// HistoryEvent is one recorded lifecycle event of an entry.
type HistoryEvent struct {
	At       time.Time `json:"at"`
	EntryID  string    `json:"entry_id"`
	Event    string    `json:"event"`
	Decision Decision  `json:"decision,omitempty"`
	Owner    string    `json:"owner,omitempty"`
}

// History event names recorded to the store.
const (
	EventRegistered   = "registered"
	EventDecision     = "decision"
	EventUnregistered = "unregistered"
)

// HistoryResponse is the response for the history method.
type HistoryResponse struct {
	Events []HistoryEvent `json:"events"`
}

// TariffStatus summarises the currently loaded tariff for clients.
type TariffStatus struct {
	Loaded         bool       `json:"loaded"`
	Name           string     `json:"name,omitempty"`
	Classification string     `json:"classification,omitempty"`
	NextBoundary   *time.Time `json:"next_boundary,omitempty"`
}

// Ack is the empty success payload for methods with no result data.
type Ack struct{}
