package sched

import (
	"github.com/tollgate/tollgate/common"
)

// PeerID is the opaque transport identity of the client session that owns an
// entry. The server derives it from the connection's socket credentials;
// the scheduler only compares it for ownership and vanish cascades.
type PeerID string

// entry is the scheduler's internal record of one registered transfer.
type entry struct {
	id       string
	peer     PeerID
	spec     common.EntrySpec
	held     bool
	decision common.Decision
}

func (e *entry) info() common.EntryInfo {
	return common.EntryInfo{
		ID:               e.id,
		Priority:         e.spec.Priority,
		Resumable:        e.spec.Resumable,
		RequireUnmetered: e.spec.RequireUnmetered,
		AllowCostly:      e.spec.AllowCostly,
		Held:             e.held,
		Decision:         e.decision,
	}
}
