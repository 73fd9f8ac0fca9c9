package schedcli

import (
	"encoding/json"

	"github.com/tollgate/tollgate/common"
)

// Handler defines the interface for processing daemon updates.
// Implementations receive raw JSON messages and are responsible for
// unmarshaling and processing them appropriately.
type Handler interface {
	Handle(json.RawMessage) error
}

// DecisionHandler processes pushed decision updates. The optional Decision
// filter limits the callback to matching updates; removals always pass.
type DecisionHandler struct {
	Decision common.Decision
	Callback func(*common.EntryUpdate) error
}

// NewDecisionHandler creates a handler for decision updates. Pass an empty
// decision to receive all updates.
func NewDecisionHandler(decision common.Decision, callback func(*common.EntryUpdate) error) *DecisionHandler {
	return &DecisionHandler{
		Decision: decision,
		Callback: callback,
	}
}

// Handle unmarshals a pushed decision update and invokes the callback if it
// passes the filter.
func (h *DecisionHandler) Handle(m json.RawMessage) error {
	var u common.EntryUpdate
	if err := json.Unmarshal(m, &u); err != nil {
		return err
	}
	if h.Decision != "" && !u.Removed && u.Decision != h.Decision {
		return nil
	}
	return h.Callback(&u)
}
