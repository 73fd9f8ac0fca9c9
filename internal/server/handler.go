package server

import (
	"encoding/json"

	"github.com/tollgate/tollgate/common"
	"github.com/tollgate/tollgate/internal/sched"
)

// HandlerFunc handles one request frame. The peer identity is the calling
// session's, bound by the server; it is never taken from the request body.
// It returns the update type for the response, the response payload, and
// any error encountered.
type HandlerFunc func(
	peer sched.PeerID,
	conn *SyncConn,
	body json.RawMessage,
) (
	common.Method,
	any,
	error,
)
