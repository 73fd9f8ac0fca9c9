package peers

import "errors"

// ErrUnknownPeer is returned when credentials are requested for a peer the
// manager has never seen.
var ErrUnknownPeer = errors.New("unknown peer")
