package registry

import "errors"

// Registry lookup failures. These are typed outcomes, not fatal conditions;
// the gateway decides which ones become client-visible error events.
var (
	ErrRoomNotFound = errors.New("room not found")
	ErrNotBound     = errors.New("connection not bound to a room")
)
