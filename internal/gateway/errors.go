package gateway

import "errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMalformedBody    = errors.New("malformed message body")
)

// Client-facing error strings. invalidRoomCode is the exact text the
// student UI matches on, carried over from the wire protocol.
const (
	invalidRoomCode     = "Invalid Room Code"
	notPermittedMsg     = "operation not permitted for this connection"
	invalidStatusMsg    = "invalid status value"
	transferBusyMsg     = "snapshot transfer already in progress"
	unknownStudentMsg   = "no such student in your room"
	malformedMessageMsg = "malformed message"
	unknownEventMsg     = "unknown event"
	alreadyInRoomMsg    = "connection is already bound to a room"
)
