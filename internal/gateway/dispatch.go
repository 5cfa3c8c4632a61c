package gateway

import (
	"go.uber.org/zap"

	"classboard/internal/registry"
)

// Dispatcher fans the current room view out to every connection bound to a
// room. It always sends the full view rather than a delta, so a recipient
// that missed an earlier update is still self-consistent after the next one.
type Dispatcher struct {
	reg   *registry.Registry
	conns *Table
}

// NewDispatcher creates a dispatcher over the given registry and
// connection table.
func NewDispatcher(reg *registry.Registry, conns *Table) *Dispatcher {
	return &Dispatcher{reg: reg, conns: conns}
}

// Broadcast sends a room_state_update with the room's current view to the
// teacher and all students. Called after every mutation that changes
// membership, status, or attention mode. A vanished room is a no-op: the
// mutation that destroyed it already handled its members.
func (d *Dispatcher) Broadcast(roomCode string) {
	view, err := d.reg.Snapshot(roomCode)
	if err != nil {
		return
	}
	d.Send(roomCode, eventRoomStateUpdate, view)
}

// Send delivers an arbitrary event to every member of a room.
func (d *Dispatcher) Send(roomCode, event string, body any) {
	for _, connID := range d.reg.Members(roomCode) {
		conn, ok := d.conns.Get(connID)
		if !ok {
			continue
		}
		if err := conn.WriteEvent(event, body); err != nil {
			zap.L().Warn("broadcast write failed",
				zap.String("room", roomCode),
				zap.String("conn", connID),
				zap.Error(err))
		}
	}
}
