// Package transfer implements the request/reply pull of a student's
// in-progress work. The teacher asks for one student's snapshot, the student
// replies with an opaque payload, and a deadline converts silence into a
// reported failure so the teacher is never left waiting on a disconnected
// browser tab.
package transfer

import (
	"sync"
	"time"
)

// Pending is the Requested state of one room's transfer slot. At most one
// exists per room at any time; this is what keeps two concurrent "feature
// this student" clicks from racing and confusing which reply belongs to
// which request.
type Pending struct {
	RoomCode      string
	TeacherConnID string
	TargetConnID  string
	TargetName    string
	Deadline      time.Time
}

// DeliverOutcome classifies an inbound snapshot payload.
type DeliverOutcome int

const (
	// Delivered: the payload matches the pending request and arrived in
	// time; the slot is cleared and the payload should reach the teacher.
	Delivered DeliverOutcome = iota
	// NoMatch: no request is pending for the room, or the payload came from
	// a connection other than the requested student. Discard silently.
	NoMatch
	// Expired: the payload came from the right student but after the
	// deadline. Discard; the sweep owns the timeout notification.
	Expired
)

// Coordinator tracks the per-room transfer state machine
// Idle -> Requested(target, deadline) -> Idle. It holds no connections and
// performs no I/O; the gateway turns its outcomes into protocol messages.
type Coordinator struct {
	mu      sync.Mutex
	pending map[string]*Pending // room code -> pending request
	timeout time.Duration
	now     func() time.Time // injectable for deadline tests
}

// New creates a coordinator whose requests expire after timeout.
func New(timeout time.Duration) *Coordinator {
	return &Coordinator{
		pending: make(map[string]*Pending),
		timeout: timeout,
		now:     time.Now,
	}
}

// SetClock replaces the coordinator's time source. Test hook.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Request occupies the room's pending slot and arms its deadline. Returns
// ErrAlreadyPending if a request is already outstanding for the room; the
// existing request's deadline is not reset.
func (c *Coordinator) Request(roomCode, teacherConnID, targetConnID, targetName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.pending[roomCode]; busy {
		return ErrAlreadyPending
	}
	c.pending[roomCode] = &Pending{
		RoomCode:      roomCode,
		TeacherConnID: teacherConnID,
		TargetConnID:  targetConnID,
		TargetName:    targetName,
		Deadline:      c.now().Add(c.timeout),
	}
	return nil
}

// Deliver resolves an inbound snapshot payload against the room's pending
// slot. Only an in-time payload from the requested student clears the slot;
// everything else leaves state untouched so stale or duplicate replies after
// a timeout cannot masquerade as the real answer.
func (c *Coordinator) Deliver(roomCode, fromConnID string) (Pending, DeliverOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, busy := c.pending[roomCode]
	if !busy || p.TargetConnID != fromConnID {
		return Pending{}, NoMatch
	}
	if c.now().After(p.Deadline) {
		// Leave the slot in place: the sweep clears it and notifies the
		// teacher, so the timeout event is never lost.
		return Pending{}, Expired
	}
	delete(c.pending, roomCode)
	return *p, Delivered
}

// Sweep clears every request whose deadline has passed and returns them so
// the caller can send the teacher a failure naming the student. Run it on a
// steady interval.
func (c *Coordinator) Sweep() []Pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var expired []Pending
	for code, p := range c.pending {
		if now.After(p.Deadline) {
			expired = append(expired, *p)
			delete(c.pending, code)
		}
	}
	return expired
}

// CancelRoom drops the room's pending request, if any. Used when the room
// itself is destroyed.
func (c *Coordinator) CancelRoom(roomCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, roomCode)
}

// CancelTarget drops the pending request if it targets the given student
// and returns it, letting the caller fail the transfer immediately instead
// of making the teacher wait out the deadline for a student who already
// left.
func (c *Coordinator) CancelTarget(roomCode, targetConnID string) (Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, busy := c.pending[roomCode]
	if !busy || p.TargetConnID != targetConnID {
		return Pending{}, false
	}
	delete(c.pending, roomCode)
	return *p, true
}

// PendingCount reports how many rooms currently have an outstanding
// request, for the stats endpoint.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
