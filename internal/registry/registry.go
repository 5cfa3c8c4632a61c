package registry

import (
	"sort"
	"sync"
	"time"
)

// binding records which room a connection belongs to and with what role.
// A connection is never indexed under two rooms simultaneously.
type binding struct {
	roomCode string
	role     Role
}

// Registry owns every Room instance and a reverse index from connection ID
// to (room code, role), giving O(1) lookups in both directions. All state is
// in memory and dies with the process; there is no persistence layer behind
// the rooms map by design.
//
// A single mutex serializes all mutation. Handlers never block while holding
// it: every operation is a plain map update, and socket I/O happens outside
// the registry entirely.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room   // code -> room
	conns map[string]binding // connection ID -> (code, role)
}

// New creates an empty registry. Construct once at startup and thread it
// through the application; there is no package-level instance.
func New() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		conns: make(map[string]binding),
	}
}

// CreateRoom generates a fresh code, stores a new empty room owned by the
// teacher connection, and indexes that connection as the room's teacher.
func (r *Registry) CreateRoom(teacherConnID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := newCode(func(c string) bool {
		_, exists := r.rooms[c]
		return exists
	})
	if err != nil {
		return "", err
	}

	r.rooms[code] = &Room{
		Code:          code,
		TeacherConnID: teacherConnID,
		AttentionMode: false,
		Students:      make(map[string]*StudentRecord),
		CreatedAt:     time.Now(),
	}
	r.conns[teacherConnID] = binding{roomCode: code, role: RoleTeacher}
	return code, nil
}

// DestroyRoom removes the room and unindexes every connection bound to it,
// teacher included. Destroying a non-existent code is a no-op.
func (r *Registry) DestroyRoom(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyRoomLocked(code)
}

func (r *Registry) destroyRoomLocked(code string) {
	room, exists := r.rooms[code]
	if !exists {
		return
	}
	delete(r.conns, room.TeacherConnID)
	for connID := range room.Students {
		delete(r.conns, connID)
	}
	delete(r.rooms, code)
}

// JoinRoom inserts a student record with idle status and empty metrics and
// indexes the connection. Returns the room's current attention-mode flag so
// late joiners immediately adopt it, or ErrRoomNotFound for unknown codes.
func (r *Registry) JoinRoom(code, connID, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[code]
	if !exists {
		return false, ErrRoomNotFound
	}

	room.nextSeq++
	room.Students[connID] = &StudentRecord{
		Name:    name,
		Status:  StatusIdle,
		Metrics: Metrics{},
		joinSeq: room.nextSeq,
	}
	r.conns[connID] = binding{roomCode: code, role: RoleStudent}
	return room.AttentionMode, nil
}

// LeaveResult describes what Leave removed.
type LeaveResult struct {
	Code        string
	WasTeacher  bool
	StudentName string // display name of the removed student, empty for teachers
}

// Leave removes the connection from its room via the reverse index. If the
// connection was the teacher the whole room is destroyed and all students
// are implicitly evicted. Idempotent: a second call for the same connection
// returns ErrNotBound and changes nothing.
func (r *Registry) Leave(connID string) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, bound := r.conns[connID]
	if !bound {
		return LeaveResult{}, ErrNotBound
	}

	if b.role == RoleTeacher {
		r.destroyRoomLocked(b.roomCode)
		return LeaveResult{Code: b.roomCode, WasTeacher: true}, nil
	}

	var name string
	if room, exists := r.rooms[b.roomCode]; exists {
		if rec, ok := room.Students[connID]; ok {
			name = rec.Name
		}
		delete(room.Students, connID)
	}
	delete(r.conns, connID)
	return LeaveResult{Code: b.roomCode, StudentName: name}, nil
}

// UpdateStatus merges a status report into the caller's student record.
// Either field may be omitted (zero status, nil metrics) and then retains
// its previous value. Returns the room code for the follow-up broadcast, or
// ErrNotBound if the connection has no student record — notably after a
// kick, so a removed student cannot silently resurrect their entry.
func (r *Registry) UpdateStatus(connID string, status Status, metrics Metrics) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, bound := r.conns[connID]
	if !bound || b.role != RoleStudent {
		return "", ErrNotBound
	}
	room, exists := r.rooms[b.roomCode]
	if !exists {
		return "", ErrNotBound
	}
	rec, ok := room.Students[connID]
	if !ok {
		return "", ErrNotBound
	}

	if status != "" {
		rec.Status = status
	}
	if metrics != nil {
		rec.Metrics = metrics
	}
	return b.roomCode, nil
}

// SetAttention flips the room's attention-mode flag. Returns whether a room
// with that code existed and the flag was applied.
func (r *Registry) SetAttention(code string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[code]
	if !exists {
		return false
	}
	room.AttentionMode = enabled
	return true
}

// Kick removes the student's record and reverse-index entry. Returns false
// if the room or student does not exist.
func (r *Registry) Kick(code, studentConnID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[code]
	if !exists {
		return false
	}
	if _, ok := room.Students[studentConnID]; !ok {
		return false
	}
	delete(room.Students, studentConnID)
	delete(r.conns, studentConnID)
	return true
}

// Snapshot produces the read-only room view used for broadcast, with
// students listed in join order.
func (r *Registry) Snapshot(code string) (RoomView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[code]
	if !exists {
		return RoomView{}, ErrRoomNotFound
	}

	students := make([]StudentView, 0, len(room.Students))
	seqs := make(map[string]int, len(room.Students))
	for connID, rec := range room.Students {
		students = append(students, StudentView{
			ID:      connID,
			Name:    rec.Name,
			Status:  rec.Status,
			Metrics: rec.Metrics,
		})
		seqs[connID] = rec.joinSeq
	}
	sort.Slice(students, func(i, j int) bool {
		return seqs[students[i].ID] < seqs[students[j].ID]
	})

	return RoomView{
		Code:          room.Code,
		AttentionMode: room.AttentionMode,
		Students:      students,
	}, nil
}

// Lookup returns the room code and role bound to a connection.
func (r *Registry) Lookup(connID string) (string, Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, bound := r.conns[connID]
	if !bound {
		return "", "", false
	}
	return b.roomCode, b.role, true
}

// Members returns the connection IDs of everyone currently bound to the
// room, teacher first.
func (r *Registry) Members(code string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[code]
	if !exists {
		return nil
	}
	members := make([]string, 0, len(room.Students)+1)
	members = append(members, room.TeacherConnID)
	for connID := range room.Students {
		members = append(members, connID)
	}
	return members
}

// TeacherConn returns the owning teacher connection for a room.
func (r *Registry) TeacherConn(code string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[code]
	if !exists {
		return "", false
	}
	return room.TeacherConnID, true
}

// StudentName returns the display name of a student in a room.
func (r *Registry) StudentName(code, connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[code]
	if !exists {
		return "", false
	}
	rec, ok := room.Students[connID]
	if !ok {
		return "", false
	}
	return rec.Name, true
}

// Stats returns live counters for the monitoring endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	students := 0
	for _, room := range r.rooms {
		students += len(room.Students)
	}
	return map[string]int{
		"active_rooms":      len(r.rooms),
		"bound_connections": len(r.conns),
		"students":          students,
	}
}
