package registry

import "time"

// Role is bound to a connection when it first creates or joins a room and
// is immutable for the connection's lifetime.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Status is the closed set of states a student reports while working.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusCollecting Status = "collecting"
	StatusTraining   Status = "training"
	StatusPredicting Status = "predicting"
	StatusClustering Status = "clustering"
)

// IsValidStatus reports whether s is one of the allowed student states.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusIdle, StatusCollecting, StatusTraining, StatusPredicting, StatusClustering:
		return true
	default:
		return false
	}
}

// Metrics is an opaque key/value bag reported by students (sample counts,
// accuracy, cluster counts). The coordinator never inspects it; it is
// stored and rebroadcast verbatim.
type Metrics map[string]any

// StudentRecord is the per-student state held inside a room.
type StudentRecord struct {
	Name    string
	Status  Status
	Metrics Metrics

	// joinSeq preserves join order for deterministic room views.
	joinSeq int
}

// Room is the state-machine instance for one classroom. A room exists if
// and only if its teacher connection is still active.
type Room struct {
	Code          string
	TeacherConnID string
	AttentionMode bool
	Students      map[string]*StudentRecord // connection ID -> record
	CreatedAt     time.Time

	nextSeq int
}

// StudentView is the read-only, JSON-serializable form of a StudentRecord.
type StudentView struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Status  Status  `json:"status"`
	Metrics Metrics `json:"metrics"`
}

// RoomView is the full room state broadcast to every member after each
// mutation. Always sending the complete view keeps every recipient
// self-consistent even if it missed an earlier update.
type RoomView struct {
	Code          string        `json:"code"`
	AttentionMode bool          `json:"attentionMode"`
	Students      []StudentView `json:"students"`
}
