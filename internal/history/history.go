// Package history keeps an append-only audit log of room lifecycle events
// in SQLite. It is write-mostly observability: nothing in the log is ever
// read back into live room state, so rooms stay purely in-memory and
// ephemeral.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Event kinds recorded by the gateway.
const (
	KindRoomCreated       = "room_created"
	KindRoomDestroyed     = "room_destroyed"
	KindStudentJoined     = "student_joined"
	KindStudentLeft       = "student_left"
	KindStudentKicked     = "student_kicked"
	KindAttentionToggled  = "attention_toggled"
	KindModelRequested    = "model_requested"
	KindModelDelivered    = "model_delivered"
	KindModelRequestStale = "model_request_timeout"
)

// Event is one recorded lifecycle event.
type Event struct {
	ID       int64     `json:"id"`
	RoomCode string    `json:"roomCode"`
	Kind     string    `json:"kind"`
	ConnID   string    `json:"connId"`
	Detail   string    `json:"detail"`
	At       time.Time `json:"at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS room_events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	room_code TEXT NOT NULL,
	kind      TEXT NOT NULL,
	conn_id   TEXT NOT NULL DEFAULT '',
	detail    TEXT NOT NULL DEFAULT '',
	at        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_room_events_code ON room_events(room_code, id);
`

// Log is the SQLite-backed event log. All writes funnel through a single
// goroutine; SQLite serializes writers anyway, and one writer avoids
// SQLITE_BUSY contention entirely. Reads go straight to the pool.
//
// A nil *Log is a valid no-op log, which is how the history feature is
// disabled by configuration.
type Log struct {
	db       *sql.DB
	writeCh  chan Event
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.Mutex
}

// Open opens (or creates) the event log at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	l := &Log{
		db:       db,
		writeCh:  make(chan Event, 256),
		shutdown: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.writeLoop()
	return l, nil
}

func (l *Log) writeLoop() {
	defer l.wg.Done()
	for {
		select {
		case ev := <-l.writeCh:
			if err := l.insert(ev); err != nil {
				// Retry once; the log is best-effort and must never stall
				// the coordinator.
				zap.L().Warn("history write failed, retrying", zap.Error(err))
				if err := l.insert(ev); err != nil {
					zap.L().Error("history write dropped", zap.Error(err))
				}
			}
		case <-l.shutdown:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case ev := <-l.writeCh:
					if err := l.insert(ev); err != nil {
						zap.L().Error("history write dropped on shutdown", zap.Error(err))
					}
				default:
					return
				}
			}
		}
	}
}

func (l *Log) insert(ev Event) error {
	_, err := l.db.Exec(
		`INSERT INTO room_events (room_code, kind, conn_id, detail, at) VALUES (?, ?, ?, ?, ?)`,
		ev.RoomCode, ev.Kind, ev.ConnID, ev.Detail, ev.At,
	)
	return err
}

// Record queues an event for insertion. Non-blocking: if the queue is full
// the event is dropped with a log line rather than stalling a message
// handler on disk I/O. Safe on a nil log.
func (l *Log) Record(roomCode, kind, connID, detail string) {
	if l == nil {
		return
	}
	ev := Event{RoomCode: roomCode, Kind: kind, ConnID: connID, Detail: detail, At: time.Now()}
	select {
	case l.writeCh <- ev:
	default:
		zap.L().Warn("history queue full, event dropped",
			zap.String("room", roomCode), zap.String("kind", kind))
	}
}

// RoomEvents returns up to limit events for a room, oldest first. Safe on a
// nil log, which returns no events.
func (l *Log) RoomEvents(ctx context.Context, roomCode string, limit int) ([]Event, error) {
	if l == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, room_code, kind, conn_id, detail, at
		 FROM room_events WHERE room_code = ? ORDER BY id LIMIT ?`,
		roomCode, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query room events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.RoomCode, &ev.Kind, &ev.ConnID, &ev.Detail, &ev.At); err != nil {
			return nil, fmt.Errorf("failed to scan room event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close flushes queued events and closes the database. Safe on a nil log.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.shutdown)
	l.wg.Wait()
	return l.db.Close()
}
