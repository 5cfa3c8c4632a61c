package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Connection wraps one WebSocket with a single writer goroutine. All
// outbound frames go through a buffered channel so broadcasts never block
// on a slow client and concurrent handlers never interleave writes.
type Connection struct {
	id        string
	conn      *websocket.Conn
	writeCh   chan []byte
	writeWait time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendBuffer sizes the per-connection outbound queue. Full-room-state
// broadcasts after every mutation make bursts of a few dozen frames normal
// in a busy classroom.
const sendBuffer = 256

// NewConnection wraps a raw WebSocket and starts its writer goroutine. The
// id is assigned by the gateway and doubles as the student/teacher identity
// in the protocol.
func NewConnection(id string, conn *websocket.Conn, writeWait time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:        id,
		conn:      conn,
		writeCh:   make(chan []byte, sendBuffer),
		writeWait: writeWait,
		ctx:       ctx,
		cancel:    cancel,
	}
	go c.writeLoop()
	return c
}

// ID returns the connection's server-assigned identity.
func (c *Connection) ID() string { return c.id }

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteEvent queues an {event, body} frame for delivery. A full queue or a
// closed connection returns an error; the caller treats both as a dead
// client.
func (c *Connection) WriteEvent(event string, body any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(Envelope{Event: event, Body: mustRaw(body)})
	if err != nil {
		return err
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

func mustRaw(body any) json.RawMessage {
	if body == nil {
		return nil
	}
	if raw, ok := body.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(body)
	if err != nil {
		zap.L().Error("marshal outbound body", zap.Error(err))
		return nil
	}
	return data
}

// Close shuts the connection down exactly once, stopping the writer
// goroutine and closing the socket.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}
