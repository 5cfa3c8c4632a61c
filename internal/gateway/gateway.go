// Package gateway binds transport connections to classroom roles and rooms,
// routes inbound protocol messages to registry and transfer operations, and
// fans resulting state changes back out. It is the only package that
// touches sockets; room state never learns about I/O.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"classboard/internal/history"
	"classboard/internal/registry"
	"classboard/internal/transfer"
)

// Options carries the transport tunables. MaxFrameBytes must sit well above
// control-message size: snapshot transfers can run to tens of megabytes.
type Options struct {
	MaxFrameBytes int64
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	SweepInterval time.Duration
}

// Gateway owns the WebSocket endpoint. Each connection gets a reader
// goroutine; all mutation goes through the registry's and coordinator's own
// locks, so a single message is handled start-to-finish before its
// broadcast, and nothing in a handler blocks on the network.
type Gateway struct {
	reg        *registry.Registry
	transfers  *transfer.Coordinator
	hist       *history.Log
	conns      *Table
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	opts       Options
}

// New wires a gateway over the given registry and transfer coordinator.
// hist may be nil to disable event logging.
func New(reg *registry.Registry, transfers *transfer.Coordinator, hist *history.Log, opts Options) *Gateway {
	conns := NewTable()
	return &Gateway{
		reg:        reg,
		transfers:  transfers,
		hist:       hist,
		conns:      conns,
		dispatcher: NewDispatcher(reg, conns),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				// Room codes are the admission control; the coordinator is
				// deployed behind the classroom's own origin.
				return true
			},
		},
		opts: opts,
	}
}

// HandleWS upgrades an HTTP request and starts serving the connection. The
// connection identity is server-assigned; it doubles as the student ID seen
// by the teacher.
func (g *Gateway) HandleWS(c *gin.Context) {
	raw, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(uuid.New().String(), raw, g.opts.WriteWait)
	g.conns.Add(conn)
	zap.L().Info("connection opened",
		zap.String("conn", conn.ID()),
		zap.String("remote", c.Request.RemoteAddr))

	go g.serve(conn)
}

// serve is the per-connection read loop. Its deferred cleanup is the single
// place an implicit leave happens, so a transport-level disconnect triggers
// exactly one Leave no matter how the loop exits.
func (g *Gateway) serve(conn *Connection) {
	defer g.handleDisconnect(conn)

	raw := conn.conn
	raw.SetReadLimit(g.opts.MaxFrameBytes)
	if err := raw.SetReadDeadline(time.Now().Add(g.opts.PongWait)); err != nil {
		return
	}
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	})

	go g.pinger(conn)

	for {
		msgType, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				zap.L().Warn("websocket read error", zap.String("conn", conn.ID()), zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.sendError(conn, malformedMessageMsg)
			continue
		}
		msg, err := decodeInbound(env)
		if err != nil {
			zap.L().Debug("undecodable frame",
				zap.String("conn", conn.ID()),
				zap.String("event", env.Event),
				zap.Error(err))
			if errors.Is(err, ErrMalformedBody) {
				g.sendError(conn, malformedMessageMsg)
			} else {
				g.sendError(conn, unknownEventMsg)
			}
			continue
		}
		g.dispatch(conn, msg)
	}
}

func (g *Gateway) pinger(conn *Connection) {
	ticker := time.NewTicker(g.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(g.opts.WriteWait)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-conn.ctx.Done():
			return
		}
	}
}

// dispatch routes one decoded message. The switch is exhaustive over the
// closed inbound set; role authority is checked per operation and a message
// a role may not send is answered with an error and never mutates state.
func (g *Gateway) dispatch(conn *Connection, msg inbound) {
	switch m := msg.(type) {
	case createRoomMsg:
		g.handleCreateRoom(conn)
	case joinRoomMsg:
		g.handleJoinRoom(conn, m)
	case toggleAttentionMsg:
		g.handleToggleAttention(conn, m)
	case kickStudentMsg:
		g.handleKickStudent(conn, m)
	case updateStatusMsg:
		g.handleUpdateStatus(conn, m)
	case requestModelMsg:
		g.handleRequestModel(conn, m)
	case studentModelDataMsg:
		g.handleStudentModelData(conn, m)
	}
}

func (g *Gateway) handleCreateRoom(conn *Connection) {
	if _, _, bound := g.reg.Lookup(conn.ID()); bound {
		g.sendError(conn, alreadyInRoomMsg)
		return
	}

	code, err := g.reg.CreateRoom(conn.ID())
	if err != nil {
		zap.L().Error("room creation failed", zap.Error(err))
		g.sendError(conn, "could not create room")
		return
	}

	g.reply(conn, eventRoomCreated, roomCreatedBody{Code: code})
	g.hist.Record(code, history.KindRoomCreated, conn.ID(), "")
	zap.L().Info("room created", zap.String("room", code), zap.String("teacher", conn.ID()))
}

func (g *Gateway) handleJoinRoom(conn *Connection, m joinRoomMsg) {
	if _, _, bound := g.reg.Lookup(conn.ID()); bound {
		g.sendError(conn, alreadyInRoomMsg)
		return
	}

	attention, err := g.reg.JoinRoom(m.Code, conn.ID(), m.Name)
	if err != nil {
		g.sendError(conn, invalidRoomCode)
		return
	}

	g.reply(conn, eventJoinedRoom, joinedRoomBody{Code: m.Code, AttentionMode: attention})
	g.hist.Record(m.Code, history.KindStudentJoined, conn.ID(), m.Name)
	g.dispatcher.Broadcast(m.Code)
	zap.L().Info("student joined",
		zap.String("room", m.Code),
		zap.String("student", conn.ID()),
		zap.String("name", m.Name))
}

func (g *Gateway) handleToggleAttention(conn *Connection, m toggleAttentionMsg) {
	if !g.isTeacherOf(conn, m.Code) {
		g.sendError(conn, notPermittedMsg)
		return
	}
	if !g.reg.SetAttention(m.Code, m.Enabled) {
		return
	}

	g.dispatcher.Send(m.Code, eventAttentionModeChange, attentionModeBody{Enabled: m.Enabled})
	g.dispatcher.Broadcast(m.Code)
	g.hist.Record(m.Code, history.KindAttentionToggled, conn.ID(), boolDetail(m.Enabled))
}

func (g *Gateway) handleKickStudent(conn *Connection, m kickStudentMsg) {
	if !g.isTeacherOf(conn, m.Code) {
		g.sendError(conn, notPermittedMsg)
		return
	}

	name, _ := g.reg.StudentName(m.Code, m.StudentID)
	if !g.reg.Kick(m.Code, m.StudentID) {
		zap.L().Debug("kick of unknown student ignored",
			zap.String("room", m.Code), zap.String("student", m.StudentID))
		return
	}

	if student, ok := g.conns.Get(m.StudentID); ok {
		if err := student.WriteEvent(eventKicked, nil); err != nil {
			zap.L().Debug("kicked notice undeliverable", zap.Error(err))
		}
	}
	// A pending snapshot pull targeting the kicked student can never
	// complete; fail it now rather than making the teacher wait it out.
	if p, ok := g.transfers.CancelTarget(m.Code, m.StudentID); ok {
		g.notifyTimeout(p)
	}

	g.hist.Record(m.Code, history.KindStudentKicked, m.StudentID, name)
	g.dispatcher.Broadcast(m.Code)
	zap.L().Info("student kicked",
		zap.String("room", m.Code),
		zap.String("student", m.StudentID),
		zap.String("name", name))
}

func (g *Gateway) handleUpdateStatus(conn *Connection, m updateStatusMsg) {
	_, role, bound := g.reg.Lookup(conn.ID())
	if bound && role != registry.RoleStudent {
		g.sendError(conn, notPermittedMsg)
		return
	}
	if m.Status != "" && !registry.IsValidStatus(m.Status) {
		g.sendError(conn, invalidStatusMsg)
		return
	}

	code, err := g.reg.UpdateStatus(conn.ID(), m.Status, m.Metrics)
	if err != nil {
		// Unbound or already kicked: dropped without a client-visible error.
		return
	}
	g.dispatcher.Broadcast(code)
}

func (g *Gateway) handleRequestModel(conn *Connection, m requestModelMsg) {
	roomCode, role, bound := g.reg.Lookup(conn.ID())
	if !bound || role != registry.RoleTeacher {
		g.sendError(conn, notPermittedMsg)
		return
	}

	targetRoom, targetRole, targetBound := g.reg.Lookup(m.StudentID)
	if !targetBound || targetRole != registry.RoleStudent || targetRoom != roomCode {
		g.sendError(conn, unknownStudentMsg)
		return
	}
	name, _ := g.reg.StudentName(roomCode, m.StudentID)

	if err := g.transfers.Request(roomCode, conn.ID(), m.StudentID, name); err != nil {
		g.sendError(conn, transferBusyMsg)
		return
	}

	if target, ok := g.conns.Get(m.StudentID); ok {
		if err := target.WriteEvent(eventRequestModel, nil); err != nil {
			zap.L().Warn("model request undeliverable; deadline sweep will report it",
				zap.String("room", roomCode),
				zap.String("student", m.StudentID),
				zap.Error(err))
		}
	}
	g.hist.Record(roomCode, history.KindModelRequested, m.StudentID, name)
}

func (g *Gateway) handleStudentModelData(conn *Connection, m studentModelDataMsg) {
	roomCode, role, bound := g.reg.Lookup(conn.ID())
	if !bound {
		return
	}
	if role != registry.RoleStudent {
		g.sendError(conn, notPermittedMsg)
		return
	}

	p, outcome := g.transfers.Deliver(roomCode, conn.ID())
	if outcome != transfer.Delivered {
		zap.L().Debug("snapshot payload discarded",
			zap.String("room", roomCode),
			zap.String("from", conn.ID()),
			zap.Int("outcome", int(outcome)))
		return
	}

	if teacher, ok := g.conns.Get(p.TeacherConnID); ok {
		body := featuredDataBody{StudentName: p.TargetName, Payload: m.Payload}
		if err := teacher.WriteEvent(eventStudentFeaturedData, body); err != nil {
			zap.L().Warn("featured data undeliverable", zap.Error(err))
		}
	}
	g.hist.Record(roomCode, history.KindModelDelivered, conn.ID(), p.TargetName)
}

// handleDisconnect runs exactly once per connection, on read-loop exit. It
// is the implicit, always-successful leave: a second invocation would find
// the connection unbound and do nothing.
func (g *Gateway) handleDisconnect(conn *Connection) {
	g.conns.Remove(conn.ID())
	_ = conn.Close()

	res, err := g.reg.Leave(conn.ID())
	if err != nil {
		// Never bound, or already removed by a kick.
		zap.L().Info("connection closed", zap.String("conn", conn.ID()))
		return
	}

	if res.WasTeacher {
		// Room died with its teacher; any pending transfer is moot.
		g.transfers.CancelRoom(res.Code)
		g.hist.Record(res.Code, history.KindRoomDestroyed, conn.ID(), "")
		zap.L().Info("room destroyed", zap.String("room", res.Code))
		return
	}

	if p, ok := g.transfers.CancelTarget(res.Code, conn.ID()); ok {
		g.notifyTimeout(p)
	}
	g.hist.Record(res.Code, history.KindStudentLeft, conn.ID(), res.StudentName)
	g.dispatcher.Broadcast(res.Code)
	zap.L().Info("student left",
		zap.String("room", res.Code),
		zap.String("student", conn.ID()))
}

// RunSweeper converts expired snapshot requests into teacher-visible
// failures on a steady interval. Blocks until ctx is cancelled.
func (g *Gateway) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(g.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, p := range g.transfers.Sweep() {
				g.notifyTimeout(p)
				g.hist.Record(p.RoomCode, history.KindModelRequestStale, p.TargetConnID, p.TargetName)
				zap.L().Info("snapshot request timed out",
					zap.String("room", p.RoomCode),
					zap.String("student", p.TargetConnID),
					zap.String("name", p.TargetName))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) notifyTimeout(p transfer.Pending) {
	teacher, ok := g.conns.Get(p.TeacherConnID)
	if !ok {
		return
	}
	body := requestTimeoutBody{StudentID: p.TargetConnID, StudentName: p.TargetName}
	if err := teacher.WriteEvent(eventModelRequestTimeout, body); err != nil {
		zap.L().Debug("timeout notice undeliverable", zap.Error(err))
	}
}

func (g *Gateway) isTeacherOf(conn *Connection, code string) bool {
	roomCode, role, bound := g.reg.Lookup(conn.ID())
	return bound && role == registry.RoleTeacher && roomCode == code
}

func (g *Gateway) reply(conn *Connection, event string, body any) {
	if err := conn.WriteEvent(event, body); err != nil {
		zap.L().Debug("reply undeliverable",
			zap.String("conn", conn.ID()),
			zap.String("event", event),
			zap.Error(err))
	}
}

func (g *Gateway) sendError(conn *Connection, message string) {
	g.reply(conn, eventError, errorBody{Message: message})
}

// ConnCount reports live transport connections for the stats endpoint.
func (g *Gateway) ConnCount() int { return g.conns.Count() }

func boolDetail(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
