package gateway

import (
	"encoding/json"
	"fmt"

	"classboard/internal/registry"
)

// Envelope wraps every WebSocket frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// Inbound event names.
const (
	eventCreateRoom       = "create_room"
	eventJoinRoom         = "join_room"
	eventToggleAttention  = "toggle_attention"
	eventKickStudent      = "kick_student"
	eventUpdateStatus     = "update_status"
	eventRequestModel     = "request_model"
	eventStudentModelData = "student_model_data"
)

// Outbound event names.
const (
	eventRoomCreated         = "room_created"
	eventJoinedRoom          = "joined_room"
	eventRoomStateUpdate     = "room_state_update"
	eventAttentionModeChange = "attention_mode_change"
	eventKicked              = "kicked"
	eventError               = "error"
	eventStudentFeaturedData = "student_featured_data"
	eventModelRequestTimeout = "model_request_timeout"
)

// inbound is the closed union of client messages. Adding a message type
// means adding a struct here, a case in decodeInbound, and a case in the
// gateway's dispatch switch; an unhandled case is a compile-visible gap
// rather than a silently ignored map key.
type inbound interface {
	isInbound()
}

type createRoomMsg struct{}

type joinRoomMsg struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type toggleAttentionMsg struct {
	Code    string `json:"code"`
	Enabled bool   `json:"enabled"`
}

type kickStudentMsg struct {
	Code      string `json:"code"`
	StudentID string `json:"studentId"`
}

type updateStatusMsg struct {
	Status  registry.Status  `json:"status,omitempty"`
	Metrics registry.Metrics `json:"metrics,omitempty"`
}

type requestModelMsg struct {
	StudentID string `json:"studentId"`
}

// studentModelDataMsg carries the opaque snapshot payload. The body is kept
// as raw JSON and relayed verbatim; at tens of megabytes, re-encoding it
// would double the memory cost for nothing.
type studentModelDataMsg struct {
	Payload json.RawMessage
}

func (createRoomMsg) isInbound()       {}
func (joinRoomMsg) isInbound()         {}
func (toggleAttentionMsg) isInbound()  {}
func (kickStudentMsg) isInbound()      {}
func (updateStatusMsg) isInbound()     {}
func (requestModelMsg) isInbound()     {}
func (studentModelDataMsg) isInbound() {}

// decodeInbound maps a frame onto the closed inbound set.
func decodeInbound(env Envelope) (inbound, error) {
	switch env.Event {
	case eventCreateRoom:
		return createRoomMsg{}, nil
	case eventJoinRoom:
		var m joinRoomMsg
		if err := unmarshalBody(env.Body, &m); err != nil {
			return nil, err
		}
		return m, nil
	case eventToggleAttention:
		var m toggleAttentionMsg
		if err := unmarshalBody(env.Body, &m); err != nil {
			return nil, err
		}
		return m, nil
	case eventKickStudent:
		var m kickStudentMsg
		if err := unmarshalBody(env.Body, &m); err != nil {
			return nil, err
		}
		return m, nil
	case eventUpdateStatus:
		var m updateStatusMsg
		if err := unmarshalBody(env.Body, &m); err != nil {
			return nil, err
		}
		return m, nil
	case eventRequestModel:
		var m requestModelMsg
		if err := unmarshalBody(env.Body, &m); err != nil {
			return nil, err
		}
		return m, nil
	case eventStudentModelData:
		return studentModelDataMsg{Payload: env.Body}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func unmarshalBody(body json.RawMessage, v any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}

// Outbound reply bodies.

type roomCreatedBody struct {
	Code string `json:"code"`
}

type joinedRoomBody struct {
	Code          string `json:"code"`
	AttentionMode bool   `json:"attentionMode"`
}

type attentionModeBody struct {
	Enabled bool `json:"enabled"`
}

type errorBody struct {
	Message string `json:"message"`
}

type featuredDataBody struct {
	StudentName string          `json:"studentName"`
	Payload     json.RawMessage `json:"payload"`
}

type requestTimeoutBody struct {
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
}
