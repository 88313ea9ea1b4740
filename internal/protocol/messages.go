package protocol

import (
	"encoding/json"

	"turret-ctrl/internal/state"
)

// Message types
const (
	TypePing     = "ping"
	TypePong     = "pong"
	TypeStatus   = "status"
	TypeResetYaw = "reset_yaw"
	TypeShutdown = "shutdown"
	TypeAck      = "ack"
	TypeError    = "error"
)

// Error codes
const (
	ErrInvalidMessage = "INVALID_MESSAGE"
	ErrUnknownType    = "UNKNOWN_TYPE"
)

// Message is the base envelope for all WebSocket messages
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PingPayload for ping messages
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PongPayload for pong messages
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"`
	ServerTimestamp int64 `json:"server_timestamp"`
}

// StatusPayload carries one snapshot of the control state
type StatusPayload struct {
	Timestamp int64          `json:"timestamp"`
	State     state.Snapshot `json:"state"`
}

// AckPayload confirms an operator command was applied
type AckPayload struct {
	Command string `json:"command"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:    msgType,
		Payload: data,
	}, nil
}

// ParsePayload unmarshals the payload into the given struct. An absent
// payload leaves v untouched.
func (m *Message) ParsePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
