package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/asecn/asecn/internal/orchestrator"
)

// MessageType identifies the kind of message on a results connection.
type MessageType string

const (
	// Client → Gateway
	MsgTaskSubmit MessageType = "task.submit"
	MsgPong       MessageType = "client.pong"

	// Gateway → Client
	MsgWelcome      MessageType = "gateway.welcome"
	MsgTaskAccepted MessageType = "task.accepted"
	MsgTaskResult   MessageType = "task.result"
	MsgPing         MessageType = "gateway.ping"

	// Bidirectional
	MsgError MessageType = "error"
)

// Envelope wraps every message sent in either direction.
type Envelope struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope creates an Envelope with a fresh ID and current timestamp.
func NewEnvelope(msgType MessageType, payload any) (*Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Envelope{
		Type:      msgType,
		ID:        uuid.New().String(),
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the Payload into target.
func (e *Envelope) Decode(target any) error {
	return json.Unmarshal(e.Payload, target)
}

// WelcomePayload is sent once after the connection is accepted.
type WelcomePayload struct {
	Message   string `json:"message"`
	CanSubmit bool   `json:"can_submit"`
}

// SubmitPayload is the body of MsgTaskSubmit.
type SubmitPayload = orchestrator.TaskRequest

// AcceptedPayload acknowledges a MsgTaskSubmit. RequestID echoes the
// submitting envelope's ID.
type AcceptedPayload struct {
	RequestID string `json:"request_id"`
}

// ResultPayload is the body of MsgTaskResult.
type ResultPayload = orchestrator.TaskResult

// ErrorPayload is sent with MsgError.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}
