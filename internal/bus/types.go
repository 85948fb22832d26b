package bus

import (
	"time"

	"github.com/google/uuid"
)

// Event is one realtime message bound for the session's client. The
// same shape is persisted to the event store and replayed on reconnect.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"type"`
	Payload   map[string]any `json:"content"`
}

// New builds an event with a fresh ID and the current time.
func New(kind string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Payload:   payload,
	}
}
