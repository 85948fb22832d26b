// Package store persists sessions and their event streams. The default
// backend is an embedded sqlite database; Postgres is selected when a
// DSN is supplied through the environment.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound reports a lookup for a session id that does not
// exist.
var ErrSessionNotFound = errors.New("session not found")

// Session is one conversation's durable metadata.
type Session struct {
	ID           uuid.UUID `json:"id"`
	WorkspaceDir string    `json:"workspace_dir"`
	CreatedAt    time.Time `json:"created_at"`
	DeviceID     string    `json:"device_id,omitempty"`
	Name         string    `json:"name,omitempty"`
	SandboxID    string    `json:"sandbox_id,omitempty"`
}

// Event is one persisted session event, replayed to reconnecting
// clients in timestamp order.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"event_payload"`
}

// Store is the session and event persistence contract shared by the
// sqlite and Postgres backends.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	ListSessions(ctx context.Context, deviceID string) ([]Session, error)
	UpdateSessionName(ctx context.Context, id uuid.UUID, name string) error
	UpdateSessionSandbox(ctx context.Context, id uuid.UUID, sandboxID string) error
	DeleteSession(ctx context.Context, id uuid.UUID) error

	SaveEvent(ctx context.Context, e Event) error
	EventsForSession(ctx context.Context, sessionID uuid.UUID) ([]Event, error)
	// DeleteEventsFromLastUserMessage removes the most recent
	// user_message event and everything after it. Used when the client
	// edits and resubmits the last query. Reports how many events were
	// removed; zero when the session has no user_message yet.
	DeleteEventsFromLastUserMessage(ctx context.Context, sessionID uuid.UUID) (int64, error)

	Close() error
}
