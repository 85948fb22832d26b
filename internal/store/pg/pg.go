// Package pg implements the session and event store on Postgres via
// pgx. Schema changes ship as embedded migrations run by the migrate
// subcommand or on open.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/agentd/internal/store"
)

// Store is the Postgres-backed session and event store.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection. The schema
// must already be migrated; see Migrate.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateSession(ctx context.Context, sess store.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (id, workspace_dir, created_at, device_id, name, sandbox_id)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.WorkspaceDir, sess.CreatedAt, sess.DeviceID, sess.Name, sess.SandboxID)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*store.Session, error) {
	var sess store.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_dir, created_at, device_id, name, sandbox_id
		 FROM session WHERE id = $1`, id).
		Scan(&sess.ID, &sess.WorkspaceDir, &sess.CreatedAt, &sess.DeviceID, &sess.Name, &sess.SandboxID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

func (s *Store) ListSessions(ctx context.Context, deviceID string) ([]store.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_dir, created_at, device_id, name, sandbox_id
		 FROM session WHERE device_id = $1 ORDER BY created_at DESC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []store.Session
	for rows.Next() {
		var sess store.Session
		if err := rows.Scan(&sess.ID, &sess.WorkspaceDir, &sess.CreatedAt,
			&sess.DeviceID, &sess.Name, &sess.SandboxID); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSessionName(ctx context.Context, id uuid.UUID, name string) error {
	return s.updateSession(ctx, `UPDATE session SET name = $1 WHERE id = $2`, name, id)
}

func (s *Store) UpdateSessionSandbox(ctx context.Context, id uuid.UUID, sandboxID string) error {
	return s.updateSession(ctx, `UPDATE session SET sandbox_id = $1 WHERE id = $2`, sandboxID, id)
}

func (s *Store) updateSession(ctx context.Context, query, value string, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) SaveEvent(ctx context.Context, e store.Event) error {
	payload := e.Payload
	if payload == nil {
		payload = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event (id, session_id, timestamp, event_type, event_payload)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.SessionID, e.Timestamp, e.Type, []byte(payload))
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

func (s *Store) EventsForSession(ctx context.Context, sessionID uuid.UUID) ([]store.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, timestamp, event_type, event_payload
		 FROM event WHERE session_id = $1 ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []store.Event
	for rows.Next() {
		var (
			e       store.Event
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Timestamp, &e.Type, &payload); err != nil {
			return nil, err
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DeleteEventsFromLastUserMessage(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM event WHERE session_id = $1 AND timestamp >= (
		   SELECT max(timestamp) FROM event
		   WHERE session_id = $1 AND event_type = 'user_message')`,
		sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return res.RowsAffected()
}
