package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session (
	id            TEXT PRIMARY KEY,
	workspace_dir TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	device_id     TEXT NOT NULL DEFAULT '',
	name          TEXT NOT NULL DEFAULT '',
	sandbox_id    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS event (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL REFERENCES session(id) ON DELETE CASCADE,
	timestamp     TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	event_payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS event_session_ts ON event(session_id, timestamp);
`

// SQLite is the embedded default backend.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and bootstraps) a database file. Path ":memory:"
// gives an ephemeral database for tests.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent sessions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (id, workspace_dir, created_at, device_id, name, sandbox_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID.String(), sess.WorkspaceDir, sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		sess.DeviceID, sess.Name, sess.SandboxID)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLite) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_dir, created_at, device_id, name, sandbox_id
		 FROM session WHERE id = ?`, id.String())
	return scanSession(row)
}

func (s *SQLite) ListSessions(ctx context.Context, deviceID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_dir, created_at, device_id, name, sandbox_id
		 FROM session WHERE device_id = ? ORDER BY created_at DESC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateSessionName(ctx context.Context, id uuid.UUID, name string) error {
	return s.updateSession(ctx, id, "name", name)
}

func (s *SQLite) UpdateSessionSandbox(ctx context.Context, id uuid.UUID, sandboxID string) error {
	return s.updateSession(ctx, id, "sandbox_id", sandboxID)
}

func (s *SQLite) updateSession(ctx context.Context, id uuid.UUID, column, value string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE session SET %s = ? WHERE id = ?", column), value, id.String())
	if err != nil {
		return fmt.Errorf("update session %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLite) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLite) SaveEvent(ctx context.Context, e Event) error {
	payload := e.Payload
	if payload == nil {
		payload = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event (id, session_id, timestamp, event_type, event_payload)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID.String(), e.SessionID.String(),
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.Type, string(payload))
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

func (s *SQLite) EventsForSession(ctx context.Context, sessionID uuid.UUID) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, timestamp, event_type, event_payload
		 FROM event WHERE session_id = ? ORDER BY timestamp ASC`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e           Event
			id, sid, ts string
			payload     string
		)
		if err := rows.Scan(&id, &sid, &ts, &e.Type, &payload); err != nil {
			return nil, err
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("event id: %w", err)
		}
		if e.SessionID, err = uuid.Parse(sid); err != nil {
			return nil, fmt.Errorf("event session id: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("event timestamp: %w", err)
		}
		e.Payload = []byte(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteEventsFromLastUserMessage(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var ts string
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp FROM event
		 WHERE session_id = ? AND event_type = 'user_message'
		 ORDER BY timestamp DESC LIMIT 1`, sessionID.String()).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find last user message: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM event WHERE session_id = ? AND timestamp >= ?`,
		sessionID.String(), ts)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess        Session
		id, created string
	)
	err := row.Scan(&id, &sess.WorkspaceDir, &created, &sess.DeviceID, &sess.Name, &sess.SandboxID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if sess.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("session created_at: %w", err)
	}
	return &sess, nil
}
