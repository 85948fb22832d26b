// Package filestore persists per-session history snapshots as opaque
// blobs. The gateway saves a snapshot at the end of each run and on
// disconnect, and restores it when a client reconnects to an existing
// session.
package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound reports that no snapshot exists for the session.
var ErrNotFound = errors.New("snapshot not found")

// Store reads and writes session snapshots keyed by session id.
type Store interface {
	Save(sessionID string, data []byte) error
	Load(sessionID string) ([]byte, error)
	Delete(sessionID string) error
}

// Local keeps one JSON file per session under a root directory.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) path(sessionID string) (string, error) {
	name := sanitizeName(sessionID)
	if name == "" || name == "." || !filepath.IsLocal(name) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(l.root, name+".json"), nil
}

// Save writes the snapshot atomically: temp file then rename.
func (l *Local) Save(sessionID string, data []byte) error {
	path, err := l.path(sessionID)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(l.root, "snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

func (l *Local) Load(sessionID string) ([]byte, error) {
	path, err := l.path(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (l *Local) Delete(sessionID string) error {
	path, err := l.path(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func sanitizeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, id)
}

// Memory is an in-process store for tests and ephemeral runs.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Save(sessionID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[sessionID] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Load(sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Delete(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, sessionID)
	return nil
}
