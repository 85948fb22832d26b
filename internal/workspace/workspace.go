// Package workspace maps session-relative paths to host or container
// paths, depending on where the session's tools actually run.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ContainerWorkDir is where sandbox containers mount the workspace.
const ContainerWorkDir = "/workspace"

// Manager resolves paths for one session's workspace directory.
type Manager struct {
	Root      string
	SessionID string
	local     bool
}

// New creates (if needed) the per-session workspace directory under
// parentDir. local=false means tools run inside a container that
// mounts the workspace at ContainerWorkDir.
func New(parentDir, sessionID string, local bool) (*Manager, error) {
	abs, err := filepath.Abs(parentDir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	root := filepath.Join(abs, sessionID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Manager{Root: root, SessionID: sessionID, local: local}, nil
}

func (m *Manager) IsLocal() bool { return m.local }

// HostPath returns the absolute path on the host for a possibly
// relative or container-absolute path.
func (m *Manager) HostPath(path string) string {
	if !filepath.IsAbs(path) {
		return filepath.Join(m.Root, path)
	}
	if !m.local {
		if rel, err := filepath.Rel(ContainerWorkDir, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.Join(m.Root, rel)
		}
	}
	return path
}

// ToolPath returns the absolute path as seen by the session's tools
// (container path in sandboxed mode, host path otherwise).
func (m *Manager) ToolPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if m.local {
		return filepath.Join(m.Root, path)
	}
	return filepath.Join(ContainerWorkDir, path)
}

// RootPath returns the workspace root as seen by the session's tools.
func (m *Manager) RootPath() string {
	if m.local {
		return m.Root
	}
	return ContainerWorkDir
}

// RelativePath returns path relative to the workspace root, or the
// absolute path when it lies outside the workspace.
func (m *Manager) RelativePath(path string) string {
	abs := m.HostPath(path)
	if !m.local {
		return m.ToolPath(path)
	}
	rel, err := filepath.Rel(m.Root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return rel
}
