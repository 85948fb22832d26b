// Package sandbox provisions the isolated environment a session's
// tools run in: the host itself, a Docker container, or a remote VM
// behind an HTTP API. Backends self-register by mode name.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/agentd/internal/config"
)

// ErrUninitialized is returned when a sandbox handle is used before
// Create or Connect succeeded.
var ErrUninitialized = errors.New("sandbox not initialized")

// Sandbox is one session's execution environment.
type Sandbox interface {
	// Create provisions a fresh environment.
	Create(ctx context.Context) error
	// Connect attaches to an environment that already exists.
	Connect(ctx context.Context) error
	// Cleanup releases the environment's resources.
	Cleanup(ctx context.Context) error

	// HostURL is the base URL of the tool server inside the sandbox.
	HostURL() (string, error)
	// ID identifies the underlying container or VM.
	ID() (string, error)
	// ExposePort returns a public URL for a port inside the sandbox,
	// or "" when the backend cannot expose ports.
	ExposePort(port int) string
}

// Factory builds a sandbox for one session.
type Factory func(sessionID string, cfg config.SandboxConfig) (Sandbox, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register binds a mode name to a factory. Called from backend init.
func Register(mode string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[mode] = f
}

// New builds a sandbox for the configured mode.
func New(sessionID string, cfg config.SandboxConfig) (Sandbox, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Mode]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown sandbox mode %q (available: %v)", cfg.Mode, Modes())
	}
	return f(sessionID, cfg)
}

// Modes lists the registered backend names.
func Modes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	modes := make([]string, 0, len(registry))
	for m := range registry {
		modes = append(modes, m)
	}
	sort.Strings(modes)
	return modes
}
