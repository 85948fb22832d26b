package sandbox

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/agentd/internal/config"
)

func init() {
	Register("local", func(sessionID string, cfg config.SandboxConfig) (Sandbox, error) {
		return &localSandbox{sessionID: sessionID, servicePort: cfg.ServicePort}, nil
	})
}

// localSandbox runs tools in this process's environment. The tool
// server is expected on localhost; nothing to provision or tear down.
type localSandbox struct {
	sessionID   string
	servicePort int
	hostURL     string
}

func (s *localSandbox) Create(ctx context.Context) error {
	s.hostURL = fmt.Sprintf("http://localhost:%d", s.servicePort)
	return nil
}

func (s *localSandbox) Connect(ctx context.Context) error {
	return s.Create(ctx)
}

func (s *localSandbox) Cleanup(ctx context.Context) error { return nil }

func (s *localSandbox) HostURL() (string, error) {
	if s.hostURL == "" {
		return "", ErrUninitialized
	}
	return s.hostURL, nil
}

func (s *localSandbox) ID() (string, error) { return s.sessionID, nil }

func (s *localSandbox) ExposePort(port int) string { return "" }
