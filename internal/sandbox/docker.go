package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"

	"github.com/nextlevelbuilder/agentd/internal/config"
	"github.com/nextlevelbuilder/agentd/internal/workspace"
)

func init() {
	Register("docker", func(sessionID string, cfg config.SandboxConfig) (Sandbox, error) {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("create docker client: %w", err)
		}
		return &dockerSandbox{sessionID: sessionID, cfg: cfg, cli: cli}, nil
	})
}

// dockerSandbox runs the session in a container named after the
// session, with the workspace bind-mounted at the container work dir.
// The tool server inside the image listens on the service port; the
// container is reachable by name on the sandbox network.
type dockerSandbox struct {
	sessionID   string
	cfg         config.SandboxConfig
	cli         *client.Client
	containerID string
	hostURL     string
}

func (s *dockerSandbox) Create(ctx context.Context) error {
	hostWorkspace := os.Getenv("AGENTD_HOST_WORKSPACE")
	if hostWorkspace == "" {
		hostWorkspace = config.ExpandHome("~/.agentd/workspace")
	}
	source := filepath.Join(hostWorkspace, s.sessionID)
	if err := os.MkdirAll(source, 0o755); err != nil {
		return fmt.Errorf("prepare workspace mount: %w", err)
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: source,
			Target: workspace.ContainerWorkDir,
		}},
		Resources: container.Resources{
			Memory:    parseMemoryLimit(s.cfg.MemoryLimit),
			CPUPeriod: 100000,
			CPUQuota:  int64(100000 * s.cfg.CPUs),
		},
	}
	if s.cfg.NetworkName != "" {
		hostCfg.NetworkMode = container.NetworkMode(s.cfg.NetworkName)
	}

	resp, err := s.cli.ContainerCreate(ctx, &container.Config{
		Image:     s.cfg.Image,
		Hostname:  "sandbox",
		Tty:       true,
		OpenStdin: true,
		Labels:    map[string]string{"agentd.session": s.sessionID},
	}, hostCfg, nil, nil, s.sessionID)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	s.containerID = resp.ID

	if err := s.cli.ContainerStart(ctx, s.containerID, container.StartOptions{}); err != nil {
		_ = s.Cleanup(ctx)
		return fmt.Errorf("start container: %w", err)
	}

	s.hostURL = fmt.Sprintf("http://%s:%d", s.sessionID, s.cfg.ServicePort)
	return nil
}

func (s *dockerSandbox) Connect(ctx context.Context) error {
	inspect, err := s.cli.ContainerInspect(ctx, s.sessionID)
	if err != nil {
		return fmt.Errorf("inspect container: %w", err)
	}
	s.containerID = inspect.ID
	if !inspect.State.Running {
		if err := s.cli.ContainerStart(ctx, s.containerID, container.StartOptions{}); err != nil {
			return fmt.Errorf("restart container: %w", err)
		}
	}
	s.hostURL = fmt.Sprintf("http://%s:%d", s.sessionID, s.cfg.ServicePort)
	return nil
}

func (s *dockerSandbox) Cleanup(ctx context.Context) error {
	if s.containerID == "" {
		return nil
	}
	var errs []error
	stopTimeout := 5
	if err := s.cli.ContainerStop(ctx, s.containerID, container.StopOptions{Timeout: &stopTimeout}); err != nil {
		errs = append(errs, fmt.Errorf("container stop: %w", err))
	}
	if err := s.cli.ContainerRemove(ctx, s.containerID, container.RemoveOptions{Force: true}); err != nil {
		errs = append(errs, fmt.Errorf("container remove: %w", err))
	}
	s.containerID = ""
	return errors.Join(errs...)
}

func (s *dockerSandbox) HostURL() (string, error) {
	if s.hostURL == "" {
		return "", ErrUninitialized
	}
	return s.hostURL, nil
}

func (s *dockerSandbox) ID() (string, error) {
	if s.containerID == "" {
		return "", ErrUninitialized
	}
	return s.containerID, nil
}

// ExposePort builds the public URL the proxy routes by Host header:
// <container>-<port>.<base-domain>.
func (s *dockerSandbox) ExposePort(port int) string {
	return fmt.Sprintf("http://%s-%d.%s", s.sessionID, port, s.cfg.BaseDomain)
}

// parseMemoryLimit converts "512m" / "2g" style limits to bytes.
// Unparseable limits fall back to 0 (no limit).
func parseMemoryLimit(limit string) int64 {
	if limit == "" {
		return 0
	}
	limit = strings.ToLower(strings.TrimSpace(limit))
	mult := int64(1)
	switch {
	case strings.HasSuffix(limit, "g"):
		mult = 1 << 30
		limit = strings.TrimSuffix(limit, "g")
	case strings.HasSuffix(limit, "m"):
		mult = 1 << 20
		limit = strings.TrimSuffix(limit, "m")
	case strings.HasSuffix(limit, "k"):
		mult = 1 << 10
		limit = strings.TrimSuffix(limit, "k")
	}
	n, err := strconv.ParseInt(limit, 10, 64)
	if err != nil {
		return 0
	}
	return n * mult
}
