package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/agentd/internal/config"
)

func init() {
	Register("remote", func(sessionID string, cfg config.SandboxConfig) (Sandbox, error) {
		if cfg.VMAPIURL == "" {
			return nil, fmt.Errorf("remote sandbox mode requires vm_api_url")
		}
		return &remoteSandbox{
			sessionID: sessionID,
			cfg:       cfg,
			apiURL:    strings.TrimRight(cfg.VMAPIURL, "/"),
			client:    &http.Client{Timeout: 120 * time.Second},
		}, nil
	})
}

// remoteSandbox delegates provisioning to an external VM manager over
// its REST API.
type remoteSandbox struct {
	sessionID string
	cfg       config.SandboxConfig
	apiURL    string
	client    *http.Client

	sandboxID string
	hostURL   string
}

type vmResponse struct {
	SandboxID string `json:"sandbox_id"`
	HostURL   string `json:"host_url"`
}

func (s *remoteSandbox) call(ctx context.Context, method, path string, payload any) (*vmResponse, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.apiURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vm api %s %s: http %d: %s", method, path, resp.StatusCode, data)
	}

	var out vmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return nil, err
	}
	return &out, nil
}

func (s *remoteSandbox) Create(ctx context.Context) error {
	out, err := s.call(ctx, http.MethodPost, "/sandboxes", map[string]any{
		"session_id":   s.sessionID,
		"image":        s.cfg.Image,
		"memory_limit": s.cfg.MemoryLimit,
		"cpus":         s.cfg.CPUs,
	})
	if err != nil {
		return fmt.Errorf("create remote sandbox: %w", err)
	}
	s.sandboxID = out.SandboxID
	s.hostURL = out.HostURL
	return nil
}

func (s *remoteSandbox) Connect(ctx context.Context) error {
	out, err := s.call(ctx, http.MethodGet, "/sandboxes/"+s.sessionID, nil)
	if err != nil {
		return fmt.Errorf("connect remote sandbox: %w", err)
	}
	s.sandboxID = out.SandboxID
	s.hostURL = out.HostURL
	return nil
}

func (s *remoteSandbox) Cleanup(ctx context.Context) error {
	if s.sandboxID == "" {
		return nil
	}
	if _, err := s.call(ctx, http.MethodDelete, "/sandboxes/"+s.sessionID, nil); err != nil {
		return fmt.Errorf("cleanup remote sandbox: %w", err)
	}
	s.sandboxID = ""
	return nil
}

func (s *remoteSandbox) HostURL() (string, error) {
	if s.hostURL == "" {
		return "", ErrUninitialized
	}
	return s.hostURL, nil
}

func (s *remoteSandbox) ID() (string, error) {
	if s.sandboxID == "" {
		return "", ErrUninitialized
	}
	return s.sandboxID, nil
}

func (s *remoteSandbox) ExposePort(port int) string {
	return fmt.Sprintf("http://%s-%d.%s", s.sessionID, port, s.cfg.BaseDomain)
}
