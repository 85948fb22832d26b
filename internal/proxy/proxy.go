// Package proxy routes public traffic to services running inside
// sandbox containers. The target is encoded in the Host header as
// <container>-<port>.<base-domain>; container names may themselves
// contain dashes, so the port is the final dash-separated token.
package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const upstreamTimeout = 60 * time.Second

// registration records a service announced by a container.
type registration struct {
	RegisteredAt string `json:"registered_at"`
}

// Server is the host-routed reverse proxy.
type Server struct {
	logger   *slog.Logger
	client   *http.Client
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer

	mu       sync.RWMutex
	services map[string]map[string]registration
}

func New(logger *slog.Logger) *Server {
	return &Server{
		logger: logger,
		client: &http.Client{
			Timeout: upstreamTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		services: map[string]map[string]registration{},
	}
}

// Handler returns the proxy routes. API endpoints are matched first;
// everything else is forwarded to the container named by the Host
// header.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ping", s.handlePing)
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("GET /api/debug-headers", s.handleDebugHeaders)
	mux.HandleFunc("/", s.handleProxy)
	return mux
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": "pong"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Port          json.Number `json:"port"`
		ContainerName string      `json:"container_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request: " + err.Error()})
		return
	}
	if req.Port == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Port is required"})
		return
	}
	if req.ContainerName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Container name is required"})
		return
	}

	reg := registration{RegisteredAt: time.Now().Format(time.RFC3339)}
	s.mu.Lock()
	if s.services[req.ContainerName] == nil {
		s.services[req.ContainerName] = map[string]registration{}
	}
	s.services[req.ContainerName][req.Port.String()] = reg
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": fmt.Sprintf("Service of container '%s' running on port '%s'", req.ContainerName, req.Port),
		"service": reg,
	})
}

func (s *Server) handleDebugHeaders(w http.ResponseWriter, r *http.Request) {
	headers := map[string]string{}
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	headers["Host"] = r.Host
	writeJSON(w, http.StatusOK, map[string]any{"headers": headers})
}

// parseHost splits the subdomain label into container name and port.
// "my-agent-3-8080.agentd.local" -> ("my-agent-3", "8080").
func parseHost(host string) (container, port string, err error) {
	if host == "" {
		return "", "", errors.New("missing host header")
	}
	label := strings.Split(host, ".")[0]
	parts := strings.Split(label, "-")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("host %q does not encode a container and port", host)
	}
	return strings.Join(parts[:len(parts)-1], "-"), parts[len(parts)-1], nil
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.proxyWebSocket(w, r)
		return
	}
	s.proxyHTTP(w, r)
}

func (s *Server) proxyHTTP(w http.ResponseWriter, r *http.Request) {
	container, port, err := parseHost(r.Host)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	target := fmt.Sprintf("http://%s:%s%s", container, port, r.URL.Path)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	s.logger.Debug("proxy.forward", "target", target, "method", r.Method)

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": fmt.Sprintf("Failed to connect to agent service: %s", err)})
		return
	}
	copyHeaders(req.Header, r.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logUpstreamError(target, err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": fmt.Sprintf("Failed to connect to agent service: %s", err)})
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		switch strings.ToLower(k) {
		case "transfer-encoding", "content-length", "content-encoding":
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// logUpstreamError distinguishes the common failure shapes: name
// resolution (container gone or never existed) vs connection refused
// (container up, service not listening).
func (s *Server) logUpstreamError(target string, err error) {
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		s.logger.Error("proxy.upstream.dns", "target", target, "error", err)
	case strings.Contains(err.Error(), "connection refused"):
		s.logger.Error("proxy.upstream.refused", "target", target, "error", err)
	default:
		s.logger.Error("proxy.upstream.failed", "target", target, "error", err)
	}
}

func (s *Server) proxyWebSocket(w http.ResponseWriter, r *http.Request) {
	container, port, err := parseHost(r.Host)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	target := fmt.Sprintf("ws://%s:%s%s", container, port, r.URL.Path)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	s.logger.Debug("proxy.ws.forward", "target", target)

	upstream, resp, err := s.dialer.DialContext(r.Context(), target, forwardableHeaders(r.Header))
	if err != nil {
		s.logUpstreamError(target, err)
		status := http.StatusBadGateway
		if resp != nil {
			status = resp.StatusCode
		}
		http.Error(w, fmt.Sprintf("Failed to connect to agent service: %s", err), status)
		return
	}
	defer upstream.Close()

	client, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer client.Close()

	g := new(errgroup.Group)
	g.Go(func() error { return pump(client, upstream) })
	g.Go(func() error { return pump(upstream, client) })
	if err := g.Wait(); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Debug("proxy.ws.closed", "target", target, "error", err)
	}
}

// pump copies frames from src to dst until either side closes.
func pump(src, dst *websocket.Conn) error {
	for {
		kind, data, err := src.ReadMessage()
		if err != nil {
			_ = dst.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return err
		}
		if err := dst.WriteMessage(kind, data); err != nil {
			return err
		}
	}
}

// forwardableHeaders strips hop-by-hop and handshake headers the
// dialer manages itself.
func forwardableHeaders(in http.Header) http.Header {
	out := http.Header{}
	for k, vs := range in {
		switch strings.ToLower(k) {
		case "connection", "upgrade", "sec-websocket-key", "sec-websocket-version",
			"sec-websocket-extensions", "sec-websocket-protocol", "host":
			continue
		}
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	return out
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
