package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseHost(t *testing.T) {
	tests := []struct {
		name      string
		host      string
		container string
		port      string
		wantErr   bool
	}{
		{name: "simple", host: "session1-8080.agentd.local", container: "session1", port: "8080"},
		{name: "dashed container", host: "my-agent-3-8080.agentd.local", container: "my-agent-3", port: "8080"},
		{name: "no domain", host: "session1-3000", container: "session1", port: "3000"},
		{name: "empty", host: "", wantErr: true},
		{name: "no dash", host: "session1.agentd.local", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container, port, err := parseHost(tt.host)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.container, container)
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestPing(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pong", body["message"])
}

func TestRegister(t *testing.T) {
	srv := newTestServer(t)

	body := bytes.NewBufferString(`{"container_name":"sess-1","port":8080}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/register", body))

	require.Equal(t, http.StatusOK, rec.Code)
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	_, ok := srv.services["sess-1"]["8080"]
	assert.True(t, ok)
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "missing port", body: `{"container_name":"sess-1"}`, want: "Port is required"},
		{name: "missing container", body: `{"port":8080}`, want: "Container name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestProxyForwardsAndStripsHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hello", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("x"))
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("X-Custom", "kept")
		w.Write([]byte("upstream says hi"))
	}))
	defer upstream.Close()

	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	host, port, ok := strings.Cut(u.Host, ":")
	require.True(t, ok)

	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/hello?x=1", nil)
	// Encode the upstream address the way the sandbox domain does.
	req.Host = host + "-" + port + ".agentd.local"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upstream says hi", rec.Body.String())
	assert.Equal(t, "kept", rec.Header().Get("X-Custom"))
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
}

func TestProxyUpstreamUnreachable(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.Host = "127.0.0.1-1.agentd.local"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to connect to agent service")
}

func TestProxyBadHost(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.Host = "nodash.agentd.local"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
