package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/agentd/internal/config"
	"github.com/nextlevelbuilder/agentd/internal/filestore"
	"github.com/nextlevelbuilder/agentd/internal/providers"
	"github.com/nextlevelbuilder/agentd/internal/store"
	"github.com/nextlevelbuilder/agentd/pkg/protocol"
)

// stubProvider answers every Generate call with a plain text turn,
// optionally blocking until release is closed.
type stubProvider struct {
	mu      sync.Mutex
	text    string
	release chan struct{}
	calls   int
}

func (p *stubProvider) Generate(ctx context.Context, req providers.GenerateRequest) (*providers.GenerateResponse, error) {
	p.mu.Lock()
	p.calls++
	release := p.release
	text := p.text
	p.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if text == "" {
		text = "all done"
	}
	return &providers.GenerateResponse{
		Blocks: []providers.Block{providers.TextResult(text)},
		Usage:  providers.Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (p *stubProvider) Model() string { return "stub-model" }
func (p *stubProvider) Name() string  { return "stub" }

type testEnv struct {
	server *Server
	ts     *httptest.Server
	db     store.Store
}

func newTestEnv(t *testing.T, provider providers.Provider) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.WorkspaceRoot = t.TempDir()
	cfg.Sandbox = config.SandboxConfig{Mode: "local"}
	cfg.Models = map[string]config.ModelSpec{
		"claude-sonnet": {APIType: "anthropic", Model: "claude-sonnet"},
	}
	cfg.DefaultModel = "claude-sonnet"
	cfg.MaxTurns = 10
	cfg.MaxOutputTokens = 1024

	db, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := NewServer(cfg, db, filestore.NewMemory(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv.newProvider = func(providers.Options) (providers.Provider, error) {
		return provider, nil
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: srv, ts: ts, db: db}
}

func (e *testEnv) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev protocol.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// waitFor reads frames until one of the wanted type arrives.
func waitFor(t *testing.T, conn *websocket.Conn, kind string) protocol.Event {
	t.Helper()
	for i := 0; i < 50; i++ {
		ev := readEvent(t, conn)
		if ev.Type == kind {
			return ev
		}
	}
	t.Fatalf("no %s event received", kind)
	return protocol.Event{}
}

func send(t *testing.T, conn *websocket.Conn, msgType string, content any) {
	t.Helper()
	raw, err := json.Marshal(content)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(protocol.Message{Type: msgType, Content: raw}))
}

func initAgent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, protocol.MsgInitAgent, protocol.InitAgentContent{ModelName: "claude-sonnet"})
	ev := waitFor(t, conn, protocol.EventAgentInitialized)
	require.Equal(t, "Agent initialized", ev.Content["message"])
}

func TestHandshake(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	conn := env.dial(t, "")

	ev := readEvent(t, conn)
	require.Equal(t, protocol.EventConnectionEstablished, ev.Type)
	require.Equal(t, "Connected to Agent WebSocket Server", ev.Content["message"])
	require.NotEmpty(t, ev.Content["workspace_path"])
}

func TestInvalidJSON(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	conn := env.dial(t, "")
	readEvent(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	ev := waitFor(t, conn, protocol.EventError)
	require.Equal(t, "Invalid JSON format", ev.Content["message"])
}

func TestUnknownMessageType(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	conn := env.dial(t, "")
	readEvent(t, conn)

	send(t, conn, "bogus", map[string]any{})
	ev := waitFor(t, conn, protocol.EventError)
	require.Equal(t, "Unknown message type: bogus", ev.Content["message"])
}

func TestInitUnknownModel(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	conn := env.dial(t, "")
	readEvent(t, conn)

	send(t, conn, protocol.MsgInitAgent, protocol.InitAgentContent{ModelName: "nope"})
	ev := waitFor(t, conn, protocol.EventError)
	require.Equal(t, "Error initializing agent: LLM config not found for model: nope", ev.Content["message"])
}

func TestQueryRoundTrip(t *testing.T) {
	env := newTestEnv(t, &stubProvider{text: "hello from the agent"})
	sessionID := uuid.New()
	conn := env.dial(t, "?session_uuid="+sessionID.String()+"&device_id=dev-1")
	readEvent(t, conn)
	initAgent(t, conn)

	send(t, conn, protocol.MsgQuery, protocol.QueryContent{Text: "build me a website"})

	var kinds []string
	for {
		ev := readEvent(t, conn)
		kinds = append(kinds, ev.Type)
		if ev.Type == protocol.EventAssistantText {
			require.Equal(t, "hello from the agent", ev.Content["text"])
		}
		if ev.Type == protocol.EventStreamComplete {
			break
		}
	}
	require.Contains(t, kinds, protocol.EventProcessing)
	require.Contains(t, kinds, protocol.EventUserMessage)
	require.Contains(t, kinds, protocol.EventAssistantText)
	require.Contains(t, kinds, protocol.EventAgentResponse)

	// The first query names the session.
	sess, err := env.db.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, "build me a website", sess.Name)
	require.Equal(t, "dev-1", sess.DeviceID)

	// Queue events were persisted; direct control events were not.
	events, err := env.db.EventsForSession(context.Background(), sessionID)
	require.NoError(t, err)
	var stored []string
	for _, ev := range events {
		stored = append(stored, ev.Type)
	}
	require.Contains(t, stored, protocol.EventUserMessage)
	require.Contains(t, stored, protocol.EventAgentResponse)
	require.NotContains(t, stored, protocol.EventProcessing)
	require.NotContains(t, stored, protocol.EventStreamComplete)
}

func TestBusyRejection(t *testing.T) {
	release := make(chan struct{})
	provider := &stubProvider{release: release}
	env := newTestEnv(t, provider)
	conn := env.dial(t, "")
	readEvent(t, conn)
	initAgent(t, conn)

	send(t, conn, protocol.MsgQuery, protocol.QueryContent{Text: "first"})
	waitFor(t, conn, protocol.EventProcessing)

	send(t, conn, protocol.MsgQuery, protocol.QueryContent{Text: "second"})
	ev := waitFor(t, conn, protocol.EventError)
	require.Equal(t, "A query is already being processed", ev.Content["message"])

	close(release)
	waitFor(t, conn, protocol.EventStreamComplete)
}

func TestCancelWithoutAgent(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	conn := env.dial(t, "")
	readEvent(t, conn)

	send(t, conn, protocol.MsgCancel, map[string]any{})
	ev := waitFor(t, conn, protocol.EventError)
	require.Equal(t, "No active agent for this session", ev.Content["message"])
}

func TestPing(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	conn := env.dial(t, "")
	readEvent(t, conn)

	send(t, conn, protocol.MsgPing, map[string]any{})
	waitFor(t, conn, protocol.EventPong)
}

func TestHelpCommand(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	conn := env.dial(t, "")
	readEvent(t, conn)
	initAgent(t, conn)

	send(t, conn, protocol.MsgQuery, protocol.QueryContent{Text: "/help"})
	ev := waitFor(t, conn, protocol.EventSystem)
	msg, _ := ev.Content["message"].(string)
	require.Contains(t, msg, "/compact")
	require.Contains(t, msg, "/help")
	waitFor(t, conn, protocol.EventStreamComplete)
}

func TestUnknownCommand(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	conn := env.dial(t, "")
	readEvent(t, conn)
	initAgent(t, conn)

	send(t, conn, protocol.MsgQuery, protocol.QueryContent{Text: "/frobnicate"})
	ev := waitFor(t, conn, protocol.EventError)
	require.Equal(t, "Unknown command: /frobnicate. Use /help to see available commands.", ev.Content["message"])
	waitFor(t, conn, protocol.EventStreamComplete)
}

func TestCompactEmptyHistory(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	conn := env.dial(t, "")
	readEvent(t, conn)
	initAgent(t, conn)

	send(t, conn, protocol.MsgQuery, protocol.QueryContent{Text: "/compact"})
	ev := waitFor(t, conn, protocol.EventError)
	require.Equal(t, "No conversation history available to compact.", ev.Content["message"])
	waitFor(t, conn, protocol.EventStreamComplete)
}

func TestCompactAfterQuery(t *testing.T) {
	env := newTestEnv(t, &stubProvider{text: "summary of everything"})
	conn := env.dial(t, "")
	readEvent(t, conn)
	initAgent(t, conn)

	send(t, conn, protocol.MsgQuery, protocol.QueryContent{Text: "do a thing"})
	waitFor(t, conn, protocol.EventStreamComplete)

	send(t, conn, protocol.MsgQuery, protocol.QueryContent{Text: "/compact"})
	for {
		ev := readEvent(t, conn)
		if ev.Type != protocol.EventSystem {
			continue
		}
		msg, _ := ev.Content["message"].(string)
		require.Contains(t, msg, "Conversation compacted successfully")
		require.Contains(t, ev.Content["summary"], "summary of everything")
		break
	}
	waitFor(t, conn, protocol.EventAgentResponse)
}

func TestEditQuery(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	sessionID := uuid.New()
	conn := env.dial(t, "?session_uuid="+sessionID.String())
	readEvent(t, conn)
	initAgent(t, conn)

	send(t, conn, protocol.MsgQuery, protocol.QueryContent{Text: "first attempt"})
	waitFor(t, conn, protocol.EventStreamComplete)

	before, err := env.db.EventsForSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	send(t, conn, protocol.MsgEditQuery, protocol.QueryContent{Text: "second attempt"})

	var sawCleared, sawEditing bool
	for {
		ev := readEvent(t, conn)
		if ev.Type == protocol.EventSystem {
			switch ev.Content["message"] {
			case "Session history cleared from last event to last user message":
				sawCleared = true
			case "Query editing mode activated":
				sawEditing = true
			}
		}
		if ev.Type == protocol.EventStreamComplete {
			break
		}
	}
	require.True(t, sawCleared)
	require.True(t, sawEditing)

	// The first attempt's tail is gone; the second attempt's events are
	// the stored stream now.
	after, err := env.db.EventsForSession(context.Background(), sessionID)
	require.NoError(t, err)
	var texts []string
	for _, ev := range after {
		if ev.Type == protocol.EventUserMessage {
			var payload struct {
				Text string `json:"text"`
			}
			require.NoError(t, json.Unmarshal(ev.Payload, &payload))
			texts = append(texts, payload.Text)
		}
	}
	require.Equal(t, []string{"second attempt"}, texts)
}

func TestEditQueryWithoutAgent(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	conn := env.dial(t, "")
	readEvent(t, conn)

	send(t, conn, protocol.MsgEditQuery, protocol.QueryContent{Text: "x"})
	ev := waitFor(t, conn, protocol.EventError)
	require.Equal(t, "No active agent for this session", ev.Content["message"])
}

func TestSessionNameTruncated(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	sessionID := uuid.New()
	conn := env.dial(t, "?session_uuid="+sessionID.String())
	readEvent(t, conn)
	initAgent(t, conn)

	long := strings.Repeat("x", 300)
	send(t, conn, protocol.MsgQuery, protocol.QueryContent{Text: long})
	waitFor(t, conn, protocol.EventStreamComplete)

	sess, err := env.db.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, sess.Name, sessionNameLimit)
}

func TestListSessionsEndpoint(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	sessionID := uuid.New()
	conn := env.dial(t, "?session_uuid="+sessionID.String()+"&device_id=tab-9")
	readEvent(t, conn)
	initAgent(t, conn)

	resp, err := env.ts.Client().Get(env.ts.URL + "/api/sessions?device_id=tab-9")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		Sessions []store.Session `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Sessions, 1)
	require.Equal(t, sessionID, body.Sessions[0].ID)
}
