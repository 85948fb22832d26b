package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/agentd/internal/agent"
	"github.com/nextlevelbuilder/agentd/internal/bus"
	"github.com/nextlevelbuilder/agentd/internal/contextmgr"
	"github.com/nextlevelbuilder/agentd/internal/fileops"
	"github.com/nextlevelbuilder/agentd/internal/filestore"
	"github.com/nextlevelbuilder/agentd/internal/history"
	"github.com/nextlevelbuilder/agentd/internal/providers"
	"github.com/nextlevelbuilder/agentd/internal/sandbox"
	"github.com/nextlevelbuilder/agentd/internal/store"
	"github.com/nextlevelbuilder/agentd/internal/toolops"
	"github.com/nextlevelbuilder/agentd/internal/tools"
	"github.com/nextlevelbuilder/agentd/internal/workspace"
	"github.com/nextlevelbuilder/agentd/pkg/protocol"
)

const sessionNameLimit = 100

const helpText = `## Available Commands

- ` + "`/compact`" + ` - Summarize and compress the current conversation history
- ` + "`/help`" + ` - Show this help message

### Command Usage
- ` + "`/compact`" + `: Analyzes the entire conversation history and creates a detailed summary, then clears the history and starts fresh with the summary as context. This helps when approaching token limits or when you want to preserve context while starting fresh.
`

const compactSeed = "This session is being continued from a previous conversation that ran out of context. The conversation is summarized below:\n\n%s"

const reviewFeedbackPrompt = `Based on the reviewer's analysis, here is the feedback for improvement:

%s

Please review this feedback and implement the suggested improvements to better complete the original task: "%s"
`

// ChatSession owns one websocket connection and everything behind it:
// the agent loop, the workspace, the sandbox, and the event stream.
type ChatSession struct {
	server    *Server
	conn      *websocket.Conn
	writeMu   sync.Mutex
	sessionID uuid.UUID
	deviceID  string
	resumed   bool
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	loop         *agent.Loop
	reviewer     *agent.Reviewer
	contextMgr   *contextmgr.Manager
	ws           *workspace.Manager
	sb           sandbox.Sandbox
	events       *bus.Queue
	consumerDone chan struct{}
	running      bool
	firstMessage bool

	taskWG sync.WaitGroup
}

func newChatSession(server *Server, conn *websocket.Conn, sessionID uuid.UUID, deviceID string, resumed bool) *ChatSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &ChatSession{
		server:       server,
		conn:         conn,
		sessionID:    sessionID,
		deviceID:     deviceID,
		resumed:      resumed,
		logger:       server.logger.With("session_id", sessionID.String()),
		ctx:          ctx,
		cancel:       cancel,
		firstMessage: true,
	}
}

// run drives the session until the client disconnects.
func (s *ChatSession) run(ctx context.Context) {
	s.sendDirect(protocol.EventConnectionEstablished, map[string]any{
		"message":        "Connected to Agent WebSocket Server",
		"workspace_path": s.workspacePath(),
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			break
		}
		s.handleMessage(data)
	}

	s.shutdown()
}

func (s *ChatSession) shutdown() {
	s.mu.Lock()
	loop := s.loop
	reviewer := s.reviewer
	events := s.events
	done := s.consumerDone
	s.mu.Unlock()

	if loop != nil {
		loop.Cancel()
	}
	if reviewer != nil {
		reviewer.Cancel()
	}
	s.taskWG.Wait()
	if loop != nil {
		s.saveSnapshot(loop)
	}
	if events != nil {
		events.Close()
		<-done
	}
	s.cancel()
	s.conn.Close()
}

func (s *ChatSession) workspacePath() string {
	abs, err := filepath.Abs(s.server.cfg.WorkspaceRoot)
	if err != nil {
		abs = s.server.cfg.WorkspaceRoot
	}
	return filepath.Join(abs, s.sessionID.String())
}

func (s *ChatSession) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError("Invalid JSON format")
		return
	}

	switch msg.Type {
	case protocol.MsgInitAgent:
		s.handleInitAgent(msg.Content)
	case protocol.MsgQuery:
		s.handleQuery(msg.Content)
	case protocol.MsgEditQuery:
		s.handleEditQuery(msg.Content)
	case protocol.MsgCancel:
		s.handleCancel()
	case protocol.MsgEnhancePrompt:
		s.handleEnhancePrompt(msg.Content)
	case protocol.MsgWorkspaceInfo:
		s.sendDirect(protocol.EventWorkspaceInfo, map[string]any{"path": s.workspacePath()})
	case protocol.MsgPing:
		s.sendDirect(protocol.EventPong, map[string]any{})
	case protocol.MsgReviewResult:
		s.handleReviewResult(msg.Content)
	default:
		s.sendError(fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (s *ChatSession) handleInitAgent(raw json.RawMessage) {
	var content protocol.InitAgentContent
	if err := json.Unmarshal(raw, &content); err != nil {
		s.sendError(fmt.Sprintf("Invalid init_agent content: %s", err))
		return
	}
	if err := s.initAgent(content); err != nil {
		s.sendError(fmt.Sprintf("Error initializing agent: %s", err))
		return
	}

	msg := "Agent initialized"
	if content.ToolArgs.EnableReviewer {
		msg += " with reviewer"
	}
	s.sendDirect(protocol.EventAgentInitialized, map[string]any{"message": msg})
}

func (s *ChatSession) initAgent(content protocol.InitAgentContent) error {
	cfg := s.server.cfg

	_, spec, err := cfg.ResolveModel(content.ModelName)
	if err != nil {
		return fmt.Errorf("LLM config not found for model: %s", content.ModelName)
	}
	thinkingTokens := spec.ThinkingTokens
	if content.ThinkingTokens != nil {
		thinkingTokens = *content.ThinkingTokens
	}

	provider, err := s.server.newProvider(providers.Options{
		APIType:    spec.APIType,
		APIKey:     cfg.APIKeyFor(spec),
		Model:      spec.Model,
		BaseURL:    spec.BaseURL,
		MaxRetries: spec.MaxRetries,
	})
	if err != nil {
		return err
	}

	local := cfg.Sandbox.Mode == "" || cfg.Sandbox.Mode == "local"
	wsMgr, err := workspace.New(cfg.WorkspaceRoot, s.sessionID.String(), local)
	if err != nil {
		return err
	}

	if _, err := s.server.db.GetSession(s.ctx, s.sessionID); err == nil {
		s.logger.Info("session.found", "workspace", wsMgr.Root)
	} else if errors.Is(err, store.ErrSessionNotFound) {
		if err := s.server.db.CreateSession(s.ctx, store.Session{
			ID:           s.sessionID,
			WorkspaceDir: wsMgr.Root,
			CreatedAt:    time.Now().UTC(),
			DeviceID:     s.deviceID,
		}); err != nil {
			return err
		}
		s.logger.Info("session.created", "workspace", wsMgr.Root)
	} else {
		return err
	}

	mode := cfg.Sandbox.Mode
	if mode == "" {
		mode = "local"
	}
	sbCfg := cfg.Sandbox
	sbCfg.Mode = mode
	sb, err := sandbox.New(s.sessionID.String(), sbCfg)
	if err != nil {
		return err
	}
	if s.resumed {
		err = sb.Connect(s.ctx)
	} else {
		err = sb.Create(s.ctx)
	}
	if err != nil {
		return err
	}
	if id, idErr := sb.ID(); idErr == nil {
		if err := s.server.db.UpdateSessionSandbox(s.ctx, s.sessionID, id); err != nil {
			s.logger.Warn("session.sandbox_update_failed", "error", err)
		}
	}

	var (
		term  toolops.TerminalClient
		files toolops.FileClient
	)
	if local {
		term = toolops.NewLocalTerminalClient(wsMgr.Root, s.logger)
		var fileOpts []fileops.Option
		if s.server.cfg.IgnoreIndentation {
			fileOpts = append(fileOpts, fileops.WithIgnoreIndentation())
		}
		files = toolops.NewLocalFileClient(wsMgr.Root, fileOpts...)
	} else {
		hostURL, err := sb.HostURL()
		if err != nil {
			return err
		}
		term = toolops.NewRemoteTerminalClient(hostURL)
		files = toolops.NewRemoteFileClient(hostURL)
	}

	events := bus.NewQueue()
	done := make(chan struct{})
	go s.consumeEvents(events, done)

	registry, signal, err := tools.BuildCatalog(tools.CatalogConfig{
		Terminal:  term,
		Files:     files,
		Workspace: wsMgr,
		Events:    events,
		Logger:    s.logger,
		ToolArgs:  content.ToolArgs,
	})
	if err != nil {
		return err
	}

	ctxMgr := contextmgr.NewManager(provider, contextmgr.NewTokenCounter(), s.logger)

	hist := history.New()
	if data, err := s.server.snapshots.Load(s.sessionID.String()); err == nil {
		if err := json.Unmarshal(data, hist); err != nil {
			s.logger.Warn("session.snapshot_corrupt", "error", err)
		} else {
			s.logger.Info("session.history_restored", "turns", hist.Len())
		}
	} else if errors.Is(err, filestore.ErrNotFound) {
		s.logger.Info("session.no_history")
	} else {
		s.logger.Warn("session.snapshot_load_failed", "error", err)
	}

	loop, err := agent.NewLoop(agent.LoopConfig{
		Provider:        provider,
		History:         hist,
		ContextMgr:      ctxMgr,
		Registry:        registry,
		Signal:          signal,
		Events:          events,
		Logger:          s.logger,
		SystemPrompt:    agent.SystemPrompt(wsMgr.RootPath()),
		MaxTurns:        cfg.MaxTurns,
		MaxOutputTokens: cfg.MaxOutputTokens,
		ThinkingTokens:  thinkingTokens,
	})
	if err != nil {
		return err
	}

	var reviewer *agent.Reviewer
	if content.ToolArgs.EnableReviewer {
		revRegistry, revSignal, err := tools.BuildCatalog(tools.CatalogConfig{
			Terminal:  term,
			Files:     files,
			Workspace: wsMgr,
			Events:    events,
			Logger:    s.logger,
			ToolArgs:  content.ToolArgs,
			Reviewer:  true,
		})
		if err != nil {
			return err
		}
		reviewer, err = agent.NewReviewer(agent.LoopConfig{
			Provider:        provider,
			Registry:        revRegistry,
			Signal:          revSignal,
			Events:          events,
			Logger:          s.logger,
			MaxTurns:        cfg.MaxTurns,
			MaxOutputTokens: cfg.MaxOutputTokens,
		})
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.loop = loop
	s.reviewer = reviewer
	s.contextMgr = ctxMgr
	s.ws = wsMgr
	s.sb = sb
	s.events = events
	s.consumerDone = done
	s.mu.Unlock()
	return nil
}

// consumeEvents is the single websocket writer for agent-side events.
// Everything that flows through the queue is also persisted, so a
// reconnecting client can replay the session.
func (s *ChatSession) consumeEvents(events *bus.Queue, done chan struct{}) {
	defer close(done)
	for {
		ev, ok := events.Pop()
		if !ok {
			return
		}
		s.persistEvent(ev)
		s.sendFrame(protocol.Event{
			ID:        ev.ID,
			Type:      ev.Kind,
			Content:   ev.Payload,
			Timestamp: ev.Timestamp.Format(time.RFC3339Nano),
		})
	}
}

func (s *ChatSession) persistEvent(ev bus.Event) {
	id, err := uuid.Parse(ev.ID)
	if err != nil {
		id = uuid.New()
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		payload = []byte("{}")
	}
	if err := s.server.db.SaveEvent(s.ctx, store.Event{
		ID:        id,
		SessionID: s.sessionID,
		Timestamp: ev.Timestamp,
		Type:      ev.Kind,
		Payload:   payload,
	}); err != nil {
		s.logger.Warn("session.event_persist_failed", "type", ev.Kind, "error", err)
	}
}

func (s *ChatSession) handleQuery(raw json.RawMessage) {
	var content protocol.QueryContent
	if err := json.Unmarshal(raw, &content); err != nil {
		s.sendError(fmt.Sprintf("Invalid query content: %s", err))
		return
	}

	text := strings.TrimSpace(content.Text)
	if s.firstMessage && text != "" {
		name := text
		if runes := []rune(name); len(runes) > sessionNameLimit {
			name = string(runes[:sessionNameLimit])
		}
		if err := s.server.db.UpdateSessionName(s.ctx, s.sessionID, name); err != nil {
			s.logger.Warn("session.name_update_failed", "error", err)
		}
		s.firstMessage = false
	}

	if strings.HasPrefix(text, "/") {
		s.handleSlashCommand(text)
		return
	}

	if !s.tryStartTask() {
		s.sendError("A query is already being processed")
		return
	}
	s.sendDirect(protocol.EventProcessing, map[string]any{"message": "Processing your request..."})

	go s.runQuery(content.Text, content.Resume, content.Files)
}

func (s *ChatSession) handleEditQuery(raw json.RawMessage) {
	var content protocol.QueryContent
	if err := json.Unmarshal(raw, &content); err != nil {
		s.sendError(fmt.Sprintf("Invalid edit_query content: %s", err))
		return
	}

	s.mu.Lock()
	loop := s.loop
	s.mu.Unlock()
	if loop == nil {
		s.sendError("No active agent for this session")
		return
	}

	loop.Cancel()
	s.taskWG.Wait()
	loop.History().ClearFromLastUserPrompt()

	if _, err := s.server.db.DeleteEventsFromLastUserMessage(s.ctx, s.sessionID); err != nil {
		s.logger.Error("session.event_delete_failed", "error", err)
		s.sendError(fmt.Sprintf("Error clearing history: %s", err))
	} else {
		s.sendDirect(protocol.EventSystem, map[string]any{
			"message": "Session history cleared from last event to last user message",
		})
	}

	s.sendDirect(protocol.EventSystem, map[string]any{"message": "Query editing mode activated"})

	if !s.tryStartTask() {
		s.sendError("A query is already being processed")
		return
	}
	s.sendDirect(protocol.EventProcessing, map[string]any{"message": "Processing your request..."})

	go s.runQuery(content.Text, content.Resume, content.Files)
}

// runQuery executes one agent run in the background. The user_message
// event goes through the queue first so it lands in the persisted
// stream ahead of the agent's events.
func (s *ChatSession) runQuery(text string, resume bool, files []string) {
	defer s.endTask()

	s.mu.Lock()
	loop := s.loop
	events := s.events
	s.mu.Unlock()
	if loop == nil {
		s.sendError("Agent not initialized for this session")
		return
	}

	events.Push(bus.New(protocol.EventUserMessage, map[string]any{"text": text}))

	_, err := loop.Run(s.ctx, text, files, resume)
	if err != nil && !errors.Is(err, agent.ErrCancelled) {
		s.logger.Error("agent.run_failed", "error", err)
		s.sendError(fmt.Sprintf("Error running agent: %s", err))
	}

	s.saveSnapshot(loop)
	s.sendDirect(protocol.EventStreamComplete, map[string]any{})
}

func (s *ChatSession) saveSnapshot(loop *agent.Loop) {
	data, err := json.Marshal(loop.History())
	if err != nil {
		s.logger.Warn("session.snapshot_marshal_failed", "error", err)
		return
	}
	if err := s.server.snapshots.Save(s.sessionID.String(), data); err != nil {
		s.logger.Warn("session.snapshot_save_failed", "error", err)
	}
}

func (s *ChatSession) handleCancel() {
	s.mu.Lock()
	loop := s.loop
	s.mu.Unlock()
	if loop == nil {
		s.sendError("No active agent for this session")
		return
	}
	loop.Cancel()
	s.sendDirect(protocol.EventSystem, map[string]any{"message": "Query cancelled"})
}

func (s *ChatSession) handleSlashCommand(command string) {
	parts := strings.Fields(command)
	switch strings.ToLower(parts[0]) {
	case "/compact":
		s.handleCompact()
	case "/help":
		s.sendDirect(protocol.EventSystem, map[string]any{"message": helpText})
		s.sendDirect(protocol.EventStreamComplete, map[string]any{})
	default:
		s.sendError(fmt.Sprintf("Unknown command: %s. Use /help to see available commands.", parts[0]))
		s.sendDirect(protocol.EventStreamComplete, map[string]any{})
	}
}

func (s *ChatSession) handleCompact() {
	s.mu.Lock()
	loop := s.loop
	ctxMgr := s.contextMgr
	s.mu.Unlock()

	if loop == nil || loop.History().Len() == 0 {
		s.sendError("No conversation history available to compact.")
		s.sendDirect(protocol.EventStreamComplete, map[string]any{})
		return
	}

	s.sendDirect(protocol.EventProcessing, map[string]any{"message": "Compacting conversation history..."})

	go func() {
		summary := ctxMgr.CompleteSummary(s.ctx, loop.History().Turns())
		compactSummary := fmt.Sprintf(`## Conversation Summary

%s

---

*This conversation summary was generated by the /compact command to help preserve context.*
`, summary)

		hist := loop.History()
		hist.Clear()
		if err := hist.AddUserPrompt(fmt.Sprintf(compactSeed, summary)); err != nil {
			s.sendError(fmt.Sprintf("Error compacting conversation: %s", err))
			return
		}

		s.sendDirect(protocol.EventSystem, map[string]any{
			"message": "Conversation compacted successfully. History has been summarized and condensed. This is the summarize " + compactSummary,
			"summary": compactSummary,
		})
		s.sendDirect(protocol.EventAgentResponse, map[string]any{})
	}()
}

func (s *ChatSession) handleEnhancePrompt(raw json.RawMessage) {
	var content protocol.EnhancePromptContent
	if err := json.Unmarshal(raw, &content); err != nil {
		s.sendError(fmt.Sprintf("Invalid enhance_prompt content: %s", err))
		return
	}

	cfg := s.server.cfg
	_, spec, err := cfg.ResolveModel(content.ModelName)
	if err != nil {
		s.sendError(fmt.Sprintf("LLM config not found for model: %s", content.ModelName))
		return
	}
	provider, err := s.server.newProvider(providers.Options{
		APIType:    spec.APIType,
		APIKey:     cfg.APIKeyFor(spec),
		Model:      spec.Model,
		BaseURL:    spec.BaseURL,
		MaxRetries: spec.MaxRetries,
	})
	if err != nil {
		s.sendError(err.Error())
		return
	}

	go func() {
		result, err := agent.EnhancePrompt(s.ctx, provider, content.Text, content.Files)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		s.sendDirect(protocol.EventPromptGenerated, map[string]any{
			"result":           result,
			"original_request": content.Text,
		})
	}()
}

func (s *ChatSession) handleReviewResult(raw json.RawMessage) {
	s.mu.Lock()
	loop := s.loop
	reviewer := s.reviewer
	ws := s.ws
	s.mu.Unlock()
	if loop == nil {
		s.sendError("No active agent for this session")
		return
	}

	var content protocol.ReviewResultContent
	if err := json.Unmarshal(raw, &content); err != nil {
		s.sendError(fmt.Sprintf("Error handling review request: %s", err))
		return
	}
	if content.UserInput == "" {
		s.sendError("No user query found to review")
		return
	}

	finalResult := agent.LastMessageToUser(loop.History())
	if finalResult == "" {
		s.logger.Warn("reviewer.no_result")
		return
	}

	s.sendDirect(protocol.EventSystem, map[string]any{
		"type":    "reviewer_agent",
		"message": "Reviewer agent is analyzing the output...",
	})

	go s.runReviewer(reviewer, loop, ws, content.UserInput, finalResult)
}

func (s *ChatSession) runReviewer(reviewer *agent.Reviewer, loop *agent.Loop, ws *workspace.Manager, task, result string) {
	if reviewer == nil {
		s.sendError("Error running reviewer: reviewer is not enabled for this session")
		return
	}

	feedback, err := reviewer.Review(s.ctx, task, result, ws.RootPath())
	if err != nil {
		s.logger.Error("reviewer.run_failed", "error", err)
		s.sendError(fmt.Sprintf("Error running reviewer: %s", err))
		return
	}
	if strings.TrimSpace(feedback) == "" {
		return
	}

	s.sendDirect(protocol.EventSystem, map[string]any{
		"type":    "reviewer_agent",
		"message": "Applying reviewer feedback...",
	})

	if !s.tryStartTask() {
		s.sendError("A query is already being processed")
		return
	}
	defer s.endTask()

	prompt := fmt.Sprintf(reviewFeedbackPrompt, feedback, task)
	if _, err := loop.Run(s.ctx, prompt, nil, false); err != nil && !errors.Is(err, agent.ErrCancelled) {
		s.sendError(fmt.Sprintf("Error running agent: %s", err))
	}
	s.saveSnapshot(loop)
}

func (s *ChatSession) tryStartTask() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.taskWG.Add(1)
	return true
}

func (s *ChatSession) endTask() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.taskWG.Done()
}

// sendDirect sends a control event straight to the client without
// persisting it.
func (s *ChatSession) sendDirect(kind string, payload map[string]any) {
	s.sendFrame(protocol.Event{
		ID:        uuid.NewString(),
		Type:      kind,
		Content:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *ChatSession) sendError(message string) {
	s.sendDirect(protocol.EventError, map[string]any{"message": message})
}

func (s *ChatSession) sendFrame(ev protocol.Event) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(ev); err != nil {
		s.logger.Debug("session.send_failed", "type", ev.Type, "error", err)
	}
}
