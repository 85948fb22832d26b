// Package agent runs the think-act-observe loop: call the model,
// dispatch at most one tool per turn, feed the result back, repeat
// until a termination tool fires or the turn budget runs out.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/agentd/internal/bus"
	"github.com/nextlevelbuilder/agentd/internal/contextmgr"
	"github.com/nextlevelbuilder/agentd/internal/history"
	"github.com/nextlevelbuilder/agentd/internal/providers"
	"github.com/nextlevelbuilder/agentd/internal/tools"
	"github.com/nextlevelbuilder/agentd/pkg/protocol"
)

var (
	// ErrCancelled reports a cooperative stop requested by the user.
	ErrCancelled = errors.New("query cancelled by user")
	// ErrMaxTurns reports turn-budget exhaustion without termination.
	ErrMaxTurns = errors.New("max turns reached")
)

const (
	interruptedToolOutput = "Tool execution was interrupted by user"
	multiToolCallOutput   = "Error: only one tool call per assistant turn is supported. Issue a single tool call and wait for its result."
)

// Loop is one agent instance bound to a session's history and tools.
type Loop struct {
	provider   providers.Provider
	history    *history.History
	contextMgr *contextmgr.Manager
	registry   *tools.Registry
	signal     *tools.StopSignal
	events     *bus.Queue
	logger     *slog.Logger
	tracer     trace.Tracer

	systemPrompt    string
	maxTurns        int
	maxOutputTokens int
	thinkingTokens  int

	cancelled  atomic.Bool
	toolParams []providers.ToolParam
}

// LoopConfig wires a Loop. Registry names are already unique by
// construction; the params are cached once here.
type LoopConfig struct {
	Provider   providers.Provider
	History    *history.History
	ContextMgr *contextmgr.Manager
	Registry   *tools.Registry
	Signal     *tools.StopSignal
	Events     *bus.Queue
	Logger     *slog.Logger

	SystemPrompt    string
	MaxTurns        int
	MaxOutputTokens int
	ThinkingTokens  int
}

func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Provider == nil {
		return nil, errors.New("agent loop requires a provider")
	}
	if cfg.Registry == nil || cfg.Signal == nil {
		return nil, errors.New("agent loop requires a tool registry and stop signal")
	}
	if cfg.History == nil {
		cfg.History = history.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 200
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 32768
	}
	return &Loop{
		provider:        cfg.Provider,
		history:         cfg.History,
		contextMgr:      cfg.ContextMgr,
		registry:        cfg.Registry,
		signal:          cfg.Signal,
		events:          cfg.Events,
		logger:          cfg.Logger,
		tracer:          otel.Tracer("agentd/agent"),
		systemPrompt:    cfg.SystemPrompt,
		maxTurns:        cfg.MaxTurns,
		maxOutputTokens: cfg.MaxOutputTokens,
		thinkingTokens:  cfg.ThinkingTokens,
		toolParams:      cfg.Registry.Params(),
	}, nil
}

// Cancel requests a cooperative stop. The loop observes it before the
// next model call, before tool dispatch, and after each tool result.
func (l *Loop) Cancel() { l.cancelled.Store(true) }

// Cancelled reports whether a stop has been requested.
func (l *Loop) Cancelled() bool { return l.cancelled.Load() }

// History exposes the loop's conversation for the orchestrator.
func (l *Loop) History() *history.History { return l.history }

// Run executes one query to completion. The returned string is the
// final answer; ErrCancelled and ErrMaxTurns are the expected
// non-success outcomes.
func (l *Loop) Run(ctx context.Context, text string, files []string, resume bool) (string, error) {
	l.cancelled.Store(false)
	l.signal.Reset()

	if !resume {
		if err := l.history.AddUserPrompt(promptWithFiles(text, files)); err != nil {
			return "", fmt.Errorf("add user prompt: %w", err)
		}
	}

	for turn := 0; turn < l.maxTurns; turn++ {
		if l.cancelled.Load() {
			return "", ErrCancelled
		}

		turns := l.history.Turns()
		if l.contextMgr != nil && l.contextMgr.ShouldTruncate(turns) {
			turns = l.contextMgr.ApplyTruncation(ctx, turns)
			l.history.SetTurns(turns)
		}

		resp, err := l.generate(ctx, turns, turn)
		if err != nil {
			return "", fmt.Errorf("llm call: %w", err)
		}
		blocks := resp.Blocks
		if len(blocks) == 0 {
			blocks = []providers.Block{providers.TextResult("No response from model")}
		}
		l.history.AddAssistantTurn(blocks)
		l.emitAssistantBlocks(blocks)

		pending := l.history.PendingToolCalls()
		if len(pending) > 1 {
			// Invariant violation by the model: resolve every call with
			// an error result and let it retry the turn.
			l.logger.Warn("agent.multi_tool_call", "count", len(pending))
			results := make([]providers.Block, 0, len(pending))
			for _, tc := range pending {
				results = append(results, providers.ToolResultBlock(tc.ToolCallID, tc.ToolName, multiToolCallOutput))
			}
			if err := l.history.AddToolResults(results); err != nil {
				return "", err
			}
			continue
		}

		if len(pending) == 0 {
			final := lastText(blocks)
			l.emit(protocol.EventAgentResponse, map[string]any{"text": final})
			return final, nil
		}

		tc := pending[0]
		l.emit(protocol.EventToolCall, map[string]any{
			"tool_call_id": tc.ToolCallID,
			"tool_name":    tc.ToolName,
			"tool_input":   tc.ToolInput,
		})

		if l.cancelled.Load() {
			if err := l.resolveInterrupted(pending); err != nil {
				return "", err
			}
			return "", ErrCancelled
		}

		result := l.dispatch(ctx, tc)
		if err := l.history.AddToolResults([]providers.Block{
			providers.ToolResultBlock(tc.ToolCallID, tc.ToolName, result.Output),
		}); err != nil {
			return "", err
		}
		l.emit(protocol.EventToolResult, map[string]any{
			"tool_call_id": tc.ToolCallID,
			"tool_name":    tc.ToolName,
			"result":       result.Output,
			"message":      result.Message,
		})

		if l.signal.ShouldStop() {
			final := l.signal.FinalAnswer()
			l.emit(protocol.EventAgentResponse, map[string]any{"text": final})
			return final, nil
		}
		if l.cancelled.Load() {
			return "", ErrCancelled
		}
	}
	return "", ErrMaxTurns
}

func (l *Loop) generate(ctx context.Context, turns [][]providers.Block, turn int) (*providers.GenerateResponse, error) {
	ctx, span := l.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.model", l.provider.Model()),
		attribute.Int("agent.turn", turn),
	))
	defer span.End()

	resp, err := l.provider.Generate(ctx, providers.GenerateRequest{
		Messages:       turns,
		SystemPrompt:   l.systemPrompt,
		MaxTokens:      l.maxOutputTokens,
		Tools:          l.toolParams,
		ThinkingTokens: l.thinkingTokens,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("llm.input_tokens", resp.Usage.InputTokens),
		attribute.Int("llm.output_tokens", resp.Usage.OutputTokens),
	)
	return resp, nil
}

// dispatch runs one tool call. Unknown tools and tool failures are
// reported in the result so the model can react.
func (l *Loop) dispatch(ctx context.Context, tc providers.Block) *tools.Result {
	ctx, span := l.tracer.Start(ctx, "tool.dispatch", trace.WithAttributes(
		attribute.String("tool.name", tc.ToolName),
	))
	defer span.End()

	tool, ok := l.registry.Get(tc.ToolName)
	if !ok {
		return tools.ErrorResult(fmt.Sprintf("Tool with name %s not found", tc.ToolName))
	}
	l.logger.Debug("agent.tool", "name", tc.ToolName)
	result := tool.Execute(ctx, tc.ToolInput)
	span.SetAttributes(attribute.Bool("tool.is_error", result.IsError))
	return result
}

func (l *Loop) resolveInterrupted(pending []providers.Block) error {
	results := make([]providers.Block, 0, len(pending))
	for _, tc := range pending {
		results = append(results, providers.ToolResultBlock(tc.ToolCallID, tc.ToolName, interruptedToolOutput))
	}
	return l.history.AddToolResults(results)
}

func (l *Loop) emitAssistantBlocks(blocks []providers.Block) {
	for _, b := range blocks {
		switch b.Type {
		case providers.BlockThinking:
			l.emit(protocol.EventThinking, map[string]any{"text": b.Text})
		case providers.BlockTextResult:
			l.emit(protocol.EventAssistantText, map[string]any{"text": b.Text})
		}
	}
}

func (l *Loop) emit(kind string, payload map[string]any) {
	if l.events != nil {
		l.events.Push(bus.New(kind, payload))
	}
}

func lastText(blocks []providers.Block) string {
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Type == providers.BlockTextResult {
			return blocks[i].Text
		}
	}
	return ""
}

func promptWithFiles(text string, files []string) string {
	if len(files) == 0 {
		return text
	}
	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n\nAttached files:\n")
	for _, f := range files {
		sb.WriteString(" - ")
		sb.WriteString(f)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// LastMessageToUser returns the text of the most recent message_user
// tool call, or "" when the agent never messaged the user. The
// reviewer flow treats this as the agent's reported result.
func LastMessageToUser(h *history.History) string {
	turns := h.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		for j := len(turns[i]) - 1; j >= 0; j-- {
			b := turns[i][j]
			if b.Type == providers.BlockToolCall && b.ToolName == "message_user" {
				if text, ok := b.ToolInput["text"].(string); ok {
					return text
				}
			}
		}
	}
	return ""
}
