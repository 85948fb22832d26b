package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/agentd/internal/bus"
	"github.com/nextlevelbuilder/agentd/internal/providers"
	"github.com/nextlevelbuilder/agentd/internal/tools"
	"github.com/nextlevelbuilder/agentd/pkg/protocol"
)

// scriptedProvider returns canned turns in order, one per Generate call.
type scriptedProvider struct {
	turns [][]providers.Block
	calls int

	// onCall runs before returning each response (e.g. to inject cancel).
	onCall func(call int)
}

func (p *scriptedProvider) Generate(ctx context.Context, req providers.GenerateRequest) (*providers.GenerateResponse, error) {
	call := p.calls
	p.calls++
	if p.onCall != nil {
		p.onCall(call)
	}
	if call >= len(p.turns) {
		return nil, errors.New("script exhausted")
	}
	return &providers.GenerateResponse{Blocks: p.turns[call]}, nil
}

func (p *scriptedProvider) Model() string { return "scripted" }
func (p *scriptedProvider) Name() string  { return "scripted" }

type echoTool struct{}

func (echoTool) Name() string                { return "echo" }
func (echoTool) Description() string         { return "Echo the given text" }
func (echoTool) InputSchema() map[string]any { return map[string]any{"type": "object"} }
func (echoTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	text, _ := args["text"].(string)
	return tools.NewResult(text)
}

func newTestLoop(t *testing.T, p providers.Provider, maxTurns int) (*Loop, *bus.Queue) {
	t.Helper()
	reg := tools.NewRegistry()
	signal := &tools.StopSignal{}
	reg.MustRegister(echoTool{})
	reg.MustRegister(tools.NewReturnControlToUserTool(signal))

	events := bus.NewQueue()
	loop, err := NewLoop(LoopConfig{
		Provider: p,
		Registry: reg,
		Signal:   signal,
		Events:   events,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxTurns: maxTurns,
	})
	require.NoError(t, err)
	return loop, events
}

func drainKinds(q *bus.Queue) []string {
	var kinds []string
	for q.Len() > 0 {
		ev, ok := q.Pop()
		if !ok {
			break
		}
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func TestLoopEchoScenario(t *testing.T) {
	p := &scriptedProvider{turns: [][]providers.Block{
		{providers.ToolCallBlock("tc-1", "echo", map[string]any{"text": "hi"})},
		{providers.TextResult("done")},
	}}
	loop, events := newTestLoop(t, p, 10)

	final, err := loop.Run(context.Background(), "please echo hi", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "done", final)
	assert.Equal(t, 2, p.calls)

	kinds := drainKinds(events)
	assert.Equal(t, []string{
		protocol.EventToolCall,
		protocol.EventToolResult,
		protocol.EventAssistantText,
		protocol.EventAgentResponse,
	}, kinds)

	// Tool result is paired in history.
	turns := loop.History().Turns()
	require.Len(t, turns, 4) // user, assistant(tool_call), tool_result, assistant(text)
	assert.Equal(t, "hi", turns[2][0].ToolOutput)
}

func TestLoopCancelBetweenTurns(t *testing.T) {
	var loop *Loop
	p := &scriptedProvider{
		turns: [][]providers.Block{
			{providers.ToolCallBlock("tc-1", "echo", map[string]any{"text": "hi"})},
			{providers.TextResult("never reached")},
		},
	}
	p.onCall = func(call int) {
		if call == 0 {
			// Cancel lands while the first turn is in flight.
			loop.Cancel()
		}
	}
	loop, _ = newTestLoop(t, p, 10)

	_, err := loop.Run(context.Background(), "please echo hi", nil, false)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, p.calls, "second LLM call must not happen")

	turns := loop.History().Turns()
	last := turns[len(turns)-1]
	require.Equal(t, providers.BlockToolResult, last[0].Type)
	assert.Equal(t, interruptedToolOutput, last[0].ToolOutput)
}

func TestLoopMultiToolCallRetries(t *testing.T) {
	p := &scriptedProvider{turns: [][]providers.Block{
		{
			providers.ToolCallBlock("tc-1", "echo", map[string]any{"text": "a"}),
			providers.ToolCallBlock("tc-2", "echo", map[string]any{"text": "b"}),
		},
		{providers.TextResult("recovered")},
	}}
	loop, _ := newTestLoop(t, p, 10)

	final, err := loop.Run(context.Background(), "echo twice", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "recovered", final)

	// Both stray calls were resolved with the violation message.
	turns := loop.History().Turns()
	resultTurn := turns[2]
	require.Len(t, resultTurn, 2)
	for _, b := range resultTurn {
		assert.Equal(t, multiToolCallOutput, b.ToolOutput)
	}
}

func TestLoopTerminationTool(t *testing.T) {
	p := &scriptedProvider{turns: [][]providers.Block{
		{providers.ToolCallBlock("tc-1", "return_control_to_user", map[string]any{})},
	}}
	loop, events := newTestLoop(t, p, 10)

	final, err := loop.Run(context.Background(), "stop now", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "Task completed", final)

	kinds := drainKinds(events)
	assert.Equal(t, protocol.EventAgentResponse, kinds[len(kinds)-1])
}

func TestLoopMaxTurns(t *testing.T) {
	// Model loops on tool calls forever.
	p := &scriptedProvider{}
	for i := 0; i < 5; i++ {
		p.turns = append(p.turns, []providers.Block{
			providers.ToolCallBlock("tc", "echo", map[string]any{"text": "again"}),
		})
	}
	loop, _ := newTestLoop(t, p, 3)

	_, err := loop.Run(context.Background(), "never stop", nil, false)
	assert.ErrorIs(t, err, ErrMaxTurns)
}

func TestLoopEmptyResponseSubstituted(t *testing.T) {
	p := &scriptedProvider{turns: [][]providers.Block{{}}}
	loop, _ := newTestLoop(t, p, 10)

	final, err := loop.Run(context.Background(), "hello", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "No response from model", final)
}

func TestLastMessageToUser(t *testing.T) {
	loop, _ := newTestLoop(t, &scriptedProvider{turns: [][]providers.Block{
		{providers.ToolCallBlock("tc-1", "message_user", map[string]any{"text": "work is done"})},
		{providers.TextResult("bye")},
	}}, 10)

	// message_user isn't registered here; dispatch reports it missing,
	// but the call itself still lands in history.
	_, err := loop.Run(context.Background(), "report", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "work is done", LastMessageToUser(loop.History()))
}
