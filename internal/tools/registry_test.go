package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name string
	fn   func(args map[string]any) *Result
}

func (t *fakeTool) Name() string                { return t.name }
func (t *fakeTool) Description() string         { return "fake" }
func (t *fakeTool) InputSchema() map[string]any { return map[string]any{"type": "object"} }
func (t *fakeTool) Execute(ctx context.Context, args map[string]any) *Result {
	if t.fn != nil {
		return t.fn(args)
	}
	return NewResult("ok")
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeTool{name: "echo"}))
	err := reg.Register(&fakeTool{name: "echo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "echo is duplicated")
}

func TestRegistryParamsPreserveOrder(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(&fakeTool{name: name}))
	}
	params := reg.Params()
	require.Len(t, params, 3)
	assert.Equal(t, "zeta", params[0].Name)
	assert.Equal(t, "alpha", params[1].Name)
	assert.Equal(t, "mid", params[2].Name)

	// Names() is sorted for display.
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Names())
}

func TestStopSignal(t *testing.T) {
	signal := &StopSignal{}
	assert.False(t, signal.ShouldStop())

	tool := NewCompleteTool(signal)
	res := tool.Execute(context.Background(), map[string]any{"answer": "42"})
	assert.False(t, res.IsError)
	assert.True(t, signal.ShouldStop())
	assert.Equal(t, "42", signal.FinalAnswer())

	signal.Reset()
	assert.False(t, signal.ShouldStop())
	assert.Empty(t, signal.FinalAnswer())
}

func TestReturnControlToUser(t *testing.T) {
	signal := &StopSignal{}
	tool := NewReturnControlToUserTool(signal)
	assert.Equal(t, "return_control_to_user", tool.Name())
	tool.Execute(context.Background(), nil)
	assert.True(t, signal.ShouldStop())
}

func TestBuildCatalogTerminationTools(t *testing.T) {
	reg, _, err := BuildCatalog(CatalogConfig{})
	require.NoError(t, err)
	assert.Contains(t, reg.Names(), "return_control_to_user")
	assert.Contains(t, reg.Names(), "complete")
	assert.NotContains(t, reg.Names(), "return_control_to_general_agent")

	reg, _, err = BuildCatalog(CatalogConfig{Reviewer: true})
	require.NoError(t, err)
	assert.Contains(t, reg.Names(), "return_control_to_general_agent")
	assert.NotContains(t, reg.Names(), "complete")
	assert.NotContains(t, reg.Names(), "return_control_to_user")
}

func TestMessageTool(t *testing.T) {
	tool := NewMessageTool()
	res := tool.Execute(context.Background(), map[string]any{"text": "hello there"})
	require.False(t, res.IsError)
	assert.Equal(t, "Message sent to user", res.Output)
	assert.Equal(t, "hello there", res.Message)

	res = tool.Execute(context.Background(), map[string]any{})
	assert.True(t, res.IsError)
}

func TestSimpleMemoryTool(t *testing.T) {
	tool := NewSimpleMemoryTool()
	ctx := context.Background()

	res := tool.Execute(ctx, map[string]any{"command": "view"})
	assert.Equal(t, "No notes stored", res.Output)

	tool.Execute(ctx, map[string]any{"command": "add", "text": "first"})
	tool.Execute(ctx, map[string]any{"command": "add", "text": "second"})
	res = tool.Execute(ctx, map[string]any{"command": "view"})
	assert.Equal(t, "1. first\n2. second", res.Output)

	res = tool.Execute(ctx, map[string]any{"command": "delete", "index": float64(1)})
	require.False(t, res.IsError)
	res = tool.Execute(ctx, map[string]any{"command": "view"})
	assert.Equal(t, "1. second", res.Output)

	res = tool.Execute(ctx, map[string]any{"command": "delete", "index": float64(9)})
	assert.True(t, res.IsError)
}
