package history

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/agentd/internal/providers"
)

func TestAddUserPromptBlockedByPendingCalls(t *testing.T) {
	h := New()
	require.NoError(t, h.AddUserPrompt("do the thing"))
	h.AddAssistantTurn([]providers.Block{
		providers.ToolCallBlock("tc-1", "shell_exec", map[string]any{"command": "ls"}),
	})

	err := h.AddUserPrompt("never mind")
	require.Error(t, err)
	require.Contains(t, err.Error(), "awaiting results")

	require.NoError(t, h.AddToolResults([]providers.Block{
		providers.ToolResultBlock("tc-1", "shell_exec", "ok"),
	}))
	require.NoError(t, h.AddUserPrompt("now this"))
	require.Equal(t, 4, h.Len())
}

func TestAddToolResultsValidation(t *testing.T) {
	h := New()
	require.NoError(t, h.AddUserPrompt("go"))
	h.AddAssistantTurn([]providers.Block{
		providers.ToolCallBlock("tc-1", "shell_exec", nil),
	})

	tests := []struct {
		name    string
		results []providers.Block
		wantErr string
	}{
		{
			name:    "unknown call id",
			results: []providers.Block{providers.ToolResultBlock("tc-9", "shell_exec", "out")},
			wantErr: "does not match a pending call",
		},
		{
			name:    "wrong block type",
			results: []providers.Block{providers.TextPrompt("oops")},
			wantErr: "contains text_prompt block",
		},
		{
			name:    "matching result",
			results: []providers.Block{providers.ToolResultBlock("tc-1", "shell_exec", "out")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.AddToolResults(tt.results)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPendingToolCallsOnlyLastAssistantTurn(t *testing.T) {
	h := New()
	require.NoError(t, h.AddUserPrompt("go"))
	require.Empty(t, h.PendingToolCalls())

	h.AddAssistantTurn([]providers.Block{
		providers.TextResult("working"),
		providers.ToolCallBlock("tc-1", "shell_exec", nil),
		providers.ToolCallBlock("tc-2", "shell_view", nil),
	})
	pending := h.PendingToolCalls()
	require.Len(t, pending, 2)
	require.Equal(t, "tc-1", pending[0].ToolCallID)

	require.NoError(t, h.AddToolResults([]providers.Block{
		providers.ToolResultBlock("tc-1", "shell_exec", "a"),
		providers.ToolResultBlock("tc-2", "shell_view", "b"),
	}))
	require.Empty(t, h.PendingToolCalls())
}

func TestClearFromLastUserPrompt(t *testing.T) {
	h := New()
	require.NoError(t, h.AddUserPrompt("first"))
	h.AddAssistantTurn([]providers.Block{providers.ToolCallBlock("tc-1", "shell_exec", nil)})
	require.NoError(t, h.AddToolResults([]providers.Block{providers.ToolResultBlock("tc-1", "shell_exec", "ok")}))
	h.AddAssistantTurn([]providers.Block{providers.TextResult("done")})
	require.NoError(t, h.AddUserPrompt("second"))
	h.AddAssistantTurn([]providers.Block{providers.TextResult("again")})

	// Drops "second" and the answer after it; tool-result turns are not
	// prompts, so the first exchange survives intact.
	require.True(t, h.ClearFromLastUserPrompt())
	require.Equal(t, 4, h.Len())
	require.Equal(t, "done", h.LastAssistantText())

	require.True(t, h.ClearFromLastUserPrompt())
	require.Equal(t, 0, h.Len())
	require.False(t, h.ClearFromLastUserPrompt())
}

func TestTurnsReturnsCopy(t *testing.T) {
	h := New()
	require.NoError(t, h.AddUserPrompt("hello"))
	turns := h.Turns()
	turns[0][0].Text = "mutated"
	require.Equal(t, "hello", h.Turns()[0][0].Text)
}

func TestSnapshotRoundTrip(t *testing.T) {
	h := New()
	require.NoError(t, h.AddUserPrompt("deploy the service"))
	h.AddAssistantTurn([]providers.Block{
		providers.ThinkingBlock("planning", "sig-1"),
		providers.ToolCallBlock("tc-1", "shell_exec", map[string]any{"command": "make deploy"}),
	})
	require.NoError(t, h.AddToolResults([]providers.Block{
		providers.ToolResultBlock("tc-1", "shell_exec", "deployed"),
	}))
	h.AddAssistantTurn([]providers.Block{providers.TextResult("Service is live.")})

	data, err := json.Marshal(h)
	require.NoError(t, err)

	restored := New()
	require.NoError(t, json.Unmarshal(data, restored))
	require.Equal(t, h.Turns(), restored.Turns())
	require.Equal(t, "Service is live.", restored.LastAssistantText())
	require.Empty(t, restored.PendingToolCalls())
}
