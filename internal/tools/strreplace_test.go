package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/agentd/internal/bus"
	"github.com/nextlevelbuilder/agentd/internal/toolops"
	"github.com/nextlevelbuilder/agentd/internal/workspace"
	"github.com/nextlevelbuilder/agentd/pkg/protocol"
)

func newEditorTool(t *testing.T) (*StrReplaceEditorTool, *workspace.Manager, *bus.Queue) {
	t.Helper()
	ws, err := workspace.New(t.TempDir(), "sess-1", true)
	require.NoError(t, err)
	files := toolops.NewLocalFileClient(ws.Root)
	events := bus.NewQueue()
	return NewStrReplaceEditorTool(files, ws, events), ws, events
}

func TestStrReplaceEditorCreateAndView(t *testing.T) {
	tool, ws, _ := newEditorTool(t)
	ctx := context.Background()

	res := tool.Execute(ctx, map[string]any{
		"command":   "create",
		"path":      "hello.txt",
		"file_text": "line one\nline two\n",
	})
	require.False(t, res.IsError, res.Output)
	assert.Contains(t, res.Output, "File created successfully at:")

	data, err := os.ReadFile(filepath.Join(ws.Root, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(data))

	res = tool.Execute(ctx, map[string]any{"command": "view", "path": "hello.txt"})
	require.False(t, res.IsError)
	assert.Contains(t, res.Output, "line one")
	assert.Contains(t, res.Output, "Total lines in file: 2")
}

func TestStrReplaceEditorEditUndo(t *testing.T) {
	tool, ws, events := newEditorTool(t)
	ctx := context.Background()

	tool.Execute(ctx, map[string]any{
		"command": "create", "path": "app.py", "file_text": "x = 1\n",
	})

	res := tool.Execute(ctx, map[string]any{
		"command": "str_replace", "path": "app.py", "old_str": "x = 1", "new_str": "x = 2",
	})
	require.False(t, res.IsError, res.Output)

	data, _ := os.ReadFile(filepath.Join(ws.Root, "app.py"))
	assert.Equal(t, "x = 2\n", string(data))

	res = tool.Execute(ctx, map[string]any{"command": "undo_edit", "path": "app.py"})
	require.False(t, res.IsError, res.Output)
	data, _ = os.ReadFile(filepath.Join(ws.Root, "app.py"))
	assert.Equal(t, "x = 1\n", string(data))

	// Each content-changing op published a file_edit event.
	var kinds []string
	for events.Len() > 0 {
		ev, ok := events.Pop()
		require.True(t, ok)
		kinds = append(kinds, ev.Kind)
	}
	for _, k := range kinds {
		assert.Equal(t, protocol.EventFileEdit, k)
	}
	assert.GreaterOrEqual(t, len(kinds), 3)
}

func TestStrReplaceEditorRejectsEscapingPaths(t *testing.T) {
	tool, _, _ := newEditorTool(t)

	res := tool.Execute(context.Background(), map[string]any{
		"command": "view", "path": "/etc/passwd",
	})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Output, "outside the workspace root directory")
}

func TestStrReplaceEditorMissingParams(t *testing.T) {
	tool, _, _ := newEditorTool(t)
	ctx := context.Background()

	res := tool.Execute(ctx, map[string]any{"command": "create", "path": "a.txt"})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Output, "`file_text` is required")

	tool.Execute(ctx, map[string]any{"command": "create", "path": "a.txt", "file_text": "hi"})
	res = tool.Execute(ctx, map[string]any{"command": "str_replace", "path": "a.txt"})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Output, "`old_str` is required")
}
