package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// SimpleMemoryTool keeps a numbered list of notes the model can add
// to, review, and delete across turns of a session.
type SimpleMemoryTool struct {
	mu    sync.Mutex
	notes []string
}

func NewSimpleMemoryTool() *SimpleMemoryTool { return &SimpleMemoryTool{} }

func (t *SimpleMemoryTool) Name() string { return "simple_memory" }

func (t *SimpleMemoryTool) Description() string {
	return "Store and retrieve short notes that persist across the conversation. Commands: add, view, delete."
}

func (t *SimpleMemoryTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"enum":        []string{"add", "view", "delete"},
				"description": "The memory operation to perform",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "Required for `add`: the note to store",
			},
			"index": map[string]any{
				"type":        "integer",
				"description": "Required for `delete`: 1-based index of the note to remove",
			},
		},
		"required": []string{"command"},
	}
}

func (t *SimpleMemoryTool) Execute(ctx context.Context, args map[string]any) *Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch command, _ := args["command"].(string); command {
	case "add":
		text, _ := args["text"].(string)
		if text == "" {
			return ErrorResult("text is required for command: add")
		}
		t.notes = append(t.notes, text)
		return NewResult(fmt.Sprintf("Note %d saved", len(t.notes)))
	case "view":
		if len(t.notes) == 0 {
			return NewResult("No notes stored")
		}
		var sb strings.Builder
		for i, note := range t.notes {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, note)
		}
		return NewResult(strings.TrimRight(sb.String(), "\n"))
	case "delete":
		idx := intArg(args, "index")
		if idx < 1 || idx > len(t.notes) {
			return ErrorResult(fmt.Sprintf("No note at index %d", idx))
		}
		t.notes = append(t.notes[:idx-1], t.notes[idx:]...)
		return NewResult(fmt.Sprintf("Note %d deleted", idx))
	default:
		return ErrorResult(fmt.Sprintf("Unrecognized command %s. Allowed commands: add, view, delete", command))
	}
}
