// Package history holds the alternating user/assistant turn list fed
// to the model. Turns are slices of content blocks; tool calls issued
// by the assistant must be answered by tool results in the next user
// turn before the conversation can move on.
package history

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/agentd/internal/providers"
)

// History is a thread-safe conversation transcript.
type History struct {
	mu    sync.Mutex
	turns [][]providers.Block
}

func New() *History {
	return &History{}
}

// AddUserPrompt appends a user turn containing a single text prompt.
// Returns an error while tool calls are awaiting results, which would
// break the call/result pairing the providers require.
func (h *History) AddUserPrompt(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.pendingToolCallsLocked()) > 0 {
		return fmt.Errorf("cannot add user prompt: %d tool calls awaiting results", len(h.pendingToolCallsLocked()))
	}
	h.turns = append(h.turns, []providers.Block{providers.TextPrompt(text)})
	return nil
}

// AddAssistantTurn appends a model response turn.
func (h *History) AddAssistantTurn(blocks []providers.Block) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, blocks)
}

// AddToolResults appends a user turn answering pending tool calls.
// Every result must match a pending call ID.
func (h *History) AddToolResults(results []providers.Block) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	pending := make(map[string]bool)
	for _, tc := range h.pendingToolCallsLocked() {
		pending[tc.ToolCallID] = true
	}
	for _, r := range results {
		if r.Type != providers.BlockToolResult {
			return fmt.Errorf("tool result turn contains %s block", r.Type)
		}
		if !pending[r.ToolCallID] {
			return fmt.Errorf("tool result %s does not match a pending call", r.ToolCallID)
		}
	}
	h.turns = append(h.turns, results)
	return nil
}

// PendingToolCalls returns tool calls from the last assistant turn that
// have no results yet.
func (h *History) PendingToolCalls() []providers.Block {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pendingToolCallsLocked()
}

func (h *History) pendingToolCallsLocked() []providers.Block {
	if len(h.turns) == 0 {
		return nil
	}
	last := h.turns[len(h.turns)-1]
	if providers.IsUserTurn(last) {
		return nil
	}
	var calls []providers.Block
	for _, b := range last {
		if b.Type == providers.BlockToolCall {
			calls = append(calls, b)
		}
	}
	return calls
}

// Turns returns a copy of the transcript.
func (h *History) Turns() [][]providers.Block {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]providers.Block, len(h.turns))
	for i, t := range h.turns {
		out[i] = append([]providers.Block(nil), t...)
	}
	return out
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// SetTurns replaces the transcript wholesale. Used by the context
// manager after truncation and by session restore.
func (h *History) SetTurns(turns [][]providers.Block) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = turns
}

// Clear drops every turn.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

// ClearFromLastUserPrompt removes the most recent user text prompt and
// everything after it. Tool-result turns do not count as prompts.
// Returns false when no text prompt exists.
func (h *History) ClearFromLastUserPrompt() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.turns) - 1; i >= 0; i-- {
		for _, b := range h.turns[i] {
			if b.Type == providers.BlockTextPrompt {
				h.turns = h.turns[:i]
				return true
			}
		}
	}
	return false
}

// LastAssistantText returns the concatenated text of the most recent
// assistant turn, or "" when there is none.
func (h *History) LastAssistantText() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.turns) - 1; i >= 0; i-- {
		if providers.IsUserTurn(h.turns[i]) {
			continue
		}
		var text string
		for _, b := range h.turns[i] {
			if b.Type == providers.BlockTextResult {
				text += b.Text
			}
		}
		return text
	}
	return ""
}

// MarshalJSON serializes the transcript for snapshots.
func (h *History) MarshalJSON() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return json.Marshal(h.turns)
}

// UnmarshalJSON restores a transcript from a snapshot.
func (h *History) UnmarshalJSON(data []byte) error {
	var turns [][]providers.Block
	if err := json.Unmarshal(data, &turns); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = turns
	return nil
}
