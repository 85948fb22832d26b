package tools

import (
	"context"
	"sync"
)

// StopSignal records that a termination tool ran and carries the final
// answer it produced. One signal is shared by the termination tools of
// a single agent instance.
type StopSignal struct {
	mu      sync.Mutex
	stopped bool
	answer  string
}

func (s *StopSignal) set(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.answer = answer
}

func (s *StopSignal) ShouldStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *StopSignal) FinalAnswer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answer
}

func (s *StopSignal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
	s.answer = ""
}

// ReturnControlToUserTool is the interactive-mode termination tool:
// the agent calls it when the task is done or user input is needed.
type ReturnControlToUserTool struct {
	signal *StopSignal
}

func NewReturnControlToUserTool(signal *StopSignal) *ReturnControlToUserTool {
	return &ReturnControlToUserTool{signal: signal}
}

func (t *ReturnControlToUserTool) Name() string { return "return_control_to_user" }

func (t *ReturnControlToUserTool) Description() string {
	return "Return control to the user when the task is complete or when user input is needed to proceed."
}

func (t *ReturnControlToUserTool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *ReturnControlToUserTool) Execute(ctx context.Context, args map[string]any) *Result {
	t.signal.set("Task completed")
	return NewResult("Returning control to user")
}

// CompleteTool is the non-interactive termination tool: the agent
// reports its final answer and stops.
type CompleteTool struct {
	signal *StopSignal
}

func NewCompleteTool(signal *StopSignal) *CompleteTool {
	return &CompleteTool{signal: signal}
}

func (t *CompleteTool) Name() string { return "complete" }

func (t *CompleteTool) Description() string {
	return "Report the final answer and mark the task as complete."
}

func (t *CompleteTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{
				"type":        "string",
				"description": "The final answer to the task",
			},
		},
		"required": []string{"answer"},
	}
}

func (t *CompleteTool) Execute(ctx context.Context, args map[string]any) *Result {
	answer, _ := args["answer"].(string)
	t.signal.set(answer)
	return NewResult("Task marked as complete")
}

// ReturnControlToGeneralAgentTool ends the reviewer loop and hands
// control back so the review feedback can be summarized.
type ReturnControlToGeneralAgentTool struct {
	signal *StopSignal
}

func NewReturnControlToGeneralAgentTool(signal *StopSignal) *ReturnControlToGeneralAgentTool {
	return &ReturnControlToGeneralAgentTool{signal: signal}
}

func (t *ReturnControlToGeneralAgentTool) Name() string { return "return_control_to_general_agent" }

func (t *ReturnControlToGeneralAgentTool) Description() string {
	return "Return control to the general agent when the review is complete."
}

func (t *ReturnControlToGeneralAgentTool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *ReturnControlToGeneralAgentTool) Execute(ctx context.Context, args map[string]any) *Result {
	t.signal.set("Review completed")
	return NewResult("Returning control to general agent")
}
