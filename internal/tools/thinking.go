package tools

import "context"

// SequentialThinkingTool gives the model a scratchpad for step-by-step
// reasoning. The thought is acknowledged, not acted on.
type SequentialThinkingTool struct{}

func NewSequentialThinkingTool() *SequentialThinkingTool { return &SequentialThinkingTool{} }

func (t *SequentialThinkingTool) Name() string { return "sequential_thinking" }

func (t *SequentialThinkingTool) Description() string {
	return "A tool for dynamic and reflective problem-solving through structured thoughts. Use it to break a complex task into ordered steps, revising earlier steps as understanding deepens."
}

func (t *SequentialThinkingTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"thought": map[string]any{
				"type":        "string",
				"description": "The current thinking step",
			},
			"thought_number": map[string]any{
				"type":        "integer",
				"description": "Current step number in the sequence",
			},
			"total_thoughts": map[string]any{
				"type":        "integer",
				"description": "Estimated total steps needed",
			},
			"next_thought_needed": map[string]any{
				"type":        "boolean",
				"description": "Whether another thinking step is needed",
			},
		},
		"required": []string{"thought", "thought_number", "total_thoughts", "next_thought_needed"},
	}
}

func (t *SequentialThinkingTool) Execute(ctx context.Context, args map[string]any) *Result {
	if thought, _ := args["thought"].(string); thought == "" {
		return ErrorResult("thought is required")
	}
	return NewResult("Thought recorded")
}
