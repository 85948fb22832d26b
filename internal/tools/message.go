package tools

import "context"

// MessageTool lets the agent address the user directly mid-run. The
// orchestrator surfaces the text as a user-visible message; the last
// message_user call also feeds the reviewer flow.
type MessageTool struct{}

func NewMessageTool() *MessageTool { return &MessageTool{} }

func (t *MessageTool) Name() string { return "message_user" }

func (t *MessageTool) Description() string {
	return "Send a message to the user. Use for progress updates, intermediate results, or the final summary of completed work."
}

func (t *MessageTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "The message text to send to the user",
			},
		},
		"required": []string{"text"},
	}
}

func (t *MessageTool) Execute(ctx context.Context, args map[string]any) *Result {
	text, _ := args["text"].(string)
	if text == "" {
		return ErrorResult("text is required")
	}
	return NewResultWithMessage("Message sent to user", text)
}
