package providers

import "context"

// Block types. A conversation is a sequence of turns, each turn a slice
// of blocks. Exactly one Type is set per block; the JSON shape keeps
// every variant round-trippable through the event store.
const (
	BlockTextPrompt       = "text_prompt"
	BlockTextResult       = "text_result"
	BlockThinking         = "thinking"
	BlockRedactedThinking = "redacted_thinking"
	BlockToolCall         = "tool_call"
	BlockToolResult       = "tool_result"
)

// Block is one content block in a conversation turn.
type Block struct {
	Type string `json:"type"`

	// text_prompt, text_result, thinking
	Text string `json:"text,omitempty"`

	// thinking blocks carry an opaque signature that must be passed
	// back verbatim on the next call.
	Signature string `json:"signature,omitempty"`

	// redacted_thinking: encrypted payload, passed back verbatim.
	Data string `json:"data,omitempty"`

	// tool_call / tool_result
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolInput  map[string]any `json:"tool_input,omitempty"`
	ToolOutput string         `json:"tool_output,omitempty"`
}

func TextPrompt(text string) Block  { return Block{Type: BlockTextPrompt, Text: text} }
func TextResult(text string) Block  { return Block{Type: BlockTextResult, Text: text} }
func ThinkingBlock(text, sig string) Block {
	return Block{Type: BlockThinking, Text: text, Signature: sig}
}

func ToolCallBlock(id, name string, input map[string]any) Block {
	return Block{Type: BlockToolCall, ToolCallID: id, ToolName: name, ToolInput: input}
}

func ToolResultBlock(id, name, output string) Block {
	return Block{Type: BlockToolResult, ToolCallID: id, ToolName: name, ToolOutput: output}
}

// IsUserTurn reports whether a turn originates from the user side of
// the conversation (prompt text or tool results).
func IsUserTurn(turn []Block) bool {
	for _, b := range turn {
		if b.Type == BlockTextPrompt || b.Type == BlockToolResult {
			return true
		}
	}
	return false
}

// ToolParam describes a tool offered to the model.
type ToolParam struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// GenerateRequest is the input for one model call.
type GenerateRequest struct {
	Messages     [][]Block
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Tools        []ToolParam
	// ThinkingTokens > 0 enables extended thinking with that budget
	// on providers that support it.
	ThinkingTokens int
}

// Usage tracks token consumption for one call.
type Usage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// GenerateResponse is one assistant turn plus usage.
type GenerateResponse struct {
	Blocks []Block `json:"blocks"`
	Usage  Usage   `json:"usage"`
}

// Provider is the interface all LLM backends implement.
type Provider interface {
	// Generate sends the conversation and returns the assistant turn.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// Model returns the concrete model identifier in use.
	Model() string

	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}
