package protocol

import "encoding/json"

// Inbound message types accepted over the session WebSocket.
const (
	MsgInitAgent     = "init_agent"
	MsgQuery         = "query"
	MsgEditQuery     = "edit_query"
	MsgCancel        = "cancel"
	MsgEnhancePrompt = "enhance_prompt"
	MsgWorkspaceInfo = "workspace_info"
	MsgPing          = "ping"
	MsgReviewResult  = "review_result"
)

// Message is the envelope for every inbound WebSocket frame.
// Content is decoded per-type into one of the *Content structs below.
type Message struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// Event is the envelope for every outbound WebSocket frame.
type Event struct {
	ID        string         `json:"id,omitempty"`
	Type      string         `json:"type"`
	Content   map[string]any `json:"content"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// ToolArgs selects which optional tool groups the agent is built with.
type ToolArgs struct {
	SequentialThinking bool   `json:"sequential_thinking,omitempty"`
	DeepResearch       bool   `json:"deep_research,omitempty"`
	PDF                bool   `json:"pdf,omitempty"`
	MediaGeneration    bool   `json:"media_generation,omitempty"`
	AudioGeneration    bool   `json:"audio_generation,omitempty"`
	Browser            bool   `json:"browser,omitempty"`
	MemoryTool         string `json:"memory_tool,omitempty"` // "compactify-memory", "simple", "none"
	EnableReviewer     bool   `json:"enable_reviewer,omitempty"`
}

// InitAgentContent configures the agent for this session.
type InitAgentContent struct {
	ModelName      string   `json:"model_name"`
	ToolArgs       ToolArgs `json:"tool_args"`
	ThinkingTokens *int     `json:"thinking_tokens,omitempty"`
}

// QueryContent carries a user task. Also used for edit_query.
type QueryContent struct {
	Text   string   `json:"text"`
	Resume bool     `json:"resume"`
	Files  []string `json:"files"`
}

// EnhancePromptContent asks the server to rewrite a draft prompt.
type EnhancePromptContent struct {
	ModelName string   `json:"model_name"`
	Text      string   `json:"text"`
	Files     []string `json:"files"`
}

// ReviewResultContent triggers the reviewer agent over the last answer.
type ReviewResultContent struct {
	UserInput string `json:"user_input"`
}
