package protocol

// Event kinds pushed from server to client over the session WebSocket.
// This is a closed set: the client switches exhaustively on these values.
const (
	EventConnectionEstablished = "connection_established"
	EventAgentInitialized      = "agent_initialized"
	EventProcessing            = "processing"
	EventUserMessage           = "user_message"
	EventAssistantText         = "assistant_text"
	EventThinking              = "thinking"
	EventToolCall              = "tool_call"
	EventToolResult            = "tool_result"
	EventFileEdit              = "file_edit"
	EventWorkspaceInfo         = "workspace_info"
	EventPong                  = "pong"
	EventSystem                = "system"
	EventPromptGenerated       = "prompt_generated"
	EventStreamComplete        = "stream_complete"
	EventAgentResponse         = "agent_response"
	EventError                 = "error"
)
