package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/agentd/internal/toolops"
	"github.com/nextlevelbuilder/agentd/internal/workspace"
)

const shellExecTimeout = 30 * time.Second

// ShellExecTool runs a command in a named shell session, creating the
// session on first use.
type ShellExecTool struct {
	terminal  toolops.TerminalClient
	workspace *workspace.Manager
}

func NewShellExecTool(terminal toolops.TerminalClient, ws *workspace.Manager) *ShellExecTool {
	return &ShellExecTool{terminal: terminal, workspace: ws}
}

func (t *ShellExecTool) Name() string { return "shell_exec" }

func (t *ShellExecTool) Description() string {
	return "Execute commands in a specified shell session. Use for running code, installing packages, or managing files."
}

func (t *ShellExecTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": map[string]any{
				"type":        "string",
				"description": "Unique identifier of the target shell session; automatically creates new session if not exists",
			},
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute",
			},
			"exec_dir": map[string]any{
				"type":        "string",
				"description": "Working directory for command execution",
			},
		},
		"required": []string{"session_id", "command", "exec_dir"},
	}
}

func (t *ShellExecTool) Execute(ctx context.Context, args map[string]any) *Result {
	sessionID, _ := args["session_id"].(string)
	command, _ := args["command"].(string)
	execDir, _ := args["exec_dir"].(string)

	res := t.terminal.ShellExec(sessionID, command, t.workspace.ToolPath(execDir), shellExecTimeout)
	if !res.Success {
		return &Result{
			Output:  res.Output,
			Message: fmt.Sprintf("Failed to execute command %s in session %s: %s", command, sessionID, res.Output),
			IsError: true,
		}
	}
	return NewResultWithMessage(res.Output,
		fmt.Sprintf("Command %s executed successfully in session %s", command, sessionID))
}

// ShellViewTool shows the current content of a shell session.
type ShellViewTool struct {
	terminal toolops.TerminalClient
}

func NewShellViewTool(terminal toolops.TerminalClient) *ShellViewTool {
	return &ShellViewTool{terminal: terminal}
}

func (t *ShellViewTool) Name() string { return "shell_view" }

func (t *ShellViewTool) Description() string {
	return "View the content of a specified shell session. Use for checking command execution results or monitoring output."
}

func (t *ShellViewTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": map[string]any{
				"type":        "string",
				"description": "Unique identifier of the target shell session",
			},
		},
		"required": []string{"session_id"},
	}
}

func (t *ShellViewTool) Execute(ctx context.Context, args map[string]any) *Result {
	sessionID, _ := args["session_id"].(string)
	res := t.terminal.ShellView(sessionID)
	if !res.Success {
		return &Result{
			Output:  res.Output,
			Message: fmt.Sprintf("Failed to retrieve view of session %s: %s", sessionID, res.Output),
			IsError: true,
		}
	}
	return NewResultWithMessage(res.Output,
		fmt.Sprintf("View of session %s retrieved successfully", sessionID))
}

// ShellWaitTool blocks for a number of seconds while a command runs.
type ShellWaitTool struct {
	terminal toolops.TerminalClient
}

func NewShellWaitTool(terminal toolops.TerminalClient) *ShellWaitTool {
	return &ShellWaitTool{terminal: terminal}
}

func (t *ShellWaitTool) Name() string { return "shell_wait" }

func (t *ShellWaitTool) Description() string {
	return "Wait for a specified number of seconds in a shell session"
}

func (t *ShellWaitTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": map[string]any{
				"type":        "string",
				"description": "Unique identifier of the target shell session",
			},
			"seconds": map[string]any{
				"type":        "number",
				"description": "Number of seconds to wait",
			},
		},
		"required": []string{"session_id", "seconds"},
	}
}

func (t *ShellWaitTool) Execute(ctx context.Context, args map[string]any) *Result {
	sessionID, _ := args["session_id"].(string)
	seconds := intArg(args, "seconds")

	res := t.terminal.ShellWait(sessionID, seconds)
	if !res.Success {
		return &Result{
			Output:  fmt.Sprintf("Failed to wait for %d seconds in session %s: %s", seconds, sessionID, res.Output),
			Message: res.Output,
			IsError: true,
		}
	}
	return NewResultWithMessage(
		fmt.Sprintf("Waited for %d seconds in session %s", seconds, sessionID), res.Output)
}

// ShellWriteToProcessTool writes input to a running process.
type ShellWriteToProcessTool struct {
	terminal toolops.TerminalClient
}

func NewShellWriteToProcessTool(terminal toolops.TerminalClient) *ShellWriteToProcessTool {
	return &ShellWriteToProcessTool{terminal: terminal}
}

func (t *ShellWriteToProcessTool) Name() string { return "shell_write_to_process" }

func (t *ShellWriteToProcessTool) Description() string {
	return "Write to a process in a specified shell session. Use for interacting with running processes."
}

func (t *ShellWriteToProcessTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": map[string]any{
				"type":        "string",
				"description": "Unique identifier of the target shell session",
			},
			"input": map[string]any{
				"type":        "string",
				"description": "Text to write to the process",
			},
			"press_enter": map[string]any{
				"type":        "boolean",
				"description": "Whether to press enter after writing the text",
			},
		},
		"required": []string{"session_id", "input", "press_enter"},
	}
}

func (t *ShellWriteToProcessTool) Execute(ctx context.Context, args map[string]any) *Result {
	sessionID, _ := args["session_id"].(string)
	input, _ := args["input"].(string)
	pressEnter, _ := args["press_enter"].(bool)

	res := t.terminal.ShellWriteToProcess(sessionID, input, pressEnter)
	if !res.Success {
		return &Result{
			Output:  res.Output,
			Message: fmt.Sprintf("Failed to write to process in session %s: %s", sessionID, res.Output),
			IsError: true,
		}
	}
	return NewResultWithMessage(res.Output,
		fmt.Sprintf("Successfully wrote to process in session %s", sessionID))
}

// ShellKillProcessTool terminates the running process in a session.
type ShellKillProcessTool struct {
	terminal toolops.TerminalClient
}

func NewShellKillProcessTool(terminal toolops.TerminalClient) *ShellKillProcessTool {
	return &ShellKillProcessTool{terminal: terminal}
}

func (t *ShellKillProcessTool) Name() string { return "shell_kill_process" }

func (t *ShellKillProcessTool) Description() string {
	return "Terminate a running process in a specified shell session. Use for stopping long-running processes or handling frozen commands."
}

func (t *ShellKillProcessTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": map[string]any{
				"type":        "string",
				"description": "Unique identifier of the target shell session",
			},
		},
		"required": []string{"session_id"},
	}
}

func (t *ShellKillProcessTool) Execute(ctx context.Context, args map[string]any) *Result {
	sessionID, _ := args["session_id"].(string)
	res := t.terminal.ShellKillProcess(sessionID)
	if !res.Success {
		return &Result{
			Output:  res.Output,
			Message: fmt.Sprintf("Failed to kill process in session %s: %s", sessionID, res.Output),
			IsError: true,
		}
	}
	return NewResultWithMessage(res.Output,
		fmt.Sprintf("Successfully killed process in session %s", sessionID))
}

// intArg reads a numeric argument that JSON decoding may deliver as
// float64 or json.Number-like values.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
