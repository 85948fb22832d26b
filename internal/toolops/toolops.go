// Package toolops gives the agent's tools a uniform way to reach the
// terminal and file editor, whether they live in this process or
// behind the sandbox tool server's HTTP API.
package toolops

import (
	"time"

	"github.com/nextlevelbuilder/agentd/internal/fileops"
	"github.com/nextlevelbuilder/agentd/internal/terminal"
)

// TerminalClient is the shell-session surface tools call.
type TerminalClient interface {
	CreateSession(sessionID string) terminal.Result
	ShellExec(sessionID, command, execDir string, timeout time.Duration) terminal.Result
	ShellView(sessionID string) terminal.Result
	ShellWait(sessionID string, seconds int) terminal.Result
	ShellWriteToProcess(sessionID, input string, pressEnter bool) terminal.Result
	ShellKillProcess(sessionID string) terminal.Result
}

// FileClient is the file-editor surface tools call.
type FileClient interface {
	ValidatePath(command, path, displayPath string) fileops.Response
	View(path string, viewRange []int, displayPath string) fileops.Response
	StrReplace(path, oldStr, newStr, displayPath string) fileops.Response
	Insert(path string, insertLine int, newStr, displayPath string) fileops.Response
	UndoEdit(path, displayPath string) fileops.Response
	ReadFile(path, displayPath string) fileops.Response
	WriteFile(path, content, displayPath string) fileops.Response
	IsPathInDirectory(directory, path string) bool
}
