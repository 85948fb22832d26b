package toolops

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/agentd/internal/fileops"
	"github.com/nextlevelbuilder/agentd/internal/terminal"
)

// LocalTerminalClient runs shell sessions in this process.
type LocalTerminalClient struct {
	manager *terminal.Manager
}

func NewLocalTerminalClient(cwd string, logger *slog.Logger) *LocalTerminalClient {
	return &LocalTerminalClient{
		manager: terminal.NewManager(cwd, logger, terminal.WithRelativePaths()),
	}
}

func (c *LocalTerminalClient) CreateSession(sessionID string) terminal.Result {
	// ShellExec creates sessions lazily; probe with a no-op command.
	res := c.manager.ShellExec(sessionID, "true", "", 10*time.Second)
	if !res.Success {
		return terminal.Result{Success: false, Output: fmt.Sprintf("Failed to create session %s", sessionID)}
	}
	return terminal.Result{Success: true, Output: fmt.Sprintf("Session %s created successfully", sessionID)}
}

func (c *LocalTerminalClient) ShellExec(sessionID, command, execDir string, timeout time.Duration) terminal.Result {
	return c.manager.ShellExec(sessionID, command, execDir, timeout)
}

func (c *LocalTerminalClient) ShellView(sessionID string) terminal.Result {
	return c.manager.ShellView(sessionID)
}

func (c *LocalTerminalClient) ShellWait(sessionID string, seconds int) terminal.Result {
	return c.manager.ShellWait(sessionID, seconds)
}

func (c *LocalTerminalClient) ShellWriteToProcess(sessionID, input string, pressEnter bool) terminal.Result {
	return c.manager.ShellWriteToProcess(sessionID, input, pressEnter)
}

func (c *LocalTerminalClient) ShellKillProcess(sessionID string) terminal.Result {
	return c.manager.ShellKillProcess(sessionID)
}

// Close tears down all shell sessions.
func (c *LocalTerminalClient) Close() { c.manager.Close() }

// LocalFileClient edits files in this process.
type LocalFileClient struct {
	editor *fileops.Editor
}

func NewLocalFileClient(cwd string, opts ...fileops.Option) *LocalFileClient {
	opts = append([]fileops.Option{fileops.WithRelativePaths(cwd)}, opts...)
	return &LocalFileClient{editor: fileops.NewEditor(opts...)}
}

func (c *LocalFileClient) ValidatePath(command, path, displayPath string) fileops.Response {
	return c.editor.ValidatePath(command, path, displayPath)
}

func (c *LocalFileClient) View(path string, viewRange []int, displayPath string) fileops.Response {
	return c.editor.View(path, viewRange, displayPath)
}

func (c *LocalFileClient) StrReplace(path, oldStr, newStr, displayPath string) fileops.Response {
	return c.editor.StrReplace(path, oldStr, newStr, displayPath)
}

func (c *LocalFileClient) Insert(path string, insertLine int, newStr, displayPath string) fileops.Response {
	return c.editor.Insert(path, insertLine, newStr, displayPath)
}

func (c *LocalFileClient) UndoEdit(path, displayPath string) fileops.Response {
	return c.editor.UndoEdit(path, displayPath)
}

func (c *LocalFileClient) ReadFile(path, displayPath string) fileops.Response {
	return c.editor.ReadFile(path, displayPath)
}

func (c *LocalFileClient) WriteFile(path, content, displayPath string) fileops.Response {
	return c.editor.WriteFile(path, content, displayPath)
}

func (c *LocalFileClient) IsPathInDirectory(directory, path string) bool {
	return fileops.IsPathInDirectory(directory, path)
}
