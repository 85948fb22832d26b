package toolops

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/agentd/internal/fileops"
	"github.com/nextlevelbuilder/agentd/internal/terminal"
)

// RemoteTerminalClient talks to the sandbox tool server over HTTP.
// Transport failures are reported in the result output so the model
// can see them, matching the local client's contract.
type RemoteTerminalClient struct {
	serverURL string
	client    *http.Client
}

func NewRemoteTerminalClient(serverURL string) *RemoteTerminalClient {
	return &RemoteTerminalClient{
		serverURL: strings.TrimRight(serverURL, "/"),
		client:    &http.Client{Timeout: 600 * time.Second},
	}
}

func (c *RemoteTerminalClient) post(endpoint string, payload map[string]any) terminal.Result {
	var out terminal.Result
	if err := postJSON(c.client, c.serverURL+"/api/terminal/"+endpoint, payload, &out); err != nil {
		return terminal.Result{Success: false, Output: fmt.Sprintf("Request error: %s", err)}
	}
	return out
}

func (c *RemoteTerminalClient) CreateSession(sessionID string) terminal.Result {
	return c.post("create_session", map[string]any{"session_id": sessionID})
}

func (c *RemoteTerminalClient) ShellExec(sessionID, command, execDir string, timeout time.Duration) terminal.Result {
	return c.post("shell_exec", map[string]any{
		"session_id": sessionID,
		"command":    command,
		"exec_dir":   execDir,
		"timeout":    int(timeout.Seconds()),
	})
}

func (c *RemoteTerminalClient) ShellView(sessionID string) terminal.Result {
	return c.post("shell_view", map[string]any{"session_id": sessionID})
}

func (c *RemoteTerminalClient) ShellWait(sessionID string, seconds int) terminal.Result {
	return c.post("shell_wait", map[string]any{"session_id": sessionID, "seconds": seconds})
}

func (c *RemoteTerminalClient) ShellWriteToProcess(sessionID, input string, pressEnter bool) terminal.Result {
	return c.post("shell_write_to_process", map[string]any{
		"session_id":  sessionID,
		"input_text":  input,
		"press_enter": pressEnter,
	})
}

func (c *RemoteTerminalClient) ShellKillProcess(sessionID string) terminal.Result {
	return c.post("shell_kill_process", map[string]any{"session_id": sessionID})
}

// RemoteFileClient talks to the sandbox tool server's editor API.
type RemoteFileClient struct {
	serverURL string
	client    *http.Client
}

func NewRemoteFileClient(serverURL string) *RemoteFileClient {
	return &RemoteFileClient{
		serverURL: strings.TrimRight(serverURL, "/"),
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *RemoteFileClient) post(endpoint string, payload map[string]any) fileops.Response {
	var out fileops.Response
	if err := postJSON(c.client, c.serverURL+"/api/str_replace/"+endpoint, payload, &out); err != nil {
		return fileops.Response{Success: false, Content: fmt.Sprintf("Request error: %s", err)}
	}
	return out
}

func (c *RemoteFileClient) ValidatePath(command, path, displayPath string) fileops.Response {
	return c.post("validate_path", map[string]any{
		"command": command, "path": path, "display_path": displayPath,
	})
}

func (c *RemoteFileClient) View(path string, viewRange []int, displayPath string) fileops.Response {
	payload := map[string]any{"path": path, "display_path": displayPath}
	if len(viewRange) > 0 {
		payload["view_range"] = viewRange
	}
	return c.post("view", payload)
}

func (c *RemoteFileClient) StrReplace(path, oldStr, newStr, displayPath string) fileops.Response {
	return c.post("str_replace", map[string]any{
		"path": path, "old_str": oldStr, "new_str": newStr, "display_path": displayPath,
	})
}

func (c *RemoteFileClient) Insert(path string, insertLine int, newStr, displayPath string) fileops.Response {
	return c.post("insert", map[string]any{
		"path": path, "insert_line": insertLine, "new_str": newStr, "display_path": displayPath,
	})
}

func (c *RemoteFileClient) UndoEdit(path, displayPath string) fileops.Response {
	return c.post("undo_edit", map[string]any{"path": path, "display_path": displayPath})
}

func (c *RemoteFileClient) ReadFile(path, displayPath string) fileops.Response {
	return c.post("read_file", map[string]any{"path": path, "display_path": displayPath})
}

func (c *RemoteFileClient) WriteFile(path, content, displayPath string) fileops.Response {
	return c.post("write_file", map[string]any{
		"path": path, "file": content, "display_path": displayPath,
	})
}

func (c *RemoteFileClient) IsPathInDirectory(directory, path string) bool {
	var out struct {
		Result bool `json:"result"`
	}
	err := postJSON(c.client, c.serverURL+"/api/str_replace/is_path_in_directory",
		map[string]any{"directory": directory, "path": path}, &out)
	return err == nil && out.Result
}

func postJSON(client *http.Client, url string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
