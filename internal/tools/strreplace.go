package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/agentd/internal/bus"
	"github.com/nextlevelbuilder/agentd/internal/toolops"
	"github.com/nextlevelbuilder/agentd/internal/workspace"
	"github.com/nextlevelbuilder/agentd/pkg/protocol"
)

// StrReplaceEditorTool is the file editing tool: view, create,
// str_replace, insert, undo_edit. Paths are resolved against the
// session workspace; edits outside it are refused.
type StrReplaceEditorTool struct {
	files     toolops.FileClient
	workspace *workspace.Manager
	events    *bus.Queue // nil disables file_edit notifications
}

func NewStrReplaceEditorTool(files toolops.FileClient, ws *workspace.Manager, events *bus.Queue) *StrReplaceEditorTool {
	return &StrReplaceEditorTool{files: files, workspace: ws, events: events}
}

func (t *StrReplaceEditorTool) Name() string { return "str_replace_editor" }

func (t *StrReplaceEditorTool) Description() string {
	return `Custom editing tool for viewing, creating and editing files
* State is persistent across command calls and discussions with the user
* If ` + "`path`" + ` is a file, ` + "`view`" + ` displays the result of applying ` + "`cat -n`" + `. If ` + "`path`" + ` is a directory, ` + "`view`" + ` lists non-hidden files and directories up to 2 levels deep
* The ` + "`create`" + ` command cannot be used if the specified ` + "`path`" + ` already exists as a file
* If a ` + "`command`" + ` generates a long output, it will be truncated and marked with ` + "`<response clipped>`" + `
* The ` + "`undo_edit`" + ` command will revert the last edit made to the file at ` + "`path`" + `

Notes for using the ` + "`str_replace`" + ` command:
* The ` + "`old_str`" + ` parameter should match EXACTLY one or more consecutive lines from the original file. Be mindful of whitespaces!
* If the ` + "`old_str`" + ` parameter is not unique in the file, the replacement will not be performed. Make sure to include enough context in ` + "`old_str`" + ` to make it unique
* The ` + "`new_str`" + ` parameter should contain the edited lines that should replace the ` + "`old_str`" + `
* Should use absolute paths with respect to the working directory for file operations. If you use relative paths, they will be resolved from the working directory.`
}

func (t *StrReplaceEditorTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"enum":        []string{"view", "create", "str_replace", "insert", "undo_edit"},
				"description": "The commands to run. Allowed options are: `view`, `create`, `str_replace`, `insert`, `undo_edit`.",
			},
			"file_text": map[string]any{
				"type":        "string",
				"description": "Required parameter of `create` command, with the content of the file to be created.",
			},
			"insert_line": map[string]any{
				"type":        "integer",
				"description": "Required parameter of `insert` command. The `new_str` will be inserted AFTER the line `insert_line` of `path`.",
			},
			"new_str": map[string]any{
				"type":        "string",
				"description": "Required parameter of `str_replace` command containing the new string. Required parameter of `insert` command containing the string to insert.",
			},
			"old_str": map[string]any{
				"type":        "string",
				"description": "Required parameter of `str_replace` command containing the string in `path` to replace.",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Path to file or directory.",
			},
			"view_range": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "integer"},
				"description": "Optional parameter of `view` command when `path` points to a file. If none is given, the full file is shown. If provided, the file will be shown in the indicated line number range, e.g. [11, 12] will show lines 11 and 12. Indexing at 1 to start. Setting `[start_line, -1]` shows all lines from `start_line` to the end of the file.",
			},
		},
		"required": []string{"command", "path"},
	}
}

func (t *StrReplaceEditorTool) Execute(ctx context.Context, args map[string]any) *Result {
	command, _ := args["command"].(string)
	path, _ := args["path"].(string)

	wsPath := t.workspace.ToolPath(path)
	relPath := t.workspace.RelativePath(path)

	if resp := t.files.ValidatePath(command, wsPath, relPath); !resp.Success {
		return ErrorResult(resp.Content)
	}
	if !t.files.IsPathInDirectory(t.workspace.RootPath(), wsPath) {
		msg := fmt.Sprintf("Path %s is outside the workspace root directory. You can only access files within the workspace root directory.", relPath)
		return ErrorResult(msg)
	}

	switch command {
	case "view":
		return t.view(wsPath, relPath, args)
	case "create":
		fileText, ok := args["file_text"].(string)
		if !ok {
			return ErrorResult("Parameter `file_text` is required for command: create")
		}
		if resp := t.files.WriteFile(wsPath, fileText, relPath); !resp.Success {
			return ErrorResult(resp.Content)
		}
		t.notifyFileEdit(wsPath, fileText)
		msg := fmt.Sprintf("File created successfully at: %s", relPath)
		return NewResultWithMessage(msg, msg)
	case "str_replace":
		oldStr, ok := args["old_str"].(string)
		if !ok {
			return ErrorResult("Parameter `old_str` is required for command: str_replace")
		}
		newStr, _ := args["new_str"].(string)
		resp := t.files.StrReplace(wsPath, oldStr, newStr, relPath)
		if !resp.Success {
			return ErrorResult(resp.Content)
		}
		t.notifyCurrentContent(wsPath, relPath)
		return NewResultWithMessage(resp.Content, fmt.Sprintf("The file %s has been edited.", relPath))
	case "insert":
		if _, ok := args["insert_line"]; !ok {
			return ErrorResult("Parameter `insert_line` is required for command: insert")
		}
		newStr, ok := args["new_str"].(string)
		if !ok {
			return ErrorResult("Parameter `new_str` is required for command: insert")
		}
		resp := t.files.Insert(wsPath, intArg(args, "insert_line"), newStr, relPath)
		if !resp.Success {
			return ErrorResult(resp.Content)
		}
		t.notifyCurrentContent(wsPath, relPath)
		return NewResultWithMessage(resp.Content, "Insert successful")
	case "undo_edit":
		resp := t.files.UndoEdit(wsPath, relPath)
		if !resp.Success {
			return ErrorResult(resp.Content)
		}
		t.notifyFileEdit(wsPath, resp.Content)
		return NewResultWithMessage(resp.Content, "Undo successful")
	default:
		return ErrorResult(fmt.Sprintf("Unrecognized command %s. The allowed commands for the %s tool are: view, create, str_replace, insert, undo_edit", command, t.Name()))
	}
}

func (t *StrReplaceEditorTool) view(wsPath, relPath string, args map[string]any) *Result {
	var viewRange []int
	if raw, ok := args["view_range"].([]any); ok {
		for _, v := range raw {
			if n, ok := v.(float64); ok {
				viewRange = append(viewRange, int(n))
			}
		}
	}
	resp := t.files.View(wsPath, viewRange, relPath)
	if !resp.Success {
		return ErrorResult(resp.Content)
	}
	return NewResultWithMessage(resp.Content, "Displayed file content")
}

// notifyCurrentContent re-reads the file and publishes its content so
// connected clients can refresh their editor view.
func (t *StrReplaceEditorTool) notifyCurrentContent(wsPath, relPath string) {
	resp := t.files.ReadFile(wsPath, relPath)
	if resp.Success {
		t.notifyFileEdit(wsPath, resp.Content)
	}
}

func (t *StrReplaceEditorTool) notifyFileEdit(path, content string) {
	if t.events == nil {
		return
	}
	t.events.Push(bus.New(protocol.EventFileEdit, map[string]any{
		"path":        path,
		"content":     content,
		"total_lines": len(strings.Split(content, "\n")),
	}))
}
