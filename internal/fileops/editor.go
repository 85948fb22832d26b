// Package fileops implements the str-replace file editor: view, create,
// replace, insert and undo on workspace files, with model-facing output
// formatting. Failures the model can act on are returned as response
// text, not Go errors.
package fileops

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	snippetLines   = 4
	maxResponseLen = 200000

	truncatedNotice = "<response clipped><NOTE>To save on context only part of this file has been shown to you. You should retry this tool after you have searched inside the file with `grep -n` in order to find the line numbers of what you are looking for.</NOTE>"

	// PathPlaceholder substitutes the workspace path in outputs when
	// relative-path mode is on.
	PathPlaceholder = ".WORKING_DIR"
)

var excludedDirs = map[string]bool{
	"node_modules": true,
	"dist":         true,
	"build":        true,
}

// Response is the outcome of an editor operation. Content carries the
// formatted result or, when Success is false, the error text.
type Response struct {
	Success bool   `json:"success"`
	Content string `json:"file_content"`
}

type opError struct{ msg string }

func (e *opError) Error() string { return e.msg }

func failf(format string, args ...any) *opError {
	return &opError{msg: fmt.Sprintf(format, args...)}
}

// Editor performs file edits with a per-file undo history.
type Editor struct {
	mu                sync.Mutex
	history           map[string][]string
	useRelativePath   bool
	ignoreIndentation bool
	cwd               string
}

type Option func(*Editor)

// WithRelativePaths rewrites the workspace path to the placeholder in
// directory listings.
func WithRelativePaths(cwd string) Option {
	return func(e *Editor) {
		e.useRelativePath = true
		e.cwd = cwd
	}
}

// WithIgnoreIndentation makes StrReplace match lines with surrounding
// whitespace stripped and re-indent the replacement to the first
// matched line.
func WithIgnoreIndentation() Option {
	return func(e *Editor) { e.ignoreIndentation = true }
}

func NewEditor(opts ...Option) *Editor {
	e := &Editor{history: make(map[string][]string)}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Editor) readFile(path, displayPath string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", failf("Ran into %s while trying to read %s", err, displayPath)
	}
	return string(data), nil
}

func (e *Editor) writeFile(path, content, displayPath string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return failf("Ran into %s while trying to write to %s", err, displayPath)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return failf("Ran into %s while trying to write to %s", err, displayPath)
	}
	return nil
}

func (e *Editor) pushHistory(path, content string) {
	e.history[path] = append(e.history[path], content)
}

func respond(err error) Response {
	return Response{Success: false, Content: err.Error()}
}

// ValidatePath checks a path/command combination the way the editing
// tool expects: create refuses non-empty existing files, everything but
// view refuses directories, and all commands but create require the
// path to exist.
func (e *Editor) ValidatePath(command, path, displayPath string) Response {
	if displayPath == "" {
		displayPath = path
	}
	if err := e.validatePath(command, path, displayPath); err != nil {
		return respond(err)
	}
	return Response{Success: true}
}

func (e *Editor) validatePath(command, path, displayPath string) error {
	info, err := os.Stat(path)
	exists := err == nil
	if !exists && command != "create" {
		return failf("The path %s does not exist. Please provide a valid path.", displayPath)
	}
	if exists && command == "create" {
		content, err := e.readFile(path, displayPath)
		if err == nil && strings.TrimSpace(content) != "" {
			return failf("File already exists and is not empty at: %s. Cannot overwrite non empty files using command `create`.", displayPath)
		}
	}
	if exists && info.IsDir() && command != "view" {
		return failf("The path %s is a directory and only the `view` command can be used on directories", displayPath)
	}
	return nil
}

// ReadFile returns the raw content of a file.
func (e *Editor) ReadFile(path, displayPath string) Response {
	if displayPath == "" {
		displayPath = path
	}
	content, err := e.readFile(path, displayPath)
	if err != nil {
		return respond(err)
	}
	return Response{Success: true, Content: content}
}

// WriteFile overwrites a file, recording the previous content for undo.
func (e *Editor) WriteFile(path, content, displayPath string) Response {
	if displayPath == "" {
		displayPath = path
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if old, err := e.readFile(path, displayPath); err == nil {
		e.pushHistory(path, old)
	}
	if err := e.writeFile(path, content, displayPath); err != nil {
		return respond(err)
	}
	return Response{Success: true, Content: content}
}

// View renders a file with line numbers, or lists a directory two
// levels deep (hidden entries and build dirs excluded).
func (e *Editor) View(path string, viewRange []int, displayPath string) Response {
	if displayPath == "" {
		displayPath = path
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if len(viewRange) > 0 {
			return respond(failf("The `view_range` parameter is not allowed when `path` points to a directory."))
		}
		listing, err := listDirectory(path)
		if err != nil {
			return respond(failf("Ran into %s while listing %s", err, displayPath))
		}
		output := fmt.Sprintf("Here's the files and directories up to 2 levels deep in %s, excluding hidden items:\n%s\n", displayPath, listing)
		if e.useRelativePath && e.cwd != "" {
			output = strings.ReplaceAll(output, e.cwd, PathPlaceholder)
		}
		return Response{Success: true, Content: output}
	}

	content, err := e.readFile(path, displayPath)
	if err != nil {
		return respond(err)
	}

	lines := strings.Split(content, "\n")
	initLine := 1
	if len(viewRange) > 0 {
		if len(viewRange) != 2 {
			return respond(failf("Invalid `view_range`. It should be a list of two integers."))
		}
		nLines := len(lines)
		initLine = viewRange[0]
		finalLine := viewRange[1]
		if initLine < 1 || initLine > nLines {
			return respond(failf("Invalid `view_range`: %v. Its first element `%d` should be within the range of lines of the file: [1, %d]", viewRange, initLine, nLines))
		}
		if finalLine > nLines {
			return respond(failf("Invalid `view_range`: %v. Its second element `%d` should be smaller than the number of lines in the file: `%d`", viewRange, finalLine, nLines))
		}
		if finalLine != -1 && finalLine < initLine {
			return respond(failf("Invalid `view_range`: %v. Its second element `%d` should be larger or equal than its first `%d`", viewRange, finalLine, initLine))
		}
		if finalLine == -1 {
			content = strings.Join(lines[initLine-1:], "\n")
		} else {
			content = strings.Join(lines[initLine-1:finalLine], "\n")
		}
	}

	return Response{Success: true, Content: makeOutput(content, displayPath, len(lines), initLine)}
}

func listDirectory(root string) (string, error) {
	var out strings.Builder
	rootDepth := strings.Count(filepath.Clean(root), string(os.PathSeparator))

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if path != root {
			if strings.HasPrefix(name, ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() && excludedDirs[name] {
				return filepath.SkipDir
			}
		}
		depth := strings.Count(filepath.Clean(path), string(os.PathSeparator)) - rootDepth
		if depth > 2 {
			return filepath.SkipDir
		}
		out.WriteString(path + "\n")
		return nil
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

// StrReplace replaces a unique occurrence of oldStr with newStr.
// An empty oldStr is only allowed on an empty file and replaces its
// whole content. With WithIgnoreIndentation the match is line-wise on
// whitespace-stripped lines and the replacement is re-indented to the
// first matched line.
func (e *Editor) StrReplace(path, oldStr, newStr, displayPath string) Response {
	if displayPath == "" {
		displayPath = path
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	content, err := e.readFile(path, displayPath)
	if err != nil {
		return respond(err)
	}

	if strings.TrimSpace(oldStr) == "" {
		if strings.TrimSpace(content) != "" {
			return respond(failf("No replacement was performed, old_str is empty which is only allowed when the file is empty. The file %s is not empty.", displayPath))
		}
		e.pushHistory(path, content)
		if err := e.writeFile(path, newStr, displayPath); err != nil {
			return respond(err)
		}
		msg := fmt.Sprintf("The file %s has been edited. Here's the new content:\n%s", displayPath, newStr)
		msg += makeOutput(newStr, displayPath, len(strings.Split(newStr, "\n")), 1)
		msg += "Review the changes and make sure they are as expected. Edit the file again if necessary."
		return Response{Success: true, Content: msg}
	}

	if e.ignoreIndentation {
		return e.strReplaceIgnoreIndent(path, content, oldStr, newStr, displayPath)
	}

	occurrences := strings.Count(content, oldStr)
	if occurrences == 0 {
		return respond(failf("No replacement was performed, old_str \n ```\n%s\n```\n did not appear verbatim in %s.", oldStr, displayPath))
	}
	if occurrences > 1 {
		var lines []int
		for idx, line := range strings.Split(content, "\n") {
			if strings.Contains(line, oldStr) {
				lines = append(lines, idx+1)
			}
		}
		return respond(failf("No replacement was performed. Multiple occurrences of old_str \n ```\n%s\n```\n in lines %v. Please ensure it is unique", oldStr, lines))
	}

	newContent := strings.Replace(content, oldStr, newStr, 1)
	e.pushHistory(path, content)
	if err := e.writeFile(path, newContent, displayPath); err != nil {
		return respond(err)
	}

	replacementLine := strings.Count(strings.SplitN(content, oldStr, 2)[0], "\n")
	startLine := max(0, replacementLine-snippetLines)
	endLine := replacementLine + snippetLines + strings.Count(newStr, "\n")
	newLines := strings.Split(newContent, "\n")
	snippet := strings.Join(newLines[startLine:min(endLine+1, len(newLines))], "\n")

	msg := fmt.Sprintf("The file %s has been edited. ", displayPath)
	msg += makeOutput(snippet, fmt.Sprintf("a snippet of %s", displayPath), len(newLines), startLine+1)
	msg += "Review the changes and make sure they are as expected. Edit the file again if necessary."
	return Response{Success: true, Content: msg}
}

// Insert inserts newStr after line insertLine (0 prepends).
func (e *Editor) Insert(path string, insertLine int, newStr, displayPath string) Response {
	if displayPath == "" {
		displayPath = path
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	content, err := e.readFile(path, displayPath)
	if err != nil {
		return respond(err)
	}

	lines := strings.Split(content, "\n")
	nLines := len(lines)
	if insertLine < 0 || insertLine > nLines {
		return respond(failf("Invalid `insert_line` parameter: %d. It should be within the range of lines of the file: [0, %d]", insertLine, nLines))
	}

	newLines := strings.Split(newStr, "\n")
	combined := make([]string, 0, nLines+len(newLines))
	combined = append(combined, lines[:insertLine]...)
	combined = append(combined, newLines...)
	combined = append(combined, lines[insertLine:]...)

	snippetParts := make([]string, 0)
	snippetParts = append(snippetParts, lines[max(0, insertLine-snippetLines):insertLine]...)
	snippetParts = append(snippetParts, newLines...)
	snippetParts = append(snippetParts, lines[insertLine:min(insertLine+snippetLines, nLines)]...)

	e.pushHistory(path, content)
	if err := e.writeFile(path, strings.Join(combined, "\n"), displayPath); err != nil {
		return respond(err)
	}

	msg := fmt.Sprintf("The file %s has been edited. ", displayPath)
	msg += makeOutput(strings.Join(snippetParts, "\n"), "a snippet of the edited file", len(combined), max(1, insertLine-snippetLines+1))
	msg += "Review the changes and make sure they are as expected (correct indentation, no duplicate lines, etc). Edit the file again if necessary."
	return Response{Success: true, Content: msg}
}

// UndoEdit restores the content recorded before the last edit.
func (e *Editor) UndoEdit(path, displayPath string) Response {
	if displayPath == "" {
		displayPath = path
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	stack := e.history[path]
	if len(stack) == 0 {
		return respond(failf("No edit history found for %s.", displayPath))
	}
	oldText := stack[len(stack)-1]
	e.history[path] = stack[:len(stack)-1]

	if err := e.writeFile(path, oldText, displayPath); err != nil {
		return respond(err)
	}
	msg := fmt.Sprintf("Last edit to %s undone successfully.\n", displayPath)
	msg += makeOutput(oldText, displayPath, len(strings.Split(oldText, "\n")), 1)
	return Response{Success: true, Content: msg}
}

// IsPathInDirectory reports whether path resolves inside directory.
func IsPathInDirectory(directory, path string) bool {
	dirAbs, err := filepath.Abs(directory)
	if err != nil {
		return false
	}
	pathAbs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dirAbs, pathAbs)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && rel != "..")
}

func maybeTruncate(content string) string {
	if len(content) <= maxResponseLen {
		return content
	}
	return content[:maxResponseLen] + truncatedNotice
}

// makeOutput renders content in `cat -n` style with a line-count footer.
func makeOutput(content, descriptor string, totalLines, initLine int) string {
	content = maybeTruncate(content)
	var numbered strings.Builder
	for i, line := range strings.Split(content, "\n") {
		fmt.Fprintf(&numbered, "%6d\t%s\n", i+initLine, line)
	}
	return fmt.Sprintf("Here's the result of running `cat -n` on %s:\n%sTotal lines in file: %d\n",
		descriptor, numbered.String(), totalLines)
}
