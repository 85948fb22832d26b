package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidatePath(t *testing.T) {
	e := NewEditor()
	dir := t.TempDir()
	existing := writeTemp(t, "a.txt", "content")
	empty := writeTemp(t, "empty.txt", "  \n")

	tests := []struct {
		name    string
		command string
		path    string
		wantErr string
	}{
		{"missing path for view", "view", filepath.Join(dir, "nope.txt"), "does not exist"},
		{"create over non-empty file", "create", existing, "Cannot overwrite non empty files"},
		{"create over empty file ok", "create", empty, ""},
		{"create new file ok", "create", filepath.Join(dir, "new.txt"), ""},
		{"edit a directory", "str_replace", dir, "only the `view` command can be used on directories"},
		{"view a directory ok", "view", dir, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.ValidatePath(tt.command, tt.path, "")
			if tt.wantErr == "" {
				require.True(t, resp.Success, resp.Content)
				return
			}
			require.False(t, resp.Success)
			require.Contains(t, resp.Content, tt.wantErr)
		})
	}
}

func TestViewFileNumbering(t *testing.T) {
	e := NewEditor()
	path := writeTemp(t, "f.txt", "alpha\nbeta\ngamma")

	resp := e.View(path, nil, "")
	require.True(t, resp.Success)
	require.Contains(t, resp.Content, fmt.Sprintf("%6d\talpha", 1))
	require.Contains(t, resp.Content, fmt.Sprintf("%6d\tgamma", 3))
	require.Contains(t, resp.Content, "Total lines in file: 3")
}

func TestViewRange(t *testing.T) {
	e := NewEditor()
	path := writeTemp(t, "f.txt", "l1\nl2\nl3\nl4\nl5")

	resp := e.View(path, []int{2, 4}, "")
	require.True(t, resp.Success)
	require.Contains(t, resp.Content, fmt.Sprintf("%6d\tl2", 2))
	require.Contains(t, resp.Content, fmt.Sprintf("%6d\tl4", 4))
	require.NotContains(t, resp.Content, "\tl5")

	resp = e.View(path, []int{2, -1}, "")
	require.True(t, resp.Success)
	require.Contains(t, resp.Content, fmt.Sprintf("%6d\tl5", 5))

	for _, bad := range [][]int{{0, 3}, {2, 99}, {4, 2}, {1, 2, 3}} {
		resp := e.View(path, bad, "")
		require.False(t, resp.Success, "range %v", bad)
		require.Contains(t, resp.Content, "view_range")
	}
}

func TestViewDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "deep", "deeper"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), nil, 0o644))

	e := NewEditor(WithRelativePaths(root))
	resp := e.View(root, nil, "")
	require.True(t, resp.Success)
	require.Contains(t, resp.Content, "up to 2 levels deep")
	require.Contains(t, resp.Content, filepath.Join(PathPlaceholder, "src", "main.go"))
	require.NotContains(t, resp.Content, "node_modules")
	require.NotContains(t, resp.Content, ".hidden")
	require.NotContains(t, resp.Content, ".git")
	require.NotContains(t, resp.Content, "deeper")
	require.NotContains(t, resp.Content, root)

	resp = e.View(root, []int{1, 2}, "")
	require.False(t, resp.Success)
	require.Contains(t, resp.Content, "not allowed when `path` points to a directory")
}

func TestStrReplace(t *testing.T) {
	e := NewEditor()
	path := writeTemp(t, "f.txt", "one\ntwo\nthree\n")

	resp := e.StrReplace(path, "two", "TWO", "")
	require.True(t, resp.Success)
	require.Contains(t, resp.Content, "has been edited")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "one\nTWO\nthree\n", string(data))
}

func TestStrReplaceNotFoundAndAmbiguous(t *testing.T) {
	e := NewEditor()
	path := writeTemp(t, "f.txt", "dup\nother\ndup\n")

	resp := e.StrReplace(path, "missing", "x", "")
	require.False(t, resp.Success)
	require.Contains(t, resp.Content, "did not appear verbatim")

	resp = e.StrReplace(path, "dup", "x", "")
	require.False(t, resp.Success)
	require.Contains(t, resp.Content, "Multiple occurrences")
	require.Contains(t, resp.Content, "[1 3]")
}

func TestStrReplaceEmptyOldStr(t *testing.T) {
	e := NewEditor()
	empty := writeTemp(t, "empty.txt", "")
	full := writeTemp(t, "full.txt", "content")

	resp := e.StrReplace(empty, "", "seeded", "")
	require.True(t, resp.Success)
	data, _ := os.ReadFile(empty)
	require.Equal(t, "seeded", string(data))

	resp = e.StrReplace(full, "", "x", "")
	require.False(t, resp.Success)
	require.Contains(t, resp.Content, "only allowed when the file is empty")
}

func TestStrReplaceIgnoreIndentation(t *testing.T) {
	e := NewEditor(WithIgnoreIndentation())
	path := writeTemp(t, "f.py", "def run():\n    if ready:\n        foo()\n    done()\n")

	// old_str carries no indentation but matches the indented line.
	resp := e.StrReplace(path, "foo()", "bar()", "")
	require.True(t, resp.Success, resp.Content)
	data, _ := os.ReadFile(path)
	require.Equal(t, "def run():\n    if ready:\n        bar()\n    done()\n", string(data))

	// The edit is undoable like any other.
	require.True(t, e.UndoEdit(path, "").Success)
	data, _ = os.ReadFile(path)
	require.Equal(t, "def run():\n    if ready:\n        foo()\n    done()\n", string(data))
}

func TestStrReplaceIgnoreIndentationReindentsBlock(t *testing.T) {
	e := NewEditor(WithIgnoreIndentation())
	path := writeTemp(t, "f.py", "class A:\n    def old(self):\n        pass\n")

	resp := e.StrReplace(path, "def old(self):\n    pass", "def new(self):\n    return 1", "")
	require.True(t, resp.Success, resp.Content)
	data, _ := os.ReadFile(path)
	// The replacement picks up the first matched line's indentation and
	// keeps its own relative structure.
	require.Equal(t, "class A:\n    def new(self):\n        return 1\n", string(data))
}

func TestStrReplaceIgnoreIndentationKeepsLineTail(t *testing.T) {
	e := NewEditor(WithIgnoreIndentation())
	path := writeTemp(t, "f.py", "    foo() # keep\n")

	resp := e.StrReplace(path, "foo()", "bar()", "")
	require.True(t, resp.Success, resp.Content)
	data, _ := os.ReadFile(path)
	require.Equal(t, "    bar() # keep\n", string(data))
}

func TestStrReplaceIgnoreIndentationFailures(t *testing.T) {
	e := NewEditor(WithIgnoreIndentation())
	path := writeTemp(t, "f.txt", "alpha\n  dup\nother\n    dup\n")

	resp := e.StrReplace(path, "missing", "x", "")
	require.False(t, resp.Success)
	require.Contains(t, resp.Content, "did not appear in")

	resp = e.StrReplace(path, "dup", "x", "")
	require.False(t, resp.Success)
	require.Contains(t, resp.Content, "starting at lines [2 4]")

	// Content is untouched after failed attempts.
	data, _ := os.ReadFile(path)
	require.Equal(t, "alpha\n  dup\nother\n    dup\n", string(data))
}

func TestInsert(t *testing.T) {
	e := NewEditor()
	path := writeTemp(t, "f.txt", "a\nb\nc")

	resp := e.Insert(path, 1, "inserted", "")
	require.True(t, resp.Success)
	data, _ := os.ReadFile(path)
	require.Equal(t, "a\ninserted\nb\nc", string(data))

	resp = e.Insert(path, 0, "top", "")
	require.True(t, resp.Success)
	data, _ = os.ReadFile(path)
	require.Equal(t, "top\na\ninserted\nb\nc", string(data))

	resp = e.Insert(path, 99, "x", "")
	require.False(t, resp.Success)
	require.Contains(t, resp.Content, "Invalid `insert_line`")
}

func TestUndoStack(t *testing.T) {
	e := NewEditor()
	path := writeTemp(t, "f.txt", "v1")

	require.True(t, e.StrReplace(path, "v1", "v2", "").Success)
	require.True(t, e.StrReplace(path, "v2", "v3", "").Success)

	require.True(t, e.UndoEdit(path, "").Success)
	data, _ := os.ReadFile(path)
	require.Equal(t, "v2", string(data))

	require.True(t, e.UndoEdit(path, "").Success)
	data, _ = os.ReadFile(path)
	require.Equal(t, "v1", string(data))

	resp := e.UndoEdit(path, "")
	require.False(t, resp.Success)
	require.Contains(t, resp.Content, "No edit history found")
}

func TestUndoAfterWriteFile(t *testing.T) {
	e := NewEditor()
	path := writeTemp(t, "f.txt", "original")

	require.True(t, e.WriteFile(path, "overwritten", "").Success)
	require.True(t, e.UndoEdit(path, "").Success)
	data, _ := os.ReadFile(path)
	require.Equal(t, "original", string(data))
}

func TestLongResponseClipped(t *testing.T) {
	e := NewEditor()
	path := writeTemp(t, "big.txt", strings.Repeat("line\n", 60000))

	resp := e.View(path, nil, "")
	require.True(t, resp.Success)
	require.Contains(t, resp.Content, "<response clipped>")
}

func TestIsPathInDirectory(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(dir, "a.txt"), true},
		{filepath.Join(dir, "sub", "b.txt"), true},
		{dir, true},
		{filepath.Join(dir, "..", "escape.txt"), false},
		{"/etc/passwd", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, IsPathInDirectory(dir, tt.path), tt.path)
	}
}

func TestDisplayPathUsedInMessages(t *testing.T) {
	e := NewEditor()
	path := writeTemp(t, "f.txt", "x")

	resp := e.StrReplace(path, "x", "y", "/workspace/f.txt")
	require.True(t, resp.Success)
	require.Contains(t, resp.Content, "/workspace/f.txt")
	require.NotContains(t, resp.Content, path)
}
