package terminal

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCleanANSI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"color codes", "\x1b[31mred\x1b[0m text", "red text"},
		{"cursor controls", "\x1b[2J\x1b[Hcleared", "cleared"},
		{"leading carriage return", "\rprompt", "prompt"},
		{"inner carriage returns kept", "a\r\nb", "a\r\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CleanANSI(tt.in))
		})
	}
}

func TestExtractPromptDirectory(t *testing.T) {
	raw := "leftover output\n[CMD_BEGIN]\nuser@host:/home/user/project\n"
	require.Equal(t, "user@host:/home/user/project", extractPromptDirectory(raw))

	// Repeated sentinels: the last prompt wins.
	raw = "[CMD_BEGIN]\nu@h:/a\n[CMD_END]\n[CMD_BEGIN]\nu@h:/b\n"
	require.Equal(t, "u@h:/b", extractPromptDirectory(raw))
}

func TestDropEchoedCommand(t *testing.T) {
	require.Equal(t, "hi", dropEchoedCommand("echo hi\nhi", "echo hi"))
	require.Equal(t, "output only", dropEchoedCommand("output only", "ls"))
	require.Equal(t, "", dropEchoedCommand("ls", "ls"))
}

func TestClipOutput(t *testing.T) {
	short := strings.Repeat("a", 100)
	require.Equal(t, short, clipOutput(short))

	long := strings.Repeat("b", 6000)
	clipped := clipOutput(long)
	require.True(t, strings.HasPrefix(clipped, "[Content Truncated]"))
	require.Len(t, clipped, len("[Content Truncated]")+maxOutputChars)
}

func TestFormatOutputCompletedCommand(t *testing.T) {
	m := NewManager("/ws/root", discardLogger(), WithRelativePaths())
	session := &Session{currentDir: PathPlaceholder}

	raw := "echo hi\r\nhi\n[CMD_BEGIN]\nuser@host:/ws/root\n"
	out := m.formatOutput(raw, "echo hi", session, 30*time.Second, false)

	require.Equal(t, PathPlaceholder+"$ echo hi\nhi", out)
	// The prompt after the command carries the new working directory.
	require.Equal(t, "user@host:"+PathPlaceholder, session.currentDir)
}

func TestFormatOutputStillRunning(t *testing.T) {
	m := NewManager("/ws/root", discardLogger())
	session := &Session{currentDir: "/ws/root"}

	out := m.formatOutput("partial output", "sleep 60", session, 30*time.Second, false)
	require.Contains(t, out, "/ws/root$ sleep 60")
	require.Contains(t, out, "The command is still running after 30 seconds. Output so far:")
	require.Contains(t, out, "partial output")

	out = m.formatOutput("", "sleep 60", session, 5*time.Second, true)
	require.Contains(t, out, "Process running. Output so far:")
}

func TestShellOpsOnMissingSession(t *testing.T) {
	m := NewManager(t.TempDir(), discardLogger())
	defer m.Close()

	require.False(t, m.ShellView("nope").Success)
	require.False(t, m.ShellWait("nope", 0).Success)
	require.False(t, m.ShellWriteToProcess("nope", "x", true).Success)
	require.False(t, m.ShellKillProcess("nope").Success)
}

func TestShellExecLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a real shell")
	}
	m := NewManager(t.TempDir(), discardLogger())
	defer m.Close()

	res := m.ShellExec("s1", "echo hello-from-pty", "", 10*time.Second)
	require.True(t, res.Success, res.Output)
	require.Contains(t, res.Output, "hello-from-pty")
	require.Contains(t, res.Output, "$")

	// State persists across calls in the same session.
	res = m.ShellExec("s1", "export MARKER=persisted && echo set", "", 10*time.Second)
	require.True(t, res.Success, res.Output)
	res = m.ShellExec("s1", "echo $MARKER", "", 10*time.Second)
	require.True(t, res.Success, res.Output)
	require.Contains(t, res.Output, "persisted")

	view := m.ShellView("s1")
	require.True(t, view.Success)
	require.Contains(t, view.Output, "hello-from-pty")

	require.True(t, m.ShellKillProcess("s1").Success)
	require.False(t, m.ShellView("s1").Success)
}

func TestShellExecTimeoutAndBusy(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a real shell")
	}
	m := NewManager(t.TempDir(), discardLogger())
	defer m.Close()

	res := m.ShellExec("s1", "sleep 30", "", 1*time.Second)
	require.False(t, res.Success)
	require.Contains(t, res.Output, "still running after 1 seconds")

	res = m.ShellExec("s1", "echo next", "", 5*time.Second)
	require.False(t, res.Success)
	require.Contains(t, res.Output, "Previous command sleep 30 is still running")
}
