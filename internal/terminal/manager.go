// Package terminal manages persistent interactive shell sessions on a
// pseudo-terminal. Command boundaries are detected with sentinel
// markers baked into the shell prompt, so interactive programs and
// long-running commands keep working across calls.
package terminal

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	markerBegin = "[CMD_BEGIN]"
	markerEnd   = "[CMD_END]"

	// promptSetup bakes the sentinels into the prompt and disables
	// both echo and continuation prompts.
	promptSetup = `stty -echo; export PS1="[CMD_BEGIN]\n\u@\h:\w\n[CMD_END]"; export PS2=""`

	// PathPlaceholder substitutes the workspace path in outputs when
	// relative-path mode is on.
	PathPlaceholder = ".WORKING_DIR"

	maxOutputChars = 5000
)

// Session states.
const (
	StateIdle      = "idle"
	StateReady     = "ready"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateError     = "error"
)

// Result is the outcome of a shell operation. Failures that the model
// should see (timeouts, busy sessions) are reported here, not as errors.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
}

// Session is one named shell with its own process and history.
type Session struct {
	ID          string
	proc        *ptyProcess
	state       string
	lastCommand string
	history     []string
	currentDir  string
}

// Manager owns all shell sessions for one workspace.
type Manager struct {
	mu              sync.Mutex
	sessions        map[string]*Session
	defaultShell    string
	defaultTimeout  time.Duration
	cwd             string
	workDir         string
	useRelativePath bool
	logger          *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRelativePaths rewrites absolute workspace paths in outputs to
// the placeholder.
func WithRelativePaths() Option {
	return func(m *Manager) { m.useRelativePath = true }
}

func WithShell(shell string) Option {
	return func(m *Manager) { m.defaultShell = shell }
}

func NewManager(cwd string, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		sessions:       make(map[string]*Session),
		defaultShell:   "/bin/bash",
		defaultTimeout: 10 * time.Second,
		cwd:            cwd,
		logger:         logger,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) createSession(id string) *Session {
	session := &Session{ID: id, state: StateIdle}

	proc, err := startPty(m.defaultShell, m.cwd)
	if err != nil {
		m.logger.Error("terminal.session.start_failed", "session", id, "error", err)
		session.state = StateError
		return session
	}

	time.Sleep(200 * time.Millisecond)
	if err := proc.SendLine(promptSetup); err != nil {
		m.logger.Error("terminal.session.setup_failed", "session", id, "error", err)
		proc.Kill()
		session.state = StateError
		return session
	}
	before, err := proc.Expect(markerEnd, m.defaultTimeout)
	if err != nil {
		m.logger.Error("terminal.session.prompt_failed", "session", id, "error", err)
		proc.Kill()
		session.state = StateError
		return session
	}

	currentDir := extractPromptDirectory(before)
	if idx := strings.LastIndex(currentDir, ":"); idx >= 0 {
		m.workDir = strings.TrimSpace(currentDir[idx+1:])
	}
	session.currentDir = m.rewritePath(currentDir)
	session.proc = proc
	session.state = StateReady
	m.sessions[id] = session
	m.logger.Info("terminal.session.created", "session", id, "dir", session.currentDir)
	return session
}

// extractPromptDirectory pulls the user@host:dir line out of prompt
// output containing the begin sentinel.
func extractPromptDirectory(promptOutput string) string {
	parts := strings.Split(promptOutput, markerBegin)
	last := parts[len(parts)-1]
	last = strings.ReplaceAll(last, "\n", "")
	last = strings.ReplaceAll(last, "\r", "")
	return strings.TrimSpace(CleanANSI(last))
}

func (m *Manager) rewritePath(s string) string {
	if !m.useRelativePath {
		return s
	}
	if m.cwd != "" {
		s = strings.ReplaceAll(s, m.cwd, PathPlaceholder)
	}
	if m.workDir != "" {
		s = strings.ReplaceAll(s, m.workDir, PathPlaceholder)
	}
	return s
}

// formatOutput turns raw pty output into the transcript form
// `dir$ command` + output, truncated to the last 5000 characters.
func (m *Manager) formatOutput(raw, command string, session *Session, timeout time.Duration, view bool) string {
	return m.rewritePath(m.formatOutputRaw(raw, command, session, timeout, view))
}

func (m *Manager) formatOutputRaw(raw, command string, session *Session, timeout time.Duration, view bool) string {
	raw = CleanANSI(raw)

	var commandOutput, newDirectory string
	if strings.Contains(raw, markerBegin) {
		parts := strings.SplitN(raw, markerBegin, 2)
		commandOutput = strings.TrimSpace(parts[0])
		newDirectory = strings.TrimSpace(strings.NewReplacer("\n", "", "\r", "").Replace(parts[1]))
	} else {
		// No begin sentinel means the command is still running.
		commandOutput = dropEchoedCommand(strings.TrimSpace(raw), command)
		commandOutput = clipOutput(commandOutput)

		formattedCommand := fmt.Sprintf("%s$ %s", session.currentDir, command)
		timeoutMessage := fmt.Sprintf("The command is still running after %d seconds. Output so far:", int(timeout.Seconds()))
		if view {
			timeoutMessage = "Process running. Output so far:"
		}
		if commandOutput != "" {
			return fmt.Sprintf("%s\n%s\n%s", formattedCommand, timeoutMessage, commandOutput)
		}
		return fmt.Sprintf("%s\n%s", formattedCommand, timeoutMessage)
	}

	commandOutput = dropEchoedCommand(commandOutput, command)
	commandOutput = clipOutput(commandOutput)

	formattedCommand := fmt.Sprintf("%s$ %s", session.currentDir, command)
	if newDirectory != "" {
		session.currentDir = m.rewritePath(newDirectory)
	}

	if commandOutput != "" {
		return fmt.Sprintf("%s\n%s", formattedCommand, commandOutput)
	}
	return formattedCommand
}

func dropEchoedCommand(output, command string) string {
	lines := strings.Split(output, "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == strings.TrimSpace(command) {
		return strings.Join(lines[1:], "\n")
	}
	return output
}

func clipOutput(output string) string {
	if len(output) > maxOutputChars {
		return "[Content Truncated]" + output[len(output)-maxOutputChars:]
	}
	return output
}

func (m *Manager) execute(session *Session, command string, timeout time.Duration) Result {
	if err := session.proc.SendLine(command); err != nil {
		return Result{Success: false, Output: fmt.Sprintf("Shell process ended: %s", err)}
	}
	session.lastCommand = command
	session.state = StateRunning

	before, err := session.proc.Expect(markerEnd, timeout)
	if err != nil {
		if errors.Is(err, ErrExpectTimeout) {
			session.state = StateRunning
			return Result{Success: false, Output: m.formatOutput(before, command, session, timeout, false)}
		}
		return Result{Success: false, Output: fmt.Sprintf("Shell process ended: %s", err)}
	}

	session.state = StateCompleted
	formatted := m.formatOutput(before, command, session, timeout, false)
	session.history = append(session.history, formatted)
	return Result{Success: true, Output: formatted + fmt.Sprintf("\n%s$", session.currentDir)}
}

// ShellExec runs a command in the named session, creating it on first
// use. A session still running its previous command is polled briefly;
// if it has not finished, the call is rejected with a busy message.
func (m *Manager) ShellExec(id, command, execDir string, timeout time.Duration) Result {
	if execDir != "" {
		command = fmt.Sprintf("cd %s && %s", execDir, command)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		session = m.createSession(id)
	}
	if session.state == StateError {
		return Result{Success: false, Output: fmt.Sprintf("Session %s not ready", id)}
	}

	if session.state == StateRunning {
		before, err := session.proc.Expect(markerEnd, 1*time.Second)
		if err != nil {
			formatted := m.formatOutput(before, session.lastCommand, session, 1*time.Second, true)
			return Result{
				Success: false,
				Output: fmt.Sprintf("Previous command %s is still running. Ensure it's done or run on a new session.\n%s",
					session.lastCommand, formatted),
			}
		}
		session.state = StateCompleted
		session.history = append(session.history, m.formatOutput(before, session.lastCommand, session, 1*time.Second, false))
	}

	return m.execute(session, command, timeout)
}

// ShellView returns the session transcript, draining any output a
// still-running command has produced.
func (m *Manager) ShellView(id string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return Result{Success: false, Output: fmt.Sprintf("Session %s not found", id)}
	}

	if session.state == StateCompleted || session.state == StateReady {
		return Result{
			Success: true,
			Output:  strings.Join(session.history, "\n") + fmt.Sprintf("\n%s$", session.currentDir),
		}
	}

	before, err := session.proc.Expect(markerEnd, 1*time.Second)
	if err != nil {
		formatted := m.formatOutput(before, session.lastCommand, session, 1*time.Second, true)
		return Result{
			Success: true,
			Output:  strings.Join(append(append([]string{}, session.history...), formatted), "\n"),
		}
	}

	session.state = StateCompleted
	session.history = append(session.history, m.formatOutput(before, session.lastCommand, session, 1*time.Second, false))
	return Result{
		Success: true,
		Output:  strings.Join(session.history, "\n") + fmt.Sprintf("\n%s$", session.currentDir),
	}
}

// ShellWait sleeps, giving a background command time to finish.
func (m *Manager) ShellWait(id string, seconds int) Result {
	m.mu.Lock()
	_, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return Result{Success: false, Output: fmt.Sprintf("Session %s not found", id)}
	}
	time.Sleep(time.Duration(seconds) * time.Second)
	return Result{Success: true, Output: fmt.Sprintf("Finished waiting for %d seconds", seconds)}
}

// ShellWriteToProcess sends input to the foreground process of a
// session, optionally followed by enter.
func (m *Manager) ShellWriteToProcess(id, input string, pressEnter bool) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return Result{Success: false, Output: fmt.Sprintf("Session %s not found", id)}
	}
	if session.proc == nil {
		return Result{Success: false, Output: fmt.Sprintf("No active process in session %s", id)}
	}

	var err error
	if pressEnter {
		err = session.proc.SendLine(input)
	} else {
		err = session.proc.Send(input)
	}
	if err != nil {
		return Result{Success: false, Output: fmt.Sprintf("Shell process ended: %s", err)}
	}

	time.Sleep(100 * time.Millisecond)
	before, expErr := session.proc.Expect(markerEnd, 3*time.Second)
	if expErr != nil {
		session.state = StateRunning
		return Result{Success: false, Output: m.formatOutput(before, session.lastCommand, session, 3*time.Second, false)}
	}

	session.state = StateCompleted
	formatted := m.formatOutput(before, session.lastCommand, session, 3*time.Second, false)
	session.history = append(session.history, formatted)
	return Result{Success: true, Output: formatted + fmt.Sprintf("\n%s$", session.currentDir)}
}

// ShellKillProcess terminates the session's shell and removes it.
func (m *Manager) ShellKillProcess(id string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return Result{Success: false, Output: fmt.Sprintf("Session %s not found", id)}
	}
	if session.proc != nil {
		if err := session.proc.Kill(); err != nil {
			m.logger.Error("terminal.session.kill_failed", "session", id, "error", err)
		}
	}
	delete(m.sessions, id)
	return Result{Success: true, Output: fmt.Sprintf("Killed process in session %s", id)}
}

// Close kills every session. Called on sandbox teardown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, session := range m.sessions {
		if session.proc != nil {
			_ = session.proc.Kill()
		}
		delete(m.sessions, id)
	}
}
