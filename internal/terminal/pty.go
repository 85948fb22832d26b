package terminal

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
)

// ErrExpectTimeout is returned when the shell prompt does not reappear
// within the deadline, i.e. the command is still running.
var ErrExpectTimeout = errors.New("expect timeout")

// ptyProcess wraps a shell on a pseudo-terminal with an expect loop.
// A reader goroutine drains the pty into a buffer; Expect scans the
// unconsumed portion for a marker string.
type ptyProcess struct {
	cmd  *exec.Cmd
	file ptyFile

	mu     sync.Mutex
	buf    strings.Builder
	offset int
	eof    bool
}

type ptyFile interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

func startPty(shell, dir string, extraArgs ...string) (*ptyProcess, error) {
	cmd := exec.Command(shell, extraArgs...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(cmd.Environ(), "TERM=dumb")

	f, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start shell: %w", err)
	}

	p := &ptyProcess{cmd: cmd, file: f}
	go p.readLoop()
	return p, nil
}

func (p *ptyProcess) readLoop() {
	chunk := make([]byte, 4096)
	for {
		n, err := p.file.Read(chunk)
		if n > 0 {
			p.mu.Lock()
			p.buf.Write(chunk[:n])
			p.mu.Unlock()
		}
		if err != nil {
			p.mu.Lock()
			p.eof = true
			p.mu.Unlock()
			return
		}
	}
}

// SendLine writes text plus a newline to the shell's stdin.
func (p *ptyProcess) SendLine(text string) error {
	_, err := p.file.Write([]byte(text + "\n"))
	return err
}

// Send writes text without a trailing newline.
func (p *ptyProcess) Send(text string) error {
	_, err := p.file.Write([]byte(text))
	return err
}

// Expect blocks until marker appears in unconsumed output or the
// timeout elapses. On success it returns the text before the marker
// and consumes through it. On timeout it returns what has accumulated
// so far without consuming it past the scan point.
func (p *ptyProcess) Expect(marker string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		pending := p.buf.String()[p.offset:]
		if idx := strings.Index(pending, marker); idx >= 0 {
			before := pending[:idx]
			p.offset += idx + len(marker)
			p.mu.Unlock()
			return before, nil
		}
		eof := p.eof
		p.mu.Unlock()

		if eof {
			return pending, errors.New("shell process ended")
		}
		if time.Now().After(deadline) {
			return pending, ErrExpectTimeout
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// Pending returns unconsumed output without consuming it.
func (p *ptyProcess) Pending() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.String()[p.offset:]
}

// Kill terminates the shell process and releases the pty.
func (p *ptyProcess) Kill() error {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	err := p.file.Close()
	go p.cmd.Wait()
	return err
}
