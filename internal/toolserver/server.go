// Package toolserver exposes the terminal and file editor over HTTP
// inside a sandbox, for the orchestrator's remote tool clients.
package toolserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/agentd/internal/fileops"
	"github.com/nextlevelbuilder/agentd/internal/terminal"
)

// Server serves the in-sandbox tool API.
type Server struct {
	terminal *terminal.Manager
	editor   *fileops.Editor
	logger   *slog.Logger
}

type Option func(*settings)

type settings struct {
	ignoreIndentation bool
}

// WithIgnoreIndentation enables indentation-tolerant str_replace
// matching in the served editor.
func WithIgnoreIndentation() Option {
	return func(s *settings) { s.ignoreIndentation = true }
}

func New(workDir string, logger *slog.Logger, opts ...Option) *Server {
	var cfg settings
	for _, opt := range opts {
		opt(&cfg)
	}
	editorOpts := []fileops.Option{fileops.WithRelativePaths(workDir)}
	if cfg.ignoreIndentation {
		editorOpts = append(editorOpts, fileops.WithIgnoreIndentation())
	}
	return &Server{
		terminal: terminal.NewManager(workDir, logger, terminal.WithRelativePaths()),
		editor:   fileops.NewEditor(editorOpts...),
		logger:   logger,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "healthy"})
	})

	mux.HandleFunc("POST /api/terminal/create_session", s.handleCreateSession)
	mux.HandleFunc("POST /api/terminal/shell_exec", s.handleShellExec)
	mux.HandleFunc("POST /api/terminal/shell_view", s.handleShellView)
	mux.HandleFunc("POST /api/terminal/shell_wait", s.handleShellWait)
	mux.HandleFunc("POST /api/terminal/shell_write_to_process", s.handleShellWrite)
	mux.HandleFunc("POST /api/terminal/shell_kill_process", s.handleShellKill)

	mux.HandleFunc("POST /api/str_replace/validate_path", s.handleValidatePath)
	mux.HandleFunc("POST /api/str_replace/view", s.handleView)
	mux.HandleFunc("POST /api/str_replace/str_replace", s.handleStrReplace)
	mux.HandleFunc("POST /api/str_replace/insert", s.handleInsert)
	mux.HandleFunc("POST /api/str_replace/undo_edit", s.handleUndoEdit)
	mux.HandleFunc("POST /api/str_replace/read_file", s.handleReadFile)
	mux.HandleFunc("POST /api/str_replace/write_file", s.handleWriteFile)
	mux.HandleFunc("POST /api/str_replace/is_path_in_directory", s.handleIsPathInDirectory)

	return mux
}

// Close tears down terminal sessions.
func (s *Server) Close() { s.terminal.Close() }

type terminalRequest struct {
	SessionID  string `json:"session_id"`
	Command    string `json:"command"`
	ExecDir    string `json:"exec_dir"`
	Timeout    int    `json:"timeout"`
	Seconds    int    `json:"seconds"`
	InputText  string `json:"input_text"`
	PressEnter bool   `json:"press_enter"`
}

type fileRequest struct {
	Command     string `json:"command"`
	Path        string `json:"path"`
	DisplayPath string `json:"display_path"`
	ViewRange   []int  `json:"view_range"`
	OldStr      string `json:"old_str"`
	NewStr      string `json:"new_str"`
	InsertLine  int    `json:"insert_line"`
	File        string `json:"file"`
	Directory   string `json:"directory"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req terminalRequest
	if !decode(w, r, &req) {
		return
	}
	res := s.terminal.ShellExec(req.SessionID, "true", "", 10*time.Second)
	if !res.Success {
		writeJSON(w, terminal.Result{Success: false, Output: fmt.Sprintf("Failed to create session %s", req.SessionID)})
		return
	}
	writeJSON(w, terminal.Result{Success: true, Output: fmt.Sprintf("Session %s created successfully", req.SessionID)})
}

func (s *Server) handleShellExec(w http.ResponseWriter, r *http.Request) {
	var req terminalRequest
	if !decode(w, r, &req) {
		return
	}
	timeout := time.Duration(req.Timeout) * time.Second
	writeJSON(w, s.terminal.ShellExec(req.SessionID, req.Command, req.ExecDir, timeout))
}

func (s *Server) handleShellView(w http.ResponseWriter, r *http.Request) {
	var req terminalRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, s.terminal.ShellView(req.SessionID))
}

func (s *Server) handleShellWait(w http.ResponseWriter, r *http.Request) {
	var req terminalRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, s.terminal.ShellWait(req.SessionID, req.Seconds))
}

func (s *Server) handleShellWrite(w http.ResponseWriter, r *http.Request) {
	var req terminalRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, s.terminal.ShellWriteToProcess(req.SessionID, req.InputText, req.PressEnter))
}

func (s *Server) handleShellKill(w http.ResponseWriter, r *http.Request) {
	var req terminalRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, s.terminal.ShellKillProcess(req.SessionID))
}

func (s *Server) handleValidatePath(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, s.editor.ValidatePath(req.Command, req.Path, req.DisplayPath))
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, s.editor.View(req.Path, req.ViewRange, req.DisplayPath))
}

func (s *Server) handleStrReplace(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, s.editor.StrReplace(req.Path, req.OldStr, req.NewStr, req.DisplayPath))
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, s.editor.Insert(req.Path, req.InsertLine, req.NewStr, req.DisplayPath))
}

func (s *Server) handleUndoEdit(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, s.editor.UndoEdit(req.Path, req.DisplayPath))
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, s.editor.ReadFile(req.Path, req.DisplayPath))
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, s.editor.WriteFile(req.Path, req.File, req.DisplayPath))
}

func (s *Server) handleIsPathInDirectory(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, map[string]any{"result": fileops.IsPathInDirectory(req.Directory, req.Path)})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, fmt.Sprintf(`{"success":false,"output":%q}`, "invalid request: "+err.Error()), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
