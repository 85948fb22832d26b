// Package gateway runs the session websocket server: one ChatSession
// per connection, each owning an agent, a workspace, a sandbox, and a
// persisted event stream.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/agentd/internal/config"
	"github.com/nextlevelbuilder/agentd/internal/filestore"
	"github.com/nextlevelbuilder/agentd/internal/providers"
	"github.com/nextlevelbuilder/agentd/internal/store"
)

// Server accepts websocket connections and hands each one to a
// ChatSession.
type Server struct {
	cfg       *config.Config
	db        store.Store
	snapshots filestore.Store
	logger    *slog.Logger

	upgrader websocket.Upgrader
	limiter  *RateLimiter

	// newProvider builds the LLM client for a resolved model spec.
	// Swapped out in tests.
	newProvider func(providers.Options) (providers.Provider, error)

	httpServer *http.Server
}

func NewServer(cfg *config.Config, db store.Store, snapshots filestore.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		db:        db,
		snapshots: snapshots,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		limiter:     NewRateLimiter(cfg.RateLimitRPM, 5),
		newProvider: providers.New,
	}
}

// Handler builds the HTTP mux: the websocket endpoint plus a small
// REST surface for session listing and event replay.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleSessionEvents)
	return mux
}

// Start listens until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}

	s.logger.Info("gateway.starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if key, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && !s.limiter.Allow(key) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	// A session_uuid query param reconnects to an existing session;
	// otherwise a fresh session id is minted.
	sessionID := uuid.New()
	resumed := false
	if raw := r.URL.Query().Get("session_uuid"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid session_uuid", http.StatusBadRequest)
			return
		}
		sessionID = parsed
		resumed = true
	}
	deviceID := r.URL.Query().Get("device_id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("gateway.upgrade_failed", "error", err)
		return
	}

	sess := newChatSession(s, conn, sessionID, deviceID, resumed)
	s.logger.Info("session.connected", "session_id", sessionID, "resumed", resumed)
	sess.run(r.Context())
	s.logger.Info("session.disconnected", "session_id", sessionID)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.db.ListSessions(r.Context(), r.URL.Query().Get("device_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"sessions": sessions})
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	events, err := s.db.EventsForSession(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"events": events})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
