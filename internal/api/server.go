package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"antbot/internal/config"
	"antbot/internal/domain"
	"antbot/internal/service"
	"antbot/internal/session"
)

// StatusPort reports pipeline readiness.
type StatusPort interface {
	Stats() service.Stats
}

type Server struct {
	router   *chi.Mux
	addr     string
	status   StatusPort
	sessions *session.Store
	checks   []config.Check
	idle     time.Duration
}

func NewServer(addr string, status StatusPort, sessions *session.Store, checks []config.Check, idle time.Duration) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		addr:     addr,
		status:   status,
		sessions: sessions,
		checks:   checks,
		idle:     idle,
	}

	router.Get("/health", s.health)
	router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.statusHandler)
		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Delete("/", s.deleteSession)
			r.Get("/messages", s.listMessages)
			r.Post("/messages", s.postMessage)
			r.Delete("/messages", s.resetMessages)
		})
	})

	return s
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	go s.pruneSessions(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown failed", "error", err)
		}
	}()
	slog.Info("API server starting", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) pruneSessions(ctx context.Context) {
	if s.idle <= 0 {
		return
	}
	ticker := time.NewTicker(s.idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Prune(s.idle); n > 0 {
				slog.Info("idle sessions pruned", "count", n)
			}
		}
	}
}

type settingStatus struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
}

type statusResponse struct {
	Agent    string          `json:"agent"`
	Pipeline service.Stats   `json:"pipeline"`
	Settings []settingStatus `json:"settings"`
	Sessions int             `json:"sessions"`
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Answer  string               `json:"answer"`
	Sources []domain.ScoredChunk `json:"sources"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Agent: "antbot", Pipeline: s.status.Stats(), Sessions: s.sessions.Len()}
	for _, c := range s.checks {
		resp.Settings = append(resp.Settings, settingStatus{Name: c.Name, OK: c.OK})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.sessions.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": sess.ID, "messages": sess.Turns()})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is empty")
		return
	}
	reply, err := sess.Ask(r.Context(), req.Message)
	if errors.Is(err, domain.ErrInitialization) {
		slog.Warn("question rejected, pipeline not initialized", "session", sess.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, reply.Content)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sources := reply.Sources
	if sources == nil {
		sources = []domain.ScoredChunk{}
	}
	writeJSON(w, http.StatusOK, messageResponse{Answer: reply.Content, Sources: sources})
}

func (s *Server) resetMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sess, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
