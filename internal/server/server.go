package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/michaelbrown/augment/internal/bootstrap"
	"github.com/michaelbrown/augment/internal/storage"
)

// Server is the HTTP and WebSocket surface. Every session gets its own
// Agent, built on demand.
type Server struct {
	build    bootstrap.Builder
	store    storage.Store
	journal  *storage.Journal
	sessions *SessionManager
	router   chi.Router
	http     *http.Server
	log      zerolog.Logger
}

// New creates a Server. store may be nil, which disables the run journal.
func New(build bootstrap.Builder, store storage.Store, log zerolog.Logger) *Server {
	s := &Server{
		build:    build,
		store:    store,
		journal:  storage.NewJournal(store, log),
		sessions: NewSessionManager(),
		router:   chi.NewRouter(),
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		// WebSocket (no JSON content-type)
		r.Get("/sessions/{id}/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(jsonContentType)

			r.Get("/sessions", s.handleListSessions)
			r.Post("/sessions", s.handleCreateSession)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Delete("/sessions/{id}", s.handleDeleteSession)

			r.Get("/sessions/{id}/messages", s.handleGetMessages)
			r.Post("/sessions/{id}/messages", s.handleSendMessage)

			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{id}", s.handleGetRun)
		})
	})
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.log.Info().Str("addr", "http://localhost"+addr).Msg("server starting")
	return s.http.ListenAndServe()
}

// Shutdown closes every session and then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down server")
	s.sessions.CloseAll(ctx)

	if s.http == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
