package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/michaelbrown/augment/internal/agent"
	"github.com/michaelbrown/augment/internal/bootstrap"
	"github.com/michaelbrown/augment/internal/llm"
	"github.com/michaelbrown/augment/internal/storage"
	"github.com/michaelbrown/augment/internal/tools"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Session handlers ---

type sessionInfo struct {
	ID        string    `json:"id"`
	Profile   string    `json:"profile,omitempty"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Tools     []string  `json:"tools"`
}

func infoFor(as *ActiveSession) sessionInfo {
	names := []string{}
	for _, t := range as.Agent.Tools() {
		names = append(names, t.Name)
	}
	return sessionInfo{
		ID:        as.ID,
		Profile:   as.Profile,
		Model:     as.Model,
		CreatedAt: as.CreatedAt,
		Tools:     names,
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list := []sessionInfo{}
	for _, as := range s.sessions.List() {
		list = append(list, infoFor(as))
	}
	writeJSON(w, http.StatusOK, list)
}

type createSessionRequest struct {
	Profile      string `json:"profile"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
	MaxCycles    *int   `json:"max_cycles"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	rt, err := s.build(r.Context(), bootstrap.Options{
		Profile:      req.Profile,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		MaxCycles:    req.MaxCycles,
	})
	if err != nil {
		var connErr *tools.ConnectionError
		if errors.As(err, &connErr) {
			writeError(w, http.StatusBadGateway, err.Error())
		} else {
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	as := &ActiveSession{
		ID:        uuid.New().String(),
		Profile:   rt.Profile,
		Model:     rt.Model,
		CreatedAt: time.Now().UTC(),
		Agent:     rt.Agent,
	}
	s.sessions.Add(as)
	s.log.Info().Str("session", as.ID).Str("model", as.Model).Msg("session created")

	writeJSON(w, http.StatusCreated, infoFor(as))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	as, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, infoFor(as))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sessions.Remove(context.WithoutCancel(r.Context()), id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.log.Info().Str("session", id).Msg("session closed")
	w.WriteHeader(http.StatusNoContent)
}

// --- Message handlers ---

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	as, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	messages := as.messages()
	if messages == nil {
		messages = []llm.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type sendMessageResponse struct {
	Content string `json:"content"`
	RunID   string `json:"run_id"`
	Cycles  int    `json:"cycles"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	as, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	res, runID, err := s.query(r.Context(), as, req.Content, hooks{})
	if err != nil {
		writeError(w, statusFor(err), "agent error: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{Content: res.Answer, RunID: runID, Cycles: res.Cycles})
}

// query runs prompt on the session and journals the outcome.
func (s *Server) query(ctx context.Context, as *ActiveSession, prompt string, h hooks) (*agent.Result, string, error) {
	run := s.journal.Begin(ctx, as.ID, as.Profile, as.Model, prompt)
	res, err := as.run(ctx, prompt, h)
	s.journal.Finish(context.WithoutCancel(ctx), run, res, err)
	if err != nil {
		s.log.Warn().Err(err).Str("session", as.ID).Str("run", run.ID).Msg("query failed")
	}
	return res, run.ID, err
}

func statusFor(err error) int {
	var parseErr *agent.ArgumentParseError
	var invErr *tools.InvocationError
	switch {
	case errors.Is(err, errSessionClosed):
		return http.StatusGone
	case errors.Is(err, agent.ErrCycleLimitExceeded):
		return http.StatusUnprocessableEntity
	case errors.As(err, &parseErr), errors.As(err, &invErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// --- Run journal handlers ---

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []storage.Run{})
		return
	}

	opts := storage.RunListOptions{
		Status:    storage.RunStatus(r.URL.Query().Get("status")),
		SessionID: r.URL.Query().Get("session"),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	runs, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run journal disabled")
		return
	}

	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	invocations, err := s.store.ListToolInvocations(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if invocations == nil {
		invocations = []storage.ToolInvocation{}
	}

	writeJSON(w, http.StatusOK, struct {
		*storage.Run
		ToolInvocations []storage.ToolInvocation `json:"tool_invocations"`
	}{run, invocations})
}
