package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/augment/internal/agent"
	"github.com/michaelbrown/augment/internal/bootstrap"
	"github.com/michaelbrown/augment/internal/llm"
	"github.com/michaelbrown/augment/internal/storage"
	"github.com/michaelbrown/augment/internal/storage/sqlite"
	"github.com/michaelbrown/augment/internal/tools"
)

func toolTurn(id, name, args string) []llm.StreamEvent {
	return []llm.StreamEvent{{ToolCalls: []llm.ToolCallDelta{{Index: 0, ID: id, Name: name, Arguments: args}}}}
}

// lookupBuilder builds agents whose backend calls lookup once, then answers.
func lookupBuilder(t *testing.T) bootstrap.Builder {
	return func(ctx context.Context, opts bootstrap.Options) (*bootstrap.Runtime, error) {
		if opts.Profile == "missing" {
			return nil, errors.New(`profile "missing" not found`)
		}
		backend := &scriptedBackend{turns: [][]llm.StreamEvent{
			toolTurn("c1", "lookup", `{"q":"x"}`),
			{{Content: "Answer: "}, {Content: "42"}},
		}}
		kb := &stubProvider{name: "kb", tools: []string{"lookup"}, result: "42"}
		a := agent.New(backend, tools.NewRegistry(zerolog.Nop(), kb), 10)
		if err := a.Init(ctx); err != nil {
			return nil, err
		}
		model := opts.Model
		if model == "" {
			model = "test-model"
		}
		return &bootstrap.Runtime{Agent: a, Model: model, Profile: opts.Profile}, nil
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, storage.Store) {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)

	s := New(lookupBuilder(t), store, zerolog.Nop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Shutdown(context.Background())
		store.Close()
	})
	return s, ts, store
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createSession(t *testing.T, ts *httptest.Server) sessionInfo {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"model": "m1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[sessionInfo](t, resp)
}

func TestCreateAndListSessions(t *testing.T) {
	_, ts, _ := newTestServer(t)

	info := createSession(t, ts)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "m1", info.Model)
	assert.Equal(t, []string{"lookup"}, info.Tools)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	list := decode[[]sessionInfo](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, info.ID, list[0].ID)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+info.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateSessionBuildError(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"profile": "missing"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Contains(t, body["error"], "missing")
}

func TestSendMessage(t *testing.T) {
	_, ts, store := newTestServer(t)
	info := createSession(t, ts)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+info.ID+"/messages", sendMessageRequest{Content: "what is x?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[sendMessageResponse](t, resp)
	assert.Equal(t, "Answer: 42", out.Content)
	assert.Equal(t, 2, out.Cycles)
	require.NotEmpty(t, out.RunID)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+info.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	messages := decode[[]llm.Message](t, resp)
	require.Len(t, messages, 4)
	assert.Equal(t, llm.RoleTool, messages[2].Role)
	assert.Equal(t, "c1", messages[2].ToolCallID)

	run, err := store.GetRun(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, run.Status)
	assert.Equal(t, info.ID, run.SessionID)
	invs, err := store.ListToolInvocations(context.Background(), out.RunID)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, "kb", invs[0].Provider)
}

func TestSendMessageValidation(t *testing.T) {
	_, ts, _ := newTestServer(t)
	info := createSession(t, ts)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+info.ID+"/messages", sendMessageRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/unknown/messages", sendMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteSession(t *testing.T) {
	_, ts, _ := newTestServer(t)
	info := createSession(t, ts)

	resp := doJSON(t, http.MethodDelete, ts.URL+"/api/sessions/"+info.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+info.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/sessions/"+info.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunsEndpoints(t *testing.T) {
	_, ts, _ := newTestServer(t)
	info := createSession(t, ts)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]storage.Run](t, resp))

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+info.ID+"/messages", sendMessageRequest{Content: "q"})
	out := decode[sendMessageResponse](t, resp)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/runs?session="+info.ID, nil)
	runs := decode[[]storage.Run](t, resp)
	require.Len(t, runs, 1)
	assert.Equal(t, out.RunID, runs[0].ID)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/runs/"+out.RunID[:8], nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[map[string]any](t, resp)
	assert.Equal(t, out.RunID, detail["id"])
	assert.Len(t, detail["tool_invocations"], 1)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/runs/zzzzzzzz", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunsWithoutJournal(t *testing.T) {
	s := New(lookupBuilder(t), nil, zerolog.Nop())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]storage.Run](t, resp))
}

func TestWebSocketStreamsRun(t *testing.T) {
	_, ts, _ := newTestServer(t)
	info := createSession(t, ts)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + info.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsIncoming{Type: "message", Content: "what is x?"}))

	var events []wsOutgoing
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg wsOutgoing
		require.NoError(t, conn.ReadJSON(&msg))
		events = append(events, msg)
		if msg.Type == "done" || msg.Type == "error" {
			break
		}
	}

	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{"tool_call", "tool_result", "text_delta", "text_delta", "done"}, types)
	assert.Equal(t, "lookup", events[0].Name)
	assert.JSONEq(t, `{"q":"x"}`, string(events[0].Args))
	assert.Contains(t, events[1].Content, "42")
	assert.Equal(t, "Answer: 42", events[4].Content)
	assert.NotEmpty(t, events[4].RunID)

	require.NoError(t, conn.WriteJSON(wsIncoming{Type: "bogus"}))
	var msg wsOutgoing
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
}

func TestWebSocketUnknownSession(t *testing.T) {
	_, ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGone, statusFor(errSessionClosed))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(agent.ErrCycleLimitExceeded))
	assert.Equal(t, http.StatusBadGateway, statusFor(&tools.InvocationError{Tool: "x", Err: errors.New("boom")}))
	assert.Equal(t, http.StatusBadGateway, statusFor(&agent.ArgumentParseError{Err: errors.New("bad")}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("other")))
}
