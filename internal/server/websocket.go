package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/michaelbrown/augment/internal/agent"
	"github.com/michaelbrown/augment/internal/llm"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type     string          `json:"type"`
	Content  string          `json:"content,omitempty"`
	Name     string          `json:"name,omitempty"`
	CallID   string          `json:"call_id,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
	NotFound bool            `json:"not_found,omitempty"`
	RunID    string          `json:"run_id,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one writer at a time.
type wsConn struct {
	*websocket.Conn
	mu  sync.Mutex
	srv *Server
}

func (c *wsConn) send(msg wsOutgoing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.WriteJSON(msg); err != nil {
		c.srv.log.Debug().Err(err).Msg("websocket write failed")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	as, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn := &wsConn{Conn: raw, srv: s}
	defer conn.Close()

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Str("session", as.ID).Msg("websocket read failed")
			}
			return
		}

		if msg.Type != "message" || msg.Content == "" {
			conn.send(wsOutgoing{Type: "error", Content: "invalid message"})
			continue
		}

		s.processWebSocketMessage(conn, as, msg.Content)
	}
}

func (s *Server) processWebSocketMessage(conn *wsConn, as *ActiveSession, content string) {
	h := hooks{
		onTextDelta: func(delta string) {
			conn.send(wsOutgoing{Type: "text_delta", Content: delta})
		},
		onToolCall: func(call llm.ToolCall) {
			out := wsOutgoing{Type: "tool_call", Name: call.Function.Name, CallID: call.ID}
			if json.Valid([]byte(call.Function.Arguments)) {
				out.Args = json.RawMessage(call.Function.Arguments)
			}
			conn.send(out)
		},
		onToolResult: func(r agent.ToolResult) {
			conn.send(wsOutgoing{
				Type:     "tool_result",
				Name:     r.Tool,
				CallID:   r.CallID,
				Content:  r.Content,
				NotFound: r.NotFound,
			})
		},
	}

	// Deleting the session cancels the run; a dropped client does not.
	res, runID, err := s.query(context.Background(), as, content, h)
	if err != nil {
		conn.send(wsOutgoing{Type: "error", Content: err.Error(), RunID: runID})
		return
	}
	conn.send(wsOutgoing{Type: "done", Content: res.Answer, RunID: runID})
}
