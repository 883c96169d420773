package server

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/michaelbrown/augment/internal/agent"
	"github.com/michaelbrown/augment/internal/llm"
)

var errSessionClosed = errors.New("session closed")

// hooks are the per-run observers wired onto the session's Agent.
type hooks struct {
	onTextDelta  func(delta string)
	onToolCall   func(call llm.ToolCall)
	onToolResult func(result agent.ToolResult)
}

// ActiveSession is one client's Agent: its own conversation and its own
// tool providers.
type ActiveSession struct {
	ID        string
	Profile   string
	Model     string
	CreatedAt time.Time
	Agent     *agent.Agent

	mu     sync.Mutex // one query at a time per session
	closed bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc // cancels the in-flight run
}

// run executes one query, waiting for any query already in progress.
func (as *ActiveSession) run(ctx context.Context, prompt string, h hooks) (*agent.Result, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.closed {
		return nil, errSessionClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	as.setCancel(cancel)
	defer func() {
		cancel()
		as.setCancel(nil)
	}()

	as.Agent.OnTextDelta = h.onTextDelta
	as.Agent.OnToolCall = h.onToolCall
	as.Agent.OnToolResult = h.onToolResult
	defer func() {
		as.Agent.OnTextDelta = nil
		as.Agent.OnToolCall = nil
		as.Agent.OnToolResult = nil
	}()

	res, err := as.Agent.Run(ctx, prompt)
	if err != nil {
		// Keep the session usable: the backend rejects tool calls without results.
		as.Agent.SettlePendingCalls("not executed: " + err.Error())
	}
	return res, err
}

// messages returns the conversation once no query is running.
func (as *ActiveSession) messages() []llm.Message {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.Agent.Conversation()
}

func (as *ActiveSession) setCancel(cancel context.CancelFunc) {
	as.cancelMu.Lock()
	as.cancel = cancel
	as.cancelMu.Unlock()
}

func (as *ActiveSession) interrupt() {
	as.cancelMu.Lock()
	defer as.cancelMu.Unlock()
	if as.cancel != nil {
		as.cancel()
	}
}

// close interrupts any running query, waits for it to unwind and releases
// the session's tool providers.
func (as *ActiveSession) close(ctx context.Context) []error {
	as.interrupt()

	as.mu.Lock()
	defer as.mu.Unlock()
	if as.closed {
		return nil
	}
	as.closed = true
	return as.Agent.Close(ctx)
}

// SessionManager tracks the live sessions of the server.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*ActiveSession
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*ActiveSession),
	}
}

// Add registers a session.
func (sm *SessionManager) Add(as *ActiveSession) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[as.ID] = as
}

// Get returns an active session if it exists.
func (sm *SessionManager) Get(sessionID string) (*ActiveSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	as, ok := sm.sessions[sessionID]
	return as, ok
}

// List returns all sessions, newest first.
func (sm *SessionManager) List() []*ActiveSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	list := make([]*ActiveSession, 0, len(sm.sessions))
	for _, as := range sm.sessions {
		list = append(list, as)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// Remove unregisters a session and closes it. It reports whether the
// session existed.
func (sm *SessionManager) Remove(ctx context.Context, sessionID string) bool {
	sm.mu.Lock()
	as, ok := sm.sessions[sessionID]
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	if ok {
		as.close(ctx)
	}
	return ok
}

// CloseAll closes every session concurrently and empties the manager.
func (sm *SessionManager) CloseAll(ctx context.Context) {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*ActiveSession)
	sm.mu.Unlock()

	var wg conc.WaitGroup
	for _, as := range sessions {
		wg.Go(func() { as.close(ctx) })
	}
	wg.Wait()
}
