package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no run matches an ID or ID prefix.
var ErrNotFound = errors.New("run not found")

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is the journal record of one query through the agent loop. Runs are
// an audit trail; they are never replayed into a conversation.
type Run struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	Profile    string    `json:"profile,omitempty"`
	Model      string    `json:"model"`
	Prompt     string    `json:"prompt"`
	Answer     string    `json:"answer"`
	Status     RunStatus `json:"status"`
	Cycles     int       `json:"cycles"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// ToolInvocation is the journal record of one dispatched tool call.
type ToolInvocation struct {
	ID        int64         `json:"id"`
	RunID     string        `json:"run_id"`
	CallID    string        `json:"call_id"`
	Tool      string        `json:"tool"`
	Provider  string        `json:"provider,omitempty"`
	Arguments string        `json:"arguments"`
	Result    string        `json:"result"`
	NotFound  bool          `json:"not_found"`
	Duration  time.Duration `json:"duration_ns"`
	CreatedAt time.Time     `json:"created_at"`
}

// RunListOptions controls filtering and pagination for ListRuns.
type RunListOptions struct {
	Status    RunStatus
	SessionID string
	Limit     int
	Offset    int
}

// Store is the persistence interface for the run journal.
type Store interface {
	// CreateRun inserts a new run. The ID field must be set by the caller.
	CreateRun(ctx context.Context, r *Run) error

	// GetRun returns a run by ID or ID prefix.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs ordered by started_at descending.
	ListRuns(ctx context.Context, opts RunListOptions) ([]Run, error)

	// FinishRun records the outcome fields (answer, status, cycles, error).
	FinishRun(ctx context.Context, r *Run) error

	// DeleteRun removes a run and its tool invocations.
	DeleteRun(ctx context.Context, id string) error

	// AddToolInvocation appends a tool invocation to a run.
	AddToolInvocation(ctx context.Context, inv *ToolInvocation) error

	// ListToolInvocations returns a run's tool invocations in dispatch order.
	ListToolInvocations(ctx context.Context, runID string) ([]ToolInvocation, error)

	// Close releases resources.
	Close() error
}
