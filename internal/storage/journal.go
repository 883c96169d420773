package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/michaelbrown/augment/internal/agent"
)

// Journal records agent runs into a Store. Write failures are logged and
// never fail the run being recorded. A Journal with a nil Store is a no-op.
type Journal struct {
	store Store
	log   zerolog.Logger
}

func NewJournal(store Store, log zerolog.Logger) *Journal {
	return &Journal{store: store, log: log}
}

// Begin creates a running record for prompt and returns it.
func (j *Journal) Begin(ctx context.Context, sessionID, profile, model, prompt string) *Run {
	run := &Run{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Profile:   profile,
		Model:     model,
		Prompt:    prompt,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if j == nil || j.store == nil {
		return run
	}
	if err := j.store.CreateRun(ctx, run); err != nil {
		j.log.Warn().Err(err).Str("run", run.ID).Msg("journal: creating run failed")
	}
	return run
}

// Finish stores every tool invocation in res and the run's outcome.
func (j *Journal) Finish(ctx context.Context, run *Run, res *agent.Result, runErr error) {
	if res != nil {
		run.Answer = res.Answer
		run.Cycles = res.Cycles
	}
	run.Status = StatusCompleted
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	}
	run.FinishedAt = time.Now().UTC()

	if j == nil || j.store == nil {
		return
	}

	if res != nil {
		for _, tr := range res.ToolCalls {
			inv := &ToolInvocation{
				RunID:     run.ID,
				CallID:    tr.CallID,
				Tool:      tr.Tool,
				Provider:  tr.Provider,
				Arguments: tr.Arguments,
				Result:    tr.Content,
				NotFound:  tr.NotFound,
				Duration:  tr.Duration,
			}
			if err := j.store.AddToolInvocation(ctx, inv); err != nil {
				j.log.Warn().Err(err).Str("run", run.ID).Str("tool", tr.Tool).Msg("journal: recording tool call failed")
			}
		}
	}

	if err := j.store.FinishRun(ctx, run); err != nil {
		j.log.Warn().Err(err).Str("run", run.ID).Msg("journal: finishing run failed")
	}
}
