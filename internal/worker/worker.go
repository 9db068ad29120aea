// Package worker implements the claim/execute/complete loop each worker
// process runs against the shared job store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/llamalith/llamalith/internal/cache"
	"github.com/llamalith/llamalith/internal/llm"
	"github.com/llamalith/llamalith/internal/store"
	"github.com/llamalith/llamalith/pkg/models"
)

// statusTTL bounds how long a mirror entry can outlive the store's truth.
// An entry expiring mid-generation only costs the poll fast path; the
// handler falls back to the store.
const statusTTL = 5 * time.Minute

// Worker polls the store for claimable jobs, runs inference through its
// private model cache, and writes the outcome back. One Worker per
// process; all cross-worker coordination happens in the store's atomic
// claim.
type Worker struct {
	owner        string
	store        store.Store
	modelCache   *llm.ModelCache
	executor     *llm.Executor
	statusCache  cache.Cache // optional status mirror, may be nil
	pollInterval time.Duration
	logger       *slog.Logger
}

// New creates a Worker with the given identity. owner must be unique per
// process so claimed rows are attributable to a single worker.
func New(owner string, st store.Store, mc *llm.ModelCache, ex *llm.Executor, sc cache.Cache, pollInterval time.Duration) *Worker {
	return &Worker{
		owner:        owner,
		store:        st,
		modelCache:   mc,
		executor:     ex,
		statusCache:  sc,
		pollInterval: pollInterval,
		logger:       slog.Default().With("worker", owner),
	}
}

// Run loops until ctx is cancelled. Job-level failures are recorded on
// the job and never abort the loop; store failures degrade to the same
// sleep-and-retry cadence as an empty queue.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "poll_interval", w.pollInterval)
	defer w.modelCache.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := w.store.ClaimNextJob(ctx, w.owner)
		if err != nil {
			if !errors.Is(err, store.ErrNoJob) && !errors.Is(err, context.Canceled) {
				w.logger.Warn("claim failed, retrying", "error", err)
			}
			if err := w.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		w.Process(ctx, job)
	}
}

// Process runs one claimed job to a terminal status. Every claimed job
// reaches exactly one of complete/fail: errors and panics during
// execution are converted into a fail write, and only a store outage can
// leave the row processing, where the staleness sweep picks it up.
func (w *Worker) Process(ctx context.Context, job *models.Job) {
	w.logger.Info("job claimed", "job_id", job.ID, "model_key", job.ModelKey)
	w.setStatus(ctx, job.ID, models.JobStatusProcessing)

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic while processing job", "job_id", job.ID, "panic", r)
			w.fail(ctx, job.ID, fmt.Sprintf("panic: %v", r))
		}
	}()

	result, err := w.runJob(ctx, job)
	if err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		w.fail(ctx, job.ID, err.Error())
		return
	}

	if err := w.store.AddMessage(ctx, job.ConversationID, models.RoleAssistant, result); err != nil {
		w.fail(ctx, job.ID, fmt.Sprintf("save assistant message: %v", err))
		return
	}

	if err := w.store.CompleteJob(ctx, job.ID, result); err != nil {
		w.logFinishError(job.ID, err)
		return
	}
	w.setStatus(ctx, job.ID, models.JobStatusDone)
	w.logger.Info("job done", "job_id", job.ID)
}

func (w *Worker) runJob(ctx context.Context, job *models.Job) (string, error) {
	history, err := w.store.ConversationMessages(ctx, job.ConversationID)
	if err != nil {
		return "", fmt.Errorf("load conversation history: %w", err)
	}

	// The submission path stores the user message before enqueueing, but
	// jobs can also arrive without one; make sure the prompt ends with the
	// job's input either way.
	if n := len(history); n == 0 || history[n-1].Role != models.RoleUser || history[n-1].Content != job.InputText {
		history = append(history, &models.Message{
			ConversationID: job.ConversationID,
			Role:           models.RoleUser,
			Content:        job.InputText,
		})
	}

	model, err := w.modelCache.GetOrLoad(ctx, job.ModelKey)
	if err != nil {
		return "", err
	}

	return w.executor.Generate(ctx, model, job.SystemPrompt, history)
}

func (w *Worker) fail(ctx context.Context, jobID int64, message string) {
	if err := w.store.FailJob(ctx, jobID, message); err != nil {
		w.logFinishError(jobID, err)
		return
	}
	w.setStatus(ctx, jobID, models.JobStatusError)
}

func (w *Worker) logFinishError(jobID int64, err error) {
	if errors.Is(err, store.ErrInvalidTransition) {
		// A race the atomic claim should rule out, or an operator touched
		// the row; log loudly but keep draining.
		w.logger.Error("refused terminal transition", "job_id", jobID, "error", err)
		return
	}
	w.logger.Error("could not record job outcome, leaving row for reclaim",
		"job_id", jobID, "error", err)
}

func (w *Worker) setStatus(ctx context.Context, jobID int64, status string) {
	if w.statusCache == nil {
		return
	}
	if err := w.statusCache.SetJobStatus(ctx, jobID, status, statusTTL); err != nil {
		w.logger.Debug("status mirror write failed", "job_id", jobID, "error", err)
		if models.TerminalStatus(status) {
			// Drop the claim-time processing entry rather than let it keep
			// answering polls until the TTL runs out.
			if err := w.statusCache.DeleteJobStatus(ctx, jobID); err != nil {
				w.logger.Debug("status mirror delete failed", "job_id", jobID, "error", err)
			}
		}
	}
}

func (w *Worker) sleep(ctx context.Context) error {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
