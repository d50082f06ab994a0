package scheduler

import (
	"context"
	"time"

	"fairground/internal/types"
)

// History status values recorded per run.
const (
	runStatusCompleted = "completed"
	runStatusFailed    = "failed"
)

// LockStore serializes task execution across concurrent invocations.
// Implemented by db.JobLockRepository.
type LockStore interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
}

// HistoryStore records one row per task run for operational visibility.
// Implemented by db.JobHistoryRepository.
type HistoryStore interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, jobErr error) error
}

// Runner wraps a scheduled task in the advisory lock and run-history
// bookkeeping shared by every task. EventBridge retries and overlapping
// schedules make double invocation routine; the lock turns the duplicate
// into a logged no-op.
type Runner struct {
	locks    LockStore
	history  HistoryStore
	workerID string
	logger   types.Logger
}

// NewRunner creates a Runner. The workerID identifies this process in lock
// rows, typically the Lambda request ID or hostname.
func NewRunner(locks LockStore, history HistoryStore, workerID string, logger types.Logger) *Runner {
	return &Runner{
		locks:    locks,
		history:  history,
		workerID: workerID,
		logger:   logger,
	}
}

// Run executes fn under the task's lock. When the lock is held elsewhere the
// run is skipped without an error: the holder is doing the work. The
// returned count is the number of items the task processed.
func (r *Runner) Run(ctx context.Context, task TaskType, lockTTL time.Duration, fn func(ctx context.Context) (int, error)) (int, error) {
	acquired, err := r.locks.Acquire(ctx, string(task), r.workerID, lockTTL)
	if err != nil {
		return 0, err
	}
	if !acquired {
		r.logger.Info("task lock held elsewhere, skipping", "task", string(task))
		return 0, nil
	}

	historyID, err := r.history.Start(ctx, string(task))
	if err != nil {
		// History is bookkeeping; the task still runs.
		r.logger.Warn("failed to start run history", "task", string(task), "error", err)
	}

	items, runErr := fn(ctx)

	if historyID != 0 {
		status := runStatusCompleted
		if runErr != nil {
			status = runStatusFailed
		}
		if err := r.history.Finish(ctx, historyID, status, items, runErr); err != nil {
			r.logger.Warn("failed to finish run history", "task", string(task), "error", err)
		}
	}

	if runErr != nil {
		r.logger.Error("task failed", "task", string(task), "items", items, "error", runErr)
		return items, runErr
	}

	r.logger.Info("task completed", "task", string(task), "items", items)
	return items, nil
}
