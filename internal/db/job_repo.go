package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"fairground/internal/types"
)

// JobRepository provides data access for the jobs table. Jobs are the
// per-channel delivery queue; the conditional-claim UPDATE here is the only
// lock discipline in the pipeline, so concurrent dispatcher invocations are
// safe without any broader locking.
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new JobRepository backed by the given database
// connection (pool or transaction).
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, event_id, user_id, channel, template, template_payload, destination,
	status, attempts, last_attempt_at, deliver_after_at, error_code, error_message,
	provider_message_id, created_at`

// Insert creates the job unless one already exists for the same
// (event_id, user_id, channel) triple. Re-running fan-out for a partially
// processed event therefore never duplicates jobs. Returns created=false on
// the duplicate.
func (r *JobRepository) Insert(ctx context.Context, j *types.Job) (bool, error) {
	payload, err := json.Marshal(j.TemplatePayload)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode template payload", err)
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO jobs
		 (id, event_id, user_id, channel, template, template_payload, destination, status, deliver_after_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'queued', $8)
		 ON CONFLICT (event_id, user_id, channel) DO NOTHING`,
		j.ID,
		j.EventID,
		j.UserID,
		string(j.Channel),
		string(j.Template),
		payload,
		j.Destination,
		nilIfZeroTime(j.DeliverAfterAt),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert job", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	j.Status = types.JobStatusQueued
	return true, nil
}

// GetByID retrieves a single job.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*types.Job, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundJob, "job not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get job", err)
	}
	return j, nil
}

// ListDue returns queued jobs for the channel that are past any
// deliver_after_at delay, as claim candidates, oldest-created first. No
// ordering is promised across channels. Backoff eligibility is checked in
// Go against each candidate's attempt count.
func (r *JobRepository) ListDue(ctx context.Context, channel types.Channel, limit int) ([]types.ClaimCandidate, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, attempts, last_attempt_at FROM jobs
		 WHERE channel = $1
		   AND status = 'queued'
		   AND (deliver_after_at IS NULL OR deliver_after_at <= NOW())
		 ORDER BY created_at
		 LIMIT $2`,
		string(channel),
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list due jobs", err)
	}
	defer rows.Close()

	var candidates []types.ClaimCandidate
	for rows.Next() {
		var (
			c             types.ClaimCandidate
			lastAttemptAt *time.Time
		)
		if err := rows.Scan(&c.ID, &c.Attempts, &lastAttemptAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job candidate", err)
		}
		c.LastAttemptAt = timeOrZero(lastAttemptAt)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating due jobs", err)
	}
	return candidates, nil
}

// Claim atomically transitions one queued job to processing, incrementing its
// attempt counter. The attempts guard rejects claims based on a stale
// candidate read, so two dispatchers racing over one job produce exactly one
// winner. Losing yields ErrCodeConflictClaimLost, which dispatchers skip
// silently.
func (r *JobRepository) Claim(ctx context.Context, id string, expectedAttempts int) (*types.Job, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE jobs
		 SET status = 'processing', attempts = attempts + 1, last_attempt_at = NOW()
		 WHERE id = $1
		   AND status = 'queued'
		   AND attempts = $2
		   AND (deliver_after_at IS NULL OR deliver_after_at <= NOW())
		 RETURNING `+jobColumns,
		id,
		expectedAttempts,
	)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeConflictClaimLost, "job claim lost", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to claim job", err)
	}
	return j, nil
}

// MarkSent finalizes a delivered job, recording the provider message id.
func (r *JobRepository) MarkSent(ctx context.Context, id string, providerMessageID string) error {
	return r.finish(ctx, id, types.JobStatusSent, "", "", providerMessageID)
}

// MarkSkipped finalizes a job that was deliberately not sent (preference
// opt-out or engagement suppression). The error_code column records which.
func (r *JobRepository) MarkSkipped(ctx context.Context, id string, reason string) error {
	return r.finish(ctx, id, types.JobStatusSkipped, reason, "", "")
}

// MarkFailed terminally fails a job. The caller quarantines it as a dead
// letter in the same flow when the channel supports quarantine.
func (r *JobRepository) MarkFailed(ctx context.Context, id string, errorCode string, errorMessage string) error {
	return r.finish(ctx, id, types.JobStatusFailed, errorCode, errorMessage, "")
}

func (r *JobRepository) finish(ctx context.Context, id string, status types.JobStatus, errorCode, errorMessage, providerMessageID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs
		 SET status = $2, error_code = $3, error_message = $4, provider_message_id = $5
		 WHERE id = $1 AND status = 'processing'`,
		id,
		string(status),
		nilIfEmpty(errorCode),
		nilIfEmpty(errorMessage),
		nilIfEmpty(providerMessageID),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "job not in processing state", nil)
	}
	return nil
}

// Requeue returns a processing job to queued after a transient failure,
// recording the error. The attempt counter keeps the increment applied at
// claim time; the next claim is gated by the backoff cutoff.
func (r *JobRepository) Requeue(ctx context.Context, id string, errorCode string, errorMessage string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs
		 SET status = 'queued', error_code = $2, error_message = $3
		 WHERE id = $1 AND status = 'processing'`,
		id,
		nilIfEmpty(errorCode),
		nilIfEmpty(errorMessage),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to requeue job", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "job not in processing state", nil)
	}
	return nil
}

// ResetForRetry re-queues a failed job after an operator retry: status back
// to queued with attempts and error state cleared, delivery delay removed so
// the retry is immediate. Only failed jobs are eligible; sent and skipped
// jobs return the conflict error the admin surface maps to HTTP 409.
func (r *JobRepository) ResetForRetry(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs
		 SET status = 'queued', attempts = 0, last_attempt_at = NULL,
		     deliver_after_at = NULL, error_code = NULL, error_message = NULL
		 WHERE id = $1 AND status = 'failed'`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reset job for retry", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err = r.db.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.NewAppError(types.ErrCodeNotFoundJob, "job not found", nil)
	}
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to check job status", err)
	}
	return types.NewAppError(types.ErrCodeConflictRetryCompleted,
		"job is not in a retryable state", nil).WithDetails(map[string]any{"status": status})
}

// scanJob scans one job row from either pgx.Row or pgx.Rows.
func scanJob(row pgx.Row) (*types.Job, error) {
	var (
		j              types.Job
		payload        []byte
		lastAttemptAt  *time.Time
		deliverAfterAt *time.Time
		errorCode      *string
		errorMessage   *string
		providerMsgID  *string
	)
	err := row.Scan(
		&j.ID,
		&j.EventID,
		&j.UserID,
		&j.Channel,
		&j.Template,
		&payload,
		&j.Destination,
		&j.Status,
		&j.Attempts,
		&lastAttemptAt,
		&deliverAfterAt,
		&errorCode,
		&errorMessage,
		&providerMsgID,
		&j.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.TemplatePayload); err != nil {
			return nil, err
		}
	}
	j.LastAttemptAt = timeOrZero(lastAttemptAt)
	j.DeliverAfterAt = timeOrZero(deliverAfterAt)
	j.ErrorCode = strOrEmpty(errorCode)
	j.ErrorMessage = strOrEmpty(errorMessage)
	j.ProviderMessageID = strOrEmpty(providerMsgID)
	return &j, nil
}
