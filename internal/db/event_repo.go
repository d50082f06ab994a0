package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"fairground/internal/types"
)

// EventRepository provides data access for the events table. Events are the
// idempotency anchor of the pipeline: one row per logical business
// occurrence, keyed by event_key, never deleted.
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates a new EventRepository backed by the given
// database connection (pool or transaction).
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, type, payload, target_user_ids, actor_id, entity_type, entity_id,
	status, event_key, attempts, last_attempt_at, processing_error, created_at`

// Insert creates the event if no row with the same event_key exists. Returns
// created=true with e populated from the database on insert; on a duplicate
// key it returns created=false and loads the existing row's id and created_at
// into e without mutating the stored record.
//
// The INSERT ... ON CONFLICT DO NOTHING form makes concurrent duplicate
// ingestion race-free: exactly one caller observes created=true.
func (r *EventRepository) Insert(ctx context.Context, e *types.Event) (bool, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode event payload", err)
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO events
		 (id, type, payload, target_user_ids, actor_id, entity_type, entity_id, status, event_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)
		 ON CONFLICT (event_key) DO NOTHING
		 RETURNING id, created_at`,
		e.ID,
		string(e.Type),
		payload,
		e.TargetUserIDs,
		nilIfEmpty(e.ActorID),
		e.EntityType,
		e.EntityID,
		e.EventKey,
	)

	switch err := row.Scan(&e.ID, &e.CreatedAt); {
	case err == nil:
		e.Status = types.EventStatusPending
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Lost the race or a repeat call; surface the existing record.
		existing := r.db.QueryRow(ctx,
			`SELECT id, created_at FROM events WHERE event_key = $1`, e.EventKey)
		if err := existing.Scan(&e.ID, &e.CreatedAt); err != nil {
			return false, types.NewAppError(types.ErrCodeInternalDB, "failed to load event by key", err)
		}
		return false, nil
	default:
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert event", err)
	}
}

// GetByID retrieves a single event.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*types.Event, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundEvent, "event not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get event", err)
	}
	return e, nil
}

// ListPending returns pending events as claim candidates, oldest first. The
// backoff eligibility check happens in Go against each candidate's attempt
// count; the claim's attempts guard invalidates candidates that moved on.
func (r *EventRepository) ListPending(ctx context.Context, limit int) ([]types.ClaimCandidate, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, attempts, last_attempt_at FROM events
		 WHERE status = 'pending'
		 ORDER BY created_at
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list pending events", err)
	}
	defer rows.Close()

	var candidates []types.ClaimCandidate
	for rows.Next() {
		var (
			c             types.ClaimCandidate
			lastAttemptAt *time.Time
		)
		if err := rows.Scan(&c.ID, &c.Attempts, &lastAttemptAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan event candidate", err)
		}
		c.LastAttemptAt = timeOrZero(lastAttemptAt)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating pending events", err)
	}
	return candidates, nil
}

// Claim atomically transitions one pending event to processing, incrementing
// its attempt counter. The attempts guard rejects claims based on a stale
// candidate read. Exactly one concurrent caller wins; the rest get
// ErrCodeConflictClaimLost, which callers treat as "skip", not failure.
func (r *EventRepository) Claim(ctx context.Context, id string, expectedAttempts int) (*types.Event, error) {
	row := r.db.QueryRow(
		ctx,
		`UPDATE events
		 SET status = 'processing', attempts = attempts + 1, last_attempt_at = NOW()
		 WHERE id = $1
		   AND status = 'pending'
		   AND attempts = $2
		 RETURNING `+eventColumns,
		id,
		expectedAttempts,
	)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeConflictClaimLost, "event claim lost", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to claim event", err)
	}
	return e, nil
}

// MarkProcessed finalizes a successfully fanned-out event.
func (r *EventRepository) MarkProcessed(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE events
		 SET status = 'processed', processing_error = NULL
		 WHERE id = $1 AND status = 'processing'`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark event processed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundEvent, "event not in processing state", nil)
	}
	return nil
}

// ReleaseToPending returns a processing event to the pending queue after a
// partial fan-out failure, recording the error. The attempt counter stays as
// incremented by Claim; the sweeper retries after backoff.
func (r *EventRepository) ReleaseToPending(ctx context.Context, id string, processingError string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE events
		 SET status = 'pending', processing_error = $2
		 WHERE id = $1 AND status = 'processing'`,
		id,
		nilIfEmpty(processingError),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release event to pending", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundEvent, "event not in processing state", nil)
	}
	return nil
}

// MarkFailed terminally fails an event after attempt exhaustion. The caller
// quarantines the event as a dead letter in the same flow.
func (r *EventRepository) MarkFailed(ctx context.Context, id string, processingError string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE events
		 SET status = 'failed', processing_error = $2
		 WHERE id = $1 AND status IN ('pending', 'processing')`,
		id,
		nilIfEmpty(processingError),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark event failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundEvent, "event not found or already terminal", nil)
	}
	return nil
}

// ResetForRetry re-queues a failed event for processing after an operator
// retry: status back to pending, attempts and error cleared. Only failed
// events are eligible; a processed event returns the conflict error the
// admin surface maps to HTTP 409.
func (r *EventRepository) ResetForRetry(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE events
		 SET status = 'pending', attempts = 0, last_attempt_at = NULL, processing_error = NULL
		 WHERE id = $1 AND status = 'failed'`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reset event for retry", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Distinguish "gone" from "already succeeded".
	var status string
	err = r.db.QueryRow(ctx, `SELECT status FROM events WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.NewAppError(types.ErrCodeNotFoundEvent, "event not found", nil)
	}
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to check event status", err)
	}
	return types.NewAppError(types.ErrCodeConflictRetryCompleted,
		"event is not in a retryable state", nil).WithDetails(map[string]any{"status": status})
}

// scanEvent scans one event row from either pgx.Row or pgx.Rows.
func scanEvent(row pgx.Row) (*types.Event, error) {
	var (
		e             types.Event
		payload       []byte
		actorID       *string
		lastAttemptAt *time.Time
		procErr       *string
	)
	err := row.Scan(
		&e.ID,
		&e.Type,
		&payload,
		&e.TargetUserIDs,
		&actorID,
		&e.EntityType,
		&e.EntityID,
		&e.Status,
		&e.EventKey,
		&e.Attempts,
		&lastAttemptAt,
		&procErr,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, err
		}
	}
	e.ActorID = strOrEmpty(actorID)
	e.LastAttemptAt = timeOrZero(lastAttemptAt)
	e.ProcessingError = strOrEmpty(procErr)
	return &e, nil
}
