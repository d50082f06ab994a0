package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"fairground/internal/types"
)

// DeadLetterRepository provides data access for the dead_letters table.
// Rows are keyed by (id, kind) where id equals the source record's id, so an
// event and a job can never collide and re-quarantine after an operator retry
// merges into the existing row instead of duplicating it.
type DeadLetterRepository struct {
	db DBTX
}

// NewDeadLetterRepository creates a new DeadLetterRepository backed by the
// given database connection (pool or transaction).
func NewDeadLetterRepository(db DBTX) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

const deadLetterColumns = `id, kind, snapshot, error_code, error_message,
	suppressed, suppress_reason, suppressed_by,
	manual_retry_count, last_manual_retry_at, last_manual_retry_by,
	created_at, updated_at`

// Upsert quarantines a record. On re-quarantine (same id and kind) the
// snapshot and error are refreshed but the operator state — suppressed flags
// and manual retry counters — is preserved, so a failed manual retry does not
// erase the history that led to it.
func (r *DeadLetterRepository) Upsert(ctx context.Context, dl *types.DeadLetter) error {
	snapshot, err := json.Marshal(dl.Snapshot)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode dead letter snapshot", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO dead_letters (id, kind, snapshot, error_code, error_message)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id, kind) DO UPDATE
		   SET snapshot = EXCLUDED.snapshot,
		       error_code = EXCLUDED.error_code,
		       error_message = EXCLUDED.error_message,
		       updated_at = NOW()`,
		dl.ID,
		string(dl.Kind),
		snapshot,
		dl.ErrorCode,
		dl.ErrorMessage,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert dead letter", err)
	}
	return nil
}

// Get retrieves one dead letter by (id, kind).
func (r *DeadLetterRepository) Get(ctx context.Context, id string, kind types.DeadLetterKind) (*types.DeadLetter, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+deadLetterColumns+` FROM dead_letters WHERE id = $1 AND kind = $2`,
		id, string(kind))
	dl, err := scanDeadLetter(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundDeadLetter, "dead letter not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get dead letter", err)
	}
	return dl, nil
}

// List returns dead letters of one kind, newest first.
func (r *DeadLetterRepository) List(ctx context.Context, kind types.DeadLetterKind, limit int) ([]*types.DeadLetter, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+deadLetterColumns+`
		 FROM dead_letters
		 WHERE kind = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		string(kind),
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list dead letters", err)
	}
	defer rows.Close()

	var results []*types.DeadLetter
	for rows.Next() {
		dl, scanErr := scanDeadLetter(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan dead letter row", scanErr)
		}
		results = append(results, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating dead letter rows", err)
	}
	return results, nil
}

// IsSuppressed reports whether a suppressed dead letter exists for the
// record. Used by dispatchers as the dispatch-time cancellation check: a job
// resurrected by an operator retry whose dead letter was later suppressed
// must not send. No row means not suppressed.
func (r *DeadLetterRepository) IsSuppressed(ctx context.Context, id string, kind types.DeadLetterKind) (bool, error) {
	var suppressed bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM dead_letters
		   WHERE id = $1 AND kind = $2 AND suppressed
		 )`,
		id, string(kind),
	).Scan(&suppressed)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check dead letter suppression", err)
	}
	return suppressed, nil
}

// SetSuppressed sets or clears the suppressed flag. The operation is
// idempotent: repeating it with the same value changes nothing and counts
// nothing. Suppression is independent of retry; clearing requires an
// explicit unsuppress action.
func (r *DeadLetterRepository) SetSuppressed(ctx context.Context, id string, kind types.DeadLetterKind, suppressed bool, reason string, actor string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE dead_letters
		 SET suppressed = $3,
		     suppress_reason = CASE WHEN $3 THEN $4 ELSE NULL END,
		     suppressed_by = CASE WHEN $3 THEN $5 ELSE NULL END,
		     updated_at = CASE WHEN suppressed = $3 THEN updated_at ELSE NOW() END
		 WHERE id = $1 AND kind = $2`,
		id,
		string(kind),
		suppressed,
		nilIfEmpty(reason),
		nilIfEmpty(actor),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set dead letter suppression", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundDeadLetter, "dead letter not found", nil)
	}
	return nil
}

// RecordManualRetry increments the manual retry counter and stamps the actor.
// Called only after the source record was successfully reset, so the counter
// reflects retries that actually re-queued work.
func (r *DeadLetterRepository) RecordManualRetry(ctx context.Context, id string, kind types.DeadLetterKind, actor string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE dead_letters
		 SET manual_retry_count = manual_retry_count + 1,
		     last_manual_retry_at = NOW(),
		     last_manual_retry_by = $3,
		     updated_at = NOW()
		 WHERE id = $1 AND kind = $2`,
		id,
		string(kind),
		nilIfEmpty(actor),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record manual retry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundDeadLetter, "dead letter not found", nil)
	}
	return nil
}

// scanDeadLetter scans one dead letter row from either pgx.Row or pgx.Rows.
func scanDeadLetter(row pgx.Row) (*types.DeadLetter, error) {
	var (
		dl             types.DeadLetter
		snapshot       []byte
		suppressReason *string
		suppressedBy   *string
		lastRetryAt    *time.Time
		lastRetryBy    *string
	)
	err := row.Scan(
		&dl.ID,
		&dl.Kind,
		&snapshot,
		&dl.ErrorCode,
		&dl.ErrorMessage,
		&dl.Suppressed,
		&suppressReason,
		&suppressedBy,
		&dl.ManualRetryCount,
		&lastRetryAt,
		&lastRetryBy,
		&dl.CreatedAt,
		&dl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &dl.Snapshot); err != nil {
			return nil, err
		}
	}
	dl.SuppressReason = strOrEmpty(suppressReason)
	dl.SuppressedBy = strOrEmpty(suppressedBy)
	dl.LastManualRetryAt = timeOrZero(lastRetryAt)
	dl.LastManualRetryBy = strOrEmpty(lastRetryBy)
	return &dl, nil
}
