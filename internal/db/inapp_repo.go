package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"fairground/internal/types"
)

// InAppRepository provides data access for the inapp_notifications table.
// The table doubles as the in-app delivery target and the engagement signal
// source: the clicked_at column feeds suppression of delayed channels, so
// this repository also implements types.EngagementStore.
type InAppRepository struct {
	db DBTX
}

// NewInAppRepository creates a new InAppRepository backed by the given
// database connection (pool or transaction).
func NewInAppRepository(db DBTX) *InAppRepository {
	return &InAppRepository{db: db}
}

// Insert writes one feed entry. A job_id conflict means the in-app
// dispatcher already delivered this job; the duplicate is dropped so a
// claim retry cannot double-post to the feed.
func (r *InAppRepository) Insert(ctx context.Context, n *types.InAppNotification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode in-app payload", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO inapp_notifications (id, job_id, event_id, user_id, template, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (job_id) DO NOTHING`,
		n.ID,
		n.JobID,
		n.EventID,
		n.UserID,
		string(n.Template),
		payload,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert in-app notification", err)
	}
	return nil
}

// ClickedInApp reports whether the user clicked the in-app copy of the given
// event. Implements types.EngagementStore for dispatch-time suppression.
// Read-without-click does not count.
func (r *InAppRepository) ClickedInApp(ctx context.Context, eventID, userID string) (bool, error) {
	var clicked bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM inapp_notifications
		   WHERE event_id = $1 AND user_id = $2 AND clicked_at IS NOT NULL
		 )`,
		eventID,
		userID,
	).Scan(&clicked)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check in-app engagement", err)
	}
	return clicked, nil
}

// MarkRead stamps read_at, once. Re-reads keep the original timestamp.
func (r *InAppRepository) MarkRead(ctx context.Context, id string, userID string) error {
	return r.stamp(ctx, id, userID, "read_at")
}

// MarkClicked stamps clicked_at (and read_at, since clicking implies
// reading), once. This is the write that arms engagement suppression.
func (r *InAppRepository) MarkClicked(ctx context.Context, id string, userID string) error {
	return r.stamp(ctx, id, userID, "clicked_at")
}

func (r *InAppRepository) stamp(ctx context.Context, id string, userID string, column string) error {
	var sql string
	switch column {
	case "read_at":
		sql = `UPDATE inapp_notifications SET read_at = COALESCE(read_at, NOW())
		       WHERE id = $1 AND user_id = $2`
	case "clicked_at":
		sql = `UPDATE inapp_notifications
		       SET clicked_at = COALESCE(clicked_at, NOW()), read_at = COALESCE(read_at, NOW())
		       WHERE id = $1 AND user_id = $2`
	default:
		return types.NewAppError(types.ErrCodeInternalUnexpected, "unknown engagement column", nil)
	}

	tag, err := r.db.Exec(ctx, sql, id, userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update in-app notification", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "in-app notification not found", nil)
	}
	return nil
}

// ListForUser returns the user's feed, newest first.
func (r *InAppRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*types.InAppNotification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, job_id, event_id, user_id, template, payload, read_at, clicked_at, created_at
		 FROM inapp_notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list in-app notifications", err)
	}
	defer rows.Close()

	var results []*types.InAppNotification
	for rows.Next() {
		n, scanErr := scanInApp(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan in-app row", scanErr)
		}
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating in-app rows", err)
	}
	return results, nil
}

// PurgeOlderThan deletes feed entries created before the cutoff, in bounded
// batches so the maintenance task can stay inside its time budget. Returns
// the number of rows deleted.
func (r *InAppRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	tag, err := r.db.Exec(ctx,
		`DELETE FROM inapp_notifications
		 WHERE id IN (
		   SELECT id FROM inapp_notifications
		   WHERE created_at < $1
		   ORDER BY created_at
		   LIMIT $2
		 )`,
		cutoff,
		batchSize,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge in-app notifications", err)
	}
	return tag.RowsAffected(), nil
}

func scanInApp(row pgx.Row) (*types.InAppNotification, error) {
	var (
		n         types.InAppNotification
		payload   []byte
		readAt    *time.Time
		clickedAt *time.Time
	)
	err := row.Scan(
		&n.ID,
		&n.JobID,
		&n.EventID,
		&n.UserID,
		&n.Template,
		&payload,
		&readAt,
		&clickedAt,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return nil, err
		}
	}
	n.ReadAt = timeOrZero(readAt)
	n.ClickedAt = timeOrZero(clickedAt)
	return &n, nil
}

// Compile-time check that the repository satisfies the engagement interface.
var _ types.EngagementStore = (*InAppRepository)(nil)
