package db

import (
	"context"
	"encoding/json"
	"time"

	"fairground/internal/types"
)

// AuditRepository provides data access for the audit_log and audit_archives
// tables. Insert is wrapped by the fire-and-forget AuditWriter in the events
// package; the archival methods serve the maintenance sweeper.
type AuditRepository struct {
	db DBTX
}

// NewAuditRepository creates a new AuditRepository backed by the given
// database connection (pool or transaction).
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert writes one audit row.
func (r *AuditRepository) Insert(ctx context.Context, e *types.AuditEntry) error {
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode audit detail", err)
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO audit_log (action, actor_id, entity_type, entity_id, detail)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		e.Action,
		nilIfEmpty(e.ActorID),
		e.EntityType,
		e.EntityID,
		detail,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert audit entry", err)
	}
	return nil
}

// ListOlderThan returns audit rows created before the cutoff, oldest first,
// bounded for batch archival.
func (r *AuditRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]types.AuditEntry, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, action, actor_id, entity_type, entity_id, detail, created_at
		 FROM audit_log
		 WHERE created_at < $1
		 ORDER BY created_at
		 LIMIT $2`,
		cutoff,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list audit entries", err)
	}
	defer rows.Close()

	var results []types.AuditEntry
	for rows.Next() {
		var (
			e       types.AuditEntry
			actorID *string
			detail  []byte
		)
		if err := rows.Scan(&e.ID, &e.Action, &actorID, &e.EntityType, &e.EntityID, &detail, &e.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan audit row", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode audit detail", err)
			}
		}
		e.ActorID = strOrEmpty(actorID)
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating audit rows", err)
	}
	return results, nil
}

// DeleteByIDs removes archived audit rows. Returns the number deleted.
func (r *AuditRepository) DeleteByIDs(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM audit_log WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete audit entries", err)
	}
	return int(tag.RowsAffected()), nil
}

// InsertArchive stores one compressed archive batch. The location is a
// logical cold-storage label (e.g. the archive bucket name); the compressed
// JSONL payload lives in the row.
func (r *AuditRepository) InsertArchive(ctx context.Context, location string, firstID, lastID int64, entryCount int, compressed []byte) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_archives (location, first_entry_id, last_entry_id, entry_count, data)
		 VALUES ($1, $2, $3, $4, $5)`,
		location,
		firstID,
		lastID,
		entryCount,
		compressed,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert audit archive", err)
	}
	return nil
}

// DeleteArchivesBefore removes archive batches created before the cutoff.
// Returns the number of batches deleted.
func (r *AuditRepository) DeleteArchivesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM audit_archives WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete audit archives", err)
	}
	return int(tag.RowsAffected()), nil
}
