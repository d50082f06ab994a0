package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"fairground/internal/config"
	"fairground/internal/types"
)

// AuditArchiveDB is the audit retention surface of the database. Implemented
// by db.AuditRepository. Archives live in the audit_archives table as
// zstd-compressed JSONL batches; the hot audit_log table stays small while
// history remains queryable by restoring a batch.
type AuditArchiveDB interface {
	// ListOlderThan returns audit entries older than cutoff, oldest first.
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]types.AuditEntry, error)

	// DeleteByIDs removes audit entries by ID, returning the count deleted.
	DeleteByIDs(ctx context.Context, ids []int64) (int, error)

	// InsertArchive stores one compressed batch.
	InsertArchive(ctx context.Context, location string, firstID, lastID int64, entryCount int, compressed []byte) error

	// DeleteArchivesBefore removes archive batches created before cutoff.
	DeleteArchivesBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// InAppPurgeDB is the feed retention surface. Implemented by
// db.InAppRepository.
type InAppPurgeDB interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// MaintenanceService runs the retention tasks: audit archival, archive
// purge, and feed purge. All methods take `now` so manual invocations can
// pin the reference time.
type MaintenanceService struct {
	audit     AuditArchiveDB
	inapp     InAppPurgeDB
	retention config.RetentionConfig
	archiveTo string
	clock     types.Clock
	logger    types.Logger
}

// MaintenanceServiceConfig holds the dependencies for a MaintenanceService.
type MaintenanceServiceConfig struct {
	Audit     AuditArchiveDB
	InApp     InAppPurgeDB
	Retention config.RetentionConfig
	// ArchiveLocation labels stored batches, e.g. the logical bucket name.
	ArchiveLocation string
	// Clock may be nil; the real clock is used.
	Clock  types.Clock
	Logger types.Logger
}

// NewMaintenanceService creates a MaintenanceService.
func NewMaintenanceService(cfg MaintenanceServiceConfig) *MaintenanceService {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &MaintenanceService{
		audit:     cfg.Audit,
		inapp:     cfg.InApp,
		retention: cfg.Retention,
		archiveTo: cfg.ArchiveLocation,
		clock:     clock,
		logger:    cfg.Logger,
	}
}

// budgetSpent reports whether the maintenance time budget has run out
// relative to the given deadline. A zero budget disables the cutoff.
func (m *MaintenanceService) budgetSpent(deadline time.Time) bool {
	return m.retention.MaintenanceTimeBudget > 0 && !m.clock.Now().Before(deadline)
}

// ArchiveAuditLogs moves audit entries older than the archive window into
// compressed batches, looping until the backlog is drained or the time
// budget runs out (each batch is archived-then-deleted atomically enough
// that a budget exit just leaves the remainder for the next tick):
//
//  1. List a batch of entries past the cutoff, oldest first.
//  2. Serialize to JSONL and compress with zstd.
//  3. Store the batch, then delete the archived rows.
//
// Returns the count of entries archived.
func (m *MaintenanceService) ArchiveAuditLogs(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-m.retention.AuditArchiveAfter)
	deadline := m.clock.Now().Add(m.retention.MaintenanceTimeBudget)
	batchSize := m.retention.ArchiveBatchSize
	totalArchived := 0

	for {
		if m.budgetSpent(deadline) {
			m.logger.Warn("maintenance budget spent, deferring remaining audit backlog",
				"archived", totalArchived)
			break
		}

		entries, err := m.audit.ListOlderThan(ctx, cutoff, batchSize)
		if err != nil {
			return totalArchived, fmt.Errorf("listing audit entries for archival: %w", err)
		}

		if len(entries) == 0 {
			break
		}

		compressed, err := compressJSONL(entries)
		if err != nil {
			return totalArchived, fmt.Errorf("compressing audit batch: %w", err)
		}

		firstID := entries[0].ID
		lastID := entries[len(entries)-1].ID
		location := fmt.Sprintf("%s/audit/%d/%02d/batch_%d-%d.jsonl.zst",
			m.archiveTo, cutoff.Year(), cutoff.Month(), firstID, lastID)

		if err := m.audit.InsertArchive(ctx, location, firstID, lastID, len(entries), compressed); err != nil {
			return totalArchived, fmt.Errorf("storing audit archive %s: %w", location, err)
		}

		ids := make([]int64, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}

		deleted, err := m.audit.DeleteByIDs(ctx, ids)
		if err != nil {
			return totalArchived, fmt.Errorf("deleting archived audit entries: %w", err)
		}

		totalArchived += deleted

		m.logger.Info("archived audit batch",
			"batch_size", deleted,
			"location", location,
			"total_archived", totalArchived,
		)

		if len(entries) < batchSize {
			break
		}
	}

	return totalArchived, nil
}

// PurgeAuditArchives drops archive batches past the purge window. Returns
// the count of batches deleted.
func (m *MaintenanceService) PurgeAuditArchives(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-m.retention.AuditPurgeAfter)

	deleted, err := m.audit.DeleteArchivesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging audit archives: %w", err)
	}

	if deleted > 0 {
		m.logger.Info("purged audit archives", "batches", deleted)
	}
	return deleted, nil
}

// PurgeInAppNotifications drops feed rows past the retention window,
// batch-deleting until the backlog is drained or the time budget runs out.
// Returns the count of rows deleted.
func (m *MaintenanceService) PurgeInAppNotifications(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-m.retention.InAppPurgeAfter)
	deadline := m.clock.Now().Add(m.retention.MaintenanceTimeBudget)
	batchSize := m.retention.ArchiveBatchSize
	total := 0

	for {
		if m.budgetSpent(deadline) {
			m.logger.Warn("maintenance budget spent, deferring remaining feed purge",
				"rows_deleted", total)
			break
		}

		deleted, err := m.inapp.PurgeOlderThan(ctx, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("purging in-app notifications: %w", err)
		}

		total += int(deleted)
		if deleted < int64(batchSize) {
			break
		}
	}

	if total > 0 {
		m.logger.Info("purged in-app notifications", "rows", total)
	}
	return total, nil
}

// compressJSONL serializes entries as one JSON object per line and
// compresses the result with zstd.
func compressJSONL(entries []types.AuditEntry) ([]byte, error) {
	var raw bytes.Buffer
	enc := json.NewEncoder(&raw)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return nil, err
		}
	}

	var out bytes.Buffer
	zw, err := zstd.NewWriter(&out)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw.Bytes()); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}
