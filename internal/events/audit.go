package events

import (
	"context"

	"fairground/internal/types"
)

// AuditInserter is the slice of the audit repository the writer needs.
type AuditInserter interface {
	// SQL: INSERT INTO audit_log (action, actor_id, entity_type, entity_id, detail)
	//      VALUES (...) RETURNING id, created_at
	Insert(ctx context.Context, e *types.AuditEntry) error
}

// AuditRecorder implements types.AuditWriter over the audit repository.
// Record never returns an error: audit failures are logged and swallowed so
// an audit outage cannot block ingestion or dispatch.
type AuditRecorder struct {
	store  AuditInserter
	logger types.Logger
}

// NewAuditRecorder creates an AuditRecorder.
func NewAuditRecorder(store AuditInserter, logger types.Logger) *AuditRecorder {
	return &AuditRecorder{store: store, logger: logger}
}

// Record writes one audit entry, fire-and-forget.
func (a *AuditRecorder) Record(ctx context.Context, action string, entityType string, entityID string, detail types.Payload) {
	actorID := ""
	if actor, ok := types.GetActor(ctx); ok {
		actorID = actor.ID
	}

	entry := &types.AuditEntry{
		Action:     action,
		ActorID:    actorID,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
	}
	if err := a.store.Insert(ctx, entry); err != nil {
		a.logger.Warn("failed to record audit entry",
			"action", action,
			"entity_id", entityID,
			"error", err,
		)
	}
}

var _ types.AuditWriter = (*AuditRecorder)(nil)
