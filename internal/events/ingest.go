package events

import (
	"context"
	"fmt"

	"fairground/internal/types"
)

// EventInserter is the slice of the event repository the ingestor needs.
type EventInserter interface {
	// Insert creates the event unless one with the same event_key exists.
	// Returns created=false with e.ID loaded from the existing row on a
	// duplicate key.
	//
	// SQL: INSERT INTO events (...) VALUES (...)
	//      ON CONFLICT (event_key) DO NOTHING RETURNING id, created_at
	Insert(ctx context.Context, e *types.Event) (bool, error)
}

// EmitInput is one producer-side trigger of a logical occurrence.
type EmitInput struct {
	Type          types.EventType
	EntityType    string
	EntityID      string
	TargetUserIDs []string
	Payload       types.Payload
	ActorID       string
	// Discriminator splits occurrences that share an entity reference,
	// e.g. one per ending-soon scan window. Optional.
	Discriminator string
}

// EmitResult reports the idempotent outcome. Created is false when the call
// collapsed onto an existing event; EventID is valid either way.
type EmitResult struct {
	Created bool   `json:"created"`
	EventID string `json:"event_id"`
}

// Ingestor accepts producer triggers and turns them into durable events.
// Validation failures surface synchronously to the producer; everything
// after the insert is asynchronous.
type Ingestor struct {
	store   EventInserter
	audit   types.AuditWriter
	metrics types.MetricsEmitter
	logger  types.Logger
}

// NewIngestor creates an Ingestor. audit and metrics may be nil.
func NewIngestor(store EventInserter, audit types.AuditWriter, metrics types.MetricsEmitter, logger types.Logger) *Ingestor {
	return &Ingestor{store: store, audit: audit, metrics: metrics, logger: logger}
}

// Emit validates, derives the idempotency key, and inserts the event.
// Calling it twice with the same logical inputs yields exactly one event;
// the second call reports Created=false with the same EventID.
func (ing *Ingestor) Emit(ctx context.Context, in EmitInput) (EmitResult, error) {
	if err := validateEmit(in); err != nil {
		return EmitResult{}, err
	}

	e := &types.Event{
		ID:            types.NewEventID(),
		Type:          in.Type,
		Payload:       in.Payload,
		TargetUserIDs: in.TargetUserIDs,
		ActorID:       in.ActorID,
		EntityType:    in.EntityType,
		EntityID:      in.EntityID,
		EventKey:      DeriveKey(in.Type, in.EntityType, in.EntityID, in.TargetUserIDs, in.Discriminator),
	}

	created, err := ing.store.Insert(ctx, e)
	if err != nil {
		return EmitResult{}, err
	}

	if created {
		ing.logger.Info("event ingested",
			"event_id", e.ID, "event_type", string(e.Type), "targets", len(e.TargetUserIDs))
		ing.recordAudit(ctx, types.AuditEventIngested, e, in.ActorID)
		ing.count(ctx, types.MetricEventIngested, e.Type)
	} else {
		ing.logger.Info("duplicate event collapsed",
			"event_id", e.ID, "event_key", e.EventKey)
		ing.count(ctx, types.MetricEventDuplicate, e.Type)
	}

	return EmitResult{Created: created, EventID: e.ID}, nil
}

func validateEmit(in EmitInput) error {
	if len(in.TargetUserIDs) == 0 {
		return types.NewAppError(types.ErrCodeValidationMissingField, "target_user_ids must be non-empty", nil)
	}
	for _, id := range in.TargetUserIDs {
		if id == "" {
			return types.NewAppError(types.ErrCodeValidationMissingField, "target user id must be non-empty", nil)
		}
	}
	if in.EntityType == "" || in.EntityID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "entity_type and entity_id are required", nil)
	}
	return types.ValidatePayload(in.Type, in.Payload)
}

func (ing *Ingestor) recordAudit(ctx context.Context, action string, e *types.Event, actorID string) {
	if ing.audit == nil {
		return
	}
	ing.audit.Record(ctx, action, "event", e.ID, types.Payload{
		"event_type": string(e.Type),
		"entity":     fmt.Sprintf("%s/%s", e.EntityType, e.EntityID),
		"actor_id":   actorID,
	})
}

func (ing *Ingestor) count(ctx context.Context, metric string, t types.EventType) {
	if ing.metrics == nil {
		return
	}
	ing.metrics.EmitCount(ctx, metric, 1, map[string]string{types.DimEventType: string(t)})
}
