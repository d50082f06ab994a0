package deadletter

import (
	"context"

	"fairground/internal/types"
)

// Admin actions accepted by the recovery surface.
const (
	ActionRetry      = "retry"
	ActionSuppress   = "suppress"
	ActionUnsuppress = "unsuppress"
)

// AdminStore is the slice of the dead letter repository the admin service
// needs.
type AdminStore interface {
	// SQL: SELECT ... FROM dead_letters WHERE id=$1 AND kind=$2
	Get(ctx context.Context, id string, kind types.DeadLetterKind) (*types.DeadLetter, error)

	// SQL: SELECT ... FROM dead_letters WHERE kind=$1
	//      ORDER BY created_at DESC LIMIT $2
	List(ctx context.Context, kind types.DeadLetterKind, limit int) ([]*types.DeadLetter, error)

	// SetSuppressed is idempotent; repeating the same value is a no-op.
	SetSuppressed(ctx context.Context, id string, kind types.DeadLetterKind, suppressed bool, reason string, actor string) error

	RecordManualRetry(ctx context.Context, id string, kind types.DeadLetterKind, actor string) error
}

// EventRetrier resets a failed event for reprocessing.
type EventRetrier interface {
	// Fails with ErrCodeConflictRetryCompleted when the event is terminal
	// success, ErrCodeNotFoundEvent when it is gone.
	ResetForRetry(ctx context.Context, id string) error
}

// JobRetrier resets a failed job for redelivery.
type JobRetrier interface {
	// Fails with ErrCodeConflictRetryCompleted when the job is sent or
	// skipped, ErrCodeNotFoundJob when it is gone.
	ResetForRetry(ctx context.Context, id string) error
}

// ActionInput is one operator request against a dead letter.
type ActionInput struct {
	Kind   types.DeadLetterKind
	ID     string
	Action string
	Reason string
	Actor  string
}

// ActionResult acknowledges a performed action.
type ActionResult struct {
	OK     bool   `json:"ok"`
	Action string `json:"action"`
}

// AdminService is the operator recovery surface over the quarantine: list,
// suppress, unsuppress, and retry.
//
// Retry policy: a retry re-queues the source record and counts on the dead
// letter, but deliberately does not clear the suppressed flag. Suppression
// answers "should this ever go out", retry answers "try again now"; an
// operator must unsuppress explicitly.
type AdminService struct {
	store  AdminStore
	events EventRetrier
	jobs   JobRetrier
	audit  types.AuditWriter
	logger types.Logger
}

// NewAdminService creates an AdminService. audit may be nil.
func NewAdminService(store AdminStore, events EventRetrier, jobs JobRetrier, audit types.AuditWriter, logger types.Logger) *AdminService {
	return &AdminService{store: store, events: events, jobs: jobs, audit: audit, logger: logger}
}

// List returns dead letters of one kind, newest first.
func (s *AdminService) List(ctx context.Context, kind types.DeadLetterKind, limit int) ([]*types.DeadLetter, error) {
	if !kind.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidKind, "unknown dead letter kind", nil)
	}
	return s.store.List(ctx, kind, limit)
}

// Act performs one admin action. A retry on a source record that already
// reached terminal success returns ErrCodeConflictRetryCompleted and
// performs no mutation.
func (s *AdminService) Act(ctx context.Context, in ActionInput) (ActionResult, error) {
	if !in.Kind.Valid() {
		return ActionResult{}, types.NewAppError(types.ErrCodeValidationInvalidKind, "unknown dead letter kind", nil)
	}

	// Every action addresses an existing dead letter; a missing row is 404
	// regardless of the source record's state.
	if _, err := s.store.Get(ctx, in.ID, in.Kind); err != nil {
		return ActionResult{}, err
	}

	switch in.Action {
	case ActionRetry:
		if err := s.retrySource(ctx, in); err != nil {
			return ActionResult{}, err
		}
		if err := s.store.RecordManualRetry(ctx, in.ID, in.Kind, in.Actor); err != nil {
			return ActionResult{}, err
		}
		s.recordAudit(ctx, types.AuditAdminRetry, in)
		s.logger.Info("dead letter retried", "dead_letter_id", in.ID, "kind", string(in.Kind), "actor", in.Actor)
		return ActionResult{OK: true, Action: ActionRetry}, nil

	case ActionSuppress:
		if err := s.store.SetSuppressed(ctx, in.ID, in.Kind, true, in.Reason, in.Actor); err != nil {
			return ActionResult{}, err
		}
		s.recordAudit(ctx, types.AuditAdminSuppress, in)
		s.logger.Info("dead letter suppressed", "dead_letter_id", in.ID, "kind", string(in.Kind), "actor", in.Actor)
		return ActionResult{OK: true, Action: ActionSuppress}, nil

	case ActionUnsuppress:
		if err := s.store.SetSuppressed(ctx, in.ID, in.Kind, false, "", in.Actor); err != nil {
			return ActionResult{}, err
		}
		s.recordAudit(ctx, types.AuditAdminUnsuppress, in)
		s.logger.Info("dead letter unsuppressed", "dead_letter_id", in.ID, "kind", string(in.Kind), "actor", in.Actor)
		return ActionResult{OK: true, Action: ActionUnsuppress}, nil

	default:
		return ActionResult{}, types.NewAppError(types.ErrCodeValidationInvalidAction,
			"action must be retry, suppress, or unsuppress", nil)
	}
}

func (s *AdminService) retrySource(ctx context.Context, in ActionInput) error {
	switch in.Kind {
	case types.KindEvent:
		return s.events.ResetForRetry(ctx, in.ID)
	default:
		// email and push dead letters share the jobs table.
		return s.jobs.ResetForRetry(ctx, in.ID)
	}
}

func (s *AdminService) recordAudit(ctx context.Context, action string, in ActionInput) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, action, "dead_letter", in.ID, types.Payload{
		"kind":   string(in.Kind),
		"reason": in.Reason,
		"actor":  in.Actor,
	})
}
