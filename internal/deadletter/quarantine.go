// Package deadletter implements the quarantine and operator recovery surface
// for records that exhausted automatic retries.
package deadletter

import (
	"context"
	"strings"

	"fairground/internal/types"
)

// Store is the slice of the dead letter repository the quarantiner needs.
type Store interface {
	// Upsert merges on (id, kind): snapshot and error refresh, operator
	// state (suppression, manual retry counters) is preserved.
	//
	// SQL: INSERT INTO dead_letters (...) VALUES (...)
	//      ON CONFLICT (id, kind) DO UPDATE SET snapshot=..., error_code=...,
	//      error_message=..., updated_at=NOW()
	Upsert(ctx context.Context, dl *types.DeadLetter) error
}

// Quarantiner converts exhausted events and jobs into dead letters. The
// snapshot is an owned, redacted copy: enough context to diagnose without
// raw logs (template, user, event, attempts, error), with destinations
// masked so the quarantine table never becomes a PII store.
type Quarantiner struct {
	store   Store
	alerter types.OpsAlerter
	metrics types.MetricsEmitter
	logger  types.Logger
}

// NewQuarantiner creates a Quarantiner. alerter and metrics may be nil.
func NewQuarantiner(store Store, alerter types.OpsAlerter, metrics types.MetricsEmitter, logger types.Logger) *Quarantiner {
	return &Quarantiner{store: store, alerter: alerter, metrics: metrics, logger: logger}
}

// QuarantineEvent dead-letters an event that exhausted fan-out attempts.
func (q *Quarantiner) QuarantineEvent(ctx context.Context, e *types.Event, cause *types.AppError) error {
	dl := &types.DeadLetter{
		ID:   e.ID,
		Kind: types.KindEvent,
		Snapshot: types.Payload{
			"event_id":     e.ID,
			"event_type":   string(e.Type),
			"event_key":    e.EventKey,
			"entity_type":  e.EntityType,
			"entity_id":    e.EntityID,
			"target_users": e.TargetUserIDs,
			"attempts":     e.Attempts,
			"created_at":   e.CreatedAt,
		},
		ErrorCode:    string(cause.Code),
		ErrorMessage: cause.Message,
	}
	return q.quarantine(ctx, dl)
}

// QuarantineJob dead-letters a job that exhausted delivery attempts or hit a
// non-retryable failure. Returns (false, nil) for channels that do not
// quarantine: in-app delivery is a local store write, so its jobs fail
// without producing dead letters.
func (q *Quarantiner) QuarantineJob(ctx context.Context, j *types.Job, cause *types.AppError) (bool, error) {
	kind, ok := types.KindForChannel(j.Channel)
	if !ok {
		return false, nil
	}

	dl := &types.DeadLetter{
		ID:   j.ID,
		Kind: kind,
		Snapshot: types.Payload{
			"job_id":      j.ID,
			"event_id":    j.EventID,
			"user_id":     j.UserID,
			"channel":     string(j.Channel),
			"template":    string(j.Template),
			"destination": RedactDestination(j.Channel, j.Destination),
			"attempts":    j.Attempts,
			"created_at":  j.CreatedAt,
		},
		ErrorCode:    string(cause.Code),
		ErrorMessage: cause.Message,
	}
	if err := q.quarantine(ctx, dl); err != nil {
		return false, err
	}
	return true, nil
}

func (q *Quarantiner) quarantine(ctx context.Context, dl *types.DeadLetter) error {
	if err := q.store.Upsert(ctx, dl); err != nil {
		return err
	}

	q.logger.Error("record quarantined",
		"dead_letter_id", dl.ID,
		"kind", string(dl.Kind),
		"error_code", dl.ErrorCode,
	)
	if q.metrics != nil {
		q.metrics.EmitCount(ctx, types.MetricDeadLetterCreated, 1, map[string]string{
			types.DimKind:      string(dl.Kind),
			types.DimErrorCode: dl.ErrorCode,
		})
	}
	if q.alerter != nil {
		q.alerter.DeadLetterCreated(ctx, dl)
	}
	return nil
}

// RedactDestination masks a delivery destination for storage in snapshots
// and logs. Email local parts keep their first character; push tokens keep a
// short prefix. In-app destinations are user ids and pass through.
func RedactDestination(channel types.Channel, destination string) string {
	if destination == "" {
		return ""
	}
	switch channel {
	case types.ChannelEmail:
		at := strings.LastIndexByte(destination, '@')
		if at <= 0 {
			return "***"
		}
		return destination[:1] + "***" + destination[at:]
	case types.ChannelPush:
		if len(destination) <= 8 {
			return "***"
		}
		return destination[:8] + "..."
	}
	return destination
}
