package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the pipeline.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// DeliveryChannel is one delivery channel implementation (email, push, in-app).
type DeliveryChannel interface {
	// Type returns the channel this implementation serves.
	Type() Channel

	// ValidateDestination rejects destinations that can never succeed
	// (empty address, malformed token). Failures are non-retryable.
	ValidateDestination(destination string) error

	// Deliver renders and transmits one job. A nil error with
	// Retryable=false in the result means a permanent provider rejection;
	// a non-nil error is an infrastructure failure and is retryable.
	Deliver(ctx context.Context, job *Job) (*DeliveryResult, error)
}

// PreferenceStore resolves a user's per-channel opt-in state. Missing rows
// default to enabled; lookups fail open so a preference outage degrades to
// over-delivery, never silence.
type PreferenceStore interface {
	EnabledChannels(ctx context.Context, userID string) (map[Channel]bool, error)
}

// ContactStore resolves delivery destinations at fan-out time.
type ContactStore interface {
	Contact(ctx context.Context, userID string) (UserContact, error)
}

// EngagementStore answers whether the user already engaged with the in-app
// copy of an event, used to suppress delayed channels at dispatch time.
type EngagementStore interface {
	ClickedInApp(ctx context.Context, eventID, userID string) (bool, error)
}

// AuditWriter records pipeline decisions fire-and-forget. Implementations
// must never return an error that blocks the caller; failures are logged
// and swallowed.
type AuditWriter interface {
	Record(ctx context.Context, action string, entityType string, entityID string, detail Payload)
}

// MetricsEmitter publishes operational counters. Best-effort; failures must
// not affect the pipeline.
type MetricsEmitter interface {
	EmitCount(ctx context.Context, name string, value float64, dims map[string]string)
	EmitDuration(ctx context.Context, name string, d time.Duration, dims map[string]string)
}

// OpsAlerter notifies operators of new quarantines. Fire-and-forget.
type OpsAlerter interface {
	DeadLetterCreated(ctx context.Context, dl *DeadLetter)
}
