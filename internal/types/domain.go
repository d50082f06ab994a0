// Package types defines the shared domain model for the Fairground
// notification pipeline: events, per-channel delivery jobs, dead letters,
// and the enums and collaborator interfaces that connect them.
package types

import "time"

// Channel identifies a delivery channel for a notification job.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

// AllChannels lists every delivery channel in fan-out order. In-app is first
// because it is the fastest channel and the engagement-suppression signal
// source for delayed channels.
var AllChannels = []Channel{ChannelInApp, ChannelEmail, ChannelPush}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

// EventStatus is the lifecycle state of an Event.
type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusProcessing EventStatus = "processing"
	EventStatusProcessed  EventStatus = "processed"
	EventStatusFailed     EventStatus = "failed"
)

// JobStatus is the lifecycle state of a Job.
//
// State machine: queued -> processing -> {sent | skipped | queued | failed}.
// sent and skipped are terminal. failed is terminal for automatic processing
// but reversible by an operator retry, which resets the job to queued.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSent       JobStatus = "sent"
	JobStatusSkipped    JobStatus = "skipped"
	JobStatusFailed     JobStatus = "failed"
)

// TerminalSuccess reports whether the status is a terminal success state.
// Admin retry must never resurrect a record in one of these states.
func (s JobStatus) TerminalSuccess() bool {
	return s == JobStatusSent || s == JobStatusSkipped
}

// Event is one durable record per logical business occurrence, independent of
// delivery channel. Events are created once per idempotency key and mutated
// only by the fan-out processor; they are never deleted (retained for audit).
type Event struct {
	ID            string      `json:"id"`
	Type          EventType   `json:"type"`
	Payload       Payload     `json:"payload"`
	TargetUserIDs []string    `json:"target_user_ids"`
	ActorID       string      `json:"actor_id,omitempty"`
	EntityType    string      `json:"entity_type"`
	EntityID      string      `json:"entity_id"`
	Status        EventStatus `json:"status"`
	EventKey      string      `json:"event_key"`
	Attempts      int         `json:"attempts"`
	LastAttemptAt time.Time   `json:"last_attempt_at,omitzero"`
	ProcessingError string    `json:"processing_error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Job is one delivery attempt unit for one (event, user, channel) triple.
// Jobs reference Events by id but are independently owned by the dispatcher;
// the Event does not cascade-delete Jobs.
type Job struct {
	ID                string      `json:"id"`
	EventID           string      `json:"event_id"`
	UserID            string      `json:"user_id"`
	Channel           Channel     `json:"channel"`
	Template          TemplateTag `json:"template"`
	TemplatePayload   Payload     `json:"template_payload"`
	Destination       string      `json:"destination"`
	Status            JobStatus   `json:"status"`
	Attempts          int         `json:"attempts"`
	LastAttemptAt     time.Time   `json:"last_attempt_at,omitzero"`
	DeliverAfterAt    time.Time   `json:"deliver_after_at,omitzero"`
	ErrorCode         string      `json:"error_code,omitempty"`
	ErrorMessage      string      `json:"error_message,omitempty"`
	ProviderMessageID string      `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}

// DeadLetterKind categorizes a quarantined record by its source.
type DeadLetterKind string

const (
	KindEvent DeadLetterKind = "event"
	KindEmail DeadLetterKind = "email"
	KindPush  DeadLetterKind = "push"
)

// Valid reports whether k is a known dead-letter kind.
func (k DeadLetterKind) Valid() bool {
	switch k {
	case KindEvent, KindEmail, KindPush:
		return true
	}
	return false
}

// KindForChannel maps a job channel to its dead-letter kind. In-app jobs
// never quarantine (store-local writes); ok is false for them.
func KindForChannel(c Channel) (DeadLetterKind, bool) {
	switch c {
	case ChannelEmail:
		return KindEmail, true
	case ChannelPush:
		return KindPush, true
	}
	return "", false
}

// DeadLetter is a quarantine record for an Event or Job that exhausted
// automatic retries. The ID equals the source record's id; the snapshot is a
// redacted copy owned by the dead letter (mutating the source afterwards does
// not retroactively change it).
type DeadLetter struct {
	ID                string         `json:"id"`
	Kind              DeadLetterKind `json:"kind"`
	Snapshot          Payload        `json:"snapshot"`
	ErrorCode         string         `json:"error_code"`
	ErrorMessage      string         `json:"error_message"`
	Suppressed        bool           `json:"suppressed"`
	SuppressReason    string         `json:"suppress_reason,omitempty"`
	SuppressedBy      string         `json:"suppressed_by,omitempty"`
	ManualRetryCount  int            `json:"manual_retry_count"`
	LastManualRetryAt time.Time      `json:"last_manual_retry_at,omitzero"`
	LastManualRetryBy string         `json:"last_manual_retry_by,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Payload is a free-form JSON object column. Event payloads are validated
// against the schema registered for their EventType before any write.
type Payload map[string]any

// ChannelPreference is one row of a user's stored notification preferences.
type ChannelPreference struct {
	UserID  string
	Channel Channel
	Enabled bool
}

// UserContact holds the delivery destinations resolved at fan-out time.
// Destinations are snapshot onto the Job and not re-resolved at dispatch.
type UserContact struct {
	UserID       string
	EmailAddress string
	DeviceToken  string
}

// Destination returns the contact's destination for the given channel.
// The in-app destination is the user id itself.
func (c UserContact) Destination(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return c.EmailAddress
	case ChannelPush:
		return c.DeviceToken
	case ChannelInApp:
		return c.UserID
	}
	return ""
}

// InAppNotification is a row in the in-app notification feed. It is both the
// in-app channel's delivery target and the engagement-suppression signal
// source: ClickedAt (not ReadAt) gates suppression of delayed channels.
type InAppNotification struct {
	ID        string      `json:"id"`
	JobID     string      `json:"job_id"`
	EventID   string      `json:"event_id"`
	UserID    string      `json:"user_id"`
	Template  TemplateTag `json:"template"`
	Payload   Payload     `json:"payload"`
	ReadAt    time.Time   `json:"read_at,omitzero"`
	ClickedAt time.Time   `json:"clicked_at,omitzero"`
	CreatedAt time.Time   `json:"created_at"`
}

// ClaimCandidate is a lightweight row returned by queue listing queries.
// Attempts feeds the Go-side backoff eligibility check and doubles as the
// optimistic-concurrency guard on the subsequent claim.
type ClaimCandidate struct {
	ID            string
	Attempts      int
	LastAttemptAt time.Time
}

// RetryDue reports whether the candidate has waited out the backoff for its
// next attempt. A record with no prior attempt is always due.
func (c ClaimCandidate) RetryDue(now time.Time, backoff time.Duration) bool {
	if c.LastAttemptAt.IsZero() {
		return true
	}
	return !now.Before(c.LastAttemptAt.Add(backoff))
}

// DeliveryResult is the outcome of a single channel provider call.
type DeliveryResult struct {
	ProviderMessageID string
	Retryable         bool   // true when the failure is transient and the job should requeue
	FailureCode       string // ErrorCode string for failed sends
	FailureReason     string
}
