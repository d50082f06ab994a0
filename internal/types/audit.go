package types

import "time"

// AuditEntry is one row of the audit_log table: a pipeline decision recorded
// for correlation (ingest accepted, job skipped, dead letter retried). Writes
// are fire-and-forget; archival moves old rows to compressed cold storage.
type AuditEntry struct {
	ID         int64     `json:"id"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actor_id,omitempty"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     Payload   `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Audit action names. Free-form actions are allowed; these constants cover
// the pipeline's own writes so queries do not depend on scattered literals.
const (
	AuditEventIngested    = "event.ingested"
	AuditEventDuplicate   = "event.duplicate"
	AuditEventProcessed   = "event.processed"
	AuditEventQuarantined = "event.quarantined"
	AuditJobSent          = "job.sent"
	AuditJobSkipped       = "job.skipped"
	AuditJobQuarantined   = "job.quarantined"
	AuditAdminRetry       = "admin.retry"
	AuditAdminSuppress    = "admin.suppress"
	AuditAdminUnsuppress  = "admin.unsuppress"
)
