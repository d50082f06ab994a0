// Package scheduler implements the scheduled task surface of the pipeline:
// the pending-event sweep, the per-channel dispatch ticks, and the retention
// maintenance tasks. One EventBridge rule per task invokes the matching
// Lambda with a MaintenancePayload naming the task.
package scheduler

import "time"

// TaskType identifies which service should handle a scheduled invocation.
type TaskType string

const (
	TaskProcessPending TaskType = "process_pending"
	TaskDispatchEmail  TaskType = "dispatch_email"
	TaskDispatchPush   TaskType = "dispatch_push"
	TaskDispatchInApp  TaskType = "dispatch_inapp"
	TaskArchiveAudit   TaskType = "archive_audit"
	TaskPurgeAudit     TaskType = "purge_audit"
	TaskPurgeInApp     TaskType = "purge_inapp"
)

// MaintenancePayload is the JSON payload sent by EventBridge. ReferenceTime
// lets manual invocations pin "now" for deterministic execution and
// backfills; when nil, the handler uses the current time.
type MaintenancePayload struct {
	Task          TaskType   `json:"task"`
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
