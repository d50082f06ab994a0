package dispatch

import (
	"context"
	"errors"
	"fmt"

	"fairground/internal/config"
	"fairground/internal/types"
)

// JobQueue is the slice of the job repository the dispatcher needs.
type JobQueue interface {
	// ListDue returns due queued jobs for the channel as claim candidates,
	// oldest first.
	//
	// SQL: SELECT id, attempts, last_attempt_at FROM jobs
	//      WHERE channel=$1 AND status='queued'
	//        AND (deliver_after_at IS NULL OR deliver_after_at <= NOW())
	//      ORDER BY created_at LIMIT $2
	ListDue(ctx context.Context, channel types.Channel, limit int) ([]types.ClaimCandidate, error)

	// Claim transitions queued -> processing with an attempts guard, so two
	// concurrent dispatcher runs produce exactly one winner per job.
	//
	// SQL: UPDATE jobs SET status='processing', attempts=attempts+1,
	//      last_attempt_at=NOW()
	//      WHERE id=$1 AND status='queued' AND attempts=$2
	//        AND (deliver_after_at IS NULL OR deliver_after_at <= NOW())
	//      RETURNING ...
	Claim(ctx context.Context, id string, expectedAttempts int) (*types.Job, error)

	MarkSent(ctx context.Context, id string, providerMessageID string) error
	MarkSkipped(ctx context.Context, id string, reason string) error
	MarkFailed(ctx context.Context, id string, errorCode string, errorMessage string) error
	Requeue(ctx context.Context, id string, errorCode string, errorMessage string) error
}

// JobQuarantiner converts an exhausted or invalid job into a dead letter.
// Channels outside the quarantine kind set report created=false.
type JobQuarantiner interface {
	QuarantineJob(ctx context.Context, j *types.Job, cause *types.AppError) (bool, error)
}

// SuppressionLookup answers whether a suppressed dead letter blocks a job.
type SuppressionLookup interface {
	IsSuppressed(ctx context.Context, id string, kind types.DeadLetterKind) (bool, error)
}

// Skip reasons recorded on skipped jobs.
const (
	SkipReasonEngaged    = "engaged_in_app"
	SkipReasonSuppressed = "suppressed_by_operator"
)

// Stats summarizes one dispatcher run.
type Stats struct {
	Claimed     int
	Sent        int
	Skipped     int
	Requeued    int
	Failed      int
	ClaimLost   int
	BudgetSpent bool
}

// Dispatcher drains one channel's job queue. Each run claims up to the batch
// size of due jobs and walks them oldest first; a single job's failure is
// recorded on that job and never aborts the rest of the batch. Runs are
// time-budgeted so a slow provider defers work to the next tick instead of
// overlapping it.
type Dispatcher struct {
	jobs       JobQueue
	channel    types.DeliveryChannel
	suppressor *Suppressor
	suppressed SuppressionLookup
	quarantine JobQuarantiner
	audit      types.AuditWriter
	policy     config.PipelineConfig
	clock      types.Clock
	metrics    types.MetricsEmitter
	logger     types.Logger
}

// NewDispatcher creates a Dispatcher for one channel. suppressor, suppressed,
// quarantine, audit and metrics may be nil where the channel does not use them.
func NewDispatcher(
	jobs JobQueue,
	channel types.DeliveryChannel,
	suppressor *Suppressor,
	suppressed SuppressionLookup,
	quarantine JobQuarantiner,
	audit types.AuditWriter,
	policy config.PipelineConfig,
	clock types.Clock,
	metrics types.MetricsEmitter,
	logger types.Logger,
) *Dispatcher {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Dispatcher{
		jobs:       jobs,
		channel:    channel,
		suppressor: suppressor,
		suppressed: suppressed,
		quarantine: quarantine,
		audit:      audit,
		policy:     policy,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run executes one dispatch batch.
func (d *Dispatcher) Run(ctx context.Context) (Stats, error) {
	start := d.clock.Now()
	deadline := start.Add(d.policy.DispatchTimeBudget)

	candidates, err := d.jobs.ListDue(ctx, d.channel.Type(), d.policy.DispatchBatchSize)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, c := range candidates {
		if d.policy.DispatchTimeBudget > 0 && !d.clock.Now().Before(deadline) {
			stats.BudgetSpent = true
			d.logger.Warn("dispatch budget spent, deferring remaining jobs",
				"channel", string(d.channel.Type()), "remaining", len(candidates)-stats.Claimed-stats.ClaimLost)
			break
		}
		if !c.RetryDue(d.clock.Now(), d.policy.Backoff(c.Attempts+1)) {
			continue
		}

		job, err := d.jobs.Claim(ctx, c.ID, c.Attempts)
		if err != nil {
			var appErr *types.AppError
			if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictClaimLost {
				stats.ClaimLost++
				continue
			}
			return stats, err
		}
		stats.Claimed++

		d.dispatchOne(ctx, job, &stats)
	}

	if d.metrics != nil {
		d.metrics.EmitDuration(ctx, types.MetricDispatchDuration, d.clock.Now().Sub(start),
			map[string]string{types.DimChannel: string(d.channel.Type())})
	}

	d.logger.Info("dispatch run complete",
		"channel", string(d.channel.Type()),
		"claimed", stats.Claimed,
		"sent", stats.Sent,
		"skipped", stats.Skipped,
		"requeued", stats.Requeued,
		"failed", stats.Failed,
	)
	return stats, nil
}

// dispatchOne takes a claimed job to a terminal-or-requeued state. All
// failure handling is recorded on the job; nothing escapes to the batch loop.
func (d *Dispatcher) dispatchOne(ctx context.Context, job *types.Job, stats *Stats) {
	d.count(ctx, types.MetricDeliveryAttempt)

	// Exhaustion without sending: a claim that lands past the ceiling
	// (operator reset races, policy lowered) quarantines immediately.
	if job.Attempts > d.policy.MaxAttempts {
		d.failAndQuarantine(ctx, job, types.NewAppError(types.ErrCodeAttemptsExhausted,
			fmt.Sprintf("job exceeded %d attempts", d.policy.MaxAttempts), nil), stats)
		return
	}

	// Operator suppression: checked at dispatch time because the flag can
	// change between enqueue and send.
	if kind, ok := types.KindForChannel(job.Channel); ok && d.suppressed != nil {
		suppressed, err := d.suppressed.IsSuppressed(ctx, job.ID, kind)
		if err != nil {
			d.logger.Warn("suppression lookup failed, continuing",
				"job_id", job.ID, "error", err)
		} else if suppressed {
			d.skip(ctx, job, SkipReasonSuppressed, stats)
			return
		}
	}

	// Engagement suppression (delayed channels, fail-open).
	if d.suppressor != nil && d.suppressor.ShouldSuppress(ctx, job) {
		d.skip(ctx, job, SkipReasonEngaged, stats)
		return
	}

	// Destination validation failures can never succeed on retry; they
	// dead-letter on the first attempt.
	if err := d.channel.ValidateDestination(job.Destination); err != nil {
		appErr := asAppError(err, types.ErrCodeValidationDestination)
		d.failAndQuarantine(ctx, job, appErr, stats)
		return
	}

	result, err := d.channel.Deliver(ctx, job)
	switch {
	case err != nil:
		// Infrastructure failure: retryable.
		d.retryOrExhaust(ctx, job, asAppError(err, types.ErrCodeUpstreamUnavailable), stats)

	case result.Retryable:
		d.retryOrExhaust(ctx, job, types.NewAppError(types.ErrorCodeOrDefault(result.FailureCode, types.ErrCodeUpstreamUnavailable), result.FailureReason, nil), stats)

	case result.FailureCode != "":
		// Permanent provider rejection.
		d.failAndQuarantine(ctx, job,
			types.NewAppError(types.ErrorCodeOrDefault(result.FailureCode, types.ErrCodeUpstreamUnavailable), result.FailureReason, nil), stats)

	default:
		if err := d.jobs.MarkSent(ctx, job.ID, result.ProviderMessageID); err != nil {
			d.logger.Error("failed to mark job sent", "job_id", job.ID, "error", err)
			stats.Failed++
			return
		}
		stats.Sent++
		d.count(ctx, types.MetricDeliverySuccess)
		if d.audit != nil {
			d.audit.Record(ctx, types.AuditJobSent, "job", job.ID, types.Payload{
				"channel":             string(job.Channel),
				"provider_message_id": result.ProviderMessageID,
			})
		}
	}
}

func (d *Dispatcher) skip(ctx context.Context, job *types.Job, reason string, stats *Stats) {
	if err := d.jobs.MarkSkipped(ctx, job.ID, reason); err != nil {
		d.logger.Error("failed to mark job skipped", "job_id", job.ID, "error", err)
		stats.Failed++
		return
	}
	stats.Skipped++
	d.count(ctx, types.MetricDeliverySkipped)
	d.logger.Info("job skipped", "job_id", job.ID, "reason", reason)
	if d.audit != nil {
		d.audit.Record(ctx, types.AuditJobSkipped, "job", job.ID, types.Payload{
			"channel": string(job.Channel),
			"reason":  reason,
		})
	}
}

// retryOrExhaust requeues a transient failure, or fails terminally once the
// attempt that just ran reached the ceiling.
func (d *Dispatcher) retryOrExhaust(ctx context.Context, job *types.Job, cause *types.AppError, stats *Stats) {
	if job.Attempts < d.policy.MaxAttempts {
		if err := d.jobs.Requeue(ctx, job.ID, string(cause.Code), cause.Message); err != nil {
			d.logger.Error("failed to requeue job", "job_id", job.ID, "error", err)
			stats.Failed++
			return
		}
		stats.Requeued++
		d.logger.Warn("job requeued after transient failure",
			"job_id", job.ID, "attempts", job.Attempts, "error_code", string(cause.Code))
		return
	}

	exhausted := types.NewAppError(types.ErrCodeAttemptsExhausted,
		fmt.Sprintf("delivery exhausted %d attempts: %s", job.Attempts, cause.Message), cause)
	d.failAndQuarantine(ctx, job, exhausted, stats)
}

func (d *Dispatcher) failAndQuarantine(ctx context.Context, job *types.Job, cause *types.AppError, stats *Stats) {
	if err := d.jobs.MarkFailed(ctx, job.ID, string(cause.Code), cause.Message); err != nil {
		d.logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
		stats.Failed++
		return
	}
	stats.Failed++
	d.count(ctx, types.MetricDeliveryFailed)

	if d.quarantine == nil {
		return
	}
	created, err := d.quarantine.QuarantineJob(ctx, job, cause)
	if err != nil {
		d.logger.Error("failed to quarantine job", "job_id", job.ID, "error", err)
		return
	}
	if created && d.audit != nil {
		d.audit.Record(ctx, types.AuditJobQuarantined, "job", job.ID, types.Payload{
			"channel":    string(job.Channel),
			"error_code": string(cause.Code),
		})
	}
}

func (d *Dispatcher) count(ctx context.Context, metric string) {
	if d.metrics == nil {
		return
	}
	d.metrics.EmitCount(ctx, metric, 1, map[string]string{types.DimChannel: string(d.channel.Type())})
}

// asAppError coerces any error into an AppError with a fallback code.
func asAppError(err error, fallback types.ErrorCode) *types.AppError {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return types.NewAppError(fallback, err.Error(), err)
}
