package events

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"fairground/internal/config"
	"fairground/internal/types"
)

// sweepConcurrency bounds parallel event claims during a pending sweep.
// Claims are atomic per event, so concurrent sweeps are safe; the bound just
// keeps pool pressure reasonable.
const sweepConcurrency = 4

// EventQueue is the slice of the event repository the processor needs.
type EventQueue interface {
	// ListPending returns pending events as claim candidates, oldest first.
	//
	// SQL: SELECT id, attempts, last_attempt_at FROM events
	//      WHERE status = 'pending' ORDER BY created_at LIMIT $1
	ListPending(ctx context.Context, limit int) ([]types.ClaimCandidate, error)

	// Claim transitions pending -> processing with an attempts guard.
	//
	// SQL: UPDATE events SET status='processing', attempts=attempts+1,
	//      last_attempt_at=NOW()
	//      WHERE id=$1 AND status='pending' AND attempts=$2 RETURNING ...
	Claim(ctx context.Context, id string, expectedAttempts int) (*types.Event, error)

	MarkProcessed(ctx context.Context, id string) error
	ReleaseToPending(ctx context.Context, id string, processingError string) error
	MarkFailed(ctx context.Context, id string, processingError string) error
}

// JobCreator is the slice of the job repository the processor needs.
type JobCreator interface {
	// Insert creates the job unless the (event_id, user_id, channel) triple
	// already exists, making fan-out re-runs duplicate-free.
	//
	// SQL: INSERT INTO jobs (...) VALUES (...)
	//      ON CONFLICT (event_id, user_id, channel) DO NOTHING
	Insert(ctx context.Context, j *types.Job) (bool, error)
}

// EventQuarantiner converts an exhausted event into a dead letter.
type EventQuarantiner interface {
	QuarantineEvent(ctx context.Context, e *types.Event, cause *types.AppError) error
}

// Processor fans pending events out into per-channel delivery jobs. One
// event expands to one job per (target user, enabled channel); partial
// failures release the event back to pending, and the job-level idempotency
// makes the eventual re-run converge instead of duplicating.
type Processor struct {
	events     EventQueue
	jobs       JobCreator
	prefs      types.PreferenceStore
	contacts   types.ContactStore
	quarantine EventQuarantiner
	policy     config.PipelineConfig
	clock      types.Clock
	metrics    types.MetricsEmitter
	logger     types.Logger
}

// NewProcessor creates a Processor. quarantine and metrics may be nil.
func NewProcessor(
	events EventQueue,
	jobs JobCreator,
	prefs types.PreferenceStore,
	contacts types.ContactStore,
	quarantine EventQuarantiner,
	policy config.PipelineConfig,
	clock types.Clock,
	metrics types.MetricsEmitter,
	logger types.Logger,
) *Processor {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Processor{
		events:     events,
		jobs:       jobs,
		prefs:      prefs,
		contacts:   contacts,
		quarantine: quarantine,
		policy:     policy,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
	}
}

// SweepPending claims and fans out all due pending events, bounded by the
// batch size and the sweep time budget. Once the budget is spent no further
// claims are started; in-flight fan-outs finish and the remaining candidates
// wait for the next tick. Returns the number of events successfully
// processed. One event's failure never aborts the sweep.
func (p *Processor) SweepPending(ctx context.Context, limit int) (int, error) {
	start := p.clock.Now()
	deadline := start.Add(p.policy.SweepTimeBudget)

	candidates, err := p.events.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	var processed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	for i, c := range candidates {
		if p.policy.SweepTimeBudget > 0 && !p.clock.Now().Before(deadline) {
			p.logger.Warn("sweep budget spent, deferring remaining events",
				"remaining", len(candidates)-i)
			break
		}
		if !c.RetryDue(start, p.policy.Backoff(c.Attempts+1)) {
			continue
		}
		g.Go(func() error {
			ok, err := p.ProcessOne(gctx, c)
			if err != nil {
				p.logger.Error("event fan-out failed", "event_id", c.ID, "error", err)
			}
			if ok {
				processed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(processed.Load()), err
	}
	return int(processed.Load()), nil
}

// ProcessOne claims and fans out a single event. Returns true when the event
// reached processed. A lost claim returns (false, nil): another invocation
// owns the event.
func (p *Processor) ProcessOne(ctx context.Context, c types.ClaimCandidate) (bool, error) {
	e, err := p.events.Claim(ctx, c.ID, c.Attempts)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictClaimLost {
			return false, nil
		}
		return false, err
	}

	if fanErr := p.fanOut(ctx, e); fanErr != nil {
		return false, p.handleFanOutFailure(ctx, e, fanErr)
	}

	if err := p.events.MarkProcessed(ctx, e.ID); err != nil {
		return false, err
	}
	return true, nil
}

// fanOut creates the delivery jobs for every (target user, enabled channel)
// pair. Errors are accumulated per user so one user's preference outage does
// not skip the rest; any error leaves the event eligible for a converging
// re-run.
func (p *Processor) fanOut(ctx context.Context, e *types.Event) error {
	template, err := types.TemplateFor(e.Type)
	if err != nil {
		return err
	}

	var firstErr error
	jobsCreated := 0

	for _, userID := range e.TargetUserIDs {
		enabled, err := p.prefs.EnabledChannels(ctx, userID)
		if err != nil {
			firstErr = coalesceErr(firstErr, fmt.Errorf("preferences for %s: %w", userID, err))
			continue
		}
		contact, err := p.contacts.Contact(ctx, userID)
		if err != nil {
			firstErr = coalesceErr(firstErr, fmt.Errorf("contact for %s: %w", userID, err))
			continue
		}

		for _, ch := range types.AllChannels {
			if !enabled[ch] {
				continue
			}

			job := &types.Job{
				ID:              types.NewJobID(),
				EventID:         e.ID,
				UserID:          userID,
				Channel:         ch,
				Template:        template,
				TemplatePayload: e.Payload,
				Destination:     contact.Destination(ch),
			}
			if ch == types.ChannelEmail && p.policy.EmailFanOutDelay > 0 {
				// The delay opens the engagement-suppression window:
				// a click on the in-app copy cancels the email.
				job.DeliverAfterAt = p.clock.Now().Add(p.policy.EmailFanOutDelay)
			}

			created, err := p.jobs.Insert(ctx, job)
			if err != nil {
				firstErr = coalesceErr(firstErr, fmt.Errorf("job for %s/%s: %w", userID, ch, err))
				continue
			}
			if created {
				jobsCreated++
			}
		}
	}

	if firstErr != nil {
		return firstErr
	}

	p.logger.Info("event fanned out", "event_id", e.ID, "jobs_created", jobsCreated)
	if p.metrics != nil && jobsCreated > 0 {
		p.metrics.EmitCount(ctx, types.MetricFanOutJobs, float64(jobsCreated),
			map[string]string{types.DimEventType: string(e.Type)})
	}
	return nil
}

// handleFanOutFailure releases the event for retry or, at the attempt
// ceiling, fails it terminally and quarantines it.
func (p *Processor) handleFanOutFailure(ctx context.Context, e *types.Event, fanErr error) error {
	if e.Attempts < p.policy.MaxAttempts {
		p.logger.Warn("event released to pending after partial fan-out",
			"event_id", e.ID, "attempts", e.Attempts, "error", fanErr)
		return p.events.ReleaseToPending(ctx, e.ID, fanErr.Error())
	}

	cause := types.NewAppError(types.ErrCodeAttemptsExhausted,
		fmt.Sprintf("event fan-out exhausted %d attempts", e.Attempts), fanErr)
	if err := p.events.MarkFailed(ctx, e.ID, fanErr.Error()); err != nil {
		return err
	}
	p.logger.Error("event quarantined after attempt exhaustion",
		"event_id", e.ID, "attempts", e.Attempts, "error", fanErr)
	if p.quarantine != nil {
		if err := p.quarantine.QuarantineEvent(ctx, e, cause); err != nil {
			return err
		}
	}
	return nil
}

func coalesceErr(existing, next error) error {
	if existing != nil {
		return existing
	}
	return next
}

// EmitSweepDuration publishes the wall time of a full sweep. Entry points
// call it after SweepPending.
func (p *Processor) EmitSweepDuration(ctx context.Context, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.EmitDuration(ctx, types.MetricSweepDuration, p.clock.Now().Sub(start),
		map[string]string{types.DimTask: "process_pending"})
}
