// Package dispatch implements the per-channel polling dispatchers that drain
// the job queue: claim, suppression checks, delivery, retry with backoff,
// and quarantine at exhaustion.
package dispatch

import (
	"context"

	"fairground/internal/types"
)

// Suppressor decides whether a claimed job should be skipped because the
// user already engaged with the in-app copy of the same event. Only delayed
// channels participate: email jobs wait out a fan-out delay precisely so
// this signal has time to arrive. A click counts; a mere read does not.
//
// The check fails open. A broken engagement lookup degrades to
// over-delivery, never to silently dropped notifications.
type Suppressor struct {
	engagement types.EngagementStore
	logger     types.Logger
}

// NewSuppressor creates a Suppressor.
func NewSuppressor(engagement types.EngagementStore, logger types.Logger) *Suppressor {
	return &Suppressor{engagement: engagement, logger: logger}
}

// ShouldSuppress reports whether the job's delivery is redundant.
func (s *Suppressor) ShouldSuppress(ctx context.Context, job *types.Job) bool {
	if job.Channel != types.ChannelEmail {
		return false
	}

	clicked, err := s.engagement.ClickedInApp(ctx, job.EventID, job.UserID)
	if err != nil {
		s.logger.Warn("engagement check failed, not suppressing",
			"job_id", job.ID, "event_id", job.EventID, "error", err)
		return false
	}
	return clicked
}
