// Package inapp implements the in-app delivery channel. Delivery is a local
// database write rather than a vendor call: the notification becomes a feed
// row the client reads, marks, and clicks.
package inapp

import (
	"context"

	"fairground/internal/types"
)

// NotificationStore persists feed rows. Implemented by db.InAppRepository;
// the insert is idempotent on job_id so a redelivered job cannot produce a
// duplicate feed entry.
type NotificationStore interface {
	Insert(ctx context.Context, n *types.InAppNotification) error
}

// Channel implements types.DeliveryChannel for in-app notifications.
type Channel struct {
	store  NotificationStore
	clock  types.Clock
	logger types.Logger
}

// ChannelConfig holds the dependencies needed to create a Channel.
type ChannelConfig struct {
	Store  NotificationStore
	Clock  types.Clock
	Logger types.Logger
}

// NewChannel creates an in-app Channel with the given dependencies.
func NewChannel(cfg ChannelConfig) *Channel {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Channel{
		store:  cfg.Store,
		clock:  clock,
		logger: cfg.Logger,
	}
}

// Type returns the channel identifier for in-app.
func (c *Channel) Type() types.Channel {
	return types.ChannelInApp
}

// ValidateDestination always succeeds. In-app jobs address the user by ID;
// there is no external destination to validate.
func (c *Channel) ValidateDestination(destination string) error {
	return nil
}

// Deliver writes the notification into the user's feed. The write cannot
// fail permanently: any error is an infrastructure problem and retryable.
func (c *Channel) Deliver(ctx context.Context, job *types.Job) (*types.DeliveryResult, error) {
	n := &types.InAppNotification{
		ID:        types.NewNotificationID(),
		JobID:     job.ID,
		EventID:   job.EventID,
		UserID:    job.UserID,
		Template:  job.Template,
		Payload:   job.TemplatePayload,
		CreatedAt: c.clock.Now(),
	}

	if err := c.store.Insert(ctx, n); err != nil {
		return nil, err
	}

	c.logger.Info("in-app notification stored",
		"job_id", job.ID,
		"notification_id", n.ID,
		"user_id", job.UserID,
	)

	return &types.DeliveryResult{ProviderMessageID: n.ID}, nil
}

var _ types.DeliveryChannel = (*Channel)(nil)
