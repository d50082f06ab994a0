// Package push implements the mobile push delivery channel.
package push

import (
	"context"
	"errors"

	"fairground/internal/external"
	"fairground/internal/types"
)

// minTokenLength is the shortest device token worth sending to the
// provider. Real FCM registration tokens run well past 100 characters;
// anything shorter is a truncated or corrupt value.
const minTokenLength = 32

// Channel implements types.DeliveryChannel for push.
type Channel struct {
	provider external.PushProvider
	logger   types.Logger
}

// ChannelConfig holds the dependencies needed to create a Channel.
type ChannelConfig struct {
	Provider external.PushProvider
	Logger   types.Logger
}

// NewChannel creates a push Channel with the given dependencies.
func NewChannel(cfg ChannelConfig) *Channel {
	return &Channel{
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Type returns the channel identifier for push.
func (c *Channel) Type() types.Channel {
	return types.ChannelPush
}

// ValidateDestination checks that the destination is a plausible device
// token. Jobs failing this check dead-letter on their first attempt.
func (c *Channel) ValidateDestination(destination string) error {
	if destination == "" {
		return types.NewAppError(
			types.ErrCodeValidationDestination,
			"job has no device token on file",
			nil,
		)
	}

	if len(destination) < minTokenLength {
		return types.NewAppError(
			types.ErrCodeValidationInvalidToken,
			"destination is too short to be a device token",
			nil,
		)
	}

	return nil
}

// Deliver publishes the notification to the job's device token. Expired
// tokens come back as a non-retryable DeliveryResult; transient provider
// failures come back as errors so the dispatcher requeues the job.
func (c *Channel) Deliver(ctx context.Context, job *types.Job) (*types.DeliveryResult, error) {
	c.logger.Info("attempting push delivery",
		"job_id", job.ID,
		"template", string(job.Template),
		"dest", redactToken(job.Destination),
	)

	rendered, err := renderPush(job.Template, job.TemplatePayload)
	if err != nil {
		return &types.DeliveryResult{
			FailureCode:   string(types.ErrCodeValidationUnknownTemplate),
			FailureReason: err.Error(),
		}, nil
	}

	msgID, err := c.provider.SendPush(ctx, types.PushInput{
		Token:       job.Destination,
		Title:       rendered.Title,
		Body:        rendered.Body,
		Data:        rendered.Data,
		ReferenceID: job.ID,
	})
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			switch appErr.Code {
			case types.ErrCodePushTokenExpired, types.ErrCodeUpstreamPushProvider:
				// Dead token or a publish the provider will never
				// accept. No retry can fix either.
				c.logger.Warn("provider rejected push permanently",
					"job_id", job.ID,
					"dest", redactToken(job.Destination),
					"code", string(appErr.Code),
				)
				return &types.DeliveryResult{
					FailureCode:   string(appErr.Code),
					FailureReason: appErr.Message,
				}, nil
			}
		}
		return nil, err
	}

	return &types.DeliveryResult{ProviderMessageID: msgID}, nil
}

// redactToken masks a device token for log output.
func redactToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "..."
}

var _ types.DeliveryChannel = (*Channel)(nil)
