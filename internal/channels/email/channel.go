// Package email implements the email delivery channel: client-side template
// rendering plus transmission through an external EmailProvider.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"fairground/internal/external"
	"fairground/internal/types"
)

// Channel implements types.DeliveryChannel for email.
type Channel struct {
	provider external.EmailProvider
	renderer *Renderer
	from     types.SenderIdentity
	logger   types.Logger
}

// ChannelConfig holds the dependencies needed to create a Channel.
type ChannelConfig struct {
	Provider external.EmailProvider
	Renderer *Renderer
	From     types.SenderIdentity
	Logger   types.Logger
}

// NewChannel creates an email Channel with the given dependencies.
func NewChannel(cfg ChannelConfig) *Channel {
	return &Channel{
		provider: cfg.Provider,
		renderer: cfg.Renderer,
		from:     cfg.From,
		logger:   cfg.Logger,
	}
}

// Type returns the channel identifier for email.
func (c *Channel) Type() types.Channel {
	return types.ChannelEmail
}

// ValidateDestination checks that the destination is a plausible email
// address. Jobs failing this check dead-letter on their first attempt.
func (c *Channel) ValidateDestination(destination string) error {
	if destination == "" {
		return types.NewAppError(
			types.ErrCodeValidationDestination,
			"job has no email address on file",
			nil,
		)
	}

	if _, err := mail.ParseAddress(destination); err != nil {
		return types.NewAppError(
			types.ErrCodeValidationInvalidEmail,
			"destination is not a valid email address",
			err,
		)
	}

	return nil
}

// Deliver renders the job's template and transmits the result through the
// provider. Permanent provider rejections come back as a non-retryable
// DeliveryResult; transient failures come back as errors so the dispatcher
// requeues the job.
func (c *Channel) Deliver(ctx context.Context, job *types.Job) (*types.DeliveryResult, error) {
	c.logger.Info("attempting email delivery",
		"job_id", job.ID,
		"template", string(job.Template),
		"dest", redactAddress(job.Destination),
	)

	rendered, err := c.renderer.Render(job.Template, job.TemplatePayload)
	if err != nil {
		// Rendering failures cannot improve on retry.
		c.logger.Error("email rendering failed",
			"job_id", job.ID,
			"template", string(job.Template),
			"error", err.Error(),
		)
		return permanentFailure(err, types.ErrCodeValidationUnknownTemplate), nil
	}

	msgID, err := c.provider.Send(ctx, types.SendInput{
		To:          job.Destination,
		From:        c.from,
		Subject:     rendered.Subject,
		BodyHTML:    rendered.BodyHTML,
		BodyText:    rendered.BodyText,
		ReferenceID: job.ID,
	})
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			switch appErr.Code {
			case types.ErrCodeEmailBlocked, types.ErrCodeUpstreamEmailProvider:
				// Suppressed recipient or a request the provider will
				// never accept. Retrying burns attempts for nothing.
				c.logger.Warn("provider rejected email permanently",
					"job_id", job.ID,
					"dest", redactAddress(job.Destination),
					"code", string(appErr.Code),
				)
				return permanentFailure(appErr, appErr.Code), nil
			}
		}
		return nil, err
	}

	return &types.DeliveryResult{ProviderMessageID: msgID}, nil
}

// permanentFailure builds a non-retryable DeliveryResult from an error.
func permanentFailure(err error, fallback types.ErrorCode) *types.DeliveryResult {
	code := fallback
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
	}
	return &types.DeliveryResult{
		FailureCode:   string(code),
		FailureReason: err.Error(),
	}
}

// redactAddress masks an email address for log output: first character,
// asterisks, then the domain.
func redactAddress(addr string) string {
	at := strings.Index(addr, "@")
	if at <= 0 {
		return "***"
	}
	return fmt.Sprintf("%s***%s", addr[:1], addr[at:])
}

var _ types.DeliveryChannel = (*Channel)(nil)
