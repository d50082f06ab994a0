package external

import (
	"context"

	"fairground/internal/types"
)

// EmailProvider abstracts the transactional email vendor (SendGrid).
// Implementations transmit pre-rendered content; template resolution is a
// channel concern, not a provider concern.
type EmailProvider interface {
	// Send transmits a rendered email and returns the provider's message
	// ID for correlation with delivery records.
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}

// PushProvider abstracts the mobile push vendor (Pusher Beams).
type PushProvider interface {
	// SendPush publishes a notification to a single device token and
	// returns the provider's publish ID.
	SendPush(ctx context.Context, input types.PushInput) (providerMsgID string, err error)
}
