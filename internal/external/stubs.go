package external

import (
	"context"
	"fmt"

	"fairground/internal/types"

	"github.com/google/uuid"
)

// Stub providers let the pipeline run in local and test environments without
// vendor credentials. They log every call and return predictable IDs.

// StubEmailProvider implements EmailProvider by logging the send and
// returning a fake message ID.
type StubEmailProvider struct {
	logger types.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger types.Logger) *StubEmailProvider {
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.logger.Info("stub: email send",
		"subject", input.Subject,
		"reference_id", input.ReferenceID,
	)
	return fmt.Sprintf("stub-email-%s", uuid.New().String()), nil
}

// StubPushProvider implements PushProvider by logging the publish and
// returning a fake publish ID.
type StubPushProvider struct {
	logger types.Logger
}

// NewStubPushProvider creates a new StubPushProvider.
func NewStubPushProvider(logger types.Logger) *StubPushProvider {
	return &StubPushProvider{logger: logger}
}

func (s *StubPushProvider) SendPush(ctx context.Context, input types.PushInput) (string, error) {
	s.logger.Info("stub: push publish",
		"title", input.Title,
		"reference_id", input.ReferenceID,
	)
	return fmt.Sprintf("stub-push-%s", uuid.New().String()), nil
}

var (
	_ EmailProvider = (*StubEmailProvider)(nil)
	_ PushProvider  = (*StubPushProvider)(nil)
)
