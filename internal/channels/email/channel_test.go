package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairground/internal/types"
)

// testLogger is a no-op types.Logger for tests.
type testLogger struct{}

func (testLogger) Info(msg string, args ...any)  {}
func (testLogger) Error(msg string, args ...any) {}
func (testLogger) Warn(msg string, args ...any)  {}
func (testLogger) With(args ...any) types.Logger { return testLogger{} }

type mockEmailProvider struct {
	sendFn func(ctx context.Context, in types.SendInput) (string, error)
	sent   []types.SendInput
}

func (m *mockEmailProvider) Send(ctx context.Context, in types.SendInput) (string, error) {
	m.sent = append(m.sent, in)
	if m.sendFn != nil {
		return m.sendFn(ctx, in)
	}
	return "pm_1", nil
}

func newTestChannel(t *testing.T, provider *mockEmailProvider) *Channel {
	t.Helper()
	return NewChannel(ChannelConfig{
		Provider: provider,
		Renderer: newTestRenderer(t),
		From:     types.SenderIdentity{Address: "no-reply@fairground.market", Name: "Fairground"},
		Logger:   testLogger{},
	})
}

func emailJob() *types.Job {
	return &types.Job{
		ID:              "job_1",
		EventID:         "evt_1",
		UserID:          "u_1",
		Channel:         types.ChannelEmail,
		Template:        types.TemplateOrderShipped,
		TemplatePayload: payloadForTag(types.TemplateOrderShipped),
		Destination:     "alice@example.com",
	}
}

func TestValidateDestination(t *testing.T) {
	c := newTestChannel(t, &mockEmailProvider{})

	tests := []struct {
		name        string
		destination string
		wantCode    types.ErrorCode
	}{
		{"valid address", "alice@example.com", ""},
		{"valid with display name", "Alice <alice@example.com>", ""},
		{"empty", "", types.ErrCodeValidationDestination},
		{"not an address", "alice-example.com", types.ErrCodeValidationInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.ValidateDestination(tt.destination)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}

func TestDeliver_Success(t *testing.T) {
	provider := &mockEmailProvider{}
	c := newTestChannel(t, provider)

	result, err := c.Deliver(context.Background(), emailJob())
	require.NoError(t, err)

	assert.Equal(t, "pm_1", result.ProviderMessageID)
	assert.Empty(t, result.FailureCode)

	require.Len(t, provider.sent, 1)
	in := provider.sent[0]
	assert.Equal(t, "alice@example.com", in.To)
	assert.Equal(t, "no-reply@fairground.market", in.From.Address)
	assert.Equal(t, "job_1", in.ReferenceID)
	assert.NotEmpty(t, in.Subject)
	assert.NotEmpty(t, in.BodyHTML)
	assert.NotEmpty(t, in.BodyText)
}

func TestDeliver_UnknownTemplateIsPermanent(t *testing.T) {
	provider := &mockEmailProvider{}
	c := newTestChannel(t, provider)

	job := emailJob()
	job.Template = "newsletter_blast"

	result, err := c.Deliver(context.Background(), job)
	require.NoError(t, err, "render failures must not surface as retryable errors")

	assert.Equal(t, string(types.ErrCodeValidationUnknownTemplate), result.FailureCode)
	assert.False(t, result.Retryable)
	assert.Empty(t, provider.sent, "nothing reaches the provider on a render failure")
}

func TestDeliver_BlockedAddressIsPermanent(t *testing.T) {
	provider := &mockEmailProvider{
		sendFn: func(ctx context.Context, in types.SendInput) (string, error) {
			return "", types.NewAppError(types.ErrCodeEmailBlocked, "address on suppression list", nil)
		},
	}
	c := newTestChannel(t, provider)

	result, err := c.Deliver(context.Background(), emailJob())
	require.NoError(t, err)

	assert.Equal(t, string(types.ErrCodeEmailBlocked), result.FailureCode)
	assert.False(t, result.Retryable)
}

func TestDeliver_TransientProviderErrorIsRetryable(t *testing.T) {
	provider := &mockEmailProvider{
		sendFn: func(ctx context.Context, in types.SendInput) (string, error) {
			return "", types.NewAppError(types.ErrCodeUpstreamRateLimited, "429 from provider", nil)
		},
	}
	c := newTestChannel(t, provider)

	result, err := c.Deliver(context.Background(), emailJob())
	require.Error(t, err)
	assert.Nil(t, result)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamRateLimited, appErr.Code)
}

func TestRedactAddress(t *testing.T) {
	assert.Equal(t, "a***@example.com", redactAddress("alice@example.com"))
	assert.Equal(t, "***", redactAddress("no-at-sign"))
	assert.Equal(t, "***", redactAddress("@example.com"))
}
