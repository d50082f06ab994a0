package push

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

type mockPushProvider struct {
	sendFn func(ctx context.Context, in types.PushInput) (string, error)
	sent   []types.PushInput
}

func (m *mockPushProvider) SendPush(ctx context.Context, in types.PushInput) (string, error) {
	m.sent = append(m.sent, in)
	if m.sendFn != nil {
		return m.sendFn(ctx, in)
	}
	return "fcm_1", nil
}

const testToken = "tok_0123456789abcdef0123456789abcdef"

func pushJob() *types.Job {
	return &types.Job{
		ID:       "job_1",
		EventID:  "evt_1",
		UserID:   "u_1",
		Channel:  types.ChannelPush,
		Template: types.TemplateAuctionOutbid,
		TemplatePayload: types.Payload{
			"auction_id":        "auc_1",
			"listing_title":     "Vintage camera",
			"current_bid_cents": 12000.0,
		},
		Destination: testToken,
	}
}

func TestValidateDestination(t *testing.T) {
	c := NewChannel(ChannelConfig{Provider: &mockPushProvider{}, Logger: testLogger{}})

	tests := []struct {
		name        string
		destination string
		wantCode    types.ErrorCode
	}{
		{"valid token", testToken, ""},
		{"empty", "", types.ErrCodeValidationDestination},
		{"truncated token", "tok_1", types.ErrCodeValidationInvalidToken},
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
	provider := &mockPushProvider{}
	c := NewChannel(ChannelConfig{Provider: provider, Logger: testLogger{}})

	result, err := c.Deliver(context.Background(), pushJob())
	require.NoError(t, err)

	assert.Equal(t, "fcm_1", result.ProviderMessageID)

	require.Len(t, provider.sent, 1)
	in := provider.sent[0]
	assert.Equal(t, testToken, in.Token)
	assert.Equal(t, "You've been outbid", in.Title)
	assert.Equal(t, `Someone topped your bid on "Vintage camera"`, in.Body)
	assert.Equal(t, "job_1", in.ReferenceID)
	assert.Equal(t, "auc_1", in.Data["auction_id"])
	assert.Equal(t, "auction_outbid", in.Data["template"])
}

func TestDeliver_ExpiredTokenIsPermanent(t *testing.T) {
	provider := &mockPushProvider{
		sendFn: func(ctx context.Context, in types.PushInput) (string, error) {
			return "", types.NewAppError(types.ErrCodePushTokenExpired, "NotRegistered", nil)
		},
	}
	c := NewChannel(ChannelConfig{Provider: provider, Logger: testLogger{}})

	result, err := c.Deliver(context.Background(), pushJob())
	require.NoError(t, err)

	assert.Equal(t, string(types.ErrCodePushTokenExpired), result.FailureCode)
	assert.False(t, result.Retryable)
}

func TestDeliver_TransientProviderErrorIsRetryable(t *testing.T) {
	provider := &mockPushProvider{
		sendFn: func(ctx context.Context, in types.PushInput) (string, error) {
			return "", types.NewAppError(types.ErrCodeUpstreamUnavailable, "502 from provider", nil)
		},
	}
	c := NewChannel(ChannelConfig{Provider: provider, Logger: testLogger{}})

	result, err := c.Deliver(context.Background(), pushJob())
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestDeliver_UnknownTemplateIsPermanent(t *testing.T) {
	provider := &mockPushProvider{}
	c := NewChannel(ChannelConfig{Provider: provider, Logger: testLogger{}})

	job := pushJob()
	job.Template = "newsletter_blast"

	result, err := c.Deliver(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, string(types.ErrCodeValidationUnknownTemplate), result.FailureCode)
	assert.Empty(t, provider.sent)
}

func TestRenderPush_AllTags(t *testing.T) {
	payloads := map[types.TemplateTag]types.Payload{
		types.TemplateListingApproved:   {"listing_id": "lst_1", "listing_title": "Bike"},
		types.TemplateListingRejected:   {"listing_id": "lst_1", "listing_title": "Bike", "reason": "photos"},
		types.TemplateOrderApproved:     {"order_id": "ord_1", "listing_title": "Bike", "amount_cents": 100.0, "currency": "USD"},
		types.TemplateOrderShipped:      {"order_id": "ord_1", "listing_title": "Bike", "carrier": "UPS", "tracking_number": "1Z"},
		types.TemplateAuctionOutbid:     {"auction_id": "auc_1", "listing_title": "Bike", "current_bid_cents": 100.0},
		types.TemplateAuctionEndingSoon: {"auction_id": "auc_1", "listing_title": "Bike", "ends_at": "soon"},
		types.TemplateSavedSearchMatch:  {"search_id": "ss_1", "query": "bikes", "match_count": 2.0},
		types.TemplatePayoutSent:        {"payout_id": "po_1", "amount_cents": 100.0, "currency": "USD"},
	}

	for tag, payload := range payloads {
		t.Run(string(tag), func(t *testing.T) {
			rendered, err := renderPush(tag, payload)
			require.NoError(t, err)
			assert.NotEmpty(t, rendered.Title)
			assert.NotEmpty(t, rendered.Body)
			assert.Equal(t, string(tag), rendered.Data["template"])
		})
	}
}

func TestRenderPush_OnlyStringFieldsRideAlong(t *testing.T) {
	rendered, err := renderPush(types.TemplateSavedSearchMatch, types.Payload{
		"search_id":   "ss_1",
		"query":       "bikes",
		"match_count": 3.0,
	})
	require.NoError(t, err)

	assert.Equal(t, "ss_1", rendered.Data["search_id"])
	_, hasCount := rendered.Data["match_count"]
	assert.False(t, hasCount, "numeric fields stay out of the data map")
	assert.Equal(t, "3 new listings match \"bikes\"", rendered.Body)
}
