package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"fairground/internal/types"
)

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

type noopLogger struct{}

func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) With(args ...any) types.Logger { return noopLogger{} }

func testDeadLetter() *types.DeadLetter {
	return &types.DeadLetter{
		ID:           "dl_42",
		Kind:         types.KindEmail,
		ErrorCode:    "upstream_email_provider_unavailable",
		ErrorMessage: "mailbox full",
		UpdatedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDeadLetterCreated_PublishesAlert(t *testing.T) {
	sender := &mockSQSSender{}
	alerter := NewSQSOpsAlerter(sender, "https://sqs.eu-west-1.amazonaws.com/123/ops-alerts", noopLogger{})

	alerter.DeadLetterCreated(context.Background(), testDeadLetter())

	if len(sender.calls) != 1 {
		t.Fatalf("expected 1 SendMessage call, got %d", len(sender.calls))
	}

	call := sender.calls[0]
	if got := *call.QueueUrl; got != "https://sqs.eu-west-1.amazonaws.com/123/ops-alerts" {
		t.Errorf("unexpected queue URL: %s", got)
	}

	attr, ok := call.MessageAttributes["alert"]
	if !ok {
		t.Fatal("expected alert message attribute")
	}
	if *attr.StringValue != "dead_letter_created" {
		t.Errorf("unexpected alert attribute: %s", *attr.StringValue)
	}

	var msg opsAlertMessage
	if err := json.Unmarshal([]byte(*call.MessageBody), &msg); err != nil {
		t.Fatalf("failed to decode message body: %v", err)
	}
	if msg.Alert != "dead_letter_created" {
		t.Errorf("unexpected alert field: %s", msg.Alert)
	}
	if msg.Kind != "email" {
		t.Errorf("unexpected kind: %s", msg.Kind)
	}
	if msg.ID != "dl_42" {
		t.Errorf("unexpected id: %s", msg.ID)
	}
	if msg.ErrorCode != "upstream_email_provider_unavailable" {
		t.Errorf("unexpected error code: %s", msg.ErrorCode)
	}
	if !msg.OccurredAt.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected occurred_at: %v", msg.OccurredAt)
	}
}

func TestDeadLetterCreated_EmptyQueueURLDisablesPublishing(t *testing.T) {
	sender := &mockSQSSender{}
	alerter := NewSQSOpsAlerter(sender, "", noopLogger{})

	alerter.DeadLetterCreated(context.Background(), testDeadLetter())

	if len(sender.calls) != 0 {
		t.Errorf("expected no SendMessage calls, got %d", len(sender.calls))
	}
}

func TestDeadLetterCreated_SendFailureIsSwallowed(t *testing.T) {
	sender := &mockSQSSender{err: errors.New("sqs unavailable")}
	alerter := NewSQSOpsAlerter(sender, "https://sqs.eu-west-1.amazonaws.com/123/ops-alerts", noopLogger{})

	// Must not panic; alert loss is acceptable, the row is already durable.
	alerter.DeadLetterCreated(context.Background(), testDeadLetter())

	if len(sender.calls) != 1 {
		t.Errorf("expected 1 SendMessage attempt, got %d", len(sender.calls))
	}
}

func TestNoopAlerter(t *testing.T) {
	NoopAlerter{}.DeadLetterCreated(context.Background(), testDeadLetter())
}
