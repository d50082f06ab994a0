// Package queue provides the SQS producer that surfaces quarantine activity
// to the operations channel.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"fairground/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// alertDeadLetterCreated identifies the message shape for consumers.
const alertDeadLetterCreated = "dead_letter_created"

// opsAlertMessage is the JSON body placed on the ops alert queue.
type opsAlertMessage struct {
	Alert        string    `json:"alert"`
	Kind         string    `json:"kind"`
	ID           string    `json:"id"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// SQSOpsAlerter implements types.OpsAlerter by publishing one message per
// new quarantine to the configured SQS queue. Delivery is fire-and-forget:
// the dead letter row is already durable, so a lost alert costs visibility,
// not data.
type SQSOpsAlerter struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewSQSOpsAlerter creates an alerter publishing to the given queue URL.
func NewSQSOpsAlerter(client SQSSender, queueURL string, logger types.Logger) *SQSOpsAlerter {
	return &SQSOpsAlerter{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// DeadLetterCreated publishes a quarantine alert. An empty queue URL
// disables publishing, which is how local environments run.
func (a *SQSOpsAlerter) DeadLetterCreated(ctx context.Context, dl *types.DeadLetter) {
	if a.queueURL == "" {
		return
	}

	body, err := json.Marshal(opsAlertMessage{
		Alert:        alertDeadLetterCreated,
		Kind:         string(dl.Kind),
		ID:           dl.ID,
		ErrorCode:    dl.ErrorCode,
		ErrorMessage: dl.ErrorMessage,
		OccurredAt:   dl.UpdatedAt,
	})
	if err != nil {
		a.logger.Error("failed to encode ops alert", "dead_letter_id", dl.ID, "error", err.Error())
		return
	}

	_, err = a.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(a.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"alert": {
				DataType:    aws.String("String"),
				StringValue: aws.String(alertDeadLetterCreated),
			},
		},
	})
	if err != nil {
		a.logger.Error("failed to publish ops alert",
			"dead_letter_id", dl.ID,
			"kind", string(dl.Kind),
			"error", err.Error(),
		)
		return
	}

	a.logger.Info("ops alert published", "dead_letter_id", dl.ID, "kind", string(dl.Kind))
}

// NoopAlerter discards alerts. Used in local mode and tests.
type NoopAlerter struct{}

func (NoopAlerter) DeadLetterCreated(ctx context.Context, dl *types.DeadLetter) {}

var (
	_ types.OpsAlerter = (*SQSOpsAlerter)(nil)
	_ types.OpsAlerter = NoopAlerter{}
)
