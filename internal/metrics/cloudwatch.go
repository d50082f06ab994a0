// Package metrics publishes operational counters to CloudWatch. Emission is
// best-effort everywhere: a metrics outage must never slow down or fail the
// pipeline, so errors are logged and swallowed.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"fairground/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchEmitter implements types.MetricsEmitter against CloudWatch.
type CloudWatchEmitter struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchEmitter creates an emitter publishing to the given namespace.
// An empty namespace falls back to types.MetricNamespace.
func NewCloudWatchEmitter(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchEmitter {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatchEmitter{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// EmitCount publishes a count metric with the given dimensions.
func (m *CloudWatchEmitter) EmitCount(ctx context.Context, name string, value float64, dims map[string]string) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: toDimensions(dims),
	})
}

// EmitDuration publishes a duration metric in milliseconds.
func (m *CloudWatchEmitter) EmitDuration(ctx context.Context, name string, d time.Duration, dims map[string]string) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: toDimensions(dims),
	})
}

func (m *CloudWatchEmitter) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to publish metric",
			"metric", aws.ToString(datum.MetricName),
			"error", err.Error(),
		)
	}
}

func toDimensions(dims map[string]string) []cwtypes.Dimension {
	if len(dims) == 0 {
		return nil
	}
	out := make([]cwtypes.Dimension, 0, len(dims))
	for name, value := range dims {
		out = append(out, cwtypes.Dimension{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}
	return out
}

// NoopEmitter discards all metrics. Used in local mode and tests.
type NoopEmitter struct{}

func (NoopEmitter) EmitCount(ctx context.Context, name string, value float64, dims map[string]string) {
}

func (NoopEmitter) EmitDuration(ctx context.Context, name string, d time.Duration, dims map[string]string) {
}

var (
	_ types.MetricsEmitter = (*CloudWatchEmitter)(nil)
	_ types.MetricsEmitter = NoopEmitter{}
)
