package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"fairground/internal/types"
)

// mockCWClient captures PutMetricData calls for test assertions.
type mockCWClient struct {
	calls []*cloudwatch.PutMetricDataInput
	err   error
}

func (m *mockCWClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

type noopLogger struct{}

func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) With(args ...any) types.Logger { return noopLogger{} }

func TestEmitCount(t *testing.T) {
	client := &mockCWClient{}
	emitter := NewCloudWatchEmitter(client, "FairgroundTest", noopLogger{})

	emitter.EmitCount(context.Background(), "EventsIngested", 3, map[string]string{"event_type": "Order.Shipped"})

	if len(client.calls) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(client.calls))
	}

	input := client.calls[0]
	if got := aws.ToString(input.Namespace); got != "FairgroundTest" {
		t.Errorf("unexpected namespace: %s", got)
	}
	if len(input.MetricData) != 1 {
		t.Fatalf("expected 1 datum, got %d", len(input.MetricData))
	}

	datum := input.MetricData[0]
	if got := aws.ToString(datum.MetricName); got != "EventsIngested" {
		t.Errorf("unexpected metric name: %s", got)
	}
	if got := aws.ToFloat64(datum.Value); got != 3 {
		t.Errorf("unexpected value: %v", got)
	}
	if datum.Unit != cwtypes.StandardUnitCount {
		t.Errorf("unexpected unit: %s", datum.Unit)
	}
	if len(datum.Dimensions) != 1 {
		t.Fatalf("expected 1 dimension, got %d", len(datum.Dimensions))
	}
	if aws.ToString(datum.Dimensions[0].Name) != "event_type" || aws.ToString(datum.Dimensions[0].Value) != "Order.Shipped" {
		t.Errorf("unexpected dimension: %+v", datum.Dimensions[0])
	}
}

func TestEmitDuration_ConvertsToMilliseconds(t *testing.T) {
	client := &mockCWClient{}
	emitter := NewCloudWatchEmitter(client, "FairgroundTest", noopLogger{})

	emitter.EmitDuration(context.Background(), "DispatchLatency", 1500*time.Millisecond, nil)

	if len(client.calls) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(client.calls))
	}

	datum := client.calls[0].MetricData[0]
	if got := aws.ToFloat64(datum.Value); got != 1500 {
		t.Errorf("unexpected value: %v", got)
	}
	if datum.Unit != cwtypes.StandardUnitMilliseconds {
		t.Errorf("unexpected unit: %s", datum.Unit)
	}
	if datum.Dimensions != nil {
		t.Errorf("expected nil dimensions, got %v", datum.Dimensions)
	}
}

func TestEmitterDefaultsNamespace(t *testing.T) {
	client := &mockCWClient{}
	emitter := NewCloudWatchEmitter(client, "", noopLogger{})

	emitter.EmitCount(context.Background(), "JobsDispatched", 1, nil)

	if got := aws.ToString(client.calls[0].Namespace); got != types.MetricNamespace {
		t.Errorf("expected default namespace %s, got %s", types.MetricNamespace, got)
	}
}

func TestEmitSwallowsClientErrors(t *testing.T) {
	client := &mockCWClient{err: errors.New("cloudwatch unavailable")}
	emitter := NewCloudWatchEmitter(client, "FairgroundTest", noopLogger{})

	// Must not panic; metrics are best-effort.
	emitter.EmitCount(context.Background(), "EventsIngested", 1, nil)

	if len(client.calls) != 1 {
		t.Errorf("expected 1 attempt, got %d", len(client.calls))
	}
}

func TestNoopEmitter(t *testing.T) {
	NoopEmitter{}.EmitCount(context.Background(), "EventsIngested", 1, nil)
	NoopEmitter{}.EmitDuration(context.Background(), "DispatchLatency", time.Second, nil)
}
