// Package main is the entrypoint for the Sweeper Lambda function.
//
// The sweeper runs on an EventBridge schedule and drains the pending event
// queue: each tick claims a batch of pending events and fans them out into
// per-channel delivery jobs. Exhausted events are quarantined as dead
// letters. A job lock keeps concurrent invocations from double-claiming.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Load configuration (SSM-backed secrets outside local mode).
//  3. Connect the Postgres pool and build repositories.
//  4. Wire the quarantiner (SQS ops alerts), metrics, and processor.
//  5. Register the handler and call lambda.Start.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"fairground/internal/config"
	"fairground/internal/db"
	"fairground/internal/deadletter"
	"fairground/internal/events"
	"fairground/internal/metrics"
	"fairground/internal/queue"
	"fairground/internal/scheduler"
	"fairground/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// Handler holds the dependencies for the sweeper Lambda handler.
type Handler struct {
	processor *events.Processor
	runner    *scheduler.Runner
	batchSize int
	lockTTL   time.Duration
	logger    types.Logger
}

// Handle processes one scheduled tick. The payload arrives from the
// EventBridge rule; an empty task defaults to the pending sweep so a bare
// scheduled event still does the right thing.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) error {
	task := payload.Task
	if task == "" {
		task = scheduler.TaskProcessPending
	}
	if task != scheduler.TaskProcessPending {
		return fmt.Errorf("unexpected task for sweeper: %q", task)
	}

	processed, err := h.runner.Run(ctx, task, h.lockTTL, func(ctx context.Context) (int, error) {
		return h.processor.SweepPending(ctx, h.batchSize)
	})
	if err != nil {
		return fmt.Errorf("sweeping pending events: %w", err)
	}

	h.logger.Info("sweep tick complete", "processed", processed)
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("sweeper Lambda initializing (cold start)")

	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	eventRepo := db.NewEventRepository(pool)
	jobRepo := db.NewJobRepository(pool)
	prefRepo := db.NewPreferenceRepository(pool)
	deadLetterRepo := db.NewDeadLetterRepository(pool)

	emitter := types.MetricsEmitter(metrics.NoopEmitter{})
	alerter := types.OpsAlerter(queue.NoopAlerter{})
	if cfg.Environment != "local" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		if cfg.Observability.EnableMetrics {
			emitter = metrics.NewCloudWatchEmitter(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, typedLogger)
		}
		alerter = queue.NewSQSOpsAlerter(sqs.NewFromConfig(awsCfg), cfg.AWS.OpsAlertQueue, typedLogger)
	}

	quarantiner := deadletter.NewQuarantiner(deadLetterRepo, alerter, emitter, typedLogger)
	processor := events.NewProcessor(
		eventRepo,
		jobRepo,
		prefRepo,
		prefRepo,
		quarantiner,
		cfg.Pipeline,
		nil,
		emitter,
		typedLogger,
	)

	workerID := os.Getenv("AWS_LAMBDA_LOG_STREAM_NAME")
	if workerID == "" {
		workerID = "sweeper-" + uuid.NewString()
	}
	runner := scheduler.NewRunner(
		db.NewJobLockRepository(pool),
		db.NewJobHistoryRepository(pool),
		workerID,
		typedLogger,
	)

	handler := &Handler{
		processor: processor,
		runner:    runner,
		batchSize: cfg.Pipeline.DispatchBatchSize,
		lockTTL:   cfg.Pipeline.SweepTimeBudget + time.Minute,
		logger:    typedLogger,
	}

	logger.Info("sweeper Lambda initialized",
		"environment", cfg.Environment,
		"batch_size", handler.batchSize,
	)

	// Local mode: read the scheduled event from stdin instead of starting
	// the Lambda runtime.
	// Usage: echo '{"task":"process_pending"}' | go run cmd/sweeper/main.go
	if cfg.Environment == "local" {
		runLocal(handler, logger)
		return
	}

	lambda.Start(handler.Handle)
}

func runLocal(handler *Handler, logger *slog.Logger) {
	logger.Info("APP_ENV=local: reading event from stdin")
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		logger.Error("failed to read stdin", "error", err)
		os.Exit(1)
	}

	var payload scheduler.MaintenancePayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			logger.Error("failed to parse stdin as task payload", "error", err)
			os.Exit(1)
		}
	}

	if err := handler.Handle(context.Background(), payload); err != nil {
		logger.Error("handler execution failed", "error", err)
		os.Exit(1)
	}
	logger.Info("handler execution completed successfully")
}
