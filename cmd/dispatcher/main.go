// Package main is the entrypoint for the Dispatcher Lambda function.
//
// One deployment of this binary serves all three delivery channels; the
// EventBridge rule's payload names which queue to drain (dispatch_email,
// dispatch_push, dispatch_inapp). Each tick claims due jobs for that
// channel, checks operator suppression and in-app engagement, delivers via
// the channel's provider, and quarantines jobs that exhaust their attempts.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Load configuration (SSM-backed secrets outside local mode).
//  3. Connect the Postgres pool and build repositories.
//  4. Build the email, push, and in-app channels. Providers fall back to
//     logging stubs when no API key is configured.
//  5. Build one dispatcher per channel and register the handler.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"fairground/internal/channels/email"
	"fairground/internal/channels/inapp"
	"fairground/internal/channels/push"
	"fairground/internal/config"
	"fairground/internal/db"
	"fairground/internal/deadletter"
	"fairground/internal/dispatch"
	"fairground/internal/events"
	"fairground/internal/external"
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

// Handler multiplexes scheduled dispatch ticks onto per-channel dispatchers.
type Handler struct {
	dispatchers map[scheduler.TaskType]*dispatch.Dispatcher
	runner      *scheduler.Runner
	lockTTL     time.Duration
	logger      types.Logger
}

// Handle drains one channel's queue under the task's job lock.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) error {
	d, ok := h.dispatchers[payload.Task]
	if !ok {
		return fmt.Errorf("unexpected task for dispatcher: %q", payload.Task)
	}

	var stats dispatch.Stats
	_, err := h.runner.Run(ctx, payload.Task, h.lockTTL, func(ctx context.Context) (int, error) {
		var runErr error
		stats, runErr = d.Run(ctx)
		return stats.Claimed, runErr
	})
	if err != nil {
		return fmt.Errorf("dispatching %s: %w", payload.Task, err)
	}

	h.logger.Info("dispatch tick complete",
		"task", string(payload.Task),
		"claimed", stats.Claimed,
		"sent", stats.Sent,
		"skipped", stats.Skipped,
		"requeued", stats.Requeued,
		"failed", stats.Failed,
	)
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("dispatcher Lambda initializing (cold start)")

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

	jobRepo := db.NewJobRepository(pool)
	deadLetterRepo := db.NewDeadLetterRepository(pool)
	inAppRepo := db.NewInAppRepository(pool)
	auditRepo := db.NewAuditRepository(pool)

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

	emailChannel, err := buildEmailChannel(cfg, typedLogger)
	if err != nil {
		logger.Error("failed to build email channel", "error", err)
		os.Exit(1)
	}
	pushChannel := buildPushChannel(cfg, typedLogger)
	inAppChannel := inapp.NewChannel(inapp.ChannelConfig{
		Store:  inAppRepo,
		Logger: typedLogger,
	})

	quarantiner := deadletter.NewQuarantiner(deadLetterRepo, alerter, emitter, typedLogger)
	audit := events.NewAuditRecorder(auditRepo, typedLogger)
	suppressor := dispatch.NewSuppressor(inAppRepo, typedLogger)

	newDispatcher := func(channel types.DeliveryChannel) *dispatch.Dispatcher {
		return dispatch.NewDispatcher(
			jobRepo,
			channel,
			suppressor,
			deadLetterRepo,
			quarantiner,
			audit,
			cfg.Pipeline,
			nil,
			emitter,
			typedLogger,
		)
	}

	workerID := os.Getenv("AWS_LAMBDA_LOG_STREAM_NAME")
	if workerID == "" {
		workerID = "dispatcher-" + uuid.NewString()
	}
	runner := scheduler.NewRunner(
		db.NewJobLockRepository(pool),
		db.NewJobHistoryRepository(pool),
		workerID,
		typedLogger,
	)

	handler := &Handler{
		dispatchers: map[scheduler.TaskType]*dispatch.Dispatcher{
			scheduler.TaskDispatchEmail: newDispatcher(emailChannel),
			scheduler.TaskDispatchPush:  newDispatcher(pushChannel),
			scheduler.TaskDispatchInApp: newDispatcher(inAppChannel),
		},
		runner:  runner,
		lockTTL: cfg.Pipeline.DispatchTimeBudget + time.Minute,
		logger:  typedLogger,
	}

	logger.Info("dispatcher Lambda initialized",
		"environment", cfg.Environment,
		"batch_size", cfg.Pipeline.DispatchBatchSize,
	)

	// Local mode: read the scheduled event from stdin instead of starting
	// the Lambda runtime.
	// Usage: echo '{"task":"dispatch_email"}' | go run cmd/dispatcher/main.go
	if cfg.Environment == "local" {
		runLocal(handler, logger)
		return
	}

	lambda.Start(handler.Handle)
}

// buildEmailChannel wires the SendGrid-backed email channel, falling back to
// the logging stub provider when no API key is configured.
func buildEmailChannel(cfg *config.Config, logger types.Logger) (*email.Channel, error) {
	renderer, err := email.NewRenderer(email.RendererConfig{
		AppBaseURL: cfg.Server.AppBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("building email renderer: %w", err)
	}

	var emailProvider external.EmailProvider
	if cfg.Email.SendGridAPIKey.Unmask() == "" {
		logger.Warn("SENDGRID_API_KEY not set, using stub email provider")
		emailProvider = external.NewStubEmailProvider(logger)
	} else {
		emailProvider = external.NewSendGridClient(
			&http.Client{Timeout: cfg.Email.Timeout},
			external.SendGridClientConfig{
				APIKey: cfg.Email.SendGridAPIKey.Unmask(),
				Logger: logger,
			},
		)
	}

	return email.NewChannel(email.ChannelConfig{
		Provider: emailProvider,
		Renderer: renderer,
		From: types.SenderIdentity{
			Address: cfg.Email.FromAddress,
			Name:    cfg.Email.FromName,
		},
		Logger: logger,
	}), nil
}

// buildPushChannel wires the FCM-backed push channel, falling back to the
// logging stub provider when no server key is configured.
func buildPushChannel(cfg *config.Config, logger types.Logger) *push.Channel {
	var pushProvider external.PushProvider
	if cfg.Push.APIKey.Unmask() == "" {
		logger.Warn("PUSH_API_KEY not set, using stub push provider")
		pushProvider = external.NewStubPushProvider(logger)
	} else {
		pushProvider = external.NewFCMClient(
			&http.Client{Timeout: cfg.Push.Timeout},
			external.FCMClientConfig{
				ServerKey: cfg.Push.APIKey.Unmask(),
				AppID:     cfg.Push.AppID,
				Logger:    logger,
			},
		)
	}

	return push.NewChannel(push.ChannelConfig{
		Provider: pushProvider,
		Logger:   logger,
	})
}

func runLocal(handler *Handler, logger *slog.Logger) {
	logger.Info("APP_ENV=local: reading event from stdin")
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		logger.Error("failed to read stdin", "error", err)
		os.Exit(1)
	}
	if len(raw) == 0 {
		logger.Error("no input received on stdin")
		os.Exit(1)
	}

	var payload scheduler.MaintenancePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Error("failed to parse stdin as task payload", "error", err)
		os.Exit(1)
	}

	if err := handler.Handle(context.Background(), payload); err != nil {
		logger.Error("handler execution failed", "error", err)
		os.Exit(1)
	}
	logger.Info("handler execution completed successfully")
}
