// Package main is the entrypoint for the Maintenance Lambda function.
//
// One deployment serves the retention tasks: archiving old audit rows into
// compressed batches (archive_audit), purging expired archives
// (purge_audit), and purging old in-app notifications (purge_inapp). The
// EventBridge rule's payload names the task; an optional reference_time
// overrides the clock for backfills.
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
	"github.com/google/uuid"

	"fairground/internal/config"
	"fairground/internal/db"
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

// maintenanceLockTTL bounds how long a crashed run blocks the next one.
const maintenanceLockTTL = 15 * time.Minute

// Handler multiplexes scheduled maintenance ticks onto the retention tasks.
type Handler struct {
	service *scheduler.MaintenanceService
	runner  *scheduler.Runner
	logger  types.Logger
}

// Handle runs one maintenance task under its job lock. ReferenceTime lets an
// operator replay a tick against a past cutoff; it defaults to now.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) error {
	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	var fn func(ctx context.Context) (int, error)
	switch payload.Task {
	case scheduler.TaskArchiveAudit:
		fn = func(ctx context.Context) (int, error) { return h.service.ArchiveAuditLogs(ctx, now) }
	case scheduler.TaskPurgeAudit:
		fn = func(ctx context.Context) (int, error) { return h.service.PurgeAuditArchives(ctx, now) }
	case scheduler.TaskPurgeInApp:
		fn = func(ctx context.Context) (int, error) { return h.service.PurgeInAppNotifications(ctx, now) }
	default:
		return fmt.Errorf("unexpected task for maintenance: %q", payload.Task)
	}

	items, err := h.runner.Run(ctx, payload.Task, maintenanceLockTTL, fn)
	if err != nil {
		return fmt.Errorf("running %s: %w", payload.Task, err)
	}

	h.logger.Info("maintenance tick complete",
		"task", string(payload.Task),
		"items", items,
		"reference_time", now.Format(time.RFC3339),
	)
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("maintenance Lambda initializing (cold start)")

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

	service := scheduler.NewMaintenanceService(scheduler.MaintenanceServiceConfig{
		Audit:           db.NewAuditRepository(pool),
		InApp:           db.NewInAppRepository(pool),
		Retention:       cfg.Retention,
		ArchiveLocation: cfg.AWS.ArchiveBucket,
		Logger:          typedLogger,
	})

	workerID := os.Getenv("AWS_LAMBDA_LOG_STREAM_NAME")
	if workerID == "" {
		workerID = "maintenance-" + uuid.NewString()
	}
	runner := scheduler.NewRunner(
		db.NewJobLockRepository(pool),
		db.NewJobHistoryRepository(pool),
		workerID,
		typedLogger,
	)

	handler := &Handler{
		service: service,
		runner:  runner,
		logger:  typedLogger,
	}

	logger.Info("maintenance Lambda initialized", "environment", cfg.Environment)

	// Local mode: read the scheduled event from stdin instead of starting
	// the Lambda runtime.
	// Usage: echo '{"task":"purge_inapp"}' | go run cmd/maintenance/main.go
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
