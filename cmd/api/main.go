// Package main is the entry point for the Fairground notification API.
//
// It loads configuration, connects to Postgres, wires the ingestion,
// feed, and admin recovery handlers onto the core HTTP chassis, and
// serves requests. In local mode (APP_ENV=local) it runs as a standard
// HTTP server on the configured port; inside AWS Lambda it bridges API
// Gateway events to the chi router via the chi adapter.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"

	"fairground/internal/api/handlers"
	"fairground/internal/config"
	"fairground/internal/core"
	"fairground/internal/db"
	"fairground/internal/deadletter"
	"fairground/internal/events"
	"fairground/internal/metrics"
	"fairground/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error, and Warn directly but With returns
// *slog.Logger, not types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	// SSM resolution is bypassed when APP_ENV=local, so the provider is
	// only needed for deployed environments.
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	typedLogger := &slogAdapter{logger: logger}
	logger.Info("fairground API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	eventRepo := db.NewEventRepository(pool)
	jobRepo := db.NewJobRepository(pool)
	deadLetterRepo := db.NewDeadLetterRepository(pool)
	inAppRepo := db.NewInAppRepository(pool)
	auditRepo := db.NewAuditRepository(pool)

	emitter := newMetricsEmitter(ctx, cfg, typedLogger)

	audit := events.NewAuditRecorder(auditRepo, typedLogger)
	ingestor := events.NewIngestor(eventRepo, audit, emitter, typedLogger)
	adminService := deadletter.NewAdminService(deadLetterRepo, eventRepo, jobRepo, audit, typedLogger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = emitter
	srv.HealthProbes = append(srv.HealthProbes, db.NewPoolProbe(pool))
	srv.RegisterCloser(func() error {
		pool.Close()
		return nil
	})

	eventHandler := handlers.NewEventHandler(ingestor, srv.Validator, typedLogger)
	feedHandler := handlers.NewFeedHandler(inAppRepo, typedLogger)
	deadLetterHandler := handlers.NewDeadLetterHandler(adminService, srv.Validator, typedLogger)

	// Ingestion and feed routes authenticate with the service ingest key;
	// the dead letter recovery surface requires the operator admin key.
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(srv.IngestAuthMiddleware)
			eventHandler.RegisterRoutes(r)
			feedHandler.RegisterRoutes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(srv.AdminAuthMiddleware)
			deadLetterHandler.RegisterRoutes(r)
		})
	})

	srv.MountRoutes()

	if isLambdaEnvironment() {
		return runLambda(srv, logger)
	}

	return runHTTPServer(srv, cfg, logger)
}

// newMetricsEmitter returns the CloudWatch emitter for deployed environments
// and a no-op emitter for local development or when metrics are disabled.
func newMetricsEmitter(ctx context.Context, cfg *config.Config, logger types.Logger) types.MetricsEmitter {
	if cfg.Environment == "local" || !cfg.Observability.EnableMetrics {
		return metrics.NoopEmitter{}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Warn("failed to load AWS SDK config, metrics disabled", "error", err.Error())
		return metrics.NoopEmitter{}
	}
	return metrics.NewCloudWatchEmitter(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	return hasRuntimeAPI
}

// runLambda bridges API Gateway proxy events to the chi router.
func runLambda(srv *core.Server, logger *slog.Logger) error {
	logger.Info("starting in Lambda mode")
	adapter := chiadapter.New(srv.Router())
	lambda.Start(adapter.ProxyWithContext)
	return nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
