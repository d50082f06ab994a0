// Package config defines the global configuration structure for the Fairground
// notification pipeline. Configuration is loaded once at process initialization
// (Lambda Cold Start) and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the application to panic
// immediately on startup (fail fast).
package config

import (
	"time"

	"fairground/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the Fairground pipeline.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require
// (Least Privilege principle).
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"fairground-notifications"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Pipeline      PipelineConfig
	Email         EmailConfig
	Push          PushConfig
	Security      SecurityConfig
	Retention     RetentionConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration for the ingestion/admin API.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public base URL used in email footers and unsubscribe links (no trailing slash).
	AppBaseURL string `envconfig:"APP_BASE_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	// Resolved from SSM or Env
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Resource Identifiers
	OpsAlertQueue string `envconfig:"SQS_OPS_ALERTS"` // fire-and-forget dead-letter alerts; empty disables
	ArchiveBucket string `envconfig:"ARCHIVE_BUCKET"` // cold storage target name recorded on archived audit batches

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// PipelineConfig holds the delivery policy knobs. The backoff table and
// attempt ceiling are policy constants, deliberately configuration rather
// than code so tests and environments can vary them.
type PipelineConfig struct {
	// MaxAttempts is the ceiling across event processing and job dispatch;
	// the attempt that reaches it converts the record to a dead letter.
	MaxAttempts int `envconfig:"PIPELINE_MAX_ATTEMPTS" default:"5" validate:"min=1"`

	// BackoffTable is the minimum wait before retry attempt N reuses the
	// last entry when attempts exceed its length.
	BackoffTable []time.Duration `envconfig:"PIPELINE_BACKOFF_TABLE" default:"0s,30s,2m,10m,30m"`

	// DispatchBatchSize bounds one dispatcher invocation.
	DispatchBatchSize int `envconfig:"PIPELINE_DISPATCH_BATCH_SIZE" default:"50" validate:"min=1"`

	// DispatchTimeBudget bounds one dispatcher invocation's wall time; jobs
	// not reached before it is spent wait for the next tick.
	DispatchTimeBudget time.Duration `envconfig:"PIPELINE_DISPATCH_TIME_BUDGET" default:"45s"`

	// SweepTimeBudget bounds one sweeper invocation; the run stops claiming
	// new work once the budget is spent.
	SweepTimeBudget time.Duration `envconfig:"PIPELINE_SWEEP_TIME_BUDGET" default:"45s"`

	// EmailFanOutDelay is how long email jobs wait after fan-out before
	// becoming due, giving the in-app engagement signal time to arrive.
	EmailFanOutDelay time.Duration `envconfig:"PIPELINE_EMAIL_FANOUT_DELAY" default:"5m"`
}

// EmailConfig holds email delivery provider credentials and sender identity.
// An empty SendGridAPIKey switches the dispatcher to a logging stub provider,
// which is the expected shape for local development.
type EmailConfig struct {
	SendGridAPIKey SecretString  `envconfig:"SENDGRID_API_KEY"`
	FromAddress    string        `envconfig:"EMAIL_FROM_ADDRESS" default:"no-reply@fairground.market"`
	FromName       string        `envconfig:"EMAIL_FROM_NAME" default:"Fairground"`
	Timeout        time.Duration `envconfig:"EMAIL_PROVIDER_TIMEOUT" default:"10s"`
}

// PushConfig holds push delivery provider credentials. As with email, an
// empty APIKey selects the stub provider.
type PushConfig struct {
	APIKey  SecretString  `envconfig:"PUSH_API_KEY"`
	AppID   string        `envconfig:"PUSH_APP_ID"`
	Timeout time.Duration `envconfig:"PUSH_PROVIDER_TIMEOUT" default:"10s"`
}

// SecurityConfig holds admin access configuration. AdminAPIKeyHash is a
// bcrypt hash of the operator key; the plaintext never reaches config.
type SecurityConfig struct {
	IngestAPIKey    SecretString `envconfig:"INGEST_API_KEY" validate:"required"`
	AdminAPIKeyHash SecretString `envconfig:"ADMIN_API_KEY_HASH" validate:"required"`
}

// RetentionConfig holds purge and archival windows for the maintenance tasks.
type RetentionConfig struct {
	AuditArchiveAfter time.Duration `envconfig:"RETENTION_AUDIT_ARCHIVE_AFTER" default:"720h"` // 30d, rows older than this are archived
	AuditPurgeAfter   time.Duration `envconfig:"RETENTION_AUDIT_PURGE_AFTER" default:"2160h"`  // 90d, archived rows older than this are deleted
	InAppPurgeAfter   time.Duration `envconfig:"RETENTION_INAPP_PURGE_AFTER" default:"4320h"`  // 180d
	ArchiveBatchSize  int           `envconfig:"RETENTION_ARCHIVE_BATCH_SIZE" default:"1000" validate:"min=1"`

	// MaintenanceTimeBudget bounds one maintenance invocation; batched tasks
	// stop starting new batches once the budget is spent and leave the rest
	// of the backlog for the next tick. Zero disables the cutoff.
	MaintenanceTimeBudget time.Duration `envconfig:"RETENTION_MAINTENANCE_TIME_BUDGET" default:"10m"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Fairground"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo carries build-time metadata injected via -ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Backoff returns the minimum wait before the given retry attempt
// (1-based). Attempts beyond the table reuse its last entry.
func (p PipelineConfig) Backoff(attempt int) time.Duration {
	if len(p.BackoffTable) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(p.BackoffTable) {
		attempt = len(p.BackoffTable)
	}
	return p.BackoffTable[attempt-1]
}
