// Package config defines the configuration of the scheduled event adjuster.
// Configuration is loaded once at Lambda cold start and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or invalid format fails the cold start.
package config

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	AWS       AWSConfig
	Tags      TagConfig
	Run       RunConfig
	Notify    NotifyConfig
	Metrics   MetricsConfig
	Processor ProcessorConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// AWSConfig holds regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// TagConfig controls which resource tags the adjuster reads.
type TagConfig struct {
	// Prefix namespaces every tag key, e.g. "{prefix}:enabled".
	Prefix string `envconfig:"TAG_PREFIX" default:"scheduled-event-adjuster" validate:"required"`
}

// RunConfig holds the failure policy of a run.
type RunConfig struct {
	// FailFast aborts the run on the first failing resource.
	FailFast bool `envconfig:"FAIL_FAST" default:"false"`
	// MaxConsecutiveFailures stops the run after that many resources fail in
	// a row. Zero disables the limit.
	MaxConsecutiveFailures uint32 `envconfig:"MAX_CONSECUTIVE_FAILURES" default:"5"`
}

// NotifyConfig holds the destinations of the completion event.
type NotifyConfig struct {
	EventBusName string `envconfig:"EVENT_BUS_NAME" default:"default" validate:"required"`
	EventSource  string `envconfig:"EVENT_SOURCE" default:"scheduled-event-adjuster" validate:"required"`
	// QueueURL optionally receives a copy of the completion detail.
	QueueURL string `envconfig:"NOTIFY_QUEUE_URL" validate:"omitempty,url"`
	// EmitEmptyRuns publishes a completion event even when nothing changed.
	EmitEmptyRuns bool `envconfig:"EMIT_EMPTY_RUNS" default:"false"`
}

// MetricsConfig holds CloudWatch settings.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"ENABLE_METRICS" default:"true"`
	Namespace string `envconfig:"METRIC_NAMESPACE" default:"ScheduledEventAdjuster" validate:"required"`
}

// ProcessorConfig holds kill switches for each resource type.
type ProcessorConfig struct {
	EnableAutoScaling bool `envconfig:"ENABLE_AUTOSCALING" default:"true"`
	EnableEventRules  bool `envconfig:"ENABLE_EVENT_RULES" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching parameters from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
