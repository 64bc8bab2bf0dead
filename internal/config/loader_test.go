package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

type testParameterProvider struct {
	values     map[string]string
	err        error
	calledWith []string
	callCount  int
}

func (p *testParameterProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	p.callCount++
	p.calledWith = append(p.calledWith, keys...)
	if p.err != nil {
		return nil, p.err
	}
	result := make(map[string]string)
	for _, k := range keys {
		if v, ok := p.values[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

var configKeys = []string{
	"APP_ENV", "LOG_LEVEL",
	"AWS_REGION", "AWS_ENDPOINT_URL",
	"TAG_PREFIX", "TAG_PREFIX_SSM_PARAM",
	"FAIL_FAST", "MAX_CONSECUTIVE_FAILURES",
	"EVENT_BUS_NAME", "EVENT_BUS_NAME_SSM_PARAM", "EVENT_SOURCE",
	"NOTIFY_QUEUE_URL", "NOTIFY_QUEUE_URL_SSM_PARAM", "EMIT_EMPTY_RUNS",
	"ENABLE_METRICS", "METRIC_NAMESPACE",
	"ENABLE_AUTOSCALING", "ENABLE_EVENT_RULES",
}

// clearEnv unsets every variable the loader reads, restoring them after the
// test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatalf("unset %s: %v", k, err)
		}
	}
}

// testEnv is the process environment with writes routed through t.Setenv.
func testEnv(t *testing.T) env {
	return env{
		lookup:  os.LookupEnv,
		environ: os.Environ,
		set: func(k, v string) error {
			t.Setenv(k, v)
			return nil
		},
	}
}

func TestLoadLocalDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "local")

	cfg, err := load(nil, testEnv(t))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"LogLevel", cfg.LogLevel, "info"},
		{"AWS.Region", cfg.AWS.Region, "us-east-1"},
		{"AWS.EndpointURL", cfg.AWS.EndpointURL, ""},
		{"Tags.Prefix", cfg.Tags.Prefix, "scheduled-event-adjuster"},
		{"Run.FailFast", cfg.Run.FailFast, false},
		{"Run.MaxConsecutiveFailures", cfg.Run.MaxConsecutiveFailures, uint32(5)},
		{"Notify.EventBusName", cfg.Notify.EventBusName, "default"},
		{"Notify.EventSource", cfg.Notify.EventSource, "scheduled-event-adjuster"},
		{"Notify.QueueURL", cfg.Notify.QueueURL, ""},
		{"Notify.EmitEmptyRuns", cfg.Notify.EmitEmptyRuns, false},
		{"Metrics.Enabled", cfg.Metrics.Enabled, true},
		{"Metrics.Namespace", cfg.Metrics.Namespace, "ScheduledEventAdjuster"},
		{"Processor.EnableAutoScaling", cfg.Processor.EnableAutoScaling, true},
		{"Processor.EnableEventRules", cfg.Processor.EnableEventRules, true},
		{"Build.Version", cfg.Build.Version, "dev"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "local")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_ENDPOINT_URL", "http://localhost:4566")
	t.Setenv("TAG_PREFIX", "acme")
	t.Setenv("FAIL_FAST", "true")
	t.Setenv("MAX_CONSECUTIVE_FAILURES", "0")
	t.Setenv("NOTIFY_QUEUE_URL", "https://sqs.eu-west-1.amazonaws.com/123/adjuster")
	t.Setenv("EMIT_EMPTY_RUNS", "true")
	t.Setenv("ENABLE_METRICS", "false")
	t.Setenv("ENABLE_EVENT_RULES", "false")

	cfg, err := load(nil, testEnv(t))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.AWS.Region != "eu-west-1" || cfg.AWS.EndpointURL != "http://localhost:4566" {
		t.Errorf("AWS = %+v", cfg.AWS)
	}
	if cfg.Tags.Prefix != "acme" {
		t.Errorf("Tags.Prefix = %q, want acme", cfg.Tags.Prefix)
	}
	if !cfg.Run.FailFast || cfg.Run.MaxConsecutiveFailures != 0 {
		t.Errorf("Run = %+v", cfg.Run)
	}
	if cfg.Notify.QueueURL == "" || !cfg.Notify.EmitEmptyRuns {
		t.Errorf("Notify = %+v", cfg.Notify)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false")
	}
	if !cfg.Processor.EnableAutoScaling || cfg.Processor.EnableEventRules {
		t.Errorf("Processor = %+v", cfg.Processor)
	}
}

func TestLoadSetsUTC(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "local")

	original := time.Local
	t.Cleanup(func() { time.Local = original })
	time.Local = time.FixedZone("Elsewhere", 3*3600)

	if _, err := load(nil, testEnv(t)); err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if time.Local != time.UTC {
		t.Errorf("time.Local = %v, want UTC", time.Local)
	}
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing APP_ENV", map[string]string{}},
		{"unknown APP_ENV", map[string]string{"APP_ENV": "qa"}},
		{"unknown LOG_LEVEL", map[string]string{"APP_ENV": "local", "LOG_LEVEL": "trace"}},
		{"invalid queue URL", map[string]string{"APP_ENV": "local", "NOTIFY_QUEUE_URL": "not a url"}},
		{"invalid endpoint", map[string]string{"APP_ENV": "local", "AWS_ENDPOINT_URL": "::"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := load(nil, testEnv(t))
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error = %v, want *ConfigError", err)
			}
			if cfgErr.Type != ErrValidation {
				t.Errorf("Type = %s, want %s", cfgErr.Type, ErrValidation)
			}
		})
	}
}

func TestLoadParsingFailure(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "local")
	t.Setenv("MAX_CONSECUTIVE_FAILURES", "-1")

	_, err := load(nil, testEnv(t))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrParsing {
		t.Fatalf("error = %v, want parsing ConfigError", err)
	}
}

func TestLoadSSMResolution(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("TAG_PREFIX_SSM_PARAM", "/adjuster/prod/tag-prefix")
	t.Setenv("NOTIFY_QUEUE_URL_SSM_PARAM", "/adjuster/prod/queue-url")

	provider := &testParameterProvider{values: map[string]string{
		"/adjuster/prod/tag-prefix": "acme-scheduling",
		"/adjuster/prod/queue-url":  "https://sqs.us-east-1.amazonaws.com/123/adjuster",
	}}

	cfg, err := load(provider, testEnv(t))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if provider.callCount != 1 {
		t.Errorf("provider calls = %d, want 1", provider.callCount)
	}
	if cfg.Tags.Prefix != "acme-scheduling" {
		t.Errorf("Tags.Prefix = %q, want acme-scheduling", cfg.Tags.Prefix)
	}
	if cfg.Notify.QueueURL != "https://sqs.us-east-1.amazonaws.com/123/adjuster" {
		t.Errorf("Notify.QueueURL = %q", cfg.Notify.QueueURL)
	}
}

func TestLoadSSMDirectEnvWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "dev")
	t.Setenv("TAG_PREFIX", "direct")
	t.Setenv("TAG_PREFIX_SSM_PARAM", "/adjuster/dev/tag-prefix")

	provider := &testParameterProvider{values: map[string]string{"/adjuster/dev/tag-prefix": "from-ssm"}}

	cfg, err := load(provider, testEnv(t))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Tags.Prefix != "direct" {
		t.Errorf("Tags.Prefix = %q, want direct", cfg.Tags.Prefix)
	}
	if provider.callCount != 0 {
		t.Errorf("provider calls = %d, want 0", provider.callCount)
	}
}

func TestLoadSSMSkippedForLocal(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "local")
	t.Setenv("TAG_PREFIX_SSM_PARAM", "/adjuster/local/tag-prefix")

	provider := &testParameterProvider{values: map[string]string{"/adjuster/local/tag-prefix": "from-ssm"}}

	cfg, err := load(provider, testEnv(t))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if provider.callCount != 0 {
		t.Errorf("provider calls = %d, want 0", provider.callCount)
	}
	if cfg.Tags.Prefix != "scheduled-event-adjuster" {
		t.Errorf("Tags.Prefix = %q, want default", cfg.Tags.Prefix)
	}
}

func TestLoadSSMFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider ParameterProvider
		contains string
	}{
		{"nil provider", nil, "TAG_PREFIX"},
		{"provider error", &testParameterProvider{err: errors.New("throttled")}, "throttled"},
		{"missing parameter", &testParameterProvider{values: map[string]string{}}, "TAG_PREFIX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("APP_ENV", "staging")
			t.Setenv("TAG_PREFIX_SSM_PARAM", "/adjuster/staging/tag-prefix")

			_, err := load(tt.provider, testEnv(t))
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error = %v, want *ConfigError", err)
			}
			if cfgErr.Type != ErrSSMResolution {
				t.Errorf("Type = %s, want %s", cfgErr.Type, ErrSSMResolution)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q should contain %q", err, tt.contains)
			}
		})
	}
}

func TestLoadNilProviderWithoutSSMParams(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "prod")

	if _, err := load(nil, testEnv(t)); err != nil {
		t.Fatalf("load() error = %v", err)
	}
}

func TestConfigError(t *testing.T) {
	inner := errors.New("boom")

	withCause := &ConfigError{Type: ErrParsing, Message: "bad value", Err: inner}
	if got, want := withCause.Error(), "[PARSING_FAILED] bad value: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(withCause, inner) {
		t.Error("errors.Is should find the wrapped cause")
	}

	bare := &ConfigError{Type: ErrValidation, Message: "invalid"}
	if got, want := bare.Error(), "[VALIDATION_FAILED] invalid"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if bare.Unwrap() != nil {
		t.Error("Unwrap() should be nil without a cause")
	}
}
