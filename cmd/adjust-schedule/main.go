// Package main is the entrypoint for the scheduled event adjuster Lambda.
//
// The function is triggered by an EventBridge schedule. Each invocation scans
// Auto Scaling groups and EventBridge rules opted in through tags, rewrites
// the UTC cron recurrences that no longer fire at the declared local time,
// and publishes a ProcessCompleted event listing the corrections.
//
// This file handles dependency wiring (cold start); the run itself lives in
// internal/processor.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	asg "scheduleadjuster/internal/autoscaling"
	"scheduleadjuster/internal/clock"
	"scheduleadjuster/internal/config"
	"scheduleadjuster/internal/cron"
	"scheduleadjuster/internal/eventrule"
	"scheduleadjuster/internal/metrics"
	"scheduleadjuster/internal/notify"
	"scheduleadjuster/internal/processor"
	"scheduleadjuster/internal/recurrence"
	"scheduleadjuster/internal/tags"
)

func main() {
	bootLog := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL")))
	if err != nil {
		bootLog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel).With(
		"service", "scheduled-event-adjuster",
		"version", cfg.Build.Version,
	)
	logger.Info("Adjuster Lambda initializing (cold start)",
		"environment", cfg.Environment,
		"commit", cfg.Build.Commit,
	)

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("Failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}
	if cfg.AWS.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
	}

	h, err := newHandler(cfg, awsCfg, logger)
	if err != nil {
		logger.Error("Failed to wire handler", "error", err)
		os.Exit(1)
	}

	logger.Info("Adjuster Lambda initialized",
		"tag_prefix", cfg.Tags.Prefix,
		"event_bus", cfg.Notify.EventBusName,
		"queue_url", cfg.Notify.QueueURL,
		"autoscaling", cfg.Processor.EnableAutoScaling,
		"event_rules", cfg.Processor.EnableEventRules,
		"metrics", cfg.Metrics.Enabled,
	)

	// Local mode: read the scheduled event from stdin instead of starting the
	// Lambda runtime. An empty input runs with a synthetic event.
	// Usage: echo '{}' | APP_ENV=local go run ./cmd/adjust-schedule
	if cfg.Environment == "local" {
		logger.Info("APP_ENV=local: reading event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("Failed to read stdin", "error", err)
			os.Exit(1)
		}
		event, err := decodeEvent(payload, time.Now())
		if err != nil {
			logger.Error("Failed to decode event", "error", err)
			os.Exit(1)
		}
		if err := h.Handle(ctx, event); err != nil {
			logger.Error("Handler execution failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Handler execution completed successfully")
		return
	}

	lambda.Start(h.Handle)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// newHandler builds the processors enabled in cfg and the sinks that receive
// their results.
func newHandler(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (*Handler, error) {
	resolver := tags.NewResolver(tags.NewKeys(cfg.Tags.Prefix))
	ebClient := eventbridge.NewFromConfig(awsCfg)

	var processors []processor.Processor
	if cfg.Processor.EnableAutoScaling {
		calc := newCalculator(cron.DialectUnix, logger)
		svc := asg.NewService(autoscaling.NewFromConfig(awsCfg))
		processors = append(processors, processor.Bind[asg.Group](asg.NewProcessor(svc, calc, resolver, logger)))
	}
	if cfg.Processor.EnableEventRules {
		calc := newCalculator(cron.DialectAWS, logger)
		svc := eventrule.NewService(ebClient)
		processors = append(processors, processor.Bind[eventrule.Rule](eventrule.NewProcessor(svc, calc, resolver, logger)))
	}
	if len(processors) == 0 {
		return nil, errors.New("no processor enabled: set ENABLE_AUTOSCALING or ENABLE_EVENT_RULES")
	}

	runner := processor.NewRunner(logger, processors, processor.WithPolicy(processor.Policy{
		FailFast:               cfg.Run.FailFast,
		MaxConsecutiveFailures: cfg.Run.MaxConsecutiveFailures,
	}))

	notifiers := []notify.Notifier{
		notify.NewEventBridgeNotifier(ebClient, cfg.Notify.EventBusName, cfg.Notify.EventSource),
	}
	if cfg.Notify.QueueURL != "" {
		notifiers = append(notifiers, notify.NewSQSNotifier(sqs.NewFromConfig(awsCfg), cfg.Notify.QueueURL))
	}

	var publisher metrics.Publisher = metrics.Noop{}
	if cfg.Metrics.Enabled {
		publisher = metrics.NewCloudWatchPublisher(cloudwatch.NewFromConfig(awsCfg), cfg.Metrics.Namespace)
	}

	return &Handler{
		Runner:        runner,
		Notifier:      notify.Multi(notifiers...),
		Metrics:       publisher,
		EmitEmptyRuns: cfg.Notify.EmitEmptyRuns,
		Log:           logger,
	}, nil
}

func newCalculator(dialect cron.Dialect, logger *slog.Logger) *recurrence.Calculator {
	return recurrence.NewCalculator(clock.System(), recurrence.WithDialect(dialect), recurrence.WithLogger(logger))
}

// decodeEvent parses a scheduled event read outside the Lambda runtime.
func decodeEvent(payload []byte, now time.Time) (events.CloudWatchEvent, error) {
	var event events.CloudWatchEvent
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &event); err != nil {
			return event, fmt.Errorf("invalid scheduled event: %w", err)
		}
	}
	if event.DetailType == "" {
		event.DetailType = "Scheduled Event"
	}
	if event.Source == "" {
		event.Source = "aws.events"
	}
	if event.Time.IsZero() {
		event.Time = now.UTC()
	}
	return event, nil
}
