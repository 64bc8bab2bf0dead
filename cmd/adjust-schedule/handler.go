package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"scheduleadjuster/internal/metrics"
	"scheduleadjuster/internal/notify"
	"scheduleadjuster/internal/types"
)

// runner is satisfied by *processor.Runner.
type runner interface {
	Run(ctx context.Context) (types.RunSummary, error)
}

// Handler runs one adjustment pass per scheduled invocation and reports the
// outcome.
type Handler struct {
	Runner   runner
	Notifier notify.Notifier
	Metrics  metrics.Publisher
	// EmitEmptyRuns publishes a completion event for runs without changes.
	EmitEmptyRuns bool
	Log           *slog.Logger
}

// Handle is the Lambda entry point. Corrections that were applied are always
// announced, even when other resources failed; the returned error then
// carries the run failure and any notification failure.
func (h *Handler) Handle(ctx context.Context, event events.CloudWatchEvent) error {
	h.Log.InfoContext(ctx, "scheduled invocation received",
		"event_id", event.ID,
		"event_time", event.Time,
		"rules", event.Resources,
	)

	summary, runErr := h.Runner.Run(ctx)
	log := h.Log.With("run_id", summary.RunID)

	var notifyErr error
	if len(summary.Changes) > 0 || h.EmitEmptyRuns {
		if err := h.Notifier.Notify(ctx, summary.RunID, summary.Changes); err != nil {
			notifyErr = types.NewAppError(types.ErrCodeUpstreamNotify, "failed to publish completion event", err).
				WithDetails(map[string]any{"run_id": summary.RunID, "updates": len(summary.Changes)})
			log.ErrorContext(ctx, "failed to publish completion event", "error", err)
		} else {
			log.InfoContext(ctx, "completion event published", "updates", len(summary.Changes))
		}
	}

	if err := h.Metrics.PublishRun(ctx, summary); err != nil {
		log.WarnContext(ctx, "failed to publish run metrics", "error", err)
	}

	if err := errors.Join(runErr, notifyErr); err != nil {
		code := types.CodeOf(err)
		log.ErrorContext(ctx, "run finished with errors",
			"error", err,
			"error_code", string(code),
			"upstream", code.IsUpstream(),
		)
		return err
	}
	return nil
}
