package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"scheduleadjuster/internal/clock"
	"scheduleadjuster/internal/types"
)

// DefaultMaxConsecutiveFailures is the number of back-to-back resource
// failures after which the run stops.
const DefaultMaxConsecutiveFailures = 5

// Policy controls how the runner reacts to failing resources.
type Policy struct {
	// FailFast aborts the run on the first failed resource.
	FailFast bool
	// MaxConsecutiveFailures trips the breaker and stops the run once that
	// many resources fail in a row. Zero disables the breaker.
	MaxConsecutiveFailures uint32
}

// DefaultPolicy isolates failures per resource and stops after
// DefaultMaxConsecutiveFailures consecutive failures.
func DefaultPolicy() Policy {
	return Policy{MaxConsecutiveFailures: DefaultMaxConsecutiveFailures}
}

// Runner executes processors sequentially and aggregates their outcome.
type Runner struct {
	processors []Processor
	policy     Policy
	logger     *slog.Logger
	clock      clock.Source
	newRunID   func() string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPolicy overrides the default failure policy.
func WithPolicy(p Policy) RunnerOption {
	return func(r *Runner) {
		r.policy = p
	}
}

// WithClock overrides the time source used for run timestamps.
func WithClock(src clock.Source) RunnerOption {
	return func(r *Runner) {
		r.clock = src
	}
}

// WithRunIDGenerator overrides how run identifiers are produced.
func WithRunIDGenerator(fn func() string) RunnerOption {
	return func(r *Runner) {
		r.newRunID = fn
	}
}

// NewRunner creates a Runner over processors, which run in the given order.
func NewRunner(logger *slog.Logger, processors []Processor, opts ...RunnerOption) *Runner {
	r := &Runner{
		processors: processors,
		policy:     DefaultPolicy(),
		logger:     logger,
		clock:      clock.System(),
		newRunID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one pass over every processor.
//
// The summary is always returned, including the change records of the
// resources that succeeded, so that callers can report them even when the
// run failed. The error is a *types.AppError with code
// ErrCodeRunResourceFailures when some resources failed, or ErrCodeRunAborted
// when the run stopped early.
func (r *Runner) Run(ctx context.Context) (types.RunSummary, error) {
	summary := types.RunSummary{
		RunID:     r.newRunID(),
		StartedAt: r.clock.Now(),
	}
	logger := r.logger.With("run_id", summary.RunID)
	ctx = types.WithRunID(ctx, summary.RunID)
	breaker := r.newBreaker(ctx, logger)

	var failures []error
	aborted := func(cause error) (types.RunSummary, error) {
		summary.Duration = r.clock.Now().Sub(summary.StartedAt)
		logger.ErrorContext(ctx, "run aborted",
			"error", cause,
			"failed", summary.Failed,
			"corrected", summary.Corrected(),
		)
		appErr := types.NewAppError(types.ErrCodeRunAborted, "run stopped before all resources were processed",
			errors.Join(append(failures, cause)...))
		return summary, appErr.WithDetails(map[string]any{"run_id": summary.RunID, "failed": summary.Failed})
	}

	for _, p := range r.processors {
		plog := logger.With("resource_type", string(p.ResourceType()))

		candidates, err := p.Candidates(ctx)
		if err != nil {
			summary.Failed++
			err = types.NewAppError(types.ErrCodeUpstreamList,
				fmt.Sprintf("listing %s resources", p.ResourceType()), err)
			plog.ErrorContext(ctx, "failed to list resources", "error", err)
			if r.policy.FailFast || ctx.Err() != nil {
				return aborted(err)
			}
			failures = append(failures, err)
			continue
		}
		plog.InfoContext(ctx, "listed resources", "count", len(candidates))

		for _, c := range candidates {
			if err := ctx.Err(); err != nil {
				return aborted(err)
			}

			clog := plog.With("resource", c.Name())
			summary.Evaluated++

			var ev Evaluation
			records, err := breaker.Execute(func() ([]types.ChangeRecord, error) {
				var evalErr error
				ev, evalErr = c.Evaluate(ctx)
				if evalErr != nil || ev.SkipReason != "" || !ev.HasChanges() {
					return nil, evalErr
				}
				return c.Apply(ctx, ev)
			})

			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				summary.Evaluated--
				return aborted(fmt.Errorf("%d consecutive resource failures: %w",
					r.policy.MaxConsecutiveFailures, err))
			}

			summary.Changes = append(summary.Changes, records...)

			switch {
			case err != nil:
				summary.Failed++
				err = fmt.Errorf("%s %s: %w", p.ResourceType(), c.Name(), err)
				clog.ErrorContext(ctx, "failed to process resource",
					"error", err,
					"applied", len(records),
				)
				if r.policy.FailFast {
					return aborted(err)
				}
				failures = append(failures, err)
			case ev.SkipReason != "":
				summary.Skipped++
				clog.InfoContext(ctx, "skipping resource", "reason", ev.SkipReason)
			default:
				summary.Skipped += ev.Skipped
				if len(records) > 0 {
					clog.InfoContext(ctx, "corrected recurrences", "count", len(records))
				}
			}
		}
	}

	summary.Duration = r.clock.Now().Sub(summary.StartedAt)
	logger.InfoContext(ctx, "run completed",
		"evaluated", summary.Evaluated,
		"corrected", summary.Corrected(),
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration_ms", summary.Duration.Milliseconds(),
	)

	if len(failures) > 0 {
		appErr := types.NewAppError(types.ErrCodeRunResourceFailures,
			fmt.Sprintf("%d resources failed", len(failures)), errors.Join(failures...))
		return summary, appErr.WithDetails(map[string]any{"run_id": summary.RunID, "failed": len(failures)})
	}
	return summary, nil
}

// newBreaker returns a breaker scoped to a single run so that no state leaks
// between invocations of a warm Lambda container.
func (r *Runner) newBreaker(ctx context.Context, logger *slog.Logger) *gobreaker.CircuitBreaker[[]types.ChangeRecord] {
	limit := r.policy.MaxConsecutiveFailures
	return gobreaker.NewCircuitBreaker[[]types.ChangeRecord](gobreaker.Settings{
		Name:        "resource-processing",
		MaxRequests: 1,
		// Stay open for the rest of the run once tripped.
		Timeout: 24 * time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return limit > 0 && counts.ConsecutiveFailures >= limit
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WarnContext(ctx, "circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}
