package autoscaling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"scheduleadjuster/internal/processor"
	"scheduleadjuster/internal/recurrence"
	"scheduleadjuster/internal/tags"
	"scheduleadjuster/internal/types"
)

// GroupService lists groups and their scheduled actions and writes updates.
type GroupService interface {
	ListGroups(ctx context.Context, tagKey string) ([]Group, error)
	ListScheduledActions(ctx context.Context, group string) ([]Action, error)
	ApplyScheduledActionUpdates(ctx context.Context, group string, updates []ActionUpdate) (map[string]string, error)
}

// RecurrenceCalculator computes the corrected recurrence of an action.
type RecurrenceCalculator interface {
	CalculateRecurrence(ctx context.Context, current, expectedTime, timezone string, startTime *time.Time) (string, error)
}

// Processor adjusts the scheduled actions of tagged Auto Scaling groups.
type Processor struct {
	service  GroupService
	calc     RecurrenceCalculator
	resolver *tags.Resolver
	logger   *slog.Logger
}

var _ processor.ResourceProcessor[Group] = (*Processor)(nil)

// NewProcessor creates a Processor.
func NewProcessor(service GroupService, calc RecurrenceCalculator, resolver *tags.Resolver, logger *slog.Logger) *Processor {
	return &Processor{
		service:  service,
		calc:     calc,
		resolver: resolver,
		logger:   logger.With("component", "autoscaling"),
	}
}

func (p *Processor) ResourceType() types.ResourceType {
	return types.ResourceAutoScalingAction
}

func (p *Processor) CandidateName(g Group) string {
	return g.Name
}

// ListCandidates returns the groups that carry the enabled tag.
func (p *Processor) ListCandidates(ctx context.Context) ([]Group, error) {
	return p.service.ListGroups(ctx, p.resolver.Keys().Enabled())
}

// Evaluate computes the corrected recurrence of every recurring action of g
// that declares a local time.
func (p *Processor) Evaluate(ctx context.Context, g Group) (processor.Evaluation, error) {
	keys := p.resolver.Keys()
	log := p.logger.With("group", g.Name)

	cfg, err := p.resolver.Resolve(g.Tags)
	if err != nil {
		log.WarnContext(ctx, "ignoring group with invalid configuration", "error", err)
		return processor.Evaluation{SkipReason: err.Error()}, nil
	}
	if !cfg.Enabled {
		return processor.Evaluation{SkipReason: fmt.Sprintf("missing tag %s", keys.Enabled())}, nil
	}
	if cfg.Timezone == "" {
		return processor.Evaluation{SkipReason: fmt.Sprintf("no timezone defined (missing tag %s)", keys.LocalTimezone())}, nil
	}

	actions, err := p.service.ListScheduledActions(ctx, g.Name)
	if err != nil {
		return processor.Evaluation{}, types.NewAppError(types.ErrCodeUpstreamList, "listing scheduled actions", err)
	}

	var ev processor.Evaluation
	for _, action := range actions {
		alog := log.With("action", action.Name)

		if action.Recurrence == "" {
			alog.DebugContext(ctx, "skipping one-shot action")
			continue
		}
		if !isUTC(action.TimeZone) {
			alog.InfoContext(ctx, "skipping action evaluated in its own time zone", "time_zone", action.TimeZone)
			ev.Skipped++
			continue
		}

		localTime, ok := cfg.LocalTimesByAction[action.Name]
		if !ok || localTime == "" {
			alog.InfoContext(ctx, "skipping action without local time", "missing_tag", keys.LocalTimeFor(action.Name))
			ev.Skipped++
			continue
		}
		if err := p.resolver.CheckLocalTime(action.Name, localTime); err != nil {
			alog.WarnContext(ctx, "skipping action with invalid local time", "error", err)
			ev.Skipped++
			continue
		}

		corrected, err := p.calc.CalculateRecurrence(ctx, action.Recurrence, localTime, cfg.Timezone, action.StartTime)
		if err != nil {
			return processor.Evaluation{}, fmt.Errorf("action %s: %w", action.Name, recurrence.AsAppError(err))
		}
		if corrected == action.Recurrence {
			alog.DebugContext(ctx, "recurrence already matches local time", "recurrence", action.Recurrence)
			continue
		}

		alog.InfoContext(ctx, "recurrence will be updated",
			"current", action.Recurrence,
			"corrected", corrected,
			"local_time", localTime,
			"timezone", cfg.Timezone,
		)
		ev.Changes = append(ev.Changes, processor.Change{
			Key: action.Name,
			Record: types.ChangeRecord{
				Type:               types.ResourceAutoScalingAction,
				ResourceName:       g.Name,
				ResourceArn:        g.ARN,
				OriginalRecurrence: action.Recurrence,
				NewRecurrence:      corrected,
				LocalTime:          localTime,
				LocalTimezone:      cfg.Timezone,
				AdditionalDetails:  map[string]string{"ActionName": action.Name},
			},
			Payload: ActionUpdate{Action: action, NewRecurrence: corrected},
		})
	}
	return ev, nil
}

// ApplyChanges writes every staged update of g in one batch. Records of the
// actions the service rejected are dropped and reported through a
// *types.PartialUpdateError.
func (p *Processor) ApplyChanges(ctx context.Context, g Group, ev processor.Evaluation) ([]types.ChangeRecord, error) {
	updates := make([]ActionUpdate, 0, len(ev.Changes))
	for _, c := range ev.Changes {
		u, ok := c.Payload.(ActionUpdate)
		if !ok {
			return nil, fmt.Errorf("change %s has no action payload", c.Key)
		}
		updates = append(updates, u)
	}

	failed, err := p.service.ApplyScheduledActionUpdates(ctx, g.Name, updates)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUpdate, "updating scheduled actions", err)
	}

	records := make([]types.ChangeRecord, 0, len(ev.Changes))
	for _, c := range ev.Changes {
		if reason, ok := failed[c.Key]; ok {
			p.logger.ErrorContext(ctx, "scheduled action was not updated",
				"group", g.Name,
				"action", c.Key,
				"reason", reason,
			)
			continue
		}
		records = append(records, c.Record)
	}

	if len(failed) > 0 {
		return records, types.NewAppError(types.ErrCodeUpstreamPartialUpdate, "batch update rejected some actions",
			&types.PartialUpdateError{Resource: g.Name, Failed: failed})
	}
	return records, nil
}

// isUTC reports whether a scheduled action's own time zone leaves its
// recurrence in UTC.
func isUTC(tz string) bool {
	switch tz {
	case "", "UTC", "Etc/UTC", "Etc/GMT", "GMT":
		return true
	}
	return false
}
