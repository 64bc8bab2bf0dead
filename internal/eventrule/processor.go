package eventrule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scheduleadjuster/internal/processor"
	"scheduleadjuster/internal/recurrence"
	"scheduleadjuster/internal/tags"
	"scheduleadjuster/internal/types"
)

const (
	cronPrefix = "cron("
	cronSuffix = ")"
)

// RuleService lists scheduled rules, reads their tags and rewrites their
// schedule.
type RuleService interface {
	ListScheduledRules(ctx context.Context) ([]Rule, error)
	GetTags(ctx context.Context, arn string) ([]types.Tag, error)
	UpdateRuleSchedule(ctx context.Context, rule Rule, expression string) error
}

// RecurrenceCalculator computes the corrected recurrence of a rule.
type RecurrenceCalculator interface {
	CalculateRecurrence(ctx context.Context, current, expectedTime, timezone string, startTime *time.Time) (string, error)
}

// Processor adjusts the cron schedules of tagged EventBridge rules.
type Processor struct {
	service  RuleService
	calc     RecurrenceCalculator
	resolver *tags.Resolver
	logger   *slog.Logger
}

var _ processor.ResourceProcessor[Rule] = (*Processor)(nil)

// NewProcessor creates a Processor. calc should use the AWS cron dialect.
func NewProcessor(service RuleService, calc RecurrenceCalculator, resolver *tags.Resolver, logger *slog.Logger) *Processor {
	return &Processor{
		service:  service,
		calc:     calc,
		resolver: resolver,
		logger:   logger.With("component", "eventrule"),
	}
}

func (p *Processor) ResourceType() types.ResourceType {
	return types.ResourceEventBridgeRule
}

func (p *Processor) CandidateName(r Rule) string {
	return r.Name
}

// ListCandidates returns the rules with a cron schedule. Rate schedules and
// rules managed by other services are left out.
func (p *Processor) ListCandidates(ctx context.Context) ([]Rule, error) {
	rules, err := p.service.ListScheduledRules(ctx)
	if err != nil {
		return nil, err
	}

	out := rules[:0]
	for _, r := range rules {
		if r.ManagedBy != "" {
			p.logger.DebugContext(ctx, "skipping managed rule", "rule", r.Name, "managed_by", r.ManagedBy)
			continue
		}
		if _, ok := cronBody(r.ScheduleExpression); !ok {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Evaluate reads the rule's tags and computes its corrected schedule.
func (p *Processor) Evaluate(ctx context.Context, r Rule) (processor.Evaluation, error) {
	keys := p.resolver.Keys()
	log := p.logger.With("rule", r.Name)

	ruleTags, err := p.service.GetTags(ctx, r.ARN)
	if err != nil {
		return processor.Evaluation{}, types.NewAppError(types.ErrCodeUpstreamList, "reading rule tags", err)
	}

	cfg, err := p.resolver.Resolve(ruleTags)
	if err != nil {
		log.WarnContext(ctx, "ignoring rule with invalid configuration", "error", err)
		return processor.Evaluation{SkipReason: err.Error()}, nil
	}
	switch {
	case !cfg.Enabled:
		return processor.Evaluation{SkipReason: fmt.Sprintf("missing tag %s", keys.Enabled())}, nil
	case cfg.Timezone == "":
		return processor.Evaluation{SkipReason: fmt.Sprintf("no timezone defined (missing tag %s)", keys.LocalTimezone())}, nil
	case cfg.LocalTime == "":
		return processor.Evaluation{SkipReason: fmt.Sprintf("no local time defined (missing tag %s)", keys.LocalTime())}, nil
	}

	current, _ := cronBody(r.ScheduleExpression)
	corrected, err := p.calc.CalculateRecurrence(ctx, current, cfg.LocalTime, cfg.Timezone, nil)
	if err != nil {
		return processor.Evaluation{}, recurrence.AsAppError(err)
	}
	if corrected == current {
		log.DebugContext(ctx, "schedule already matches local time", "recurrence", current)
		return processor.Evaluation{}, nil
	}

	log.InfoContext(ctx, "schedule will be updated",
		"current", current,
		"corrected", corrected,
		"local_time", cfg.LocalTime,
		"timezone", cfg.Timezone,
	)
	return processor.Evaluation{Changes: []processor.Change{{
		Key: r.Name,
		Record: types.ChangeRecord{
			Type:               types.ResourceEventBridgeRule,
			ResourceName:       r.Name,
			ResourceArn:        r.ARN,
			OriginalRecurrence: current,
			NewRecurrence:      corrected,
			LocalTime:          cfg.LocalTime,
			LocalTimezone:      cfg.Timezone,
		},
		Payload: cronPrefix + corrected + cronSuffix,
	}}}, nil
}

// ApplyChanges writes the corrected schedule of r.
func (p *Processor) ApplyChanges(ctx context.Context, r Rule, ev processor.Evaluation) ([]types.ChangeRecord, error) {
	records := make([]types.ChangeRecord, 0, len(ev.Changes))
	for _, c := range ev.Changes {
		expression, ok := c.Payload.(string)
		if !ok {
			return records, fmt.Errorf("change %s has no schedule expression", c.Key)
		}
		if err := p.service.UpdateRuleSchedule(ctx, r, expression); err != nil {
			return records, types.NewAppError(types.ErrCodeUpstreamUpdate, "updating rule schedule", err)
		}
		records = append(records, c.Record)
	}
	return records, nil
}

// cronBody extracts the expression inside cron(...).
func cronBody(schedule string) (string, bool) {
	s := strings.TrimSpace(schedule)
	if !strings.HasPrefix(s, cronPrefix) || !strings.HasSuffix(s, cronSuffix) {
		return "", false
	}
	return strings.TrimSpace(s[len(cronPrefix) : len(s)-len(cronSuffix)]), true
}
