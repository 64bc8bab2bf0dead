// Package eventrule adjusts the cron schedule expressions of EventBridge
// rules on the default event bus.
package eventrule

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebTypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"scheduleadjuster/internal/types"
)

// DefaultEventBus is the only bus whose rules are managed.
const DefaultEventBus = "default"

// Rule is a scheduled EventBridge rule.
type Rule struct {
	Name               string
	ARN                string
	ScheduleExpression string
	State              string
	Description        string
	RoleARN            string
	EventPattern       string
	EventBusName       string
	// ManagedBy is set for rules owned by another AWS service.
	ManagedBy string
}

// eventBridgeAPI is the subset of the EventBridge SDK client used by the
// service.
type eventBridgeAPI interface {
	ListRules(ctx context.Context, params *eventbridge.ListRulesInput, optFns ...func(*eventbridge.Options)) (*eventbridge.ListRulesOutput, error)
	ListTagsForResource(ctx context.Context, params *eventbridge.ListTagsForResourceInput, optFns ...func(*eventbridge.Options)) (*eventbridge.ListTagsForResourceOutput, error)
	PutRule(ctx context.Context, params *eventbridge.PutRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutRuleOutput, error)
}

// Service talks to the EventBridge API.
type Service struct {
	client eventBridgeAPI
}

// NewService creates a Service over an SDK client.
func NewService(client eventBridgeAPI) *Service {
	return &Service{client: client}
}

// ListScheduledRules returns the rules of the default bus that have a
// schedule expression.
func (s *Service) ListScheduledRules(ctx context.Context) ([]Rule, error) {
	var (
		rules []Rule
		token *string
	)
	for {
		out, err := s.client.ListRules(ctx, &eventbridge.ListRulesInput{
			EventBusName: aws.String(DefaultEventBus),
			NextToken:    token,
		})
		if err != nil {
			return nil, fmt.Errorf("list rules: %w", err)
		}
		for _, r := range out.Rules {
			if aws.ToString(r.ScheduleExpression) == "" {
				continue
			}
			rules = append(rules, fromSDK(r))
		}
		if aws.ToString(out.NextToken) == "" {
			return rules, nil
		}
		token = out.NextToken
	}
}

// GetTags returns the tags of the rule identified by arn.
func (s *Service) GetTags(ctx context.Context, arn string) ([]types.Tag, error) {
	out, err := s.client.ListTagsForResource(ctx, &eventbridge.ListTagsForResourceInput{
		ResourceARN: aws.String(arn),
	})
	if err != nil {
		return nil, fmt.Errorf("list tags of %s: %w", arn, err)
	}
	tags := make([]types.Tag, 0, len(out.Tags))
	for _, t := range out.Tags {
		tags = append(tags, types.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return tags, nil
}

// UpdateRuleSchedule replaces the schedule expression of rule. PutRule
// overwrites every attribute, so the rest of the rule is sent as read.
func (s *Service) UpdateRuleSchedule(ctx context.Context, rule Rule, expression string) error {
	in := &eventbridge.PutRuleInput{
		Name:               aws.String(rule.Name),
		ScheduleExpression: aws.String(expression),
		EventBusName:       aws.String(busOrDefault(rule.EventBusName)),
	}
	if rule.State != "" {
		in.State = ebTypes.RuleState(rule.State)
	}
	if rule.Description != "" {
		in.Description = aws.String(rule.Description)
	}
	if rule.RoleARN != "" {
		in.RoleArn = aws.String(rule.RoleARN)
	}
	if rule.EventPattern != "" {
		in.EventPattern = aws.String(rule.EventPattern)
	}

	if _, err := s.client.PutRule(ctx, in); err != nil {
		return fmt.Errorf("put rule %s: %w", rule.Name, err)
	}
	return nil
}

func fromSDK(r ebTypes.Rule) Rule {
	return Rule{
		Name:               aws.ToString(r.Name),
		ARN:                aws.ToString(r.Arn),
		ScheduleExpression: strings.TrimSpace(aws.ToString(r.ScheduleExpression)),
		State:              string(r.State),
		Description:        aws.ToString(r.Description),
		RoleARN:            aws.ToString(r.RoleArn),
		EventPattern:       aws.ToString(r.EventPattern),
		EventBusName:       aws.ToString(r.EventBusName),
		ManagedBy:          aws.ToString(r.ManagedBy),
	}
}

func busOrDefault(name string) string {
	if name == "" {
		return DefaultEventBus
	}
	return name
}
