// Package autoscaling adjusts the recurrences of EC2 Auto Scaling scheduled
// actions.
package autoscaling

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asTypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"

	"scheduleadjuster/internal/clock"
	"scheduleadjuster/internal/types"
)

// batchPutLimit is the maximum number of actions accepted by one
// BatchPutScheduledUpdateGroupAction call.
const batchPutLimit = 50

// Group is an Auto Scaling group that carries the adjuster's enabled tag.
type Group struct {
	Name string
	ARN  string
	Tags []types.Tag
}

// Action is a scheduled action of a group.
type Action struct {
	Name            string
	Recurrence      string
	TimeZone        string
	StartTime       *time.Time
	EndTime         *time.Time
	MinSize         *int32
	MaxSize         *int32
	DesiredCapacity *int32
}

// ActionUpdate is an action with its new recurrence. The remaining fields of
// the action are written back unchanged.
type ActionUpdate struct {
	Action        Action
	NewRecurrence string
}

// autoScalingAPI is the subset of the Auto Scaling SDK client used by the
// service.
type autoScalingAPI interface {
	autoscaling.DescribeAutoScalingGroupsAPIClient
	autoscaling.DescribeScheduledActionsAPIClient
	BatchPutScheduledUpdateGroupAction(ctx context.Context, params *autoscaling.BatchPutScheduledUpdateGroupActionInput, optFns ...func(*autoscaling.Options)) (*autoscaling.BatchPutScheduledUpdateGroupActionOutput, error)
}

// Service talks to the Auto Scaling API.
type Service struct {
	client autoScalingAPI
	clock  clock.Source
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceClock sets the clock used to decide whether a start time is
// still in the future. Defaults to the system clock.
func WithServiceClock(c clock.Source) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// NewService creates a Service over an SDK client.
func NewService(client autoScalingAPI, opts ...ServiceOption) *Service {
	s := &Service{client: client, clock: clock.System()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListGroups returns every group tagged with tagKey, whatever its value.
func (s *Service) ListGroups(ctx context.Context, tagKey string) ([]Group, error) {
	p := autoscaling.NewDescribeAutoScalingGroupsPaginator(s.client, &autoscaling.DescribeAutoScalingGroupsInput{
		Filters: []asTypes.Filter{
			{Name: aws.String("tag-key"), Values: []string{tagKey}},
		},
	})

	var groups []Group
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe auto scaling groups: %w", err)
		}
		for _, g := range page.AutoScalingGroups {
			group := Group{
				Name: aws.ToString(g.AutoScalingGroupName),
				ARN:  aws.ToString(g.AutoScalingGroupARN),
				Tags: make([]types.Tag, 0, len(g.Tags)),
			}
			for _, t := range g.Tags {
				group.Tags = append(group.Tags, types.Tag{
					Key:   aws.ToString(t.Key),
					Value: aws.ToString(t.Value),
				})
			}
			groups = append(groups, group)
		}
	}
	return groups, nil
}

// ListScheduledActions returns the scheduled actions of a group. One-shot
// actions are included; their Recurrence is empty.
func (s *Service) ListScheduledActions(ctx context.Context, group string) ([]Action, error) {
	p := autoscaling.NewDescribeScheduledActionsPaginator(s.client, &autoscaling.DescribeScheduledActionsInput{
		AutoScalingGroupName: aws.String(group),
	})

	var actions []Action
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe scheduled actions of %s: %w", group, err)
		}
		for _, a := range page.ScheduledUpdateGroupActions {
			actions = append(actions, Action{
				Name:            aws.ToString(a.ScheduledActionName),
				Recurrence:      aws.ToString(a.Recurrence),
				TimeZone:        aws.ToString(a.TimeZone),
				StartTime:       a.StartTime,
				EndTime:         a.EndTime,
				MinSize:         a.MinSize,
				MaxSize:         a.MaxSize,
				DesiredCapacity: a.DesiredCapacity,
			})
		}
	}
	return actions, nil
}

// ApplyScheduledActionUpdates writes the updates in batches. The returned map
// holds the name and reason of every action the service rejected; the error
// is only set when a call itself failed.
func (s *Service) ApplyScheduledActionUpdates(ctx context.Context, group string, updates []ActionUpdate) (map[string]string, error) {
	failed := make(map[string]string)
	now := s.clock.Now()

	for start := 0; start < len(updates); start += batchPutLimit {
		end := min(start+batchPutLimit, len(updates))

		requests := make([]asTypes.ScheduledUpdateGroupActionRequest, 0, end-start)
		for _, u := range updates[start:end] {
			requests = append(requests, toRequest(u, now))
		}

		out, err := s.client.BatchPutScheduledUpdateGroupAction(ctx, &autoscaling.BatchPutScheduledUpdateGroupActionInput{
			AutoScalingGroupName:        aws.String(group),
			ScheduledUpdateGroupActions: requests,
		})
		if err != nil {
			return failed, fmt.Errorf("batch put scheduled actions on %s: %w", group, err)
		}
		for _, f := range out.FailedScheduledUpdateGroupActions {
			reason := aws.ToString(f.ErrorCode)
			if msg := aws.ToString(f.ErrorMessage); msg != "" {
				reason += ": " + msg
			}
			failed[aws.ToString(f.ScheduledActionName)] = reason
		}
	}
	return failed, nil
}

// toRequest carries the action's payload along with the new recurrence. A
// start time is only sent while it is after now; the service rejects one in
// the past.
func toRequest(u ActionUpdate, now time.Time) asTypes.ScheduledUpdateGroupActionRequest {
	req := asTypes.ScheduledUpdateGroupActionRequest{
		ScheduledActionName: aws.String(u.Action.Name),
		Recurrence:          aws.String(u.NewRecurrence),
		MinSize:             u.Action.MinSize,
		MaxSize:             u.Action.MaxSize,
		DesiredCapacity:     u.Action.DesiredCapacity,
		EndTime:             u.Action.EndTime,
	}
	if st := u.Action.StartTime; st != nil && st.After(now) {
		req.StartTime = st
	}
	if u.Action.TimeZone != "" {
		req.TimeZone = aws.String(u.Action.TimeZone)
	}
	return req
}
