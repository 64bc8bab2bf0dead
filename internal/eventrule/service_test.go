package eventrule

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebTypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scheduleadjuster/internal/types"
)

type mockEventBridgeAPI struct {
	mock.Mock
}

func (m *mockEventBridgeAPI) ListRules(ctx context.Context, params *eventbridge.ListRulesInput, _ ...func(*eventbridge.Options)) (*eventbridge.ListRulesOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*eventbridge.ListRulesOutput), args.Error(1)
}

func (m *mockEventBridgeAPI) ListTagsForResource(ctx context.Context, params *eventbridge.ListTagsForResourceInput, _ ...func(*eventbridge.Options)) (*eventbridge.ListTagsForResourceOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*eventbridge.ListTagsForResourceOutput), args.Error(1)
}

func (m *mockEventBridgeAPI) PutRule(ctx context.Context, params *eventbridge.PutRuleInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutRuleOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*eventbridge.PutRuleOutput), args.Error(1)
}

func TestListScheduledRules(t *testing.T) {
	api := new(mockEventBridgeAPI)

	api.On("ListRules", mock.Anything, mock.MatchedBy(func(in *eventbridge.ListRulesInput) bool {
		return in.NextToken == nil && aws.ToString(in.EventBusName) == "default"
	})).Return(&eventbridge.ListRulesOutput{
		Rules: []ebTypes.Rule{
			{Name: aws.String("nightly"), Arn: aws.String("arn:nightly"), ScheduleExpression: aws.String("cron(0 10 * * ? *)"), State: ebTypes.RuleStateEnabled},
			{Name: aws.String("on-upload"), EventPattern: aws.String(`{"source":["aws.s3"]}`)},
		},
		NextToken: aws.String("t2"),
	}, nil).Once()
	api.On("ListRules", mock.Anything, mock.MatchedBy(func(in *eventbridge.ListRulesInput) bool {
		return aws.ToString(in.NextToken) == "t2"
	})).Return(&eventbridge.ListRulesOutput{
		Rules: []ebTypes.Rule{
			{Name: aws.String("every-5m"), ScheduleExpression: aws.String("rate(5 minutes)")},
		},
	}, nil).Once()

	rules, err := NewService(api).ListScheduledRules(context.Background())
	require.NoError(t, err)

	require.Len(t, rules, 2)
	assert.Equal(t, "nightly", rules[0].Name)
	assert.Equal(t, "ENABLED", rules[0].State)
	assert.Equal(t, "every-5m", rules[1].Name)
	api.AssertExpectations(t)
}

func TestListScheduledRulesError(t *testing.T) {
	api := new(mockEventBridgeAPI)
	api.On("ListRules", mock.Anything, mock.Anything).Return(nil, errors.New("denied"))

	_, err := NewService(api).ListScheduledRules(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list rules")
}

func TestGetTags(t *testing.T) {
	api := new(mockEventBridgeAPI)
	api.On("ListTagsForResource", mock.Anything, mock.MatchedBy(func(in *eventbridge.ListTagsForResourceInput) bool {
		return aws.ToString(in.ResourceARN) == "arn:nightly"
	})).Return(&eventbridge.ListTagsForResourceOutput{
		Tags: []ebTypes.Tag{{Key: aws.String("team"), Value: aws.String("data")}},
	}, nil)

	got, err := NewService(api).GetTags(context.Background(), "arn:nightly")
	require.NoError(t, err)
	assert.Equal(t, []types.Tag{{Key: "team", Value: "data"}}, got)
}

func TestUpdateRuleScheduleKeepsRuleAttributes(t *testing.T) {
	api := new(mockEventBridgeAPI)

	var captured *eventbridge.PutRuleInput
	api.On("PutRule", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*eventbridge.PutRuleInput) }).
		Return(&eventbridge.PutRuleOutput{RuleArn: aws.String("arn:nightly")}, nil)

	err := NewService(api).UpdateRuleSchedule(context.Background(), Rule{
		Name:        "nightly",
		State:       "DISABLED",
		Description: "nightly report",
		RoleARN:     "arn:role",
	}, "cron(0 9 * * ? *)")
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, "nightly", aws.ToString(captured.Name))
	assert.Equal(t, "cron(0 9 * * ? *)", aws.ToString(captured.ScheduleExpression))
	assert.Equal(t, ebTypes.RuleStateDisabled, captured.State)
	assert.Equal(t, "nightly report", aws.ToString(captured.Description))
	assert.Equal(t, "arn:role", aws.ToString(captured.RoleArn))
	assert.Equal(t, "default", aws.ToString(captured.EventBusName))
	assert.Nil(t, captured.EventPattern)
}

func TestUpdateRuleScheduleError(t *testing.T) {
	api := new(mockEventBridgeAPI)
	api.On("PutRule", mock.Anything, mock.Anything).Return(nil, errors.New("limit exceeded"))

	err := NewService(api).UpdateRuleSchedule(context.Background(), Rule{Name: "nightly"}, "cron(0 9 * * ? *)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put rule nightly")
}
