// Package metrics publishes run statistics to CloudWatch.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"scheduleadjuster/internal/types"
)

// DefaultNamespace is the CloudWatch namespace used when none is configured.
const DefaultNamespace = "ScheduledEventAdjuster"

// Publisher records the outcome of a run.
type Publisher interface {
	PublishRun(ctx context.Context, summary types.RunSummary) error
}

// cloudwatchAPI is the subset of the CloudWatch SDK client used here.
type cloudwatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher emits run counters under a namespace.
type CloudWatchPublisher struct {
	client    cloudwatchAPI
	namespace string
}

func NewCloudWatchPublisher(client cloudwatchAPI, namespace string) *CloudWatchPublisher {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &CloudWatchPublisher{client: client, namespace: namespace}
}

// PublishRun emits ResourcesEvaluated, ResourcesSkipped, ResourcesFailed,
// RunDuration and RecurrencesCorrected. The latter is also emitted per
// resource type so that alarms can tell Auto Scaling and rule corrections
// apart.
func (p *CloudWatchPublisher) PublishRun(ctx context.Context, summary types.RunSummary) error {
	ts := summary.StartedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	datum := func(name string, value float64, unit cwTypes.StandardUnit, dims ...cwTypes.Dimension) cwTypes.MetricDatum {
		return cwTypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(value),
			Unit:       unit,
			Timestamp:  aws.Time(ts),
			Dimensions: dims,
		}
	}

	data := []cwTypes.MetricDatum{
		datum("ResourcesEvaluated", float64(summary.Evaluated), cwTypes.StandardUnitCount),
		datum("ResourcesSkipped", float64(summary.Skipped), cwTypes.StandardUnitCount),
		datum("ResourcesFailed", float64(summary.Failed), cwTypes.StandardUnitCount),
		datum("RecurrencesCorrected", float64(summary.Corrected()), cwTypes.StandardUnitCount),
		datum("RunDuration", float64(summary.Duration.Milliseconds()), cwTypes.StandardUnitMilliseconds),
	}

	byType := make(map[types.ResourceType]int)
	for _, c := range summary.Changes {
		byType[c.Type]++
	}
	resourceTypes := make([]string, 0, len(byType))
	for rt := range byType {
		resourceTypes = append(resourceTypes, string(rt))
	}
	sort.Strings(resourceTypes)
	for _, rt := range resourceTypes {
		data = append(data, datum("RecurrencesCorrected", float64(byType[types.ResourceType(rt)]), cwTypes.StandardUnitCount,
			cwTypes.Dimension{Name: aws.String("ResourceType"), Value: aws.String(rt)}))
	}

	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish run metrics: %w", err)
	}
	return nil
}

// Noop discards metrics. It is used when publishing is disabled.
type Noop struct{}

func (Noop) PublishRun(context.Context, types.RunSummary) error { return nil }
