package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"scheduleadjuster/internal/types"
)

type sendMessageAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSNotifier sends the completion detail to a queue, for consumers that
// cannot subscribe to the event bus.
type SQSNotifier struct {
	client   sendMessageAPI
	queueURL string
}

func NewSQSNotifier(client sendMessageAPI, queueURL string) *SQSNotifier {
	return &SQSNotifier{client: client, queueURL: queueURL}
}

// Notify sends a single message whose body is the completion detail.
func (n *SQSNotifier) Notify(ctx context.Context, runID string, changes []types.ChangeRecord) error {
	body, err := json.Marshal(newDetail(runID, changes))
	if err != nil {
		return fmt.Errorf("marshal completion detail: %w", err)
	}

	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"DetailType": {DataType: aws.String("String"), StringValue: aws.String(DetailType)},
			"RunId":      {DataType: aws.String("String"), StringValue: aws.String(runID)},
		},
	})
	if err != nil {
		return fmt.Errorf("send completion message: %w", err)
	}
	return nil
}
