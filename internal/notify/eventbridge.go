package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebTypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"scheduleadjuster/internal/types"
)

const (
	// maxEntriesPerCall is the PutEvents limit on entries per request.
	maxEntriesPerCall = 10
	// maxUpdatesPerEvent keeps each entry well under the 256 KB event size
	// limit.
	maxUpdatesPerEvent = 200
)

type putEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgeNotifier publishes completion events to an event bus.
type EventBridgeNotifier struct {
	client  putEventsAPI
	busName string
	source  string
}

// NewEventBridgeNotifier creates a notifier for busName. An empty source
// defaults to DefaultSource.
func NewEventBridgeNotifier(client putEventsAPI, busName, source string) *EventBridgeNotifier {
	if source == "" {
		source = DefaultSource
	}
	if busName == "" {
		busName = "default"
	}
	return &EventBridgeNotifier{client: client, busName: busName, source: source}
}

// Notify sends one ProcessCompleted event, split into several entries when
// the run changed more than maxUpdatesPerEvent recurrences.
func (n *EventBridgeNotifier) Notify(ctx context.Context, runID string, changes []types.ChangeRecord) error {
	entries, err := n.entries(runID, changes)
	if err != nil {
		return err
	}

	for start := 0; start < len(entries); start += maxEntriesPerCall {
		end := min(start+maxEntriesPerCall, len(entries))

		out, err := n.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries[start:end]})
		if err != nil {
			return fmt.Errorf("put completion event: %w", err)
		}
		if out.FailedEntryCount > 0 {
			code, msg := firstFailure(out.Entries)
			return fmt.Errorf("put completion event: %d entries failed, first: code=%s, message=%s",
				out.FailedEntryCount, code, msg)
		}
	}
	return nil
}

func (n *EventBridgeNotifier) entries(runID string, changes []types.ChangeRecord) ([]ebTypes.PutEventsRequestEntry, error) {
	chunks := [][]types.ChangeRecord{changes}
	if len(changes) > maxUpdatesPerEvent {
		chunks = chunks[:0]
		for start := 0; start < len(changes); start += maxUpdatesPerEvent {
			chunks = append(chunks, changes[start:min(start+maxUpdatesPerEvent, len(changes))])
		}
	}

	entries := make([]ebTypes.PutEventsRequestEntry, 0, len(chunks))
	for _, chunk := range chunks {
		detail, err := json.Marshal(newDetail(runID, chunk))
		if err != nil {
			return nil, fmt.Errorf("marshal completion detail: %w", err)
		}
		entries = append(entries, ebTypes.PutEventsRequestEntry{
			EventBusName: aws.String(n.busName),
			Source:       aws.String(n.source),
			DetailType:   aws.String(DetailType),
			Detail:       aws.String(string(detail)),
		})
	}
	return entries, nil
}

func firstFailure(entries []ebTypes.PutEventsResultEntry) (string, string) {
	for _, e := range entries {
		if e.ErrorCode != nil {
			return aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage)
		}
	}
	return "", ""
}
