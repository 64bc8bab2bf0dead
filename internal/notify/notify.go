// Package notify publishes the summary of a run's recurrence corrections.
package notify

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"scheduleadjuster/internal/types"
)

const (
	// DefaultSource is the event source of completion events.
	DefaultSource = "scheduled-event-adjuster"
	// DetailType is the detail type of completion events.
	DetailType = "ProcessCompleted"
)

// Notifier publishes the change records of one run.
type Notifier interface {
	Notify(ctx context.Context, runID string, changes []types.ChangeRecord) error
}

// CompletionDetail is the payload of a completion event.
type CompletionDetail struct {
	RunID   string               `json:"RunId"`
	Updates []types.ChangeRecord `json:"Updates"`
}

func newDetail(runID string, changes []types.ChangeRecord) CompletionDetail {
	if changes == nil {
		changes = []types.ChangeRecord{}
	}
	return CompletionDetail{RunID: runID, Updates: changes}
}

// multi delivers to every notifier concurrently.
type multi []Notifier

// Multi returns a Notifier that delivers to all of notifiers. A failing sink
// does not prevent delivery to the others; all failures are returned joined.
func Multi(notifiers ...Notifier) Notifier {
	if len(notifiers) == 1 {
		return notifiers[0]
	}
	return multi(notifiers)
}

func (m multi) Notify(ctx context.Context, runID string, changes []types.ChangeRecord) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, n := range m {
		g.Go(func() error {
			if err := n.Notify(ctx, runID, changes); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
