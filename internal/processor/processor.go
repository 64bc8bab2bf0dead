// Package processor defines the contract shared by every resource type the
// adjuster manages and runs the processors of one invocation in order.
package processor

import (
	"context"

	"scheduleadjuster/internal/types"
)

// Change is one staged recurrence correction within a candidate. Key names
// the action or rule the correction applies to.
type Change struct {
	Key    string
	Record types.ChangeRecord
	// Payload carries whatever the processor needs to write the change back.
	Payload any
}

// Evaluation is the outcome of evaluating one candidate resource.
type Evaluation struct {
	// Changes are the corrections to apply, in evaluation order.
	Changes []Change
	// Skipped counts the actions of the candidate left out by a
	// configuration gate.
	Skipped int
	// SkipReason is set when the whole candidate is left out.
	SkipReason string
}

// HasChanges reports whether anything needs to be written back.
func (e Evaluation) HasChanges() bool {
	return len(e.Changes) > 0
}

// ResourceProcessor is implemented once per resource type. C is the
// candidate type the processor lists and evaluates.
type ResourceProcessor[C any] interface {
	ResourceType() types.ResourceType
	// ListCandidates returns every resource that may carry adjuster tags.
	ListCandidates(ctx context.Context) ([]C, error)
	CandidateName(c C) string
	// Evaluate reads the candidate's configuration and computes corrections
	// without writing anything.
	Evaluate(ctx context.Context, c C) (Evaluation, error)
	// ApplyChanges writes the staged corrections and returns the records of
	// the ones that were applied. On partial failure it returns the applied
	// records together with the error.
	ApplyChanges(ctx context.Context, c C, ev Evaluation) ([]types.ChangeRecord, error)
}

// Processor is a ResourceProcessor with its candidate type erased so that
// processors of different resource types can be composed into one list.
type Processor interface {
	ResourceType() types.ResourceType
	Candidates(ctx context.Context) ([]Candidate, error)
}

// Candidate is a single listed resource bound to its processor.
type Candidate interface {
	Name() string
	Evaluate(ctx context.Context) (Evaluation, error)
	Apply(ctx context.Context, ev Evaluation) ([]types.ChangeRecord, error)
}

// Bind erases the candidate type of p.
func Bind[C any](p ResourceProcessor[C]) Processor {
	return bound[C]{p: p}
}

type bound[C any] struct {
	p ResourceProcessor[C]
}

func (b bound[C]) ResourceType() types.ResourceType {
	return b.p.ResourceType()
}

func (b bound[C]) Candidates(ctx context.Context) ([]Candidate, error) {
	items, err := b.p.ListCandidates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, len(items))
	for i, c := range items {
		out[i] = boundCandidate[C]{p: b.p, c: c}
	}
	return out, nil
}

type boundCandidate[C any] struct {
	p ResourceProcessor[C]
	c C
}

func (b boundCandidate[C]) Name() string {
	return b.p.CandidateName(b.c)
}

func (b boundCandidate[C]) Evaluate(ctx context.Context) (Evaluation, error) {
	return b.p.Evaluate(ctx, b.c)
}

func (b boundCandidate[C]) Apply(ctx context.Context, ev Evaluation) ([]types.ChangeRecord, error) {
	return b.p.ApplyChanges(ctx, b.c, ev)
}
