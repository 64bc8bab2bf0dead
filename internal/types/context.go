package types

import "context"

type contextKey string

const runIDKey contextKey = "run_id"

// WithRunID stores the identifier of the current run in the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// GetRunID retrieves the run identifier from the context, or "" when the
// context does not belong to a run.
func GetRunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}
