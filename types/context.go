package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRunID contextKey = "run_id"
	keyStage contextKey = "stage"
)

// WithRunID adds run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}

// WithStage adds the executing stage name to context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, keyStage, stage)
}

// Stage extracts the executing stage name from context.
func Stage(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyStage).(string)
	return v, ok && v != ""
}
