package services

import "context"

type contextKey string

const (
	itemIDKey   contextKey = "item_id"
	sourceIDKey contextKey = "source_id"
	runIDKey    contextKey = "run_id"
	stageKey    contextKey = "stage"
)

// WithItemID annotates context with the item identifier.
func WithItemID(ctx context.Context, id string) context.Context {
	return withString(ctx, itemIDKey, id)
}

// ItemIDFromContext extracts the item identifier if present.
func ItemIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, itemIDKey)
}

// WithSourceID annotates context with the remote source identifier.
func WithSourceID(ctx context.Context, id string) context.Context {
	return withString(ctx, sourceIDKey, id)
}

// SourceIDFromContext returns the source identifier if present.
func SourceIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, sourceIDKey)
}

// WithRunID annotates context with the sync run correlation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	return withString(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, runIDKey)
}

// WithStage annotates context with the sync stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
