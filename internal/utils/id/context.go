package id

import "context"

type contextKey string

const (
	sessionKey contextKey = "tabula_session_id"
	runKey     contextKey = "tabula_run_id"
)

// WithSessionID stores the provided session identifier on the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// SessionIDFromContext extracts the session identifier from context.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if sessionID, ok := ctx.Value(sessionKey).(string); ok {
		return sessionID
	}
	return ""
}

// WithRunID stores the current graph-run identifier on the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runKey, runID)
}

// RunIDFromContext extracts the graph-run identifier from context.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if runID, ok := ctx.Value(runKey).(string); ok {
		return runID
	}
	return ""
}

// EnsureRunID guarantees a run identifier is present on the context.
// It returns the updated context and the resulting identifier.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if existing := RunIDFromContext(ctx); existing != "" {
		return ctx, existing
	}
	next := NewRunID()
	return WithRunID(ctx, next), next
}
