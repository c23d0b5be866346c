package services

import "context"

// ctxKey keys the per-request identifiers that logging.WithContext reads back.
type ctxKey int

const (
	jobIDKey ctxKey = iota
	stageKey
	workerKey
	requestIDKey
)

func withValue(ctx context.Context, key ctxKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func valueOf(ctx context.Context, key ctxKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithJobID annotates ctx with a render job identifier. Empty ids are ignored.
func WithJobID(ctx context.Context, id string) context.Context { return withValue(ctx, jobIDKey, id) }

// JobIDFromContext returns the render job identifier, if any.
func JobIDFromContext(ctx context.Context) (string, bool) { return valueOf(ctx, jobIDKey) }

// WithStage annotates ctx with a pipeline stage such as "narration" or "encoding".
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return valueOf(ctx, stageKey) }

// WithWorker annotates ctx with the render worker slot name.
func WithWorker(ctx context.Context, worker string) context.Context {
	return withValue(ctx, workerKey, worker)
}

func WorkerFromContext(ctx context.Context) (string, bool) { return valueOf(ctx, workerKey) }

// WithRequestID annotates ctx with the HTTP correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return valueOf(ctx, requestIDKey) }
