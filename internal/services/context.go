package services

import "context"

type contextKey string

const (
	taskIDKey    contextKey = "task_id"
	accountIDKey contextKey = "account_id"
	recordIDKey  contextKey = "record_id"
	requestIDKey contextKey = "request_id"
)

// WithTaskID annotates context with the monitor task identifier.
func WithTaskID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, taskIDKey, id)
}

// TaskIDFromContext extracts the monitor task identifier if present.
func TaskIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(taskIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithAccountID annotates context with the managed account identifier.
func WithAccountID(ctx context.Context, account string) context.Context {
	if account == "" {
		return ctx
	}
	return context.WithValue(ctx, accountIDKey, account)
}

// AccountIDFromContext returns the account identifier if present.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(accountIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRecordID annotates context with a reply record identifier.
func WithRecordID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, recordIDKey, id)
}

// RecordIDFromContext returns the reply record identifier if present.
func RecordIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(recordIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
