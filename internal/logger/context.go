package logger

import "context"

type contextKey string

const TraceIDKey contextKey = "trace_id"
const ApprovalIDKey contextKey = "approval_id"

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

func WithApprovalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ApprovalIDKey, id)
}

func GetApprovalID(ctx context.Context) string {
	if id, ok := ctx.Value(ApprovalIDKey).(string); ok {
		return id
	}
	return ""
}
