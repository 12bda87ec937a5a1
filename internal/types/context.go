package types

import "context"

// ContextKey namespaces values carried on a context.Context.
type ContextKey string

const (
	CtxRequestID ContextKey = "ctx_request_id"
	CtxTenantID  ContextKey = "ctx_tenant_id"
	CtxUserID    ContextKey = "ctx_user_id"
	CtxJobID     ContextKey = "ctx_job_id"

	DefaultTenantID = "00000000000000000000000000"
)

func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, CtxTenantID, tenantID)
}

func GetTenantID(ctx context.Context) string {
	if v, ok := ctx.Value(CtxTenantID).(string); ok {
		return v
	}
	return ""
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxUserID, userID)
}

func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(CtxUserID).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}

func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(CtxRequestID).(string); ok {
		return v
	}
	return ""
}

// WithJobID tags a context with the scheduler/worker job that produced it,
// so log lines inside a cron tick or PGMQ handler are traceable.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, CtxJobID, jobID)
}

func GetJobID(ctx context.Context) string {
	if v, ok := ctx.Value(CtxJobID).(string); ok {
		return v
	}
	return ""
}
