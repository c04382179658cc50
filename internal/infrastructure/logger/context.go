package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey         contextKey = "logger"
	requestIDKey      contextKey = "request_id"
	organizationIDKey contextKey = "organization_id"
	userIDKey         contextKey = "user_id"
)

// WithContext stores a logger in ctx
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the stored logger, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return zap.NewNop()
}

// WithRequestID records the request id in ctx and returns a logger carrying it
func WithRequestID(ctx context.Context, l *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	l = l.With(zap.String("request_id", requestID))
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return WithContext(ctx, l), l
}

// WithOrganizationID records the tenant organization in ctx
func WithOrganizationID(ctx context.Context, l *zap.Logger, organizationID string) (context.Context, *zap.Logger) {
	l = l.With(zap.String("organization_id", organizationID))
	ctx = context.WithValue(ctx, organizationIDKey, organizationID)
	return WithContext(ctx, l), l
}

// WithUserID records the authenticated user in ctx
func WithUserID(ctx context.Context, l *zap.Logger, userID string) (context.Context, *zap.Logger) {
	l = l.With(zap.String("user_id", userID))
	ctx = context.WithValue(ctx, userIDKey, userID)
	return WithContext(ctx, l), l
}

// GetRequestID returns the request id stored in ctx
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// GetOrganizationID returns the organization id stored in ctx
func GetOrganizationID(ctx context.Context) string {
	return stringValue(ctx, organizationIDKey)
}

// GetUserID returns the user id stored in ctx
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, userIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// L returns the context logger enriched with the active span and the
// request scoped ids that are not already attached to it
func L(ctx context.Context) *zap.Logger {
	l := FromContext(ctx)
	if ctx == nil {
		return l
	}

	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	// Loggers stored through the With* helpers already carry these ids.
	if _, stored := ctx.Value(loggerKey).(*zap.Logger); !stored {
		if id := GetRequestID(ctx); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		if id := GetOrganizationID(ctx); id != "" {
			fields = append(fields, zap.String("organization_id", id))
		}
		if id := GetUserID(ctx); id != "" {
			fields = append(fields, zap.String("user_id", id))
		}
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}
