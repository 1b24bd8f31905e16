package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	RequestIDKey    contextKey = "request_id"
	TraceIDKey      contextKey = "trace_id"
	ConnectionIDKey contextKey = "connection_id"
	UsernameKey     contextKey = "username"
)

// WithValue stores a log field in ctx for ContextLogger to pick up.
func WithValue(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// ContextLogger enriches log lines with request scoped fields.
type ContextLogger struct {
	logger *zap.Logger
}

func NewContextLogger(logger *zap.Logger) *ContextLogger {
	return &ContextLogger{logger: logger}
}

// WithContext returns a sugared logger carrying the fields found in ctx.
func (cl *ContextLogger) WithContext(ctx context.Context) *zap.SugaredLogger {
	var fields []zapcore.Field
	for _, key := range []contextKey{TraceIDKey, RequestIDKey, ConnectionIDKey, UsernameKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields = append(fields, zap.String(string(key), v))
		}
	}
	if len(fields) == 0 {
		return cl.logger.Sugar()
	}
	return cl.logger.With(fields...).Sugar()
}

// LogRequest logs a finished HTTP request.
func (cl *ContextLogger) LogRequest(ctx context.Context, method, path string, statusCode int, durationMs int64) {
	cl.WithContext(ctx).Infow("http_request",
		"method", method,
		"path", path,
		"status_code", statusCode,
		"duration_ms", durationMs,
	)
}
