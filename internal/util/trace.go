// Package util 放置跨包共用的链路追踪工具
package util

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// TraceHeader 跨服务传递 trace ID 的 HTTP 头
const TraceHeader = "X-Trace-ID"

type traceKey struct{}

// NewTraceID 为一次订单派发生成 trace ID，同一订单的所有执行器命令共用
func NewTraceID() string {
	return uuid.NewString()
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

func TraceIDFromContext(ctx context.Context) (string, bool) {
	traceID, ok := ctx.Value(traceKey{}).(string)
	return traceID, ok && traceID != ""
}

// EnsureTraceID ctx 中没有 trace ID 时生成一个
func EnsureTraceID(ctx context.Context) (context.Context, string) {
	if traceID, ok := TraceIDFromContext(ctx); ok {
		return ctx, traceID
	}
	traceID := NewTraceID()
	return ContextWithTraceID(ctx, traceID), traceID
}

// Logger 给 logger 附加 ctx 中的 trace_id
func Logger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if traceID, ok := TraceIDFromContext(ctx); ok {
		return logger.With("trace_id", traceID)
	}
	return logger
}
