package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey     contextKey = "trace_id"
	MessageIDKey   contextKey = "message_id"
	LaneIDKey      contextKey = "lane_id"
	ServiceNameKey contextKey = "service_name"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithMessageID stores the connector message id being processed.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func WithLaneID(ctx context.Context, laneID string) context.Context {
	return context.WithValue(ctx, LaneIDKey, laneID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func value(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func GetTraceID(ctx context.Context) string {
	return value(ctx, TraceIDKey)
}

func GetMessageID(ctx context.Context) string {
	return value(ctx, MessageIDKey)
}

func GetLaneID(ctx context.Context) string {
	return value(ctx, LaneIDKey)
}

func GetServiceName(ctx context.Context) string {
	return value(ctx, ServiceNameKey)
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	for _, key := range []contextKey{TraceIDKey, MessageIDKey, LaneIDKey, ServiceNameKey} {
		if v := value(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}

	return fields
}
