package tracing

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestTraceContextRoundTripThroughHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceContext(ctx, []kafka.Header{{Key: "content-type", Value: []byte("application/json")}})
	require.Len(t, headers, 2)

	extracted := ExtractTraceContext(context.Background(), headers)
	assert.Equal(t, TraceID(ctx), TraceID(extracted))
	assert.NotEmpty(t, TraceID(ctx))
}

func TestTraceIDWithoutSpan(t *testing.T) {
	assert.Equal(t, "", TraceID(context.Background()))
}
