package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"connector/internal/config"
	"connector/pkg/models"
)

func TestMessageAttributes(t *testing.T) {
	msg := &models.Message{
		ConnectorMessageID: "cm-1",
		LaneID:             "epo",
		Direction:          models.DirectionGatewayToBackend,
		Details:            models.MessageDetails{EbmsMessageID: "e-1"},
	}

	attrs := MessageAttributes(msg)
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("connector_message_id", "cm-1"),
		attribute.String("lane_id", "epo"),
		attribute.String("direction", string(models.DirectionGatewayToBackend)),
		attribute.String("ebms_message_id", "e-1"),
	}, attrs)
}

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "process")
	RecordError(span, nil)
	RecordError(span, errors.New("link down"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "link down", ended[0].Status().Description)
	assert.Len(t, ended[0].Events(), 1)
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(config.TracingConfig{}, "connector")
	require.NoError(t, err)
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.Shutdown(context.Background()))
}
