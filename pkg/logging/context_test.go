package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithMessageID(ctx, "msg-1")
	ctx = WithLaneID(ctx, "lane-a")

	assert.Equal(t, []interface{}{
		"trace_id", "trace-1",
		"message_id", "msg-1",
		"lane_id", "lane-a",
	}, GetLogFields(ctx))

	assert.Equal(t, "lane-a", GetLaneID(ctx))
	assert.Equal(t, "", GetServiceName(ctx))
}

func TestContextKeysDoNotCollideWithStrings(t *testing.T) {
	//nolint:staticcheck
	ctx := context.WithValue(context.Background(), "message_id", "plain")
	assert.Equal(t, "", GetMessageID(ctx))
}
