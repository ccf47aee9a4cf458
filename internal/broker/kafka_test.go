package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"connector/internal/config"
	"connector/internal/logger"
	pkgerrors "connector/pkg/errors"
)

func testConsumer(attempts int) *KafkaConsumer {
	return NewKafkaConsumer(config.KafkaConfig{
		Retry: config.RetryConfig{
			MaxAttempts:     attempts,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			Multiplier:      1.5,
		},
	}, logger.NopLogger())
}

func TestProcessWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{name: "transient error is retried", err: errors.New("broker hiccup"), wantCalls: 3},
		{name: "not relevant is not retried", err: pkgerrors.ErrNotRelevant, wantCalls: 1},
		{name: "configuration error is not retried", err: pkgerrors.ErrConfiguration.WithMessage("no pmodes"), wantCalls: 1},
		{name: "fatal evidence error is not retried", err: pkgerrors.ErrEvidenceGeneration.AsFatal(), wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConsumer(3)
			calls := 0
			err := c.processWithRetry(context.Background(), "connector.gateway", func(context.Context) error {
				calls++
				return tt.err
			})
			assert.Error(t, err)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestProcessWithRetry_RecoversPanic(t *testing.T) {
	c := testConsumer(1)
	err := c.processWithRetry(context.Background(), "connector.backend", func(context.Context) error {
		panic("boom")
	})
	assert.Error(t, err)
}

func TestDLQReason(t *testing.T) {
	assert.Equal(t, "fatal_error", dlqReason(pkgerrors.ErrSecurityValidation))
	assert.Equal(t, "max_retries_exceeded", dlqReason(errors.New("timeout")))
}

func TestConsumerWorkersDefault(t *testing.T) {
	c := testConsumer(1)
	assert.Equal(t, 1, c.workers())

	c.cfg.Workers = 4
	assert.Equal(t, 4, c.workers())
}
