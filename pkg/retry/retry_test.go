package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"connector/internal/config"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      1.5,
	}
}

func TestRetryWithCallback(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name         string
		failures     int
		err          error
		maxAttempts  int
		wantCalls    int
		wantCallback int
		wantErr      error
	}{
		{name: "succeeds first time", failures: 0, err: boom, maxAttempts: 3, wantCalls: 1},
		{name: "succeeds after retries", failures: 2, err: boom, maxAttempts: 3, wantCalls: 3, wantCallback: 2},
		{name: "exhausts attempts", failures: 10, err: boom, maxAttempts: 3, wantCalls: 3, wantCallback: 2, wantErr: boom},
		{name: "fatal stops immediately", failures: 10, err: NewFatalError(boom), maxAttempts: 5, wantCalls: 1, wantErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, callbacks := 0, 0
			err := RetryWithCallback(context.Background(), fastPolicy(tt.maxAttempts), func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			}, func(int, error, time.Duration) {
				callbacks++
			})

			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantCallback, callbacks)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastPolicy(5), func() error {
		calls++
		return errors.New("temporary")
	})
	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestPolicyMerge(t *testing.T) {
	p := DefaultPolicy().Merge(Policy{MaxAttempts: 7, Multiplier: 3})
	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, 3.0, p.Multiplier)
	assert.Equal(t, time.Second, p.InitialInterval)
}

func TestPolicyNextDelay(t *testing.T) {
	p := Policy{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, p.NextDelay(1))
	assert.Equal(t, 200*time.Millisecond, p.NextDelay(2))
	assert.Equal(t, 800*time.Millisecond, p.NextDelay(4))
	assert.Equal(t, time.Second, p.NextDelay(5))
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(config.RetryConfig{MaxAttempts: 4, InitialInterval: 50 * time.Millisecond})

	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, p.InitialInterval)
	assert.Equal(t, DefaultPolicy().MaxInterval, p.MaxInterval)
}
