package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"connector/internal/config"
)

// FromConfig layers a retry configuration section over DefaultPolicy.
func FromConfig(cfg config.RetryConfig) Policy {
	return DefaultPolicy().Merge(Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      cfg.Multiplier,
		MaxElapsedTime:  cfg.MaxElapsedTime,
	})
}

// BackOff builds the attempt schedule for p, bounded by MaxAttempts and ctx.
func (p Policy) BackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = p.MaxElapsedTime

	var b backoff.BackOff = backoff.WithContext(exp, ctx)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return b
}

// NextDelay is the nominal wait after the given 1-based attempt, ignoring jitter.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	duration := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxInterval > 0 && duration > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	return time.Duration(duration)
}
