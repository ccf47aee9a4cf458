package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) IsRetryable() bool {
	return true
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func NewRetryableError(err error) RetryableError {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

type FatalError interface {
	error
	IsFatal() bool
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string {
	return e.err.Error()
}

func (e *fatalError) IsFatal() bool {
	return true
}

func (e *fatalError) Unwrap() error {
	return e.err
}

func NewFatalError(err error) FatalError {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  5 * time.Minute,
	}
}

// Merge returns p with every positive field of override applied.
func (p Policy) Merge(override Policy) Policy {
	if override.MaxAttempts > 0 {
		p.MaxAttempts = override.MaxAttempts
	}
	if override.InitialInterval > 0 {
		p.InitialInterval = override.InitialInterval
	}
	if override.MaxInterval > 0 {
		p.MaxInterval = override.MaxInterval
	}
	if override.Multiplier > 0 {
		p.Multiplier = override.Multiplier
	}
	if override.MaxElapsedTime > 0 {
		p.MaxElapsedTime = override.MaxElapsedTime
	}
	return p
}

func Retry(ctx context.Context, policy Policy, fn func() error) error {
	return RetryWithCallback(ctx, policy, fn, nil)
}

// RetryWithCallback runs fn until it succeeds, returns a fatal error, or the
// policy is exhausted. Errors that implement IsFatal() == true stop
// immediately; everything else is retried.
func RetryWithCallback(ctx context.Context, policy Policy, fn func() error, onRetry func(attempt int, err error, nextDelay time.Duration)) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}

	b := policy.BackOff(ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}

		if isFatal(err) {
			return backoff.Permanent(err)
		}

		if onRetry != nil && attempt < policy.MaxAttempts {
			nextDelay := policy.NextDelay(attempt)
			onRetry(attempt, err, nextDelay)
		}

		return err
	}

	err := backoff.Retry(operation, b)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

func isFatal(err error) bool {
	var fatalErr FatalError
	if errors.As(err, &fatalErr) && fatalErr.IsFatal() {
		return true
	}
	var retryableErr RetryableError
	if errors.As(err, &retryableErr) {
		return !retryableErr.IsRetryable()
	}
	return false
}
