package deduplication

import (
	"context"
	"time"

	"connector/internal/config"
	"connector/pkg/circuitbreaker"
)

// CircuitBreakerRepository stops calling Redis while it keeps failing, so a
// Redis outage costs one fast error per evidence instead of a timeout.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.FromSettings("redis-evidence-guard", cfg),
	}
}

func (r *CircuitBreakerRepository) IsApplied(ctx context.Context, key EvidenceKey) (bool, error) {
	var applied bool
	err := r.cb.Do(ctx, func() error {
		var err error
		applied, err = r.repo.IsApplied(ctx, key)
		return err
	})
	return applied, err
}

func (r *CircuitBreakerRepository) MarkApplied(ctx context.Context, key EvidenceKey, ttl time.Duration) error {
	return r.cb.Do(ctx, func() error {
		return r.repo.MarkApplied(ctx, key, ttl)
	})
}

func (r *CircuitBreakerRepository) CountApplied(ctx context.Context) (int, error) {
	var count int
	err := r.cb.Do(ctx, func() error {
		var err error
		count, err = r.repo.CountApplied(ctx)
		return err
	})
	return count, err
}

func (r *CircuitBreakerRepository) State() string {
	if r.cb == nil {
		return "disabled"
	}
	return r.cb.State().String()
}

func (r *CircuitBreakerRepository) IsOpen() bool {
	if r.cb == nil {
		return false
	}
	return r.cb.IsOpen()
}
