package deduplication

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"connector/internal/constants"
)

// Repository keeps one marker per applied evidence.
type Repository interface {
	IsApplied(ctx context.Context, key EvidenceKey) (bool, error)
	MarkApplied(ctx context.Context, key EvidenceKey, ttl time.Duration) error
	CountApplied(ctx context.Context) (int, error)
}

type RedisRepository struct {
	client *redis.Client
}

func NewRepository(client *redis.Client) Repository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) IsApplied(ctx context.Context, key EvidenceKey) (bool, error) {
	n, err := r.client.Exists(ctx, key.CacheKey()).Result()
	if err != nil {
		return false, fmt.Errorf("checking evidence marker for %s: %w", key.RefMessageID, err)
	}
	return n > 0, nil
}

// MarkApplied stores the marker with the time the evidence was applied. An
// existing marker keeps its original time and expiry.
func (r *RedisRepository) MarkApplied(ctx context.Context, key EvidenceKey, ttl time.Duration) error {
	appliedAt := strconv.FormatInt(time.Now().Unix(), 10)
	if err := r.client.SetNX(ctx, key.CacheKey(), appliedAt, ttl).Err(); err != nil {
		return fmt.Errorf("storing evidence marker for %s: %w", key.RefMessageID, err)
	}
	return nil
}

func (r *RedisRepository) CountApplied(ctx context.Context) (int, error) {
	iter := r.client.Scan(ctx, 0, constants.CacheKeyPrefixEvidence+"*", 500).Iterator()
	count := 0
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("counting evidence markers: %w", err)
	}
	return count, nil
}
