package deduplication

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connector/internal/config"
	"connector/internal/logger"
	"connector/pkg/models"
)

type memoryRepository struct {
	mu      sync.Mutex
	applied map[string]time.Duration
	err     error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{applied: map[string]time.Duration{}}
}

func (r *memoryRepository) IsApplied(ctx context.Context, key EvidenceKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	_, ok := r.applied[key.CacheKey()]
	return ok, nil
}

func (r *memoryRepository) MarkApplied(ctx context.Context, key EvidenceKey, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.applied[key.CacheKey()]; !ok {
		r.applied[key.CacheKey()] = ttl
	}
	return nil
}

func (r *memoryRepository) CountApplied(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.applied), r.err
}

func key(evidenceType models.EvidenceType, direction models.Direction) EvidenceKey {
	return EvidenceKey{LaneID: "epo", RefMessageID: "ebms-1", EvidenceType: evidenceType, Direction: direction}
}

func TestGuard_SeenAfterRecord(t *testing.T) {
	repo := newMemoryRepository()
	g := NewGuard(repo, config.DeduplicationConfig{TTLSeconds: 60}, logger.NopLogger())
	defer g.Stop()
	ctx := context.Background()
	delivery := key(models.EvidenceDelivery, models.DirectionGatewayToBackend)

	seen, err := g.Seen(ctx, delivery)
	require.NoError(t, err)
	assert.False(t, seen)

	// Checking alone leaves no marker behind.
	seen, err = g.Seen(ctx, delivery)
	require.NoError(t, err)
	assert.False(t, seen)

	g.Record(ctx, delivery)
	seen, err = g.Seen(ctx, delivery)
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, time.Minute, repo.applied[delivery.CacheKey()])

	seen, err = g.Seen(ctx, key(models.EvidenceDelivery, models.DirectionBackendToGateway))
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestGuard_RedisErrorFallback(t *testing.T) {
	tests := []struct {
		name    string
		onError string
		wantErr bool
	}{
		{name: "allow", onError: "allow"},
		{name: "deny", onError: "deny", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryRepository()
			repo.err = errors.New("connection refused")
			g := NewGuard(repo, config.DeduplicationConfig{OnRedisError: tt.onError}, logger.NopLogger())
			defer g.Stop()

			seen, err := g.Seen(context.Background(), key(models.EvidenceDelivery, models.DirectionGatewayToBackend))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.False(t, seen)

			// A failed write is logged, never returned.
			g.Record(context.Background(), key(models.EvidenceDelivery, models.DirectionGatewayToBackend))
		})
	}
}

func TestNilGuardSeesNothing(t *testing.T) {
	var g *Guard
	seen, err := g.Seen(context.Background(), key(models.EvidenceDelivery, models.DirectionGatewayToBackend))
	require.NoError(t, err)
	assert.False(t, seen)
	g.Record(context.Background(), key(models.EvidenceDelivery, models.DirectionGatewayToBackend))
	g.Stop()
}

func TestEvidenceKey_CacheKey(t *testing.T) {
	a := key(models.EvidenceDelivery, models.DirectionGatewayToBackend).CacheKey()
	b := key(models.EvidenceRetrieval, models.DirectionGatewayToBackend).CacheKey()
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, key(models.EvidenceDelivery, models.DirectionGatewayToBackend).CacheKey())
	assert.Contains(t, a, "evidence:")
}
