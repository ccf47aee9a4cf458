// Package deduplication remembers which evidences were already applied so
// redelivered evidence can be dropped before touching the database.
package deduplication

import (
	"context"
	"fmt"
	"time"

	"connector/internal/config"
	"connector/internal/constants"
	"connector/internal/logger"
	"connector/pkg/metrics"
	"connector/pkg/tracing"
)

const cacheMetricsInterval = 30 * time.Second

// Guard checks evidence keys against the markers in Redis. Markers are only
// written once the evidence is committed, so a crash mid-way never hides a
// redelivery. A nil *Guard has seen nothing and records nothing.
type Guard struct {
	repo   Repository
	cfg    config.DeduplicationConfig
	ttl    time.Duration
	logger logger.Logger
	cancel context.CancelFunc
}

func NewGuard(repo Repository, cfg config.DeduplicationConfig, log logger.Logger) *Guard {
	ctx, cancel := context.WithCancel(context.Background())

	g := &Guard{
		repo:   repo,
		cfg:    cfg,
		ttl:    time.Duration(cfg.TTLSeconds) * time.Second,
		logger: log,
		cancel: cancel,
	}

	go g.updateCacheSizeMetrics(ctx)
	return g
}

// Seen reports whether the evidence for key was already applied. On Redis
// failure the on_redis_error fallback decides.
func (g *Guard) Seen(ctx context.Context, key EvidenceKey) (bool, error) {
	if g == nil {
		return false, nil
	}

	ctx, span := tracing.GetTracer("deduplication").Start(ctx, "deduplication.seen")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	applied, err := g.repo.IsApplied(ctx, key)
	if err != nil {
		return g.handleRedisError(ctx, err, key)
	}

	status := "unique"
	if applied {
		status = "duplicate"
	}
	metrics.DedupChecksTotal.WithLabelValues(status).Inc()
	return applied, nil
}

// Record marks the evidence for key as applied. Call it after the evidence
// was committed.
func (g *Guard) Record(ctx context.Context, key EvidenceKey) {
	if g == nil {
		return
	}
	if err := g.repo.MarkApplied(ctx, key, g.ttl); err != nil {
		g.logger.WarnwCtx(ctx, "Failed to record applied evidence",
			"ref_message_id", key.RefMessageID,
			"evidence_type", key.EvidenceType,
			"error", err,
		)
	}
}

func (g *Guard) handleRedisError(ctx context.Context, err error, key EvidenceKey) (bool, error) {
	metrics.DedupChecksTotal.WithLabelValues("error").Inc()

	if g.cfg.OnRedisError == constants.FallbackDeny {
		metrics.FallbackUsageTotal.WithLabelValues("deduplication", "deny_on_error").Inc()
		return false, fmt.Errorf("redis error during evidence check for %s: %w", key.RefMessageID, err)
	}

	// the database unique constraint still rejects real duplicates
	metrics.FallbackUsageTotal.WithLabelValues("deduplication", "allow_on_error").Inc()
	g.logger.WarnwCtx(ctx, "Redis error during evidence check, allowing (fallback: allow)",
		"ref_message_id", key.RefMessageID,
		"evidence_type", key.EvidenceType,
		"error", err,
	)
	return false, nil
}

func (g *Guard) updateCacheSizeMetrics(ctx context.Context) {
	ticker := time.NewTicker(cacheMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			size, err := g.repo.CountApplied(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				g.logger.Debugw("Failed to count applied evidence markers", "error", err)
				continue
			}
			metrics.SetDedupCacheSize(size)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Guard) Stop() {
	if g == nil {
		return
	}
	g.cancel()
}
