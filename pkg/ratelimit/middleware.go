package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"connector/internal/config"
	"connector/pkg/metrics"
)

type Limiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

type RateLimitConfig struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// FromSettings overlays the management.rate_limit section on DefaultConfig.
func FromSettings(cfg config.RateLimitConfig) RateLimitConfig {
	out := DefaultConfig()
	if cfg.RPS > 0 {
		out.RPS = cfg.RPS
	}
	if cfg.Burst > 0 {
		out.Burst = cfg.Burst
	}
	if cfg.CleanupInterval > 0 {
		out.CleanupInterval = time.Duration(cfg.CleanupInterval) * time.Second
	}
	if cfg.MaxAge > 0 {
		out.MaxAge = time.Duration(cfg.MaxAge) * time.Second
	}
	return out
}

type perClient struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	config   RateLimitConfig
}

func (p *perClient) get(clientIP string) *Limiter {
	p.mu.RLock()
	limiter, exists := p.limiters[clientIP]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		limiter, exists = p.limiters[clientIP]
		if !exists {
			limiter = &Limiter{
				limiter:  rate.NewLimiter(rate.Limit(p.config.RPS), p.config.Burst),
				lastSeen: time.Now(),
			}
			p.limiters[clientIP] = limiter
		}
		p.mu.Unlock()
	}

	limiter.mu.Lock()
	limiter.lastSeen = time.Now()
	limiter.mu.Unlock()
	return limiter
}

func (p *perClient) evict(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ip, limiter := range p.limiters {
		limiter.mu.Lock()
		lastSeen := limiter.lastSeen
		limiter.mu.Unlock()
		if now.Sub(lastSeen) > p.config.MaxAge {
			delete(p.limiters, ip)
		}
	}
}

// RateLimitMiddleware limits each client IP separately. Idle limiters are
// evicted until ctx is done.
func RateLimitMiddleware(ctx context.Context, config RateLimitConfig) gin.HandlerFunc {
	clients := &perClient{limiters: make(map[string]*Limiter), config: config}

	go func() {
		ticker := time.NewTicker(config.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				clients.evict(now)
			}
		}
	}()

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = c.RemoteIP()
		}

		limiter := clients.get(clientIP)

		if !limiter.limiter.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Limit", formatRate(config.RPS))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"error_code": "RATE_LIMIT_EXCEEDED",
			})
			c.Abort()
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()

		c.Header("X-RateLimit-Limit", formatRate(config.RPS))
		remaining := int(limiter.limiter.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}

func formatRate(rps float64) string {
	return strconv.FormatFloat(rps, 'f', -1, 64)
}
