package transport

import (
	"context"
	"sync"

	"connector/internal/config"
	"connector/pkg/circuitbreaker"
	"connector/pkg/models"
)

// CircuitBreakerSubmitter keeps one breaker per link partner so a failing
// partner does not stall submissions to the others.
type CircuitBreakerSubmitter struct {
	next     Submitter
	cfg      config.CircuitBreakerConfig
	mu       sync.Mutex
	breakers map[string]*circuitbreaker.Wrapper
}

// NewCircuitBreakerSubmitter returns next unchanged when breakers are
// disabled.
func NewCircuitBreakerSubmitter(next Submitter, cfg config.CircuitBreakerConfig) Submitter {
	if !cfg.Enabled {
		return next
	}
	return &CircuitBreakerSubmitter{
		next:     next,
		cfg:      cfg,
		breakers: make(map[string]*circuitbreaker.Wrapper),
	}
}

func (s *CircuitBreakerSubmitter) breaker(link string) *circuitbreaker.Wrapper {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, ok := s.breakers[link]
	if !ok {
		cb = circuitbreaker.FromSettings("link-"+link, s.cfg)
		s.breakers[link] = cb
	}
	return cb
}

func (s *CircuitBreakerSubmitter) SubmitToLink(ctx context.Context, msg *models.Message, link string) error {
	return s.breaker(link).Do(ctx, func() error {
		return s.next.SubmitToLink(ctx, msg, link)
	})
}

func (s *CircuitBreakerSubmitter) SubmitToConnector(ctx context.Context, msg *models.Message, link string, linkType models.LinkType) error {
	return s.next.SubmitToConnector(ctx, msg, link, linkType)
}
