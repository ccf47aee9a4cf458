package routing

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"connector/internal/config"
	"connector/internal/logger"
	"connector/pkg/dsl"
	"connector/pkg/errors"
	"connector/pkg/metrics"
	"connector/pkg/models"
	"connector/pkg/tracing"
)

const (
	decisionRule    = "rule"
	decisionDefault = "default"
)

type Service struct {
	repo      Repository
	lanes     map[string]config.LaneConfig
	reloadCfg config.ReloadConfig
	current   *snapshot
	mu        sync.RWMutex
	logger    logger.Logger
}

func NewService(repo Repository, cfg config.RoutingConfig, lanes []config.LaneConfig, log logger.Logger) *Service {
	byID := make(map[string]config.LaneConfig, len(lanes))
	for _, lane := range lanes {
		byID[lane.ID] = lane
	}
	return &Service{
		repo:      repo,
		lanes:     byID,
		reloadCfg: cfg.Reload,
		current:   &snapshot{lanes: map[string]*laneRules{}},
		logger:    log,
	}
}

// Select picks the link partner a message of the lane is sent to. Rules are
// tried highest priority first and the first match wins; without a match the
// lane's default backend link is used.
func (s *Service) Select(ctx context.Context, laneID string, msg *models.Message) (Decision, error) {
	ctx, span := tracing.GetTracer("routing").Start(ctx, "routing.select")
	defer span.End()
	span.SetAttributes(attribute.String("lane_id", laneID))

	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	lane, ok := s.lanes[laneID]
	if !ok {
		return Decision{}, errors.ErrConfiguration.WithMessage("unknown lane").WithDetail("lane_id", laneID)
	}

	if lane.RoutingEnabled {
		current := s.snapshot()
		if !current.loaded {
			return Decision{}, errors.ErrConfiguration.
				WithMessage("routing rules not loaded").
				WithDetail("lane_id", laneID).
				AsRetryable()
		}
		rules := current.lanes[laneID]
		if rules != nil && len(rules.invalid) > 0 {
			return Decision{}, errors.ErrConfiguration.
				WithMessage("lane has invalid routing rules").
				WithDetail("lane_id", laneID).
				WithDetail("rule_ids", rules.invalid)
		}
		if rules != nil {
			for _, r := range rules.rules {
				if dsl.Evaluate(r.pattern, &msg.Details) {
					s.logger.DebugwCtx(ctx, "Routing rule matched",
						"rule_id", r.rule.ID,
						"link", r.rule.LinkName,
						"priority", r.rule.Priority,
					)
					metrics.IncRoutingDecision(laneID, decisionRule)
					return Decision{LinkName: r.rule.LinkName, RuleID: r.rule.ID}, nil
				}
			}
		}
	}

	if lane.DefaultBackendLink == "" {
		return Decision{}, errors.ErrConfiguration.
			WithMessage("no routing rule matched and lane has no default backend link").
			WithDetail("lane_id", laneID)
	}

	metrics.IncRoutingDecision(laneID, decisionDefault)
	return Decision{LinkName: lane.DefaultBackendLink, Fallback: true}, nil
}

func (s *Service) snapshot() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// InvalidRules returns the ids of enabled rules of the lane whose match
// clause failed to parse at the last reload.
func (s *Service) InvalidRules(laneID string) []string {
	rules := s.snapshot().lanes[laneID]
	if rules == nil {
		return nil
	}
	return append([]string(nil), rules.invalid...)
}

func (s *Service) ReloadRules(ctx context.Context, skipJitter ...bool) error {
	shouldSkipJitter := len(skipJitter) > 0 && skipJitter[0]

	if err := s.applyJitter(ctx, shouldSkipJitter); err != nil {
		return err
	}

	s.logger.DebugwCtx(ctx, "Loading routing rules")
	rules, err := s.repo.GetActiveRules(ctx)
	if err != nil {
		return err
	}

	next := s.compile(ctx, rules)

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	metrics.SetRoutingActiveRules(next.total)
	s.logger.InfowCtx(ctx, "Successfully reloaded routing rules",
		"rules_count", next.total,
		"lanes_count", len(next.lanes),
	)
	return nil
}

func (s *Service) compile(ctx context.Context, rules []Rule) *snapshot {
	next := &snapshot{lanes: make(map[string]*laneRules), loaded: true}

	for _, rule := range rules {
		if !rule.Enabled || rule.Deleted {
			continue
		}
		lane := next.lanes[rule.LaneID]
		if lane == nil {
			lane = &laneRules{}
			next.lanes[rule.LaneID] = lane
		}

		pattern, err := dsl.Parse(rule.MatchClause)
		if err != nil {
			s.logger.ErrorwCtx(ctx, "Invalid routing rule",
				"rule_id", rule.ID,
				"lane_id", rule.LaneID,
				"match_clause", rule.MatchClause,
				"error", err,
			)
			lane.invalid = append(lane.invalid, rule.ID)
			continue
		}
		lane.rules = append(lane.rules, compiledRule{rule: rule, pattern: pattern})
		next.total++
	}

	for laneID, lane := range next.lanes {
		sortRules(lane.rules)
		metrics.SetRoutingInvalidRules(laneID, len(lane.invalid))
	}
	return next
}

// sortRules orders by priority descending, then creation time and id
// ascending so that equal priorities resolve deterministically.
func sortRules(rules []compiledRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i].rule, rules[j].rule
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (s *Service) applyJitter(ctx context.Context, skipJitter bool) error {
	if skipJitter || s.reloadCfg.JitterMaxMilliseconds <= 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(s.reloadCfg.JitterMaxMilliseconds)) * time.Millisecond
	s.logger.DebugwCtx(ctx, "Reload scheduled with jitter",
		"jitter_ms", jitter.Milliseconds(),
	)

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) StartReloader(ctx context.Context) error {
	interval := time.Duration(s.reloadCfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.ReloadRules(ctx); err != nil {
				s.logger.ErrorwCtx(ctx, "Failed to reload routing rules",
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ValidateMatchClause reports whether s parses as a routing pattern.
func ValidateMatchClause(s string) error {
	_, err := dsl.Parse(s)
	return err
}
