package management

import (
	"context"
	"encoding/json"
	"errors"

	"connector/internal/constants"
	"connector/internal/logger"
	"connector/pkg/dsl"
	pkgerrors "connector/pkg/errors"
	"connector/pkg/models"
)

type service struct {
	repo                Repository
	auditRepo           AuditRepository
	configEventProducer *ConfigEventProducer
	validator           *Validator
	logger              logger.Logger
}

type ServiceOption func(*service)

func WithAudit(auditRepo AuditRepository) ServiceOption {
	return func(s *service) {
		s.auditRepo = auditRepo
	}
}

func WithConfigEvents(configEventProducer *ConfigEventProducer) ServiceOption {
	return func(s *service) {
		s.configEventProducer = configEventProducer
	}
}

// WithLanes restricts new rules to the given lanes.
func WithLanes(laneIDs []string) ServiceOption {
	return func(s *service) {
		s.validator = NewValidator(laneIDs)
	}
}

func WithLogger(log logger.Logger) ServiceOption {
	return func(s *service) {
		s.logger = log
	}
}

func NewService(repo Repository, opts ...ServiceOption) Service {
	s := &service{
		repo:      repo,
		validator: NewValidator(nil),
		logger:    logger.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *service) CreateRoutingRule(ctx context.Context, req CreateRoutingRuleRequest) (*RoutingRule, error) {
	if err := s.validator.ValidateCreate(req); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	rule := &RoutingRule{
		LaneID:      req.LaneID,
		LinkName:    req.LinkName,
		MatchClause: req.MatchClause,
		Priority:    req.Priority,
		Enabled:     getEnabledValue(req.Enabled),
		Description: req.Description,
	}

	if err := s.repo.CreateRoutingRule(ctx, rule); err != nil {
		return nil, internalError(err)
	}

	s.audit(ctx, rule.ID, models.ActionCreate, nil, ruleToMap(rule))
	s.publishConfigEvent(ctx, models.ActionCreate, rule.ID, rule.LaneID)

	copied := *rule
	return &copied, nil
}

func (s *service) ListRoutingRules(ctx context.Context, laneID string) ([]RoutingRule, error) {
	rules, err := s.repo.ListRoutingRules(ctx, laneID)
	if err != nil {
		return nil, internalError(err)
	}
	return rules, nil
}

func (s *service) GetRoutingRule(ctx context.Context, id string) (*RoutingRule, error) {
	rule, err := s.repo.GetRoutingRule(ctx, id)
	if err != nil {
		return nil, internalError(err)
	}
	return rule, nil
}

func (s *service) UpdateRoutingRule(ctx context.Context, id string, req UpdateRoutingRuleRequest) (*RoutingRule, error) {
	if err := s.validator.ValidateUpdate(req); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	rule, err := s.repo.GetRoutingRule(ctx, id)
	if err != nil {
		return nil, internalError(err)
	}

	oldValue := ruleToMap(rule)
	action := updateAction(req)
	applyUpdate(rule, req)

	if err := s.repo.UpdateRoutingRule(ctx, rule); err != nil {
		return nil, internalError(err)
	}

	s.audit(ctx, rule.ID, action, oldValue, ruleToMap(rule))
	s.publishConfigEvent(ctx, action, rule.ID, rule.LaneID)

	return rule, nil
}

func (s *service) DeleteRoutingRule(ctx context.Context, id string) error {
	rule, err := s.repo.GetRoutingRule(ctx, id)
	if err != nil {
		return internalError(err)
	}

	if err := s.repo.DeleteRoutingRule(ctx, id); err != nil {
		return internalError(err)
	}

	s.audit(ctx, id, models.ActionDelete, ruleToMap(rule), nil)
	s.publishConfigEvent(ctx, models.ActionDelete, id, rule.LaneID)
	return nil
}

func (s *service) ValidateMatchClause(ctx context.Context, clause string) ValidateMatchClauseResponse {
	node, err := dsl.Parse(clause)
	if err == nil {
		resp := ValidateMatchClauseResponse{Valid: true, Normalized: dsl.String(node)}
		for _, a := range dsl.Attributes(node) {
			resp.Attributes = append(resp.Attributes, string(a))
		}
		return resp
	}

	resp := ValidateMatchClauseResponse{Error: err.Error()}
	var parseErr *dsl.ParseError
	if errors.As(err, &parseErr) {
		resp.Column = parseErr.Column
	}
	return resp
}

// ReloadRouting asks every connector to reload the rules of laneID without
// changing them.
func (s *service) ReloadRouting(ctx context.Context, laneID string) error {
	if s.configEventProducer == nil {
		return pkgerrors.ErrServiceUnavailable.WithDetail("message", "config events not enabled")
	}
	if err := s.configEventProducer.PublishRoutingRuleEvent(ctx, models.ActionReload, "", laneID, getChangedBy(ctx)); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrServiceUnavailable)
	}
	return nil
}

func (s *service) GetAuditLogs(ctx context.Context, ruleID *string, ruleType string, limit int) ([]AuditLog, error) {
	if s.auditRepo == nil {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "audit logging not enabled")
	}
	if limit <= 0 || limit > constants.MaxLimit {
		limit = constants.DefaultLimit
	}
	logs, err := s.auditRepo.GetAuditLogs(ctx, ruleID, ruleType, limit)
	if err != nil {
		return nil, internalError(err)
	}
	return logs, nil
}

// audit failures never fail the request that caused them.
func (s *service) audit(ctx context.Context, ruleID, action string, oldValue, newValue map[string]interface{}) {
	if s.auditRepo == nil {
		return
	}
	entry := &AuditLog{
		RuleID:    &ruleID,
		RuleType:  ruleTypeRouting,
		Action:    action,
		OldValue:  oldValue,
		NewValue:  newValue,
		ChangedBy: getChangedBy(ctx),
	}
	if ip := getClientIP(ctx); ip != "" {
		entry.IPAddress = &ip
	}
	if err := s.auditRepo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to write audit log", "rule_id", ruleID, "action", action, "error", err)
	}
}

func (s *service) publishConfigEvent(ctx context.Context, action, ruleID, laneID string) {
	if s.configEventProducer == nil {
		return
	}
	if err := s.configEventProducer.PublishRoutingRuleEvent(ctx, action, ruleID, laneID, getChangedBy(ctx)); err != nil {
		// connectors still pick the change up on their periodic reload
		s.logger.WarnwCtx(ctx, "Failed to publish config event", "rule_id", ruleID, "action", action, "error", err)
	}
}

// internalError keeps coded repository errors (not found, conflict) and
// wraps everything else as internal.
func internalError(err error) error {
	var appErr *pkgerrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
}

func updateAction(req UpdateRoutingRuleRequest) string {
	if req.Enabled != nil && req.LinkName == nil && req.MatchClause == nil && req.Priority == nil && req.Description == nil {
		return models.ActionToggle
	}
	return models.ActionUpdate
}

func applyUpdate(rule *RoutingRule, req UpdateRoutingRuleRequest) {
	if req.LinkName != nil {
		rule.LinkName = *req.LinkName
	}
	if req.MatchClause != nil {
		rule.MatchClause = *req.MatchClause
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
}

func ruleToMap(rule *RoutingRule) map[string]interface{} {
	ruleData, err := json.Marshal(rule)
	if err != nil {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(ruleData, &result); err != nil {
		return nil
	}
	return result
}

func getEnabledValue(reqEnabled *bool) bool {
	if reqEnabled == nil {
		return true
	}
	return *reqEnabled
}

type contextKey string

const (
	userIDKey   contextKey = "user_id"
	clientIPKey contextKey = "client_ip"
)

func getChangedBy(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok && id != "" {
		return id
	}
	return "system"
}

func getClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
