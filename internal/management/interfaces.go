package management

import (
	"context"
)

type Service interface {
	CreateRoutingRule(ctx context.Context, req CreateRoutingRuleRequest) (*RoutingRule, error)
	ListRoutingRules(ctx context.Context, laneID string) ([]RoutingRule, error)
	GetRoutingRule(ctx context.Context, id string) (*RoutingRule, error)
	UpdateRoutingRule(ctx context.Context, id string, req UpdateRoutingRuleRequest) (*RoutingRule, error)
	DeleteRoutingRule(ctx context.Context, id string) error
	ValidateMatchClause(ctx context.Context, clause string) ValidateMatchClauseResponse
	ReloadRouting(ctx context.Context, laneID string) error
	GetAuditLogs(ctx context.Context, ruleID *string, ruleType string, limit int) ([]AuditLog, error)
}
