package management

import "time"

type RoutingRule struct {
	ID          string    `json:"id" db:"id"`
	LaneID      string    `json:"lane_id" db:"lane_id"`
	LinkName    string    `json:"link_name" db:"link_name"`
	MatchClause string    `json:"match_clause" db:"match_clause"`
	Priority    int       `json:"priority" db:"priority"`
	Enabled     bool      `json:"enabled" db:"enabled"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type CreateRoutingRuleRequest struct {
	LaneID      string `json:"lane_id" binding:"required"`
	LinkName    string `json:"link_name" binding:"required"`
	MatchClause string `json:"match_clause" binding:"required"`
	Priority    int    `json:"priority"`
	Enabled     *bool  `json:"enabled"`
	Description string `json:"description"`
}

type UpdateRoutingRuleRequest struct {
	LinkName    *string `json:"link_name"`
	MatchClause *string `json:"match_clause"`
	Priority    *int    `json:"priority"`
	Enabled     *bool   `json:"enabled"`
	Description *string `json:"description"`
}

type ValidateMatchClauseRequest struct {
	MatchClause string `json:"match_clause" binding:"required"`
}

type ValidateMatchClauseResponse struct {
	Valid bool `json:"valid"`
	// Normalized is the clause as the connector reads it back.
	Normalized string   `json:"normalized,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
	Column     int      `json:"column,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type AuditLog struct {
	ID           string                 `json:"id"`
	RuleID       *string                `json:"rule_id,omitempty"`
	RuleType     string                 `json:"rule_type"`
	Action       string                 `json:"action"`
	OldValue     map[string]interface{} `json:"old_value,omitempty"`
	NewValue     map[string]interface{} `json:"new_value,omitempty"`
	ChangedBy    string                 `json:"changed_by"`
	ChangeReason *string                `json:"change_reason,omitempty"`
	IPAddress    *string                `json:"ip_address,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

const ruleTypeRouting = "routing"
