package routing

import (
	"time"

	"connector/pkg/dsl"
)

// Rule sends messages of a lane whose details match MatchClause to LinkName.
type Rule struct {
	ID          string
	LaneID      string
	LinkName    string
	MatchClause string // routing DSL, e.g. &(equals(Action,'Form_A'),equals(ServiceName,'EPO'))
	Priority    int
	Enabled     bool
	Deleted     bool
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Decision is the outcome of routing one message.
type Decision struct {
	LinkName string
	RuleID   string
	Fallback bool
}

type compiledRule struct {
	rule    Rule
	pattern dsl.Node
}

type laneRules struct {
	rules   []compiledRule
	invalid []string
}

type snapshot struct {
	lanes  map[string]*laneRules
	total  int
	loaded bool
}
