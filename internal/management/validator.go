package management

import (
	"fmt"

	"connector/internal/config"
	"connector/internal/routing"
)

// Validator checks rule requests against the DSL grammar and the lanes the
// connector is configured with. An empty lane set accepts any lane.
type Validator struct {
	lanes map[string]bool
}

func NewValidator(laneIDs []string) *Validator {
	lanes := make(map[string]bool, len(laneIDs))
	for _, id := range laneIDs {
		lanes[id] = true
	}
	return &Validator{lanes: lanes}
}

func (v *Validator) ValidateCreate(req CreateRoutingRuleRequest) error {
	if req.LaneID == "" {
		return fmt.Errorf("lane_id is required")
	}
	if len(v.lanes) > 0 && !v.lanes[req.LaneID] {
		return fmt.Errorf("unknown lane: %s", req.LaneID)
	}
	if !config.ValidLinkName(req.LinkName) {
		return fmt.Errorf("invalid link_name: %q", req.LinkName)
	}
	if req.MatchClause == "" {
		return fmt.Errorf("match_clause is required")
	}
	if err := routing.ValidateMatchClause(req.MatchClause); err != nil {
		return fmt.Errorf("invalid match_clause: %w", err)
	}
	return nil
}

func (v *Validator) ValidateUpdate(req UpdateRoutingRuleRequest) error {
	if req.LinkName != nil {
		if !config.ValidLinkName(*req.LinkName) {
			return fmt.Errorf("invalid link_name: %q", *req.LinkName)
		}
	}
	if req.MatchClause != nil {
		if err := routing.ValidateMatchClause(*req.MatchClause); err != nil {
			return fmt.Errorf("invalid match_clause: %w", err)
		}
	}
	return nil
}
