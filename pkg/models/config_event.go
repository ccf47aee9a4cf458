package models

import "time"

type ConfigUpdateEvent struct {
	EventType   string                 `json:"event_type"`   // "routing_rule_updated"
	ServiceType string                 `json:"service_type"` // "routing"
	RuleID      string                 `json:"rule_id,omitempty"`
	LaneID      string                 `json:"lane_id,omitempty"`
	Action      string                 `json:"action"` // "create", "update", "delete", "toggle"
	Timestamp   time.Time              `json:"timestamp"`
	ChangedBy   string                 `json:"changed_by,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

const (
	EventTypeRoutingRuleUpdated = "routing_rule_updated"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionToggle = "toggle"
	ActionReload = "reload"
)

const (
	ServiceTypeRouting = "routing"
)
