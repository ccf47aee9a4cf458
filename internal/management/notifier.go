package management

import (
	"context"
	"time"

	"connector/internal/broker"
	"connector/pkg/models"
)

// ConfigEventProducer tells running connectors that the routing rules of a
// lane changed. Events are keyed by lane so they stay ordered per lane.
type ConfigEventProducer struct {
	producer broker.Producer
	topic    string
}

func NewConfigEventProducer(producer broker.Producer, topic string) *ConfigEventProducer {
	return &ConfigEventProducer{
		producer: producer,
		topic:    topic,
	}
}

func (p *ConfigEventProducer) PublishRoutingRuleEvent(ctx context.Context, action, ruleID, laneID, changedBy string) error {
	if p.producer == nil || p.topic == "" {
		return nil
	}

	event := models.ConfigUpdateEvent{
		EventType:   models.EventTypeRoutingRuleUpdated,
		ServiceType: models.ServiceTypeRouting,
		RuleID:      ruleID,
		LaneID:      laneID,
		Action:      action,
		Timestamp:   time.Now().UTC(),
		ChangedBy:   changedBy,
	}
	return p.producer.PublishEvent(ctx, p.topic, laneID, event)
}
