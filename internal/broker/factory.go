package broker

import (
	"fmt"

	"connector/internal/config"
	"connector/internal/logger"
	"connector/pkg/errors"
	"connector/pkg/models"
)

// NewProducer builds the producer envelopes and config events are
// published with.
func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	if err := checkBroker(cfg); err != nil {
		return nil, err
	}
	return NewKafkaProducer(cfg.Kafka, log), nil
}

// NewConsumer joins the group shared by all instances of the service, so
// each record is processed by one instance only.
func NewConsumer(cfg config.BrokerConfig, serviceName string, log logger.Logger) (Consumer, error) {
	if err := checkBroker(cfg); err != nil {
		return nil, err
	}
	consumer := NewKafkaConsumer(cfg.Kafka, log)
	if serviceName != "" {
		consumer.SetServiceName(serviceName)
	}
	return consumer, nil
}

// NewEventConsumer joins a group of its own named after instance, so every
// instance sees every event of a broadcast topic. Events are never
// dead-lettered.
func NewEventConsumer(cfg config.BrokerConfig, serviceName, instance string, log logger.Logger) (Consumer, error) {
	if instance == "" {
		return nil, errors.ErrConfiguration.WithMessage("event consumer needs an instance name")
	}
	cfg.Kafka.GroupID = fmt.Sprintf("%s-config-%s", cfg.Kafka.GroupID, instance)
	cfg.Kafka.DLQTopic = ""
	return NewConsumer(cfg, serviceName, log)
}

// InputTopics maps each link type to the topic the connector receives its
// messages on. Link types without a topic are left out.
func InputTopics(cfg config.KafkaConfig) map[models.LinkType]string {
	topics := make(map[models.LinkType]string, 3)
	for linkType, topic := range map[models.LinkType]string{
		models.LinkTypeGateway:   cfg.GatewayTopic,
		models.LinkTypeBackend:   cfg.BackendTopic,
		models.LinkTypeConnector: cfg.ConnectorTopic,
	} {
		if topic != "" {
			topics[linkType] = topic
		}
	}
	return topics
}

func checkBroker(cfg config.BrokerConfig) error {
	if cfg.Type != "kafka" {
		return errors.ErrConfiguration.
			WithMessage("unknown broker type").
			WithDetail("broker_type", cfg.Type)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.ErrConfiguration.WithMessage("no kafka brokers configured")
	}
	return nil
}
