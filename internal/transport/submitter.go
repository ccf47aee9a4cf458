// Package transport hands messages to link partners and back to the
// connector's own queues.
package transport

import (
	"context"
	"time"

	"github.com/google/uuid"

	"connector/internal/broker"
	"connector/internal/config"
	"connector/internal/constants"
	"connector/internal/logger"
	"connector/pkg/errors"
	"connector/pkg/metrics"
	"connector/pkg/models"
)

type Submitter interface {
	// SubmitToLink sends msg to the named link partner.
	SubmitToLink(ctx context.Context, msg *models.Message, link string) error
	// SubmitToConnector queues msg for this connector as if it had been
	// received from link over a link of the given type.
	SubmitToConnector(ctx context.Context, msg *models.Message, link string, linkType models.LinkType) error
}

func ValidateLink(link string) error {
	if !config.ValidLinkName(link) {
		return errors.ErrConfiguration.
			WithMessage("invalid link partner name").
			WithDetail("link", link)
	}
	return nil
}

// TargetLinkType is the kind of link partner a message travelling in the
// given direction is delivered to.
func TargetLinkType(d models.Direction) models.LinkType {
	if d == models.DirectionBackendToGateway {
		return models.LinkTypeGateway
	}
	return models.LinkTypeBackend
}

type KafkaSubmitter struct {
	producer broker.Producer
	cfg      config.KafkaConfig
	logger   logger.Logger
}

func NewKafkaSubmitter(producer broker.Producer, cfg config.KafkaConfig, log logger.Logger) *KafkaSubmitter {
	return &KafkaSubmitter{producer: producer, cfg: cfg, logger: log}
}

func (s *KafkaSubmitter) SubmitToLink(ctx context.Context, msg *models.Message, link string) error {
	if err := ValidateLink(link); err != nil {
		return err
	}
	linkType := TargetLinkType(msg.Direction)
	env := envelope(msg, constants.ServiceNameConnector, linkType, link)
	return s.publish(ctx, s.cfg.LinkTopicPrefix+link, env, linkType)
}

func (s *KafkaSubmitter) SubmitToConnector(ctx context.Context, msg *models.Message, link string, linkType models.LinkType) error {
	if err := ValidateLink(link); err != nil {
		return err
	}

	var topic string
	switch linkType {
	case models.LinkTypeConnector:
		topic = s.cfg.ConnectorTopic
	case models.LinkTypeGateway:
		topic = s.cfg.GatewayTopic
	case models.LinkTypeBackend:
		topic = s.cfg.BackendTopic
	default:
		return errors.ErrValidation.WithMessage("unknown link type").WithDetail("link_type", string(linkType))
	}

	env := envelope(msg, link, linkType, constants.ServiceNameConnector)
	return s.publish(ctx, topic, env, linkType)
}

func (s *KafkaSubmitter) publish(ctx context.Context, topic string, env models.Envelope, linkType models.LinkType) error {
	if err := s.producer.Publish(ctx, topic, env); err != nil {
		metrics.IncSubmission(string(linkType), "failed")
		return err
	}
	metrics.IncSubmission(string(linkType), "submitted")
	s.logger.DebugwCtx(ctx, "Message submitted",
		"topic", topic,
		"link_type", linkType,
		"connector_message_id", env.Message.ConnectorMessageID,
	)
	return nil
}

func envelope(msg *models.Message, source string, linkType models.LinkType, target string) models.Envelope {
	return models.Envelope{
		ID:        uuid.New().String(),
		Source:    source,
		LinkType:  linkType,
		Timestamp: time.Now().UTC(),
		Message:   *msg.Clone(),
		Metadata:  models.EnvelopeMetadata{Target: target},
	}
}
