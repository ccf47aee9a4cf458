package processor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"connector/internal/broker"
	"connector/internal/logger"
	"connector/pkg/errors"
	"connector/pkg/logging"
	"connector/pkg/metrics"
	"connector/pkg/models"
	"connector/pkg/tracing"
)

// Dispatcher feeds envelopes consumed from a link topic to the processor
// registered for them.
type Dispatcher struct {
	registry *Registry
	logger   logger.Logger
}

func NewDispatcher(registry *Registry, log logger.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: log}
}

// Handler returns the consumer callback for a topic whose records come from
// link partners of linkType.
func (d *Dispatcher) Handler(linkType models.LinkType) broker.HandlerFunc {
	return func(ctx context.Context, env models.Envelope) error {
		return d.Dispatch(ctx, linkType, env)
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, linkType models.LinkType, env models.Envelope) error {
	msg := env.Message.Clone()

	if env.LinkType != "" && env.LinkType != linkType {
		d.logger.WarnwCtx(ctx, "Envelope link type does not match topic, using topic",
			"envelope_link_type", env.LinkType,
			"topic_link_type", linkType,
		)
	}

	switch linkType {
	case models.LinkTypeGateway:
		msg.Direction = models.DirectionGatewayToBackend
		if msg.GatewayLink == "" {
			msg.GatewayLink = env.Source
		}
	case models.LinkTypeBackend:
		msg.Direction = models.DirectionBackendToGateway
		if msg.BackendLink == "" {
			msg.BackendLink = env.Source
		}
	}
	if msg.ConnectorMessageID == "" {
		msg.ConnectorMessageID = uuid.NewString()
	}

	ctx = logging.WithMessageID(ctx, msg.ConnectorMessageID)
	ctx = logging.WithLaneID(ctx, msg.LaneID)

	if err := models.ValidateMessage(msg); err != nil {
		return errors.ErrValidation.WithMessage("invalid message").WithCause(err)
	}

	kind := msg.Kind()
	p, err := d.registry.Lookup(linkType, kind)
	if err != nil {
		return err
	}

	ctx, span := tracing.GetTracer("processor").Start(ctx, "processor.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("link_type", string(linkType)),
		attribute.String("kind", string(kind)),
		attribute.String("processor", p.Name()),
	)

	start := time.Now()
	err = p.ProcessMessage(ctx, msg)
	status := "success"
	if err != nil {
		status = "error"
		tracing.RecordError(span, err)
		d.logger.ErrorwCtx(ctx, "Message processing failed",
			"processor", p.Name(),
			"link_type", linkType,
			"kind", kind,
			"error", err,
		)
	}
	metrics.ObserveProcessingDuration(p.Name(), status, time.Since(start))
	metrics.IncMessagesProcessed(p.Name(), status)
	return err
}
