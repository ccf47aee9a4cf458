package processor

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"connector/internal/deduplication"
	"connector/internal/persistence"
	"connector/internal/transport"
	"connector/pkg/errors"
	"connector/pkg/metrics"
	"connector/pkg/models"
	"connector/pkg/tracing"
)

// EvidenceProcessor applies evidence messages to the business messages they
// refer to and passes the evidence on to the other side. A confirmation
// without evidence bytes coming from a backend is a trigger: the connector
// creates the evidence itself.
type EvidenceProcessor struct {
	base
}

func NewEvidenceProcessor(d Deps) *EvidenceProcessor {
	return &EvidenceProcessor{base: newBase(d)}
}

func (p *EvidenceProcessor) Name() string {
	return NameEvidence
}

func (p *EvidenceProcessor) ProcessMessage(ctx context.Context, msg *models.Message) error {
	ctx, span := tracing.GetTracer("processor").Start(ctx, "processor.evidence")
	defer span.End()

	msg = msg.Clone()
	span.SetAttributes(tracing.MessageAttributes(msg)...)
	span.SetAttributes(attribute.Int("confirmations", len(msg.TransportedConfirmations)))

	if len(msg.TransportedConfirmations) == 0 {
		return errors.ErrValidation.WithMessage("evidence message carries no confirmation")
	}

	for _, c := range msg.TransportedConfirmations {
		var applied *deduplication.EvidenceKey
		err := p.withinUnit(ctx, func(ctx context.Context, store persistence.Store, out *transport.Outbox) error {
			key, err := p.apply(ctx, store, out, msg, c)
			applied = key
			return err
		})
		if err == nil && applied != nil && p.guard != nil {
			p.guard.Record(ctx, *applied)
		}
		if errors.IsNotRelevant(err) {
			reason := reasonOf(err)
			p.logger.InfowCtx(ctx, "Evidence not relevant, skipping",
				"evidence_type", c.EvidenceType,
				"ref_to_message_id", refOf(msg),
				"reason", reason,
			)
			metrics.IncNotRelevant(reason)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func refOf(msg *models.Message) string {
	if msg.Details.RefToMessageID != "" {
		return msg.Details.RefToMessageID
	}
	return msg.Details.RefToBackendMessageID
}

// apply handles one confirmation of msg and returns the key the caller
// records once the unit has committed.
func (p *EvidenceProcessor) apply(ctx context.Context, store persistence.Store, out *transport.Outbox, msg *models.Message, c models.Confirmation) (*deduplication.EvidenceKey, error) {
	ref := refOf(msg)
	if ref == "" {
		return nil, errors.ErrValidation.WithMessage("evidence message does not reference a message")
	}

	// Evidence travels against the direction of the message it refers to.
	original, err := store.FindBusinessMessageByIDAndDirection(ctx, ref, msg.Direction.Opposite())
	if err != nil {
		if errors.IsNotFound(err) {
			// The referenced message may still be in flight; retry.
			return nil, errors.ErrNotFound.
				WithMessage("referenced message not found").
				WithDetail("ref_to_message_id", ref).
				AsRetryable()
		}
		return nil, err
	}

	trigger := msg.Direction == models.DirectionBackendToGateway && c.IsTrigger()
	if trigger && !c.EvidenceType.IsTriggerable() {
		return nil, notRelevant("evidence type cannot be triggered")
	}
	if reason := applicable(original, c.EvidenceType); reason != "" {
		return nil, notRelevant(reason)
	}

	key := deduplication.EvidenceKey{
		LaneID:       original.LaneID,
		RefMessageID: original.ConnectorMessageID,
		EvidenceType: c.EvidenceType,
		Direction:    msg.Direction,
	}
	if p.guard != nil {
		seen, err := p.guard.Seen(ctx, key)
		if err != nil {
			return nil, err
		}
		if seen {
			return nil, notRelevant("duplicate evidence")
		}
	}

	if trigger {
		c, err = p.evidence.CreateEvidence(ctx, c.EvidenceType, original, c.RejectionReason, c.Details)
		if err != nil {
			return nil, err
		}
	}

	if err := p.attach(ctx, store, out, original, c); err != nil {
		return nil, err
	}

	target := original.BackendLink
	if msg.Direction == models.DirectionBackendToGateway {
		target = original.GatewayLink
	}
	if err := out.SubmitToLink(ctx, models.NewEvidenceMessage(original, msg.Direction, c), target); err != nil {
		return nil, err
	}

	if trigger {
		lane, err := p.lane(original.LaneID)
		if err != nil {
			return nil, err
		}
		if lane.SendEvidenceBackToBackend {
			back := models.NewEvidenceMessage(original, models.DirectionGatewayToBackend, c)
			if err := out.SubmitToLink(ctx, back, original.BackendLink); err != nil {
				return nil, err
			}
		}
	}

	p.logger.InfowCtx(ctx, "Evidence processed",
		"evidence_type", c.EvidenceType,
		"connector_message_id", original.ConnectorMessageID,
		"trigger", trigger,
		"target_link", target,
	)
	return &key, nil
}
