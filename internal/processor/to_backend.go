package processor

import (
	"context"

	"connector/internal/container"
	"connector/internal/persistence"
	"connector/internal/routing"
	"connector/internal/transport"
	"connector/pkg/errors"
	"connector/pkg/metrics"
	"connector/pkg/models"
	"connector/pkg/tracing"
)

// ToBackendProcessor handles business messages received from a gateway and
// delivers them to the backend chosen by routing.
type ToBackendProcessor struct {
	base
	router    Router
	pmodes    PModeVerifier
	container container.Service
}

func NewToBackendProcessor(d Deps) *ToBackendProcessor {
	return &ToBackendProcessor{
		base:      newBase(d),
		router:    d.Router,
		pmodes:    d.PModes,
		container: d.Container,
	}
}

func (p *ToBackendProcessor) Name() string {
	return NameToBackend
}

func (p *ToBackendProcessor) ProcessMessage(ctx context.Context, msg *models.Message) error {
	ctx, span := tracing.GetTracer("processor").Start(ctx, "processor.to_backend")
	defer span.End()

	msg = msg.Clone()
	msg.Direction = models.DirectionGatewayToBackend
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = p.now()
	}
	span.SetAttributes(tracing.MessageAttributes(msg)...)

	if msg.Details.EbmsMessageID == "" {
		return errors.ErrValidation.WithMessage("message from gateway has no ebMS message id")
	}

	_, err := p.store.FindBusinessMessageByIDAndDirection(ctx, msg.Details.EbmsMessageID, models.DirectionGatewayToBackend)
	if err == nil {
		p.logger.InfowCtx(ctx, "Message already received, skipping",
			"ebms_message_id", msg.Details.EbmsMessageID,
		)
		return nil
	}
	if !errors.IsNotFound(err) {
		return err
	}

	err = p.withinUnit(ctx, func(ctx context.Context, store persistence.Store, out *transport.Outbox) error {
		return p.deliver(ctx, store, out, msg.Clone())
	})
	if err == nil {
		return nil
	}
	if !compensable(err) {
		return err
	}
	return p.compensate(ctx, msg, err)
}

// ownConfirmations splits the confirmations transported with msg into the
// submission evidence the sending connector created for msg itself and the
// evidence referring to earlier messages.
func ownConfirmations(msg *models.Message) (own, bundled []models.Confirmation) {
	for _, c := range msg.TransportedConfirmations {
		switch c.EvidenceType {
		case models.EvidenceSubmissionAcceptance, models.EvidenceSubmissionRejection:
			own = append(own, c)
		default:
			bundled = append(bundled, c)
		}
	}
	return own, bundled
}

func (p *ToBackendProcessor) deliver(ctx context.Context, store persistence.Store, out *transport.Outbox, msg *models.Message) error {
	if err := p.pmodes.Verify(ctx, msg); err != nil {
		return rejected(err)
	}

	decision, err := p.route(ctx, store, msg)
	if err != nil {
		return err
	}
	msg.BackendLink = decision.LinkName

	content, err := p.container.ValidateContainer(ctx, msg)
	if err != nil {
		return rejected(err)
	}
	msg.Content = content

	own, bundled := ownConfirmations(msg)
	msg.TransportedConfirmations = nil
	msg.RelatedConfirmations = append(msg.RelatedConfirmations, own...)

	if err := store.CreateMessage(ctx, msg); err != nil {
		return err
	}

	for _, c := range bundled {
		if err := p.applyBundled(ctx, store, out, msg, c); err != nil {
			return err
		}
	}

	relay, err := p.evidence.CreateEvidence(ctx, models.EvidenceRelayREMMDAcceptance, msg, models.RejectionReasonNone, "")
	if err != nil {
		return err
	}
	if err := store.AttachConfirmation(ctx, msg.ConnectorMessageID, relay); err != nil {
		return err
	}
	msg.RelatedConfirmations = append(msg.RelatedConfirmations, relay)

	if err := out.SubmitToLink(ctx, models.NewEvidenceMessage(msg, models.DirectionBackendToGateway, relay), msg.GatewayLink); err != nil {
		return err
	}
	if err := out.SubmitToLink(ctx, msg, msg.BackendLink); err != nil {
		return err
	}

	p.logger.InfowCtx(ctx, "Message delivered to backend",
		"ebms_message_id", msg.Details.EbmsMessageID,
		"backend_link", msg.BackendLink,
		"rule_id", decision.RuleID,
		"fallback", decision.Fallback,
	)
	return nil
}

// route picks the backend for msg. A link given with the message wins, then
// the backend that sent the message msg replies to. Routing rules decide
// only for messages without a known destination.
func (p *ToBackendProcessor) route(ctx context.Context, store persistence.Store, msg *models.Message) (routing.Decision, error) {
	if msg.BackendLink != "" {
		return routing.Decision{LinkName: msg.BackendLink}, nil
	}
	if ref := msg.Details.RefToMessageID; ref != "" {
		original, err := store.FindBusinessMessageByIDAndDirection(ctx, ref, models.DirectionBackendToGateway)
		switch {
		case err == nil && original.BackendLink != "":
			return routing.Decision{LinkName: original.BackendLink}, nil
		case err != nil && !errors.IsNotFound(err):
			return routing.Decision{}, err
		}
	}
	return p.router.Select(ctx, msg.LaneID, msg)
}

// applyBundled attaches evidence that travelled with msg to the outbound
// message it refers to. Evidence that cannot be applied is skipped.
func (p *ToBackendProcessor) applyBundled(ctx context.Context, store persistence.Store, out *transport.Outbox, msg *models.Message, c models.Confirmation) error {
	ref := msg.Details.RefToMessageID
	if ref == "" {
		p.logger.WarnwCtx(ctx, "Bundled evidence without reference, skipping",
			"evidence_type", c.EvidenceType,
		)
		metrics.IncNotRelevant("missing reference")
		return nil
	}

	original, err := store.FindBusinessMessageByIDAndDirection(ctx, ref, models.DirectionBackendToGateway)
	if err != nil {
		if errors.IsNotFound(err) {
			p.logger.WarnwCtx(ctx, "Bundled evidence references unknown message, skipping",
				"evidence_type", c.EvidenceType,
				"ref_to_message_id", ref,
			)
			metrics.IncNotRelevant("unknown reference")
			return nil
		}
		return err
	}

	reason := applicable(original, c.EvidenceType)
	if reason == "" {
		err = p.attach(ctx, store, out, original, c)
		if errors.IsNotRelevant(err) {
			reason = reasonOf(err)
		} else if err != nil {
			return err
		}
	}
	if reason != "" {
		p.logger.InfowCtx(ctx, "Bundled evidence not relevant, skipping",
			"evidence_type", c.EvidenceType,
			"ref_to_message_id", ref,
			"reason", reason,
		)
		metrics.IncNotRelevant(reason)
	}
	return nil
}

// compensate records the rejection of msg in a fresh unit and tells the
// sending side with NON_DELIVERY evidence. Nothing reaches the backend.
func (p *ToBackendProcessor) compensate(ctx context.Context, msg *models.Message, cause error) error {
	reason := rejectionReason(cause)
	p.logger.WarnwCtx(ctx, "Message rejected, sending non-delivery evidence",
		"ebms_message_id", msg.Details.EbmsMessageID,
		"rejection_reason", reason,
		"error", cause,
	)

	err := p.withinUnit(ctx, func(ctx context.Context, store persistence.Store, out *transport.Outbox) error {
		rejected := msg.Clone()
		own, _ := ownConfirmations(rejected)
		rejected.TransportedConfirmations = nil
		rejected.RelatedConfirmations = append(rejected.RelatedConfirmations, own...)
		rejected.Content = nil
		rejected.Attachments = nil

		if err := store.CreateMessage(ctx, rejected); err != nil {
			return err
		}

		if !rejected.HasRelatedConfirmation(models.EvidenceRelayREMMDAcceptance) {
			relay, err := p.evidence.CreateEvidence(ctx, models.EvidenceRelayREMMDAcceptance, rejected, models.RejectionReasonNone, "")
			if err != nil {
				return err
			}
			if err := store.AttachConfirmation(ctx, rejected.ConnectorMessageID, relay); err != nil {
				return err
			}
			rejected.RelatedConfirmations = append(rejected.RelatedConfirmations, relay)
			if err := out.SubmitToLink(ctx, models.NewEvidenceMessage(rejected, models.DirectionBackendToGateway, relay), rejected.GatewayLink); err != nil {
				return err
			}
		}

		nonDelivery, err := p.evidence.CreateEvidence(ctx, models.EvidenceNonDelivery, rejected, reason, cause.Error())
		if err != nil {
			return err
		}
		if err := store.AttachConfirmation(ctx, rejected.ConnectorMessageID, nonDelivery); err != nil {
			return err
		}
		if err := store.MarkRejected(ctx, rejected.ConnectorMessageID, p.now()); err != nil {
			return err
		}
		return out.SubmitToLink(ctx, models.NewEvidenceMessage(rejected, models.DirectionBackendToGateway, nonDelivery), rejected.GatewayLink)
	})
	if err != nil {
		return err
	}
	metrics.IncCompensation(NameToBackend, string(models.EvidenceNonDelivery))
	return nil
}
