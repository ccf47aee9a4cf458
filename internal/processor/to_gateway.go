package processor

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"connector/internal/container"
	"connector/internal/persistence"
	"connector/internal/transport"
	"connector/pkg/errors"
	"connector/pkg/metrics"
	"connector/pkg/models"
	"connector/pkg/tracing"
)

// ToGatewayProcessor handles business messages submitted by a backend and
// sends them to the lane's gateway.
type ToGatewayProcessor struct {
	base
	pmodes    PModeVerifier
	container container.Service
	idSuffix  string
}

func NewToGatewayProcessor(d Deps) *ToGatewayProcessor {
	return &ToGatewayProcessor{
		base:      newBase(d),
		pmodes:    d.PModes,
		container: d.Container,
		idSuffix:  d.EbmsIDSuffix,
	}
}

func (p *ToGatewayProcessor) Name() string {
	return NameToGateway
}

func (p *ToGatewayProcessor) ProcessMessage(ctx context.Context, msg *models.Message) error {
	ctx, span := tracing.GetTracer("processor").Start(ctx, "processor.to_gateway")
	defer span.End()

	msg = msg.Clone()
	msg.Direction = models.DirectionBackendToGateway
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = p.now()
	}
	span.SetAttributes(tracing.MessageAttributes(msg)...)

	if id := msg.Details.BackendMessageID; id != "" {
		_, err := p.store.FindBusinessMessageByIDAndDirection(ctx, id, models.DirectionBackendToGateway)
		if err == nil {
			p.logger.InfowCtx(ctx, "Message already submitted, skipping",
				"backend_message_id", id,
			)
			return nil
		}
		if !errors.IsNotFound(err) {
			return err
		}
	}

	// The ebMS id exists before anything is stored so that evidence racing
	// back from the gateway can always be matched.
	if msg.Details.EbmsMessageID == "" {
		msg.Details.EbmsMessageID = uuid.NewString() + p.idSuffix
	}
	span.SetAttributes(
		attribute.String("lane_id", msg.LaneID),
		attribute.String("ebms_message_id", msg.Details.EbmsMessageID),
	)

	err := p.withinUnit(ctx, func(ctx context.Context, store persistence.Store, out *transport.Outbox) error {
		return p.submit(ctx, store, out, msg.Clone())
	})
	if err == nil {
		return nil
	}
	if !compensable(err) {
		return err
	}
	return p.compensate(ctx, msg, err)
}

func (p *ToGatewayProcessor) submit(ctx context.Context, store persistence.Store, out *transport.Outbox, msg *models.Message) error {
	lane, err := p.lane(msg.LaneID)
	if err != nil {
		return err
	}

	if err := p.pmodes.Verify(ctx, msg); err != nil {
		return rejected(err)
	}

	content, err := p.container.BuildContainer(ctx, msg)
	if err != nil {
		return rejected(err)
	}
	msg.Content = content

	if msg.GatewayLink == "" {
		msg.GatewayLink = lane.DefaultGatewayLink
	}
	if msg.GatewayLink == "" {
		return errors.ErrConfiguration.
			WithMessage("lane has no default gateway link").
			WithDetail("lane_id", lane.ID)
	}

	msg.TransportedConfirmations = nil
	if err := store.CreateMessage(ctx, msg); err != nil {
		return err
	}

	acceptance, err := p.evidence.CreateEvidence(ctx, models.EvidenceSubmissionAcceptance, msg, models.RejectionReasonNone, "")
	if err != nil {
		return err
	}
	if err := store.AttachConfirmation(ctx, msg.ConnectorMessageID, acceptance); err != nil {
		return err
	}
	msg.RelatedConfirmations = append(msg.RelatedConfirmations, acceptance)

	outgoing := msg.Clone()
	outgoing.RelatedConfirmations = nil
	outgoing.TransportedConfirmations = []models.Confirmation{acceptance}
	if err := out.SubmitToLink(ctx, outgoing, msg.GatewayLink); err != nil {
		return err
	}
	if err := out.SubmitToLink(ctx, models.NewEvidenceMessage(msg, models.DirectionGatewayToBackend, acceptance), msg.BackendLink); err != nil {
		return err
	}

	p.logger.InfowCtx(ctx, "Message submitted to gateway",
		"ebms_message_id", msg.Details.EbmsMessageID,
		"backend_message_id", msg.Details.BackendMessageID,
		"gateway_link", msg.GatewayLink,
	)
	return nil
}

// compensate stores msg as rejected and returns SUBMISSION_REJECTION to the
// backend. The gateway never sees the message.
func (p *ToGatewayProcessor) compensate(ctx context.Context, msg *models.Message, cause error) error {
	reason := rejectionReason(cause)
	p.logger.WarnwCtx(ctx, "Submission rejected",
		"backend_message_id", msg.Details.BackendMessageID,
		"ebms_message_id", msg.Details.EbmsMessageID,
		"rejection_reason", reason,
		"error", cause,
	)

	err := p.withinUnit(ctx, func(ctx context.Context, store persistence.Store, out *transport.Outbox) error {
		rejection, err := p.evidence.CreateEvidence(ctx, models.EvidenceSubmissionRejection, msg, reason, cause.Error())
		if err != nil {
			return err
		}

		rejected := msg.Clone()
		rejected.TransportedConfirmations = nil
		rejected.Content = nil
		rejected.Attachments = nil
		if err := store.CreateMessage(ctx, rejected); err != nil {
			return err
		}
		if err := store.AttachConfirmation(ctx, rejected.ConnectorMessageID, rejection); err != nil {
			return err
		}
		if err := store.MarkRejected(ctx, rejected.ConnectorMessageID, p.now()); err != nil {
			return err
		}
		return out.SubmitToLink(ctx, models.NewEvidenceMessage(rejected, models.DirectionGatewayToBackend, rejection), rejected.BackendLink)
	})
	if err != nil {
		return err
	}
	metrics.IncCompensation(NameToGateway, string(models.EvidenceSubmissionRejection))
	return nil
}
