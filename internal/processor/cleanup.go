package processor

import (
	"context"

	"connector/internal/persistence"
	"connector/internal/transport"
	"connector/pkg/errors"
	"connector/pkg/metrics"
	"connector/pkg/models"
	"connector/pkg/tracing"
)

// CleanupProcessor drops the business content of messages that reached a
// terminal state. The message itself and its evidence are kept.
type CleanupProcessor struct {
	base
}

func NewCleanupProcessor(d Deps) *CleanupProcessor {
	return &CleanupProcessor{base: newBase(d)}
}

func (p *CleanupProcessor) Name() string {
	return NameCleanup
}

func (p *CleanupProcessor) ProcessMessage(ctx context.Context, msg *models.Message) error {
	ctx, span := tracing.GetTracer("processor").Start(ctx, "processor.cleanup")
	defer span.End()

	err := p.withinUnit(ctx, func(ctx context.Context, store persistence.Store, _ *transport.Outbox) error {
		original, err := store.FindMessageByConnectorID(ctx, msg.ConnectorMessageID)
		if err != nil {
			if errors.IsNotFound(err) {
				return notRelevant("message not found")
			}
			return err
		}
		if !original.IsTerminal() {
			return notRelevant("message not terminal")
		}
		return store.DeleteContentForMessage(ctx, original.ConnectorMessageID)
	})
	if errors.IsNotRelevant(err) {
		reason := reasonOf(err)
		p.logger.WarnwCtx(ctx, "Cleanup skipped",
			"connector_message_id", msg.ConnectorMessageID,
			"reason", reason,
		)
		metrics.IncNotRelevant(reason)
		return nil
	}
	if err != nil {
		return err
	}

	p.logger.InfowCtx(ctx, "Message content deleted",
		"connector_message_id", msg.ConnectorMessageID,
	)
	return nil
}
