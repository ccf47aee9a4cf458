// Package evidence builds the chained delivery evidences attached to
// business messages.
package evidence

import (
	"context"
	"strings"
	"time"

	"connector/internal/config"
	"connector/internal/logger"
	"connector/pkg/digest"
	"connector/pkg/errors"
	"connector/pkg/metrics"
	"connector/pkg/models"
	"connector/pkg/tracing"
)

type Builder struct {
	signer    Signer
	algorithm digest.Algorithm
	issuer    string
	now       func() time.Time
	logger    logger.Logger
}

func NewBuilder(cfg config.EvidenceConfig, signer Signer, log logger.Logger) (*Builder, error) {
	algorithm, err := digest.ParseAlgorithm(cfg.HashAlgorithm)
	if err != nil {
		return nil, errors.ErrConfiguration.WithCause(err)
	}
	return &Builder{
		signer:    signer,
		algorithm: algorithm,
		issuer:    cfg.Signer.Issuer,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    log,
	}, nil
}

// CreateEvidence builds and signs evidence of type t for msg. msg is not
// modified; attaching the result is up to the caller.
func (b *Builder) CreateEvidence(ctx context.Context, t models.EvidenceType, msg *models.Message, reason models.RejectionReason, details string) (models.Confirmation, error) {
	ctx, span := tracing.GetTracer("evidence").Start(ctx, "evidence.create")
	defer span.End()

	c, err := b.create(ctx, t, msg, reason, details)
	if err != nil {
		metrics.IncEvidenceCreated(string(t), "failed")
		return models.Confirmation{}, err
	}
	metrics.IncEvidenceCreated(string(t), "created")
	b.logger.DebugwCtx(ctx, "Evidence created",
		"evidence_type", t,
		"connector_message_id", msg.ConnectorMessageID,
	)
	return c, nil
}

func (b *Builder) create(ctx context.Context, t models.EvidenceType, msg *models.Message, reason models.RejectionReason, details string) (models.Confirmation, error) {
	build, ok := factsBuilders[t]
	if !ok {
		return models.Confirmation{}, errors.ErrEvidenceGeneration.
			WithMessage("unknown evidence type").
			WithDetail("evidence_type", string(t)).
			AsFatal()
	}

	if t.IsNegative() && (reason == models.RejectionReasonNone || strings.TrimSpace(details) == "") {
		return models.Confirmation{}, errors.ErrEvidenceGeneration.
			WithMessage("negative evidence requires a rejection reason and details").
			WithDetail("evidence_type", string(t)).
			AsFatal()
	}

	now := b.now()
	facts := build(factsInput{msg: msg, reason: reason, details: details, now: now, issuer: b.issuer})
	facts.EvidenceType = t

	req := SignRequest{Facts: facts}
	if predecessor, chained := RequiredPredecessor(t); chained {
		prev, found := msg.RelatedConfirmation(predecessor)
		if !found {
			return models.Confirmation{}, errors.ErrEvidenceGeneration.
				WithMessage("required predecessor evidence missing").
				WithDetail("evidence_type", string(t)).
				WithDetail("predecessor", string(predecessor)).
				AsFatal()
		}
		req.Predecessor = prev.Evidence
	} else if msg.Content != nil && len(msg.Content.Document) > 0 {
		sum, err := b.algorithm.SumHex(msg.Content.Document)
		if err != nil {
			return models.Confirmation{}, errors.ErrEvidenceGeneration.WithCause(err).AsFatal()
		}
		req.Facts.DocumentHash = sum
		req.Facts.HashAlgorithm = string(b.algorithm)
	}

	signed, err := b.signer.Sign(ctx, req)
	if err != nil {
		return models.Confirmation{}, errors.ErrEvidenceGeneration.WithCause(err)
	}

	return models.Confirmation{
		EvidenceType:    t,
		Evidence:        signed,
		RejectionReason: reason,
		Details:         details,
		CreatedAt:       now,
	}, nil
}
