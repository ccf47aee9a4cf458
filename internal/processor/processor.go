// Package processor holds the message processors of the connector. Each
// processor handles one kind of message arriving from one kind of link
// partner and runs its work as a single atomic unit against the store.
package processor

import (
	"context"
	stderrors "errors"
	"time"

	"connector/internal/config"
	"connector/internal/constants"
	"connector/internal/container"
	"connector/internal/deduplication"
	"connector/internal/evidence"
	"connector/internal/logger"
	"connector/internal/persistence"
	"connector/internal/routing"
	"connector/internal/transport"
	"connector/pkg/errors"
	"connector/pkg/models"
)

const (
	NameToBackend = "to_backend"
	NameToGateway = "to_gateway"
	NameEvidence  = "evidence"
	NameCleanup   = "cleanup"
)

type Processor interface {
	Name() string
	ProcessMessage(ctx context.Context, msg *models.Message) error
}

type EvidenceBuilder interface {
	CreateEvidence(ctx context.Context, t models.EvidenceType, msg *models.Message, reason models.RejectionReason, details string) (models.Confirmation, error)
}

type Router interface {
	Select(ctx context.Context, laneID string, msg *models.Message) (routing.Decision, error)
}

type PModeVerifier interface {
	Verify(ctx context.Context, msg *models.Message) error
}

type EvidenceGuard interface {
	Seen(ctx context.Context, key deduplication.EvidenceKey) (bool, error)
	Record(ctx context.Context, key deduplication.EvidenceKey)
}

// Deps are the collaborators shared by all processors. Guard may be nil.
type Deps struct {
	Store        persistence.TxStore
	Submitter    transport.Submitter
	Evidence     EvidenceBuilder
	Router       Router
	PModes       PModeVerifier
	Container    container.Service
	Guard        EvidenceGuard
	Lanes        []config.LaneConfig
	EbmsIDSuffix string
	Logger       logger.Logger
}

type base struct {
	store     persistence.TxStore
	submitter transport.Submitter
	evidence  EvidenceBuilder
	guard     EvidenceGuard
	lanes     map[string]config.LaneConfig
	now       func() time.Time
	logger    logger.Logger
}

func newBase(d Deps) base {
	lanes := make(map[string]config.LaneConfig, len(d.Lanes))
	for _, lane := range d.Lanes {
		lanes[lane.ID] = lane
	}
	return base{
		store:     d.Store,
		submitter: d.Submitter,
		evidence:  d.Evidence,
		guard:     d.Guard,
		lanes:     lanes,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    d.Logger,
	}
}

func (b *base) lane(id string) (config.LaneConfig, error) {
	lane, ok := b.lanes[id]
	if !ok {
		return config.LaneConfig{}, errors.ErrConfiguration.WithMessage("unknown lane").WithDetail("lane_id", id)
	}
	return lane, nil
}

// withinUnit runs fn in one transaction. Submissions are recorded in an
// outbox and published before the commit, so a failed publish rolls the
// unit back and the message is redelivered.
func (b *base) withinUnit(ctx context.Context, fn func(ctx context.Context, store persistence.Store, out *transport.Outbox) error) error {
	return b.store.WithinTx(ctx, func(ctx context.Context, store persistence.Store) error {
		out := transport.NewOutbox()
		if err := fn(ctx, store, out); err != nil {
			return err
		}
		return out.Flush(ctx, b.submitter)
	})
}

// applicable returns why evidence of type t cannot be applied to original,
// or "" when it can.
func applicable(original *models.Message, t models.EvidenceType) string {
	switch {
	case t == models.EvidenceSubmissionAcceptance || t == models.EvidenceSubmissionRejection:
		return "submission evidence is only created locally"
	case original.IsRejected():
		return "message already rejected"
	case original.HasRelatedConfirmation(t):
		return "duplicate evidence"
	}
	predecessor, chained := evidence.RequiredPredecessor(t)
	if original.IsConfirmed() && predecessor != models.EvidenceDelivery {
		return "message already confirmed"
	}
	if chained && !original.HasRelatedConfirmation(predecessor) {
		return "predecessor evidence missing"
	}
	return ""
}

func notRelevant(reason string) *errors.Error {
	return errors.ErrNotRelevant.WithMessage(reason).WithDetail("reason", reason)
}

// attach records c on original and moves the message to its terminal state
// when c decides it. Reaching a terminal state queues a cleanup request.
func (b *base) attach(ctx context.Context, store persistence.Store, out *transport.Outbox, original *models.Message, c models.Confirmation) error {
	if err := store.AttachConfirmation(ctx, original.ConnectorMessageID, c); err != nil {
		if errors.IsConflict(err) {
			return notRelevant("duplicate evidence")
		}
		return err
	}
	original.RelatedConfirmations = append(original.RelatedConfirmations, c)

	if original.IsTerminal() {
		return nil
	}
	now := b.now()
	switch {
	case c.EvidenceType.ConfirmsMessage():
		if err := store.MarkConfirmed(ctx, original.ConnectorMessageID, now); err != nil {
			return err
		}
		original.Details.ConfirmedAt = &now
	case c.EvidenceType.RejectsMessage():
		if err := store.MarkRejected(ctx, original.ConnectorMessageID, now); err != nil {
			return err
		}
		original.Details.RejectedAt = &now
	default:
		return nil
	}

	b.logger.InfowCtx(ctx, "Message reached terminal state",
		"connector_message_id", original.ConnectorMessageID,
		"evidence_type", c.EvidenceType,
	)
	return out.SubmitToConnector(ctx, cleanupRequest(original), constants.LinkCleanup, models.LinkTypeConnector)
}

func cleanupRequest(original *models.Message) *models.Message {
	return &models.Message{
		ConnectorMessageID: original.ConnectorMessageID,
		Direction:          original.Direction,
		LaneID:             original.LaneID,
		Details: models.MessageDetails{
			EbmsMessageID:    original.Details.EbmsMessageID,
			BackendMessageID: original.Details.BackendMessageID,
		},
		CleanupRequested: true,
		CreatedAt:        time.Now().UTC(),
	}
}

// rejection marks a failure of the message itself, found by the pmode or
// container checks. Only rejections are compensated.
type rejection struct {
	err error
}

func (r *rejection) Error() string { return r.err.Error() }
func (r *rejection) Unwrap() error { return r.err }

// rejected marks err as a rejection when its outermost code is a security
// or validation failure. Anything else passes through unchanged.
func rejected(err error) error {
	var appErr *errors.Error
	if !stderrors.As(err, &appErr) {
		return err
	}
	if appErr.Code != errors.ErrSecurityValidation.Code && appErr.Code != errors.ErrValidation.Code {
		return err
	}
	return &rejection{err: err}
}

// compensable reports whether err rejects the message itself rather than
// the attempt to process it. Link or lane configuration faults are never
// compensable.
func compensable(err error) bool {
	var r *rejection
	return stderrors.As(err, &r)
}

func rejectionReason(err error) models.RejectionReason {
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		if reason, ok := appErr.Details["rejection_reason"].(string); ok && reason != "" {
			return models.RejectionReason(reason)
		}
	}
	if errors.IsSecurityValidation(err) {
		return models.RejectionReasonSecurityViolation
	}
	return models.RejectionReasonOther
}

func reasonOf(err error) string {
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		if reason, ok := appErr.Details["reason"].(string); ok {
			return reason
		}
	}
	return "unknown"
}
