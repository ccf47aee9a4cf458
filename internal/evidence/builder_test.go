package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connector/internal/config"
	"connector/internal/logger"
	pkgerrors "connector/pkg/errors"
	"connector/pkg/models"
)

type failingSigner struct{ err error }

func (s failingSigner) Sign(ctx context.Context, req SignRequest) ([]byte, error) {
	return nil, s.err
}

func newBuilder(t *testing.T, signer Signer) *Builder {
	t.Helper()
	b, err := NewBuilder(config.EvidenceConfig{HashAlgorithm: "sha256", Signer: config.SignerConfig{Issuer: "connector-test"}}, signer, logger.NopLogger())
	require.NoError(t, err)
	b.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return b
}

func outboundMessage() *models.Message {
	msg := models.NewMessageBuilder().
		WithDirection(models.DirectionBackendToGateway).
		WithLane("epo").
		WithService("EPO", "urn:service").
		WithAction("Form_A").
		WithParties(models.Party{ID: "sender", IDType: "urn:oasis", Role: "initiator"}, models.Party{ID: "receiver"}).
		WithContent(&models.MessageContent{DocumentName: "form.pdf", Document: []byte("document")}).
		Build()
	msg.Details.EbmsMessageID = "ebms-1@connector"
	msg.Details.BackendMessageID = "national-1"
	return msg
}

func TestCreateEvidence_RootHashesDocument(t *testing.T) {
	b := newBuilder(t, NewDocumentSigner())
	msg := outboundMessage()

	c, err := b.CreateEvidence(context.Background(), models.EvidenceSubmissionAcceptance, msg, models.RejectionReasonNone, "")
	require.NoError(t, err)
	assert.Equal(t, models.EvidenceSubmissionAcceptance, c.EvidenceType)

	doc, err := ParseDocument(c.Evidence)
	require.NoError(t, err)
	require.NoError(t, doc.Verify(nil))
	sum := sha256.Sum256([]byte("document"))
	assert.Equal(t, hex.EncodeToString(sum[:]), doc.Facts.DocumentHash)
	assert.Equal(t, "SHA256", doc.Facts.HashAlgorithm)
	assert.Equal(t, "national-1", doc.Facts.NationalMessageID)
	assert.Equal(t, "sender", doc.Facts.Sender.ID)
	assert.Equal(t, "receiver", doc.Facts.Recipient.ID)
	assert.Equal(t, "connector-test", doc.Facts.Issuer)
	assert.Empty(t, doc.PredecessorDigest)
	assert.Empty(t, msg.RelatedConfirmations)
}

func TestCreateEvidence_ChainsToPredecessor(t *testing.T) {
	b := newBuilder(t, NewDocumentSigner())
	ctx := context.Background()
	msg := outboundMessage()

	submission, err := b.CreateEvidence(ctx, models.EvidenceSubmissionAcceptance, msg, models.RejectionReasonNone, "")
	require.NoError(t, err)
	msg.RelatedConfirmations = append(msg.RelatedConfirmations, submission)

	relay, err := b.CreateEvidence(ctx, models.EvidenceRelayREMMDAcceptance, msg, models.RejectionReasonNone, "")
	require.NoError(t, err)

	doc, err := ParseDocument(relay.Evidence)
	require.NoError(t, err)
	assert.NoError(t, doc.Verify(submission.Evidence))
	assert.Error(t, doc.Verify([]byte("something else")))
	assert.Empty(t, doc.Facts.DocumentHash)
}

func TestCreateEvidence_MissingPredecessor(t *testing.T) {
	b := newBuilder(t, NewDocumentSigner())
	msg := outboundMessage()
	before := msg.Clone()

	tests := []models.EvidenceType{
		models.EvidenceRelayREMMDAcceptance,
		models.EvidenceDelivery,
		models.EvidenceRetrieval,
	}
	for _, evidenceType := range tests {
		t.Run(string(evidenceType), func(t *testing.T) {
			_, err := b.CreateEvidence(context.Background(), evidenceType, msg, models.RejectionReasonNone, "")
			assert.True(t, pkgerrors.IsEvidenceGeneration(err))
			assert.Equal(t, before, msg)
		})
	}
}

func TestCreateEvidence_NegativeRequiresReasonAndDetails(t *testing.T) {
	b := newBuilder(t, NewDocumentSigner())
	msg := outboundMessage()

	tests := []struct {
		name    string
		reason  models.RejectionReason
		details string
		wantErr bool
	}{
		{name: "reason and details", reason: models.RejectionReasonInvalidContainer, details: "bad signature"},
		{name: "missing reason", details: "bad signature", wantErr: true},
		{name: "blank details", reason: models.RejectionReasonInvalidContainer, details: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := b.CreateEvidence(context.Background(), models.EvidenceSubmissionRejection, msg, tt.reason, tt.details)
			if tt.wantErr {
				assert.True(t, pkgerrors.IsEvidenceGeneration(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.reason, c.RejectionReason)
			assert.Equal(t, tt.details, c.Details)
		})
	}
}

func TestCreateEvidence_SignerFailure(t *testing.T) {
	b := newBuilder(t, failingSigner{err: errors.New("hsm unavailable")})

	_, err := b.CreateEvidence(context.Background(), models.EvidenceSubmissionAcceptance, outboundMessage(), models.RejectionReasonNone, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsEvidenceGeneration(err))
	assert.Contains(t, err.Error(), "hsm unavailable")
}

func TestNewBuilder_RejectsUnknownAlgorithm(t *testing.T) {
	_, err := NewBuilder(config.EvidenceConfig{HashAlgorithm: "crc32"}, NewDocumentSigner(), logger.NopLogger())
	assert.True(t, pkgerrors.IsConfiguration(err))
}
