package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"connector/pkg/models"
)

func TestRequiredPredecessor(t *testing.T) {
	tests := []struct {
		evidence models.EvidenceType
		want     models.EvidenceType
		root     bool
	}{
		{evidence: models.EvidenceSubmissionAcceptance, root: true},
		{evidence: models.EvidenceSubmissionRejection, root: true},
		{evidence: models.EvidenceRelayREMMDAcceptance, want: models.EvidenceSubmissionAcceptance},
		{evidence: models.EvidenceRelayREMMDRejection, want: models.EvidenceSubmissionAcceptance},
		{evidence: models.EvidenceRelayREMMDFailure, want: models.EvidenceSubmissionAcceptance},
		{evidence: models.EvidenceDelivery, want: models.EvidenceRelayREMMDAcceptance},
		{evidence: models.EvidenceNonDelivery, want: models.EvidenceRelayREMMDAcceptance},
		{evidence: models.EvidenceRetrieval, want: models.EvidenceDelivery},
		{evidence: models.EvidenceNonRetrieval, want: models.EvidenceDelivery},
	}

	for _, tt := range tests {
		t.Run(string(tt.evidence), func(t *testing.T) {
			got, ok := RequiredPredecessor(tt.evidence)
			assert.Equal(t, !tt.root, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.root, IsRoot(tt.evidence))
		})
	}
}

func TestEveryEvidenceTypeHasFactsBuilder(t *testing.T) {
	for _, evidenceType := range models.AllEvidenceTypes {
		_, ok := factsBuilders[evidenceType]
		assert.True(t, ok, "missing facts builder for %s", evidenceType)
	}
}
