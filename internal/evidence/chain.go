package evidence

import "connector/pkg/models"

// predecessors maps each non-root evidence type to the evidence that must
// already be among the message's related confirmations.
var predecessors = map[models.EvidenceType]models.EvidenceType{
	models.EvidenceRelayREMMDAcceptance: models.EvidenceSubmissionAcceptance,
	models.EvidenceRelayREMMDRejection:  models.EvidenceSubmissionAcceptance,
	models.EvidenceRelayREMMDFailure:    models.EvidenceSubmissionAcceptance,
	models.EvidenceDelivery:             models.EvidenceRelayREMMDAcceptance,
	models.EvidenceNonDelivery:          models.EvidenceRelayREMMDAcceptance,
	models.EvidenceRetrieval:            models.EvidenceDelivery,
	models.EvidenceNonRetrieval:         models.EvidenceDelivery,
}

// RequiredPredecessor returns the evidence type t is chained to. Root types
// report false.
func RequiredPredecessor(t models.EvidenceType) (models.EvidenceType, bool) {
	p, ok := predecessors[t]
	return p, ok
}

func IsRoot(t models.EvidenceType) bool {
	_, ok := predecessors[t]
	return !ok
}
