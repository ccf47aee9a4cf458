package deduplication

import (
	"strings"

	"connector/internal/constants"
	"connector/pkg/digest"
	"connector/pkg/models"
)

// EvidenceKey identifies one evidence for one business message travelling in
// one direction. A second evidence with the same key is a duplicate.
type EvidenceKey struct {
	LaneID       string
	RefMessageID string
	EvidenceType models.EvidenceType
	Direction    models.Direction
}

// CacheKey hashes the key parts so arbitrary message ids stay within a
// bounded, Redis safe key.
func (k EvidenceKey) CacheKey() string {
	input := strings.Join([]string{
		k.LaneID,
		k.RefMessageID,
		string(k.EvidenceType),
		string(k.Direction),
	}, "|")
	sum, _ := digest.SHA256.SumHex([]byte(input))
	return constants.CacheKeyPrefixEvidence + sum
}
