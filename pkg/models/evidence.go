package models

import (
	"fmt"
	"time"
)

type EvidenceType string

const (
	EvidenceSubmissionAcceptance EvidenceType = "SUBMISSION_ACCEPTANCE"
	EvidenceSubmissionRejection  EvidenceType = "SUBMISSION_REJECTION"
	EvidenceRelayREMMDAcceptance EvidenceType = "RELAY_REMMD_ACCEPTANCE"
	EvidenceRelayREMMDRejection  EvidenceType = "RELAY_REMMD_REJECTION"
	EvidenceRelayREMMDFailure    EvidenceType = "RELAY_REMMD_FAILURE"
	EvidenceDelivery             EvidenceType = "DELIVERY"
	EvidenceNonDelivery          EvidenceType = "NON_DELIVERY"
	EvidenceRetrieval            EvidenceType = "RETRIEVAL"
	EvidenceNonRetrieval         EvidenceType = "NON_RETRIEVAL"
)

var AllEvidenceTypes = []EvidenceType{
	EvidenceSubmissionAcceptance,
	EvidenceSubmissionRejection,
	EvidenceRelayREMMDAcceptance,
	EvidenceRelayREMMDRejection,
	EvidenceRelayREMMDFailure,
	EvidenceDelivery,
	EvidenceNonDelivery,
	EvidenceRetrieval,
	EvidenceNonRetrieval,
}

func ParseEvidenceType(s string) (EvidenceType, error) {
	for _, t := range AllEvidenceTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown evidence type: %q", s)
}

// IsNegative reports whether the evidence attests a failed delivery step.
func (t EvidenceType) IsNegative() bool {
	switch t {
	case EvidenceSubmissionRejection, EvidenceRelayREMMDRejection, EvidenceRelayREMMDFailure,
		EvidenceNonDelivery, EvidenceNonRetrieval:
		return true
	}
	return false
}

// ConfirmsMessage reports whether receiving this evidence makes the
// referenced business message terminally confirmed.
func (t EvidenceType) ConfirmsMessage() bool {
	return t == EvidenceDelivery || t == EvidenceRetrieval
}

// RejectsMessage reports whether receiving this evidence makes the
// referenced business message terminally rejected.
func (t EvidenceType) RejectsMessage() bool {
	return t.IsNegative()
}

// IsTriggerable lists the evidence types a backend may ask the connector to
// synthesize on its behalf.
func (t EvidenceType) IsTriggerable() bool {
	switch t {
	case EvidenceDelivery, EvidenceNonDelivery, EvidenceRetrieval, EvidenceNonRetrieval:
		return true
	}
	return false
}

type RejectionReason string

const (
	RejectionReasonNone              RejectionReason = ""
	RejectionReasonOther             RejectionReason = "OTHER"
	RejectionReasonSecurityViolation RejectionReason = "SECURITY_VIOLATION"
	RejectionReasonInvalidContainer  RejectionReason = "INVALID_CONTAINER"
	RejectionReasonUnknownRecipient  RejectionReason = "UNKNOWN_RECIPIENT"
	RejectionReasonDeliveryTimeout   RejectionReason = "DELIVERY_TIMEOUT"
	RejectionReasonNotPermitted      RejectionReason = "NOT_PERMITTED"
	RejectionReasonRoutingFailure    RejectionReason = "ROUTING_FAILURE"
)

type Confirmation struct {
	EvidenceType    EvidenceType    `json:"evidence_type" validate:"required"`
	Evidence        []byte          `json:"evidence,omitempty"`
	RejectionReason RejectionReason `json:"rejection_reason,omitempty"`
	Details         string          `json:"details,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// IsTrigger reports whether the confirmation is an evidence trigger: a
// request to synthesize evidence rather than signed evidence itself.
func (c Confirmation) IsTrigger() bool {
	return len(c.Evidence) == 0
}
