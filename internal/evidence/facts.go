package evidence

import (
	"time"

	"connector/pkg/models"
)

// Facts is what an evidence attests, independent of how it is signed.
type Facts struct {
	EvidenceType       models.EvidenceType    `json:"evidence_type"`
	EventTime          time.Time              `json:"event_time"`
	Issuer             string                 `json:"issuer,omitempty"`
	ConnectorMessageID string                 `json:"connector_message_id"`
	EbmsMessageID      string                 `json:"ebms_message_id,omitempty"`
	NationalMessageID  string                 `json:"national_message_id,omitempty"`
	Sender             models.Party           `json:"sender"`
	Recipient          models.Party           `json:"recipient"`
	OriginalSender     string                 `json:"original_sender,omitempty"`
	FinalRecipient     string                 `json:"final_recipient,omitempty"`
	Service            models.Service         `json:"service"`
	Action             string                 `json:"action,omitempty"`
	DocumentName       string                 `json:"document_name,omitempty"`
	DocumentHash       string                 `json:"document_hash,omitempty"`
	HashAlgorithm      string                 `json:"hash_algorithm,omitempty"`
	Endpoint           string                 `json:"endpoint,omitempty"`
	RejectionReason    models.RejectionReason `json:"rejection_reason,omitempty"`
	Details            string                 `json:"details,omitempty"`
}

type factsInput struct {
	msg     *models.Message
	reason  models.RejectionReason
	details string
	now     time.Time
	issuer  string
}

type factsBuilder func(in factsInput) Facts

var factsBuilders = map[models.EvidenceType]factsBuilder{
	models.EvidenceSubmissionAcceptance: submissionFacts,
	models.EvidenceSubmissionRejection:  submissionFacts,
	models.EvidenceRelayREMMDAcceptance: relayFacts,
	models.EvidenceRelayREMMDRejection:  relayFacts,
	models.EvidenceRelayREMMDFailure:    relayFacts,
	models.EvidenceDelivery:             deliveryFacts,
	models.EvidenceNonDelivery:          deliveryFacts,
	models.EvidenceRetrieval:            retrievalFacts,
	models.EvidenceNonRetrieval:         retrievalFacts,
}

func commonFacts(in factsInput) Facts {
	d := in.msg.Details
	return Facts{
		EventTime:          in.now,
		Issuer:             in.issuer,
		ConnectorMessageID: in.msg.ConnectorMessageID,
		EbmsMessageID:      d.EbmsMessageID,
		Sender:             d.FromParty,
		Recipient:          d.ToParty,
		Service:            d.Service,
		Action:             d.Action,
		RejectionReason:    in.reason,
		Details:            in.details,
	}
}

// submissionFacts also carries the sender side identifiers; the document
// hash is added by the builder.
func submissionFacts(in factsInput) Facts {
	f := commonFacts(in)
	f.NationalMessageID = in.msg.Details.BackendMessageID
	f.OriginalSender = in.msg.Details.OriginalSender
	f.FinalRecipient = in.msg.Details.FinalRecipient
	if in.msg.Content != nil {
		f.DocumentName = in.msg.Content.DocumentName
	}
	return f
}

func relayFacts(in factsInput) Facts {
	f := commonFacts(in)
	f.Endpoint = in.msg.GatewayLink
	return f
}

func deliveryFacts(in factsInput) Facts {
	f := commonFacts(in)
	f.Endpoint = in.msg.BackendLink
	f.FinalRecipient = in.msg.Details.FinalRecipient
	return f
}

func retrievalFacts(in factsInput) Facts {
	f := deliveryFacts(in)
	f.NationalMessageID = in.msg.Details.BackendMessageID
	return f
}
