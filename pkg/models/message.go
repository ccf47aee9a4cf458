package models

import "time"

type Direction string

const (
	DirectionBackendToGateway Direction = "BACKEND_TO_GATEWAY"
	DirectionGatewayToBackend Direction = "GATEWAY_TO_BACKEND"
)

func (d Direction) Opposite() Direction {
	if d == DirectionBackendToGateway {
		return DirectionGatewayToBackend
	}
	return DirectionBackendToGateway
}

func (d Direction) Valid() bool {
	return d == DirectionBackendToGateway || d == DirectionGatewayToBackend
}

// LinkType identifies the kind of link partner a message was received from
// or is submitted to. LinkTypeConnector addresses the connector's own queues.
type LinkType string

const (
	LinkTypeGateway   LinkType = "gateway"
	LinkTypeBackend   LinkType = "backend"
	LinkTypeConnector LinkType = "connector"
)

type Kind string

const (
	KindBusiness Kind = "business"
	KindEvidence Kind = "evidence"
	KindCleanup  Kind = "cleanup"
)

type Message struct {
	ConnectorMessageID       string            `json:"connector_message_id" validate:"required"`
	Direction                Direction         `json:"direction" validate:"required,oneof=BACKEND_TO_GATEWAY GATEWAY_TO_BACKEND"`
	LaneID                   string            `json:"lane_id" validate:"required"`
	Details                  MessageDetails    `json:"details"`
	Content                  *MessageContent   `json:"content,omitempty"`
	Attachments              []Attachment      `json:"attachments,omitempty" validate:"dive"`
	Errors                   []ProcessingError `json:"errors,omitempty"`
	TransportedConfirmations []Confirmation    `json:"transported_confirmations,omitempty" validate:"dive"`
	RelatedConfirmations     []Confirmation    `json:"related_confirmations,omitempty" validate:"dive"`
	BackendLink              string            `json:"backend_link,omitempty"`
	GatewayLink              string            `json:"gateway_link,omitempty"`
	CleanupRequested         bool              `json:"cleanup_requested,omitempty"`
	CreatedAt                time.Time         `json:"created_at"`
}

type MessageDetails struct {
	Service               Service    `json:"service"`
	Action                string     `json:"action"`
	FromParty             Party      `json:"from_party"`
	ToParty               Party      `json:"to_party"`
	EbmsMessageID         string     `json:"ebms_message_id,omitempty"`
	BackendMessageID      string     `json:"backend_message_id,omitempty"`
	RefToMessageID        string     `json:"ref_to_message_id,omitempty"`
	RefToBackendMessageID string     `json:"ref_to_backend_message_id,omitempty"`
	ConversationID        string     `json:"conversation_id,omitempty"`
	OriginalSender        string     `json:"original_sender,omitempty"`
	FinalRecipient        string     `json:"final_recipient,omitempty"`
	ConfirmedAt           *time.Time `json:"confirmed_at,omitempty"`
	RejectedAt            *time.Time `json:"rejected_at,omitempty"`
}

type Service struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type Party struct {
	ID     string `json:"id"`
	IDType string `json:"id_type,omitempty"`
	Role   string `json:"role,omitempty"`
}

type MessageContent struct {
	DocumentName     string `json:"document_name,omitempty"`
	ContentType      string `json:"content_type,omitempty"`
	Document         []byte `json:"document,omitempty"`
	BusinessMetadata []byte `json:"business_metadata,omitempty"`
	Container        []byte `json:"container,omitempty"`
}

type Attachment struct {
	Identifier  string `json:"identifier" validate:"required"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data,omitempty"`
}

type ProcessingError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Source     string    `json:"source,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Kind classifies the message for processor selection. A message carrying
// business content is a business message; a message carrying only
// confirmations is an evidence message.
func (m *Message) Kind() Kind {
	if m.CleanupRequested {
		return KindCleanup
	}
	if m.Content != nil {
		return KindBusiness
	}
	if len(m.TransportedConfirmations) > 0 {
		return KindEvidence
	}
	return KindBusiness
}

func (m *Message) IsConfirmed() bool {
	return m.Details.ConfirmedAt != nil
}

func (m *Message) IsRejected() bool {
	return m.Details.RejectedAt != nil
}

func (m *Message) IsTerminal() bool {
	return m.IsConfirmed() || m.IsRejected()
}

// HasRelatedConfirmation reports whether evidence of the given type is part
// of the message's accumulated evidence history.
func (m *Message) HasRelatedConfirmation(t EvidenceType) bool {
	_, ok := m.RelatedConfirmation(t)
	return ok
}

func (m *Message) RelatedConfirmation(t EvidenceType) (Confirmation, bool) {
	for _, c := range m.RelatedConfirmations {
		if c.EvidenceType == t {
			return c, true
		}
	}
	return Confirmation{}, false
}

// Clone returns a deep copy so stores and pipelines never share slices.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Content != nil {
		content := *m.Content
		content.Document = cloneBytes(m.Content.Document)
		content.BusinessMetadata = cloneBytes(m.Content.BusinessMetadata)
		content.Container = cloneBytes(m.Content.Container)
		c.Content = &content
	}
	c.Details.ConfirmedAt = cloneTime(m.Details.ConfirmedAt)
	c.Details.RejectedAt = cloneTime(m.Details.RejectedAt)
	c.Attachments = append([]Attachment(nil), m.Attachments...)
	c.Errors = append([]ProcessingError(nil), m.Errors...)
	c.TransportedConfirmations = cloneConfirmations(m.TransportedConfirmations)
	c.RelatedConfirmations = cloneConfirmations(m.RelatedConfirmations)
	return &c
}

func cloneConfirmations(in []Confirmation) []Confirmation {
	if in == nil {
		return nil
	}
	out := make([]Confirmation, len(in))
	for i, c := range in {
		c.Evidence = cloneBytes(c.Evidence)
		out[i] = c
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
