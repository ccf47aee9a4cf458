package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageBuilder struct {
	message *Message
}

func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{
		message: &Message{},
	}
}

func (b *MessageBuilder) WithConnectorMessageID(id string) *MessageBuilder {
	b.message.ConnectorMessageID = id
	return b
}

func (b *MessageBuilder) WithDirection(direction Direction) *MessageBuilder {
	b.message.Direction = direction
	return b
}

func (b *MessageBuilder) WithLane(laneID string) *MessageBuilder {
	b.message.LaneID = laneID
	return b
}

func (b *MessageBuilder) WithDetails(details MessageDetails) *MessageBuilder {
	b.message.Details = details
	return b
}

func (b *MessageBuilder) WithService(name, serviceType string) *MessageBuilder {
	b.message.Details.Service = Service{Name: name, Type: serviceType}
	return b
}

func (b *MessageBuilder) WithAction(action string) *MessageBuilder {
	b.message.Details.Action = action
	return b
}

func (b *MessageBuilder) WithParties(from, to Party) *MessageBuilder {
	b.message.Details.FromParty = from
	b.message.Details.ToParty = to
	return b
}

func (b *MessageBuilder) WithContent(content *MessageContent) *MessageBuilder {
	b.message.Content = content
	return b
}

func (b *MessageBuilder) WithTransportedConfirmation(c Confirmation) *MessageBuilder {
	b.message.TransportedConfirmations = append(b.message.TransportedConfirmations, c)
	return b
}

func (b *MessageBuilder) WithRelatedConfirmation(c Confirmation) *MessageBuilder {
	b.message.RelatedConfirmations = append(b.message.RelatedConfirmations, c)
	return b
}

func (b *MessageBuilder) WithBackendLink(link string) *MessageBuilder {
	b.message.BackendLink = link
	return b
}

func (b *MessageBuilder) WithGatewayLink(link string) *MessageBuilder {
	b.message.GatewayLink = link
	return b
}

func (b *MessageBuilder) Build() *Message {
	if b.message.ConnectorMessageID == "" {
		b.message.ConnectorMessageID = uuid.New().String()
	}
	if b.message.CreatedAt.IsZero() {
		b.message.CreatedAt = time.Now().UTC()
	}
	return b.message
}

// NewEvidenceMessage builds the message that carries a single confirmation
// for the business message it refers to. Parties are swapped when the
// evidence travels against the direction of the original.
func NewEvidenceMessage(original *Message, direction Direction, c Confirmation) *Message {
	details := MessageDetails{
		Service:               original.Details.Service,
		Action:                original.Details.Action,
		ConversationID:        original.Details.ConversationID,
		RefToMessageID:        original.Details.EbmsMessageID,
		RefToBackendMessageID: original.Details.BackendMessageID,
		FromParty:             original.Details.FromParty,
		ToParty:               original.Details.ToParty,
		OriginalSender:        original.Details.OriginalSender,
		FinalRecipient:        original.Details.FinalRecipient,
	}
	if direction != original.Direction {
		details.FromParty, details.ToParty = details.ToParty, details.FromParty
		details.OriginalSender, details.FinalRecipient = details.FinalRecipient, details.OriginalSender
	}

	return NewMessageBuilder().
		WithDirection(direction).
		WithLane(original.LaneID).
		WithDetails(details).
		WithBackendLink(original.BackendLink).
		WithGatewayLink(original.GatewayLink).
		WithTransportedConfirmation(c).
		Build()
}
