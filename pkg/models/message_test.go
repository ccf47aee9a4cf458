package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func business() *Message {
	return NewMessageBuilder().
		WithConnectorMessageID("cm-1").
		WithDirection(DirectionGatewayToBackend).
		WithLane("epo").
		WithDetails(MessageDetails{EbmsMessageID: "e-1", BackendMessageID: "b-1", FinalRecipient: "court-at"}).
		WithService("EPO", "urn:service").
		WithAction("Form_A").
		WithParties(Party{ID: "court-de", Role: "sender"}, Party{ID: "court-at", Role: "receiver"}).
		WithContent(&MessageContent{DocumentName: "form.pdf", Document: []byte("%PDF")}).
		WithGatewayLink("gw-1").
		WithBackendLink("backend-a").
		Build()
}

func TestMessage_Kind(t *testing.T) {
	evidence := &Message{TransportedConfirmations: []Confirmation{{EvidenceType: EvidenceDelivery}}}
	bundled := business()
	bundled.TransportedConfirmations = evidence.TransportedConfirmations

	assert.Equal(t, KindBusiness, business().Kind())
	assert.Equal(t, KindBusiness, bundled.Kind())
	assert.Equal(t, KindEvidence, evidence.Kind())
	assert.Equal(t, KindCleanup, (&Message{CleanupRequested: true}).Kind())
	assert.Equal(t, KindBusiness, (&Message{}).Kind())
}

func TestMessage_Clone(t *testing.T) {
	now := time.Now()
	msg := NewMessageBuilder().
		WithConnectorMessageID("cm-2").
		WithContent(&MessageContent{Document: []byte("doc")}).
		WithRelatedConfirmation(Confirmation{EvidenceType: EvidenceSubmissionAcceptance, Evidence: []byte("ev")}).
		Build()
	msg.Details.ConfirmedAt = &now

	c := msg.Clone()
	c.Content.Document[0] = 'X'
	c.RelatedConfirmations[0].Evidence[0] = 'X'
	*c.Details.ConfirmedAt = now.Add(time.Hour)

	assert.Equal(t, "cm-2", c.ConnectorMessageID)
	assert.Equal(t, []byte("doc"), msg.Content.Document)
	assert.Equal(t, []byte("ev"), msg.RelatedConfirmations[0].Evidence)
	assert.Equal(t, now, *msg.Details.ConfirmedAt)
	assert.Nil(t, (*Message)(nil).Clone())
}

func TestMessage_State(t *testing.T) {
	msg := business()
	assert.False(t, msg.IsTerminal())
	assert.False(t, msg.HasRelatedConfirmation(EvidenceDelivery))

	now := time.Now()
	msg.Details.RejectedAt = &now
	msg.RelatedConfirmations = append(msg.RelatedConfirmations, Confirmation{
		EvidenceType:    EvidenceNonDelivery,
		RejectionReason: RejectionReasonUnknownRecipient,
	})
	assert.True(t, msg.IsRejected())
	assert.True(t, msg.IsTerminal())

	c, ok := msg.RelatedConfirmation(EvidenceNonDelivery)
	require.True(t, ok)
	assert.Equal(t, RejectionReasonUnknownRecipient, c.RejectionReason)
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(m *Message)
		wantField string
	}{
		{name: "valid"},
		{name: "missing lane", mutate: func(m *Message) { m.LaneID = "" }, wantField: "Message.LaneID"},
		{name: "unknown direction", mutate: func(m *Message) { m.Direction = "SIDEWAYS" }, wantField: "Message.Direction"},
		{
			name:      "attachment without identifier",
			mutate:    func(m *Message) { m.Attachments = []Attachment{{Name: "annex.xml"}} },
			wantField: "Message.Attachments[0].Identifier",
		},
		{
			name: "confirmed and rejected",
			mutate: func(m *Message) {
				now := time.Now()
				m.Details.ConfirmedAt = &now
				m.Details.RejectedAt = &now
			},
			wantField: "details",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := business()
			if tt.mutate != nil {
				tt.mutate(msg)
			}
			err := ValidateMessage(msg)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}

	var vErr *ValidationError
	require.ErrorAs(t, ValidateMessage(nil), &vErr)
	assert.Equal(t, "message", vErr.Field)
}

func TestEvidenceType(t *testing.T) {
	for _, et := range AllEvidenceTypes {
		parsed, err := ParseEvidenceType(string(et))
		require.NoError(t, err)
		assert.Equal(t, et, parsed)
	}
	_, err := ParseEvidenceType("delivery")
	assert.Error(t, err)

	assert.True(t, EvidenceRelayREMMDFailure.RejectsMessage())
	assert.False(t, EvidenceRelayREMMDAcceptance.RejectsMessage())
	assert.True(t, EvidenceRetrieval.ConfirmsMessage())
	assert.True(t, EvidenceNonRetrieval.IsTriggerable())
	assert.False(t, EvidenceSubmissionAcceptance.IsTriggerable())
}

func TestNewEvidenceMessage(t *testing.T) {
	original := business()
	c := Confirmation{EvidenceType: EvidenceRelayREMMDAcceptance}

	back := NewEvidenceMessage(original, DirectionBackendToGateway, c)
	assert.NotEqual(t, original.ConnectorMessageID, back.ConnectorMessageID)
	assert.Equal(t, KindEvidence, back.Kind())
	assert.Equal(t, "e-1", back.Details.RefToMessageID)
	assert.Equal(t, "b-1", back.Details.RefToBackendMessageID)
	assert.Equal(t, "court-at", back.Details.FromParty.ID)
	assert.Equal(t, "court-de", back.Details.ToParty.ID)
	assert.Equal(t, "court-at", back.Details.OriginalSender)
	assert.Equal(t, "gw-1", back.GatewayLink)

	forward := NewEvidenceMessage(original, DirectionGatewayToBackend, c)
	assert.Equal(t, "court-de", forward.Details.FromParty.ID)
	assert.Equal(t, "court-at", forward.Details.FinalRecipient)
}
