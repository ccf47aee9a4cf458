package pmode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connector/internal/config"
	"connector/internal/logger"
	pkgerrors "connector/pkg/errors"
	"connector/pkg/models"
)

func lanes() []config.LaneConfig {
	return []config.LaneConfig{
		{
			ID: "epo",
			PModes: []config.PModeConfig{
				{Service: "EPO", Action: "Form_A"},
				{
					Service:     "EPO",
					ServiceType: "urn:epo",
					Action:      "Form_B",
					FromParties: []string{"court-at"},
					ToParties:   []string{"court-de"},
				},
				{Service: "EPO", Action: "Form_C", Constraint: `attachment_count <= 1 && from_role == "initiator"`},
			},
		},
		{ID: "empty"},
	}
}

func msg(lane, action, serviceType, from, to string) *models.Message {
	return models.NewMessageBuilder().
		WithDirection(models.DirectionBackendToGateway).
		WithLane(lane).
		WithService("EPO", serviceType).
		WithAction(action).
		WithParties(models.Party{ID: from, Role: "initiator"}, models.Party{ID: to}).
		Build()
}

func TestVerify(t *testing.T) {
	v, err := NewVerifier(lanes(), logger.NopLogger())
	require.NoError(t, err)

	withAttachments := msg("epo", "Form_C", "", "a", "b")
	withAttachments.Attachments = []models.Attachment{{Identifier: "1"}, {Identifier: "2"}}

	tests := []struct {
		name         string
		msg          *models.Message
		wantSecurity bool
		wantConfig   bool
	}{
		{name: "open exchange", msg: msg("epo", "Form_A", "", "anyone", "anyone")},
		{name: "parties permitted", msg: msg("epo", "Form_B", "urn:epo", "court-at", "court-de")},
		{name: "sender not permitted", msg: msg("epo", "Form_B", "urn:epo", "court-fr", "court-de"), wantSecurity: true},
		{name: "service type mismatch", msg: msg("epo", "Form_B", "urn:other", "court-at", "court-de"), wantSecurity: true},
		{name: "unknown action", msg: msg("epo", "Form_Z", "", "a", "b"), wantSecurity: true},
		{name: "constraint holds", msg: msg("epo", "Form_C", "", "a", "b")},
		{name: "constraint fails", msg: withAttachments, wantSecurity: true},
		{name: "lane without pmodes", msg: msg("empty", "Form_A", "", "a", "b"), wantConfig: true},
		{name: "unknown lane", msg: msg("nowhere", "Form_A", "", "a", "b"), wantConfig: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(context.Background(), tt.msg)
			switch {
			case tt.wantSecurity:
				assert.True(t, pkgerrors.IsSecurityValidation(err), "got %v", err)
			case tt.wantConfig:
				assert.True(t, pkgerrors.IsConfiguration(err), "got %v", err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewVerifier_InvalidConstraint(t *testing.T) {
	_, err := NewVerifier([]config.LaneConfig{{
		ID:     "epo",
		PModes: []config.PModeConfig{{Service: "EPO", Action: "Form_A", Constraint: `action + 1`}},
	}}, logger.NopLogger())
	assert.True(t, pkgerrors.IsConfiguration(err))
}
