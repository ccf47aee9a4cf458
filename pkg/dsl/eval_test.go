package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"connector/pkg/models"
)

func testDetails() *models.MessageDetails {
	return &models.MessageDetails{
		Service:        models.Service{Name: "EPO", Type: "urn:e-codex:services:"},
		Action:         "Form_A",
		FromParty:      models.Party{ID: "gw01", IDType: "urn:oasis:names:tc:ebcore:partyid-type:unregistered", Role: "GW"},
		FinalRecipient: "court-42",
	}
}

func TestEvaluate(t *testing.T) {
	d := testDetails()

	tests := []struct {
		expr string
		want bool
	}{
		{"equals(Action,'Form_A')", true},
		{"equals(Action,'Form_B')", false},
		{"startswith(Action,'Form')", true},
		{"startswith(Action,'form')", false},
		{"equals(ServiceName,'EPO')", true},
		{"equals(ServiceType,'urn:e-codex:services:')", true},
		{"equals(FromPartyId,'gw01')", true},
		{"equals(FromPartyRole,'GW')", true},
		{"startswith(FromPartyIdType,'urn:oasis')", true},
		{"equals(FinalRecipient,'court-42')", true},
		{"&(equals(Action,'Form_A'),equals(ServiceName,'EPO'))", true},
		{"&(equals(Action,'Form_A'),equals(ServiceName,'SC'))", false},
		{"|(equals(Action,'x'),equals(ServiceName,'EPO'))", true},
		{"|(equals(Action,'x'),equals(ServiceName,'y'))", false},
		{"not(equals(Action,'Form_A'))", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(MustParse(tt.expr), d))
		})
	}
}

func TestEvaluate_Laws(t *testing.T) {
	atoms := []Node{
		Equals{Attr: AttrAction, Value: "Form_A"},
		Equals{Attr: AttrAction, Value: "Form_B"},
		StartsWith{Attr: AttrServiceName, Value: "EP"},
		StartsWith{Attr: AttrFinalRecipient, Value: "nobody"},
		MustParse("|(equals(FromPartyId,'gw01'),equals(FromPartyId,'gw02'))"),
	}
	d := testDetails()

	for _, a := range atoms {
		assert.Equal(t, Evaluate(a, d), Evaluate(Not{Inner: Not{Inner: a}}, d), "double negation of %s", String(a))
		for _, b := range atoms {
			assert.Equal(t, Evaluate(a, d) && Evaluate(b, d), Evaluate(And(a, b), d), "and(%s, %s)", String(a), String(b))
			assert.Equal(t, Evaluate(a, d) || Evaluate(b, d), Evaluate(Or(a, b), d), "or(%s, %s)", String(a), String(b))
		}
	}
}

func TestEvaluate_UnknownAttributePanics(t *testing.T) {
	node := Equals{Attr: Attribute("ToPartyId"), Value: "x"}
	assert.Panics(t, func() { Evaluate(node, testDetails()) })
}

func TestValidValue(t *testing.T) {
	assert.True(t, ValidValue("urn:a/b.c~d#e?f_g-h"))
	assert.False(t, ValidValue("has space"))
	assert.False(t, ValidValue("quote'"))
	assert.False(t, ValidValue(""))
}
