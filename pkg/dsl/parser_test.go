package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Node
	}{
		{
			name:  "equals",
			input: "equals(Action;'Form_A')",
			want:  Equals{Attr: AttrAction, Value: "Form_A"},
		},
		{
			name:  "startswith with comma separator",
			input: "startswith(FromPartyId,'urn:be')",
			want:  StartsWith{Attr: AttrFromPartyID, Value: "urn:be"},
		},
		{
			name:  "and of two compares",
			input: "&(equals(Action,'Form_A'),equals(ServiceName,'EPO'))",
			want: And(
				Equals{Attr: AttrAction, Value: "Form_A"},
				Equals{Attr: AttrServiceName, Value: "EPO"},
			),
		},
		{
			name:  "nested or and not",
			input: "|(not(equals(ServiceType;'urn:t')), &(startswith(FinalRecipient;'x'), equals(FromPartyRole;'GW')))",
			want: Or(
				Not{Inner: Equals{Attr: AttrServiceType, Value: "urn:t"}},
				And(
					StartsWith{Attr: AttrFinalRecipient, Value: "x"},
					Equals{Attr: AttrFromPartyRole, Value: "GW"},
				),
			),
		},
		{
			name:  "party id type attribute",
			input: "equals(FromPartyIdType,'iso6523')",
			want:  Equals{Attr: AttrFromPartyIDType, Value: "iso6523"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantColumn    int
		wantMessage   string
		wantLast      string
		wantOffending TokenKind
	}{
		{
			name:          "empty input",
			input:         "",
			wantColumn:    0,
			wantMessage:   "parsing error at column 0: expected one of {&, |, not, equals, startswith}",
			wantOffending: TokenEOF,
		},
		{
			name:          "attribute in operator position",
			input:         "Action",
			wantColumn:    0,
			wantMessage:   "parsing error at column 0: expected one of {&, |, not, equals, startswith}",
			wantOffending: TokenAction,
		},
		{
			name:          "missing value quotes",
			input:         "equals(Action;Form_A)",
			wantColumn:    14,
			wantMessage:   "parsing error at column 14: expected one of {'value'}",
			wantLast:      ";",
			wantOffending: TokenIllegal,
		},
		{
			name:          "unknown attribute",
			input:         "equals(Service;'x')",
			wantColumn:    7,
			wantMessage:   "parsing error at column 7: expected one of {FromPartyIdType, FromPartyId, FromPartyRole, ServiceType, ServiceName, FinalRecipient, Action}",
			wantLast:      "(",
			wantOffending: TokenIllegal,
		},
		{
			name:          "binary requires comma",
			input:         "&(equals(Action,'a');equals(Action,'b'))",
			wantColumn:    20,
			wantMessage:   "parsing error at column 20: expected one of {,}",
			wantLast:      ")",
			wantOffending: TokenSemicolon,
		},
		{
			name:          "trailing input",
			input:         "equals(Action,'a'))",
			wantColumn:    18,
			wantMessage:   "parsing error at column 18: expected one of {EOF}",
			wantLast:      ")",
			wantOffending: TokenRParen,
		},
		{
			name:          "unterminated",
			input:         "not(equals(Action,'a')",
			wantColumn:    22,
			wantMessage:   "parsing error at column 22: expected one of {)}",
			wantLast:      ")",
			wantOffending: TokenEOF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.wantColumn, perr.Column)
			assert.Equal(t, tt.wantMessage, perr.Error())
			require.NotNil(t, perr.Offending)
			assert.Equal(t, tt.wantOffending, perr.Offending.Kind)
			if tt.wantLast == "" {
				assert.Nil(t, perr.Last)
			} else {
				require.NotNil(t, perr.Last)
				assert.Equal(t, tt.wantLast, perr.Last.Text)
			}
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	inputs := []string{
		"equals(Action;'Form_A')",
		"startswith(ServiceName,'EP')",
		"&(equals(Action,'Form_A'),equals(ServiceName,'EPO'))",
		"|(not(equals(ServiceType;'urn:t')), &(startswith(FinalRecipient;'x'), equals(FromPartyRole;'GW')))",
		"not(not(equals(FromPartyIdType,'urn:oasis:names:tc:ebcore:partyid-type:iso6523:0088')))",
		"&(|(equals(FromPartyId,'a'),equals(FromPartyId,'b')),not(startswith(Action,'Test.')))",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			first, err := Parse(input)
			require.NoError(t, err)

			text := String(first)
			second, err := Parse(text)
			require.NoError(t, err, "canonical form %q must parse", text)
			assert.Equal(t, first, second)
			assert.Equal(t, text, String(second))
		})
	}
}

func TestString(t *testing.T) {
	node := And(
		Equals{Attr: AttrAction, Value: "Form_A"},
		Not{Inner: StartsWith{Attr: AttrServiceName, Value: "EP"}},
	)
	assert.Equal(t, "&(equals(Action;'Form_A'),not(startswith(ServiceName;'EP')))", String(node))
}

func TestMustParse(t *testing.T) {
	assert.NotPanics(t, func() { MustParse("equals(Action,'a')") })
	assert.Panics(t, func() { MustParse("equals(Action,a)") })
}

func TestAttributes(t *testing.T) {
	node := MustParse("&(equals(Action,'a'),|(equals(ServiceName,'b'),not(startswith(Action,'c'))))")
	assert.Equal(t, []Attribute{AttrAction, AttrServiceName}, Attributes(node))
}
