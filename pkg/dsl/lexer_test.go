package dsl

import (
	"regexp"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(tokens []Token) []TokenKind {
	out := make([]TokenKind, len(tokens))
	for i, t := range tokens {
		out[i] = t.Kind
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []TokenKind
	}{
		{
			name:  "compare with semicolon",
			input: "equals(Action;'Form_A')",
			want:  []TokenKind{TokenEquals, TokenLParen, TokenAction, TokenSemicolon, TokenValue, TokenRParen, TokenEOF},
		},
		{
			name:  "whitespace is skipped",
			input: "  not (\tstartswith( ServiceName , 'EP' ) )\n",
			want: []TokenKind{
				TokenNot, TokenLParen, TokenStartsWith, TokenLParen, TokenServiceName,
				TokenComma, TokenValue, TokenRParen, TokenRParen, TokenEOF,
			},
		},
		{
			name:  "boolean operators",
			input: "&|",
			want:  []TokenKind{TokenAnd, TokenOr, TokenEOF},
		},
		{
			name:  "illegal input stops scanning",
			input: "equals(Action,\"x\")",
			want:  []TokenKind{TokenEquals, TokenLParen, TokenAction, TokenComma, TokenIllegal},
		},
		{
			name:  "value with full charset",
			input: "'urn:oasis:names:tc:ebcore:partyid-type:iso6523:0088~a/b.c#d?e_f'",
			want:  []TokenKind{TokenValue, TokenEOF},
		},
		{
			name:  "empty quotes are illegal",
			input: "''",
			want:  []TokenKind{TokenIllegal},
		},
		{
			name:  "empty input",
			input: "",
			want:  []TokenKind{TokenEOF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, kinds(Tokenize(tt.input)))
		})
	}
}

func TestTokenize_ValueTextAndColumns(t *testing.T) {
	tokens := Tokenize("equals(FinalRecipient, 'urn:x:1')")
	require.Len(t, tokens, 7)

	assert.Equal(t, 0, tokens[0].Column)
	assert.Equal(t, 6, tokens[1].Column)
	assert.Equal(t, 7, tokens[2].Column)
	assert.Equal(t, "FinalRecipient", tokens[2].Text)
	assert.Equal(t, 23, tokens[4].Column)
	assert.Equal(t, "urn:x:1", tokens[4].Text)
	assert.Equal(t, 33, tokens[6].Column)
}

func TestTokenize_IllegalRune(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantText   string
		wantColumn int
	}{
		{name: "ascii", input: "equals(Action,\"x\")", wantText: "\"", wantColumn: 14},
		{name: "umlaut in attribute", input: "equals(Äction,'x')", wantText: "Ä", wantColumn: 7},
		{name: "symbol at start", input: "§ equals(Action,'x')", wantText: "§", wantColumn: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := Tokenize(tt.input)
			last := tokens[len(tokens)-1]
			assert.Equal(t, TokenIllegal, last.Kind)
			assert.Equal(t, tt.wantText, last.Text)
			assert.True(t, utf8.ValidString(last.Text))
			assert.Equal(t, tt.wantColumn, last.Column)
		})
	}
}

func TestTokenize_DeclarationOrderWins(t *testing.T) {
	t.Run("FromPartyIdType is not split into FromPartyId and Type", func(t *testing.T) {
		tokens := Tokenize("FromPartyIdType")
		assert.Equal(t, []TokenKind{TokenFromPartyIDType, TokenEOF}, kinds(tokens))
	})

	t.Run("FromPartyId followed by other input", func(t *testing.T) {
		tokens := Tokenize("FromPartyId;")
		assert.Equal(t, []TokenKind{TokenFromPartyID, TokenSemicolon, TokenEOF}, kinds(tokens))
	})

	t.Run("earlier declaration beats longer match", func(t *testing.T) {
		short := tokenDef{TokenNot, regexp.MustCompile(`^no`)}
		long := tokenDef{TokenEquals, regexp.MustCompile(`^not`)}

		first := scan("not", []tokenDef{short, long})
		require.NotEmpty(t, first)
		assert.Equal(t, TokenNot, first[0].Kind)
		assert.Equal(t, "no", first[0].Text)

		second := scan("not", []tokenDef{long, short})
		require.NotEmpty(t, second)
		assert.Equal(t, TokenEquals, second[0].Kind)
		assert.Equal(t, "not", second[0].Text)
	})
}
