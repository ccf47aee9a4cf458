package dsl

import (
	"fmt"
	"regexp"
)

type TokenKind int

// Token kinds in declaration order. The lexer tries them in this order and
// the first kind matching at the current offset wins, so FromPartyIdType
// must stay ahead of FromPartyId.
const (
	TokenFromPartyIDType TokenKind = iota
	TokenFromPartyID
	TokenFromPartyRole
	TokenServiceType
	TokenServiceName
	TokenFinalRecipient
	TokenAction
	TokenAnd
	TokenOr
	TokenNot
	TokenEquals
	TokenStartsWith
	TokenLParen
	TokenRParen
	TokenComma
	TokenSemicolon
	TokenValue

	TokenIllegal
	TokenEOF
)

var tokenNames = map[TokenKind]string{
	TokenFromPartyIDType: "FromPartyIdType",
	TokenFromPartyID:     "FromPartyId",
	TokenFromPartyRole:   "FromPartyRole",
	TokenServiceType:     "ServiceType",
	TokenServiceName:     "ServiceName",
	TokenFinalRecipient:  "FinalRecipient",
	TokenAction:          "Action",
	TokenAnd:             "&",
	TokenOr:              "|",
	TokenNot:             "not",
	TokenEquals:          "equals",
	TokenStartsWith:      "startswith",
	TokenLParen:          "(",
	TokenRParen:          ")",
	TokenComma:           ",",
	TokenSemicolon:       ";",
	TokenValue:           "'value'",
	TokenIllegal:         "ILLEGAL",
	TokenEOF:             "EOF",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

func (k TokenKind) isAttribute() bool {
	return k >= TokenFromPartyIDType && k <= TokenAction
}

type Token struct {
	Kind TokenKind
	// Text is the matched input. For TokenValue the surrounding quotes are
	// stripped.
	Text   string
	Column int
}

func (t Token) String() string {
	switch t.Kind {
	case TokenValue:
		return fmt.Sprintf("'%s'@%d", t.Text, t.Column)
	case TokenEOF:
		return fmt.Sprintf("EOF@%d", t.Column)
	default:
		return fmt.Sprintf("%q@%d", t.Text, t.Column)
	}
}

type tokenDef struct {
	kind    TokenKind
	pattern *regexp.Regexp
}

const valueChars = `[A-Za-z0-9:_\-~./#?]+`

var valuePattern = regexp.MustCompile(`^` + valueChars + `$`)

var tokenDefs = []tokenDef{
	{TokenFromPartyIDType, regexp.MustCompile(`^FromPartyIdType`)},
	{TokenFromPartyID, regexp.MustCompile(`^FromPartyId`)},
	{TokenFromPartyRole, regexp.MustCompile(`^FromPartyRole`)},
	{TokenServiceType, regexp.MustCompile(`^ServiceType`)},
	{TokenServiceName, regexp.MustCompile(`^ServiceName`)},
	{TokenFinalRecipient, regexp.MustCompile(`^FinalRecipient`)},
	{TokenAction, regexp.MustCompile(`^Action`)},
	{TokenAnd, regexp.MustCompile(`^&`)},
	{TokenOr, regexp.MustCompile(`^\|`)},
	{TokenNot, regexp.MustCompile(`^not`)},
	{TokenEquals, regexp.MustCompile(`^equals`)},
	{TokenStartsWith, regexp.MustCompile(`^startswith`)},
	{TokenLParen, regexp.MustCompile(`^\(`)},
	{TokenRParen, regexp.MustCompile(`^\)`)},
	{TokenComma, regexp.MustCompile(`^,`)},
	{TokenSemicolon, regexp.MustCompile(`^;`)},
	{TokenValue, regexp.MustCompile(`^'` + valueChars + `'`)},
}
