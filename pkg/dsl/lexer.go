package dsl

import (
	"strings"
	"unicode/utf8"
)

// Tokenize scans input left to right. It stops after the first illegal
// token; the returned slice always ends with TokenIllegal or TokenEOF.
func Tokenize(input string) []Token {
	return scan(input, tokenDefs)
}

func scan(input string, defs []tokenDef) []Token {
	var tokens []Token
	pos := 0
	for {
		pos = skipSpace(input, pos)
		if pos >= len(input) {
			return append(tokens, Token{Kind: TokenEOF, Column: pos})
		}

		tok, ok := match(input, pos, defs)
		if !ok {
			_, size := utf8.DecodeRuneInString(input[pos:])
			return append(tokens, Token{Kind: TokenIllegal, Text: input[pos : pos+size], Column: pos})
		}
		tokens = append(tokens, tok.Token)
		pos += tok.width
	}
}

func match(input string, pos int, defs []tokenDef) (tokenWithWidth, bool) {
	rest := input[pos:]
	for _, def := range defs {
		loc := def.pattern.FindStringIndex(rest)
		if loc == nil || loc[0] != 0 || loc[1] == 0 {
			continue
		}
		text := rest[:loc[1]]
		if def.kind == TokenValue {
			text = strings.Trim(text, "'")
		}
		return tokenWithWidth{
			Token: Token{Kind: def.kind, Text: text, Column: pos},
			width: loc[1],
		}, true
	}
	return tokenWithWidth{}, false
}

type tokenWithWidth struct {
	Token
	width int
}

func skipSpace(input string, pos int) int {
	for pos < len(input) {
		switch input[pos] {
		case ' ', '\t', '\n', '\r':
			pos++
		default:
			return pos
		}
	}
	return pos
}
