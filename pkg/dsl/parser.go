package dsl

import (
	"fmt"
	"strings"
)

// ParseError describes the first syntax error found in an expression.
type ParseError struct {
	Column int
	// Last is the last successfully consumed token, nil at the start of input.
	Last *Token
	// Offending is the token that could not be consumed.
	Offending *Token
	Expected  []TokenKind
}

func (e *ParseError) Error() string {
	names := make([]string, len(e.Expected))
	for i, k := range e.Expected {
		names[i] = k.String()
	}
	return fmt.Sprintf("parsing error at column %d: expected one of {%s}", e.Column, strings.Join(names, ", "))
}

var (
	expectPattern   = []TokenKind{TokenAnd, TokenOr, TokenNot, TokenEquals, TokenStartsWith}
	expectAttribute = []TokenKind{
		TokenFromPartyIDType, TokenFromPartyID, TokenFromPartyRole, TokenServiceType,
		TokenServiceName, TokenFinalRecipient, TokenAction,
	}
	expectSeparator = []TokenKind{TokenSemicolon, TokenComma}
)

type parser struct {
	tokens []Token
	pos    int
	last   *Token
}

// Parse turns a routing expression into its AST.
func Parse(input string) (Node, error) {
	p := &parser{tokens: Tokenize(input)}
	node, err := p.pattern()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenEOF); err != nil {
		return nil, err
	}
	return node, nil
}

// MustParse is Parse for expressions known to be valid. It panics on error.
func MustParse(input string) Node {
	node, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return node
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Kind != TokenEOF && tok.Kind != TokenIllegal {
		p.pos++
		p.last = &tok
	}
	return tok
}

func (p *parser) fail(expected []TokenKind) error {
	tok := p.peek()
	return &ParseError{
		Column:    tok.Column,
		Last:      p.last,
		Offending: &tok,
		Expected:  expected,
	}
}

func (p *parser) expect(kinds ...TokenKind) (Token, error) {
	tok := p.peek()
	for _, k := range kinds {
		if tok.Kind == k {
			return p.advance(), nil
		}
	}
	return Token{}, p.fail(kinds)
}

func (p *parser) pattern() (Node, error) {
	switch p.peek().Kind {
	case TokenAnd, TokenOr:
		return p.binary()
	case TokenNot:
		return p.not()
	case TokenEquals, TokenStartsWith:
		return p.compare()
	}
	return nil, p.fail(expectPattern)
}

func (p *parser) binary() (Node, error) {
	op := OpAnd
	if p.advance().Kind == TokenOr {
		op = OpOr
	}
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	left, err := p.pattern()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenComma); err != nil {
		return nil, err
	}
	right, err := p.pattern()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return Binary{Op: op, Left: left, Right: right}, nil
}

func (p *parser) not() (Node, error) {
	p.advance()
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	inner, err := p.pattern()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return Not{Inner: inner}, nil
}

func (p *parser) compare() (Node, error) {
	opTok := p.advance()
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	attrTok, err := p.expect(expectAttribute...)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(expectSeparator...); err != nil {
		return nil, err
	}
	valueTok, err := p.expect(TokenValue)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	attr := attributeByToken[attrTok.Kind]
	if opTok.Kind == TokenEquals {
		return Equals{Attr: attr, Value: valueTok.Text}, nil
	}
	return StartsWith{Attr: attr, Value: valueTok.Text}, nil
}
