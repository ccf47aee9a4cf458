package dsl

import (
	"fmt"
	"strings"

	"connector/pkg/models"
)

// Evaluate reports whether the message details satisfy the expression. It is
// pure and safe for concurrent use on a shared AST.
func Evaluate(n Node, d *models.MessageDetails) bool {
	switch n := n.(type) {
	case Binary:
		if n.Op == OpAnd {
			return Evaluate(n.Left, d) && Evaluate(n.Right, d)
		}
		return Evaluate(n.Left, d) || Evaluate(n.Right, d)
	case Not:
		return !Evaluate(n.Inner, d)
	case Equals:
		return n.Attr.Extract(d) == n.Value
	case StartsWith:
		return strings.HasPrefix(n.Attr.Extract(d), n.Value)
	}
	panic(fmt.Sprintf("dsl: unknown node %T", n))
}

// String renders the canonical text of an expression. Parsing the result
// yields an AST equal to n.
func String(n Node) string {
	var b strings.Builder
	write(&b, n)
	return b.String()
}

func write(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case Binary:
		b.WriteString(n.Op.String())
		b.WriteByte('(')
		write(b, n.Left)
		b.WriteByte(',')
		write(b, n.Right)
		b.WriteByte(')')
	case Not:
		b.WriteString("not(")
		write(b, n.Inner)
		b.WriteByte(')')
	case Equals:
		fmt.Fprintf(b, "equals(%s;'%s')", n.Attr, n.Value)
	case StartsWith:
		fmt.Fprintf(b, "startswith(%s;'%s')", n.Attr, n.Value)
	default:
		panic(fmt.Sprintf("dsl: unknown node %T", n))
	}
}

// Attributes lists the attributes an expression reads, in order of first
// appearance.
func Attributes(n Node) []Attribute {
	seen := make(map[Attribute]bool)
	var out []Attribute
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case Binary:
			walk(n.Left)
			walk(n.Right)
		case Not:
			walk(n.Inner)
		case Equals:
			if !seen[n.Attr] {
				seen[n.Attr] = true
				out = append(out, n.Attr)
			}
		case StartsWith:
			if !seen[n.Attr] {
				seen[n.Attr] = true
				out = append(out, n.Attr)
			}
		}
	}
	walk(n)
	return out
}

// ValidValue reports whether v may appear inside a quoted compare value.
func ValidValue(v string) bool {
	return valuePattern.MatchString(v)
}
