package dsl

import (
	"fmt"

	"connector/pkg/models"
)

// Node is a parsed routing expression. The set of implementations is closed:
// Binary, Not, Equals and StartsWith.
type Node interface {
	node()
}

type BinaryOp int

const (
	OpAnd BinaryOp = iota
	OpOr
)

func (op BinaryOp) String() string {
	if op == OpAnd {
		return "&"
	}
	return "|"
}

type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

type Not struct {
	Inner Node
}

type Equals struct {
	Attr  Attribute
	Value string
}

type StartsWith struct {
	Attr  Attribute
	Value string
}

func (Binary) node()     {}
func (Not) node()        {}
func (Equals) node()     {}
func (StartsWith) node() {}

func And(left, right Node) Node { return Binary{Op: OpAnd, Left: left, Right: right} }
func Or(left, right Node) Node  { return Binary{Op: OpOr, Left: left, Right: right} }

// Attribute names an AS4 header attribute a compare expression reads.
type Attribute string

const (
	AttrFromPartyIDType Attribute = "FromPartyIdType"
	AttrFromPartyID     Attribute = "FromPartyId"
	AttrFromPartyRole   Attribute = "FromPartyRole"
	AttrServiceType     Attribute = "ServiceType"
	AttrServiceName     Attribute = "ServiceName"
	AttrFinalRecipient  Attribute = "FinalRecipient"
	AttrAction          Attribute = "Action"
)

var attributeByToken = map[TokenKind]Attribute{
	TokenFromPartyIDType: AttrFromPartyIDType,
	TokenFromPartyID:     AttrFromPartyID,
	TokenFromPartyRole:   AttrFromPartyRole,
	TokenServiceType:     AttrServiceType,
	TokenServiceName:     AttrServiceName,
	TokenFinalRecipient:  AttrFinalRecipient,
	TokenAction:          AttrAction,
}

// Extract reads the attribute from message details. An unknown attribute is
// a programming error and panics.
func (a Attribute) Extract(d *models.MessageDetails) string {
	switch a {
	case AttrFromPartyIDType:
		return d.FromParty.IDType
	case AttrFromPartyID:
		return d.FromParty.ID
	case AttrFromPartyRole:
		return d.FromParty.Role
	case AttrServiceType:
		return d.Service.Type
	case AttrServiceName:
		return d.Service.Name
	case AttrFinalRecipient:
		return d.FinalRecipient
	case AttrAction:
		return d.Action
	}
	panic(fmt.Sprintf("dsl: unknown attribute %q", string(a)))
}
