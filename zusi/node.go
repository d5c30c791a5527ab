// Package zusi implements the node tree and TCP framing used by the Zusi 3
// simulator, plus the client side of its connection handshake.
package zusi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

var (
	// ErrAttributeSize is returned when an attribute is decoded as a type
	// whose size does not match the stored value.
	ErrAttributeSize = errors.New("attribute size mismatch")

	// ErrAttributeEncoding is returned when a text attribute is not valid UTF-8.
	ErrAttributeEncoding = errors.New("attribute is not valid utf-8")
)

// Node is one element of a Zusi message tree.
type Node struct {
	ID         uint16      `cbor:"1,keyasint"`
	Attributes []Attribute `cbor:"2,keyasint,omitempty"`
	Children   []*Node     `cbor:"3,keyasint,omitempty"`
}

// Attribute is a raw, untyped node attribute.
type Attribute struct {
	ID    uint16 `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
}

// NewNode returns a node with the given children.
func NewNode(id uint16, children ...*Node) *Node {
	return &Node{ID: id, Children: children}
}

// With appends attributes and returns n.
func (n *Node) With(attrs ...Attribute) *Node {
	n.Attributes = append(n.Attributes, attrs...)
	return n
}

// Attribute returns the first attribute whose id is one of ids.
func (n *Node) Attribute(ids ...uint16) (Attribute, bool) {
	for _, a := range n.Attributes {
		for _, id := range ids {
			if a.ID == id {
				return a, true
			}
		}
	}

	return Attribute{}, false
}

// ChildrenWithID returns the direct children with the given id, in order.
func (n *Node) ChildrenWithID(id uint16) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.ID == id {
			out = append(out, c)
		}
	}

	return out
}

// Child returns the first direct child with the given id.
func (n *Node) Child(id uint16) (*Node, bool) {
	for _, c := range n.Children {
		if c.ID == id {
			return c, true
		}
	}

	return nil, false
}

// The typed lookups below report ok == false both when no attribute matches
// and when the matching attribute does not decode. Callers treat either as
// "not reported this cycle".

func (n *Node) Uint8(ids ...uint16) (uint8, bool) {
	a, ok := n.Attribute(ids...)
	if !ok {
		return 0, false
	}
	v, err := a.Uint8()
	return v, err == nil
}

func (n *Node) Uint16(ids ...uint16) (uint16, bool) {
	a, ok := n.Attribute(ids...)
	if !ok {
		return 0, false
	}
	v, err := a.Uint16()
	return v, err == nil
}

func (n *Node) Int16(ids ...uint16) (int16, bool) {
	a, ok := n.Attribute(ids...)
	if !ok {
		return 0, false
	}
	v, err := a.Int16()
	return v, err == nil
}

func (n *Node) Float32(ids ...uint16) (float32, bool) {
	a, ok := n.Attribute(ids...)
	if !ok {
		return 0, false
	}
	v, err := a.Float32()
	return v, err == nil
}

func (n *Node) Text(ids ...uint16) (string, bool) {
	a, ok := n.Attribute(ids...)
	if !ok {
		return "", false
	}
	v, err := a.Text()
	return v, err == nil
}

func Uint8Attr(id uint16, v uint8) Attribute {
	return Attribute{ID: id, Value: []byte{v}}
}

func Uint16Attr(id uint16, v uint16) Attribute {
	return Attribute{ID: id, Value: binary.LittleEndian.AppendUint16(nil, v)}
}

func Int16Attr(id uint16, v int16) Attribute {
	return Uint16Attr(id, uint16(v))
}

func Float32Attr(id uint16, v float32) Attribute {
	return Attribute{ID: id, Value: binary.LittleEndian.AppendUint32(nil, math.Float32bits(v))}
}

func TextAttr(id uint16, v string) Attribute {
	return Attribute{ID: id, Value: []byte(v)}
}

func (a Attribute) sized(n int) error {
	if len(a.Value) != n {
		return fmt.Errorf("%w: attribute 0x%04X has %d bytes, want %d", ErrAttributeSize, a.ID, len(a.Value), n)
	}
	return nil
}

func (a Attribute) Uint8() (uint8, error) {
	if err := a.sized(1); err != nil {
		return 0, err
	}
	return a.Value[0], nil
}

func (a Attribute) Uint16() (uint16, error) {
	if err := a.sized(2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(a.Value), nil
}

func (a Attribute) Int16() (int16, error) {
	v, err := a.Uint16()
	return int16(v), err
}

func (a Attribute) Float32() (float32, error) {
	if err := a.sized(4); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(a.Value)), nil
}

func (a Attribute) Text() (string, error) {
	if !utf8.Valid(a.Value) {
		return "", fmt.Errorf("%w: attribute 0x%04X", ErrAttributeEncoding, a.ID)
	}
	return string(a.Value), nil
}
