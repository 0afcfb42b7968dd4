// Package node implements the configuration value model: a tagged
// union of Map, List, Scalar, and Null, carrying a read-only flag that
// propagates to every child produced by navigation. It is the
// in-memory, mutable counterpart of the value package's tree value,
// which is the format backends actually load and save.
//
// The design follows internal/tree.Node in the teacher repository:
// a single struct covering every tag rather than a type hierarchy,
// explicit read-only bookkeeping instead of interfaces, and fail-fast
// assertions (via assertx) for invariant violations such as a tag
// mismatch in AsMap/AsList/AsScalar or a Remove/RemoveAt on a
// read-only Node, because those conditions indicate a bug in the
// caller, not a recoverable runtime state. Convert and ReplaceChild
// instead return ErrReadOnly / ErrNotMap to their caller.
package node

import (
	"github.com/qconfig/qconfig/internal/assertx"
	"github.com/qconfig/qconfig/internal/value"
)

// Node is a single configuration value: exactly one of Map, List,
// Scalar, or Null is inhabited, matching the current Tag.
type Node struct {
	tag      value.Kind
	readOnly bool

	mapKeys []string
	mapVals map[string]*Node

	list []*Node

	scalar value.Scalar
}

// NewNull constructs an absent-value Node.
func NewNull(readOnly bool) *Node {
	return &Node{tag: value.Null, readOnly: readOnly}
}

// NewMap constructs an empty Map Node.
func NewMap(readOnly bool) *Node {
	return &Node{tag: value.MapKind, readOnly: readOnly, mapVals: map[string]*Node{}}
}

// NewList constructs an empty List Node.
func NewList(readOnly bool) *Node {
	return &Node{tag: value.ListKind, readOnly: readOnly}
}

// NewScalar constructs a Scalar Node.
func NewScalar(s value.Scalar, readOnly bool) *Node {
	return &Node{tag: value.ScalarKind, readOnly: readOnly, scalar: s}
}

// Tag reports which payload is inhabited.
func (n *Node) Tag() value.Kind { return n.tag }

// IsReadOnly reports the Node's fixed-at-construction read-only flag.
func (n *Node) IsReadOnly() bool { return n.readOnly }

// AsMap asserts the Node is a Map and returns a snapshot of its
// key-to-child mapping. Use IterateMap when insertion order matters.
func (n *Node) AsMap() map[string]*Node {
	assertx.Assert(n.tag == value.MapKind, "node.AsMap: tag is %v, not map", n.tag)
	out := make(map[string]*Node, len(n.mapVals))
	for k, v := range n.mapVals {
		out[k] = v
	}
	return out
}

// AsList asserts the Node is a List and returns a snapshot of its
// elements.
func (n *Node) AsList() []*Node {
	assertx.Assert(n.tag == value.ListKind, "node.AsList: tag is %v, not list", n.tag)
	out := make([]*Node, len(n.list))
	copy(out, n.list)
	return out
}

// AsScalar asserts the Node is a Scalar and returns its payload.
func (n *Node) AsScalar() value.Scalar {
	assertx.Assert(n.tag == value.ScalarKind, "node.AsScalar: tag is %v, not scalar", n.tag)
	return n.scalar
}

// Child navigates to the Map child named key. On a writable Map
// missing the key, a fresh Null child is inserted and returned. On a
// read-only Map, a missing key yields (nil, false) rather than a new
// Null node. A writable Node whose current tag isn't Map is converted
// to Map first (Null->Map is the common case; any other tag is
// discarded, per Convert).
func (n *Node) Child(key string) (*Node, bool) {
	if n.tag != value.MapKind {
		if n.readOnly {
			return nil, false
		}
		_ = n.Convert(value.MapKind)
	}
	if child, ok := n.mapVals[key]; ok {
		return child, true
	}
	if n.readOnly {
		return nil, false
	}
	child := NewNull(false)
	n.mapKeys = append(n.mapKeys, key)
	n.mapVals[key] = child
	return child, true
}

// ChildAt navigates to the List element at index. On a writable List
// it grows the list with Null elements up to and including index. On
// a read-only List, an out-of-range index yields (nil, false).
func (n *Node) ChildAt(index int) (*Node, bool) {
	if index < 0 {
		return nil, false
	}
	if n.tag != value.ListKind {
		if n.readOnly {
			return nil, false
		}
		_ = n.Convert(value.ListKind)
	}
	if index < len(n.list) {
		return n.list[index], true
	}
	if n.readOnly {
		return nil, false
	}
	for len(n.list) <= index {
		n.list = append(n.list, NewNull(false))
	}
	return n.list[index], true
}

// ArraySize returns the List length, or 0 for any other tag.
func (n *Node) ArraySize() int {
	if n.tag != value.ListKind {
		return 0
	}
	return len(n.list)
}

// Remove deletes key from a writable Map. Reports whether a key was
// actually present.
func (n *Node) Remove(key string) bool {
	assertx.Assert(!n.readOnly, "node.Remove: node is read-only")
	if n.tag != value.MapKind {
		return false
	}
	if _, ok := n.mapVals[key]; !ok {
		return false
	}
	delete(n.mapVals, key)
	for i, k := range n.mapKeys {
		if k == key {
			n.mapKeys = append(n.mapKeys[:i], n.mapKeys[i+1:]...)
			break
		}
	}
	return true
}

// RemoveAt deletes the List element at index from a writable List.
// Reports whether index was in range (the OutOfRange error kind is
// surfaced as this boolean, per the spec's error taxonomy).
func (n *Node) RemoveAt(index int) bool {
	assertx.Assert(!n.readOnly, "node.RemoveAt: node is read-only")
	if n.tag != value.ListKind || index < 0 || index >= len(n.list) {
		return false
	}
	n.list = append(n.list[:index], n.list[index+1:]...)
	return true
}

// ReplaceChild stores newNode at key in a writable Map, first
// comparing it against the current child's materialized tree value.
// If they are structurally equal, the Map is left untouched and
// ReplaceChild reports no change — the basis for "dirty only on real
// change".
func (n *Node) ReplaceChild(key string, newNode *Node) (changed bool, err error) {
	if n.tag != value.MapKind {
		return false, errorf("Node.ReplaceChild", "%w: target tag is %v", ErrNotMap, n.tag)
	}
	if n.readOnly {
		return false, ErrReadOnly
	}
	if old, existed := n.mapVals[key]; existed {
		if value.Equal(old.ToTree(), newNode.ToTree()) {
			return false, nil
		}
	} else {
		n.mapKeys = append(n.mapKeys, key)
	}
	n.mapVals[key] = newNode
	return true, nil
}

// IterateMap yields each (key, child) pair of a Map Node in insertion
// order, stopping early if cb returns false.
func (n *Node) IterateMap(cb func(key string, child *Node) bool) {
	if n.tag != value.MapKind {
		return
	}
	for _, k := range n.mapKeys {
		if !cb(k, n.mapVals[k]) {
			return
		}
	}
}

// Convert coerces the Node to target, destroying whatever payload it
// held (Null->X is the lossless case; any other transition discards
// data, as the spec requires). It is a no-op if the Node is already
// tagged target, and fails on a read-only Node whose tag differs.
func (n *Node) Convert(target value.Kind) error {
	if n.tag == target {
		return nil
	}
	if n.readOnly {
		return ErrReadOnly
	}
	n.tag = target
	n.mapKeys = nil
	n.mapVals = nil
	n.list = nil
	n.scalar = value.Scalar{}
	if target == value.MapKind {
		n.mapVals = map[string]*Node{}
	}
	return nil
}

// ToTree materializes the Node (and its subtree) into the
// backend-neutral tree value.
func (n *Node) ToTree() value.Value {
	switch n.tag {
	case value.ScalarKind:
		return value.NewScalar(n.scalar)
	case value.MapKind:
		v := value.NewMap()
		for _, k := range n.mapKeys {
			v = v.WithField(k, n.mapVals[k].ToTree())
		}
		return v
	case value.ListKind:
		v := value.NewList()
		for _, c := range n.list {
			v = v.WithAppend(c.ToTree())
		}
		return v
	default:
		return value.NewNull()
	}
}

// FromTree is the inverse of ToTree: it builds a Node subtree from a
// tree value, giving every node in the subtree the same read-only
// flag (children of a read-only Node are always read-only, per the
// spec's propagation rule).
func FromTree(tree value.Value, readOnly bool) *Node {
	switch tree.Kind() {
	case value.ScalarKind:
		s, _ := tree.Scalar()
		return NewScalar(s, readOnly)
	case value.MapKind:
		n := NewMap(readOnly)
		for _, k := range tree.Keys() {
			child, _ := tree.Get(k)
			n.mapKeys = append(n.mapKeys, k)
			n.mapVals[k] = FromTree(child, readOnly)
		}
		return n
	case value.ListKind:
		n := NewList(readOnly)
		for _, item := range tree.Items() {
			n.list = append(n.list, FromTree(item, readOnly))
		}
		return n
	default:
		return NewNull(readOnly)
	}
}
