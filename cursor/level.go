package cursor

import (
	"github.com/qconfig/qconfig/internal/value"
	"github.com/qconfig/qconfig/node"
	"github.com/qconfig/qconfig/source"
)

// atom pairs a Node handle with the Source it was loaded from, so a
// mutation several groups deep still knows which file to mark dirty.
// src is nil for atoms built from an in-memory tree or a fallback
// value, neither of which has a file to flush.
type atom struct {
	node *node.Node
	src  *source.Source
}

// level is the unexported counterpart of spec.md §4.5's Level: an
// ordered list of atoms, writable-first, plus whether this frame was
// reached via setArrayIndex/arrayElement. Every navigation primitive
// returns a new level rather than mutating the receiver, mirroring how
// Cursor pushes a fresh frame onto its stack rather than editing the
// frame beneath it.
type level struct {
	atoms        []atom
	arrayElement bool
}

// child navigates every atom's Map child named key, in order,
// omitting any atom that can't or won't produce one. Only the first
// atom (the top, writable layer) may auto-vivify a missing key; every
// atom after it is forced read-only for navigation purposes, per
// spec.md §4.5 ("after the first atom has been traversed, subsequent
// atoms are forced read-only") — regardless of whether that atom's own
// Node happens to be writable, which can occur when Cursor.Open layers
// more than one independently-writable Source.
func (l *level) child(key string) *level {
	next := &level{}
	for i, a := range l.atoms {
		if i == 0 {
			c, ok := a.node.Child(key)
			if !ok {
				continue
			}
			next.atoms = append(next.atoms, atom{node: c, src: a.src})
			continue
		}
		c, ok := peekChild(a.node, key)
		if !ok {
			continue
		}
		next.atoms = append(next.atoms, atom{node: c, src: a.src})
	}
	return next
}

// childAt is child's List counterpart: only index 0 may grow the List.
func (l *level) childAt(index int) *level {
	next := &level{}
	for i, a := range l.atoms {
		if i == 0 {
			c, ok := a.node.ChildAt(index)
			if !ok {
				continue
			}
			next.atoms = append(next.atoms, atom{node: c, src: a.src})
			continue
		}
		if a.node.Tag() != value.ListKind || index < 0 || index >= a.node.ArraySize() {
			continue
		}
		c := a.node.AsList()[index]
		next.atoms = append(next.atoms, atom{node: c, src: a.src})
	}
	return next
}

// convert coerces every atom to target, dropping any atom whose tag
// doesn't already match and can't be coerced. Only atom 0 may ever be
// coerced, matching child/childAt's "only the top layer may be written
// through": an atom at position ≥1 is forced read-only regardless of
// its own Node.IsReadOnly(), so a second independently-writable Source
// layered by Cursor.Open is never mutated by mere group/array
// navigation through it.
func (l *level) convert(target value.Kind) *level {
	next := &level{arrayElement: l.arrayElement}
	for i, a := range l.atoms {
		if a.node.Tag() != target {
			if i > 0 || a.node.IsReadOnly() {
				continue
			}
			_ = a.node.Convert(target)
		}
		next.atoms = append(next.atoms, a)
	}
	return next
}

// peekChild is child's read-only-safe counterpart: it looks up key in
// a Map atom without vivifying a missing one, the way a pure value()
// read must.
func peekChild(n *node.Node, key string) (*node.Node, bool) {
	if n.Tag() != value.MapKind {
		return nil, false
	}
	var found *node.Node
	var ok bool
	n.IterateMap(func(k string, child *node.Node) bool {
		if k != key {
			return true
		}
		found, ok = child, true
		return false
	})
	return found, ok
}
