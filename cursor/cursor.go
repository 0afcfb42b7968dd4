// Package cursor implements the navigation and mutation surface of
// spec.md §4.6: a stack of Levels layered over one or more Sources,
// with group/array framing, slash-path lookups, and the memory-guard
// link that keeps a parent Cursor's writable Nodes alive for a clone
// produced by group() or arrayElement(). It is the part of the system
// with no direct teacher analogue (muscle has no layered-config
// cursor); its shape is grounded on the spec's own algorithmic
// description and kept in the style of the rest of this module: plain
// structs, explicit stacks, fail-fast assertions for programmer error.
package cursor

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/qconfig/qconfig/backend"
	"github.com/qconfig/qconfig/internal/assertx"
	"github.com/qconfig/qconfig/internal/value"
	"github.com/qconfig/qconfig/node"
	"github.com/qconfig/qconfig/pathresolve"
	"github.com/qconfig/qconfig/saver"
	"github.com/qconfig/qconfig/source"
)

// Flag is the set of per-value options spec.md §6.5 names.
type Flag uint8

const (
	// Normal applies no transform to a value on read or write.
	Normal Flag = 0
	// Crypted routes a value through Crypto.Encrypt/Decrypt on
	// write/read respectively.
	Crypted Flag = 1 << 0
)

func (f Flag) has(x Flag) bool { return f&x != 0 }

// Crypto is the external collaborator consumed by value()/setValue()
// when a caller passes the Crypted flag. aescrypto.AES satisfies this
// interface; a Cursor built without one simply never applies it.
type Crypto interface {
	Encrypt(v value.Value) (value.Value, error)
	Decrypt(v value.Value) (value.Value, error)
}

// Cursor is a stack of Levels over zero or more layered Sources. The
// zero value is not usable; build one with Open or FromTree.
type Cursor struct {
	levels  []*level
	sources []*source.Source
	guard   *Cursor
	crypto  Crypto
	saver   *saver.Saver
}

// OpenOptions configures Open.
type OpenOptions struct {
	// Paths are configuration names, opened user-directory first then
	// system-directory, in the order given; duplicate canonical files
	// across paths are opened once.
	Paths []string
	// Create allows creating a missing user-directory file (never a
	// system-directory one, which is assumed administrator-owned).
	Create bool
	// Fallbacks are further read-only atoms appended after every file
	// Source, lowest precedence. A fallback whose root materializes to
	// Scalar or Null is discarded, per spec.md §4.6.
	Fallbacks []value.Value

	Backend  backend.Backend
	Resolver pathresolve.Resolver
	Registry *backend.Registry
	Cache    *source.Cache
	Crypto   Crypto
	Saver    *saver.Saver
}

// Open builds a Cursor layering every path's user and system Sources,
// user before system, in the order the spec's construction variant
// describes: "user overrides system".
func Open(opts OpenOptions) (*Cursor, error) {
	seen := map[string]bool{}
	var atoms []atom
	var sources []*source.Source

	for _, p := range opts.Paths {
		for _, systemDir := range []bool{false, true} {
			s, err := source.Open(source.OpenOptions{
				Path:      p,
				SystemDir: systemDir,
				Create:    opts.Create && !systemDir,
				Backend:   opts.Backend,
				Resolver:  opts.Resolver,
				Registry:  opts.Registry,
				Cache:     opts.Cache,
			})
			if err != nil {
				log.WithFields(log.Fields{
					"path":      p,
					"systemDir": systemDir,
					"cause":     err.Error(),
				}).Debug("qconfig: source not available, skipping layer")
				continue
			}
			if seen[s.FileName()] {
				continue
			}
			seen[s.FileName()] = true
			atoms = append(atoms, atom{node: s.Data(), src: s})
			sources = append(sources, s)
		}
	}

	for _, fb := range opts.Fallbacks {
		if fb.Kind() == value.ScalarKind || fb.Kind() == value.Null {
			continue
		}
		atoms = append(atoms, atom{node: node.FromTree(fb, true)})
	}

	if len(atoms) == 0 {
		return nil, errorf("Open", "no layer opened for paths %v", opts.Paths)
	}

	c := &Cursor{
		levels:  []*level{{atoms: atoms}},
		sources: sources,
		crypto:  opts.Crypto,
		saver:   opts.Saver,
	}
	c.incRefSources()
	return c, nil
}

// incRefSources marks every Source this Cursor layers as referenced,
// so Cache.Evict's idle sweep (refcount-gated, per spec.md §4.3) never
// flushes-and-drops a Source a live Cursor is still reading or writing
// through. Every Cursor construction path — Open and the snapshotClone
// used by Group/ArrayElement — calls this exactly once for the Sources
// it holds; decRefSources is its Close-time counterpart.
func (c *Cursor) incRefSources() {
	for _, s := range c.sources {
		s.IncRef()
	}
}

func (c *Cursor) decRefSources() {
	for _, s := range c.sources {
		s.DecRef()
	}
}

// FromTree builds an in-memory-only Cursor with a single atom over v.
// There is no backing Source, so Sync/Close never perform I/O.
func FromTree(v value.Value, writable bool, crypto Crypto) *Cursor {
	root := node.FromTree(v, !writable)
	return &Cursor{levels: []*level{{atoms: []atom{{node: root}}}}, crypto: crypto}
}

func (c *Cursor) top() *level { return c.levels[len(c.levels)-1] }

func (c *Cursor) snapshotClone() *Cursor {
	levels := make([]*level, len(c.levels))
	copy(levels, c.levels)
	sources := make([]*source.Source, len(c.sources))
	copy(sources, c.sources)
	clone := &Cursor{levels: levels, sources: sources, crypto: c.crypto, saver: c.saver}
	clone.incRefSources()
	return clone
}

// parseNames splits a slash-separated group path, discarding empty
// segments ("a//b" and "/a/b/" both yield ["a","b"]).
func parseNames(name string) []string {
	parts := strings.Split(name, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitLast divides a key on its last '/': the prefix is a group path
// to descend into first, the suffix is the leaf key read or written
// there. A key with no '/' has an empty prefix.
func splitLast(key string) (prefix, leaf string) {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}

func (c *Cursor) pushGroup(name string) {
	lvl := c.top()
	for _, n := range parseNames(name) {
		lvl = lvl.child(n)
	}
	lvl = lvl.convert(value.MapKind)
	c.levels = append(c.levels, lvl)
}

// BeginGroup pushes a Map-typed frame reached from the current frame
// by navigating name (a possibly multi-segment, slash-separated
// path), auto-vivifying intermediate Maps on the writable atom.
func (c *Cursor) BeginGroup(name string) {
	c.pushGroup(name)
}

// EndGroup pops the current frame. Popping the root frame is a
// programming error.
func (c *Cursor) EndGroup() {
	assertx.Assert(len(c.levels) > 1, "cursor.EndGroup: cannot pop the root frame")
	c.levels = c.levels[:len(c.levels)-1]
}

// Group is the cloning counterpart of BeginGroup: it returns a new,
// independently usable Cursor positioned at name, sharing atoms with
// the receiver and guarded by it (dropping the clone never triggers a
// sync; only the original syncs).
func (c *Cursor) Group(name string) *Cursor {
	lvl := c.top()
	for _, n := range parseNames(name) {
		lvl = lvl.child(n)
	}
	lvl = lvl.convert(value.MapKind)

	clone := c.snapshotClone()
	clone.levels = append(clone.levels, lvl)
	clone.guard = c
	return clone
}

// BeginArray pushes a List-typed frame reached from the current frame
// by navigating name, and returns the resulting ArraySize().
func (c *Cursor) BeginArray(name string) int {
	lvl := c.top()
	for _, n := range parseNames(name) {
		lvl = lvl.child(n)
	}
	lvl = lvl.convert(value.ListKind)
	c.levels = append(c.levels, lvl)
	return c.ArraySize()
}

// EndArray pops the array-element frame first, if the current frame
// is one, then pops the List frame beneath it.
func (c *Cursor) EndArray() {
	assertx.Assert(len(c.levels) > 1, "cursor.EndArray: no frame to pop")
	if c.top().arrayElement {
		c.levels = c.levels[:len(c.levels)-1]
		assertx.Assert(len(c.levels) > 1, "cursor.EndArray: missing list frame beneath array element")
	}
	c.levels = c.levels[:len(c.levels)-1]
}

// SetArrayIndex pops the current array-element frame if already in
// one, then pushes a Map-typed frame at index over the current
// (List-typed) frame.
func (c *Cursor) SetArrayIndex(index int) {
	if c.top().arrayElement {
		c.levels = c.levels[:len(c.levels)-1]
	}
	lvl := c.top()
	assertx.Assert(len(lvl.atoms) > 0 && lvl.atoms[0].node.Tag() == value.ListKind,
		"cursor.SetArrayIndex: current frame is not a list")

	next := lvl.childAt(index)
	next = next.convert(value.MapKind)
	next.arrayElement = true
	c.levels = append(c.levels, next)
}

// ArrayElement is the cloning counterpart of SetArrayIndex: equivalent
// to Group, but positions the clone at a List index instead of a Map
// key.
func (c *Cursor) ArrayElement(index int) *Cursor {
	clone := c.snapshotClone()
	clone.SetArrayIndex(index)
	clone.guard = c
	return clone
}

// ArraySize reports the length of the first non-empty List atom of
// the array frame currently in scope (the frame beneath the current
// one, if the current frame is an array element).
func (c *Cursor) ArraySize() int {
	lvl := c.top()
	if lvl.arrayElement {
		lvl = c.levels[len(c.levels)-2]
	}
	for _, a := range lvl.atoms {
		if a.node.Tag() == value.ListKind && a.node.ArraySize() > 0 {
			return a.node.ArraySize()
		}
	}
	if len(lvl.atoms) > 0 {
		return lvl.atoms[0].node.ArraySize()
	}
	return 0
}

func (c *Cursor) applyDecrypt(v value.Value, flags Flag) value.Value {
	if !flags.has(Crypted) || c.crypto == nil {
		return v
	}
	decrypted, err := c.crypto.Decrypt(v)
	if err != nil {
		log.WithError(err).Warning("qconfig: decrypt failed, returning raw value")
		return v
	}
	return decrypted
}

func (c *Cursor) leafValue(leaf string, def value.Value) (value.Value, bool) {
	for _, a := range c.top().atoms {
		child, ok := peekChild(a.node, leaf)
		if !ok || child.Tag() == value.Null {
			continue
		}
		return child.ToTree(), true
	}
	return def, false
}

// Value reads key (a slash-path whose prefix navigates groups and
// whose suffix is the leaf) across the current frame's atoms in
// precedence order, returning def if no atom has a non-Null value for
// it.
func (c *Cursor) Value(key string, def value.Value, flags Flag) value.Value {
	prefix, leaf := splitLast(key)
	if prefix != "" {
		c.BeginGroup(prefix)
		defer c.EndGroup()
	}
	v, found := c.leafValue(leaf, def)
	if !found {
		return def
	}
	return c.applyDecrypt(v, flags)
}

// RootValue materializes the current frame's first atom directly,
// without a key lookup.
func (c *Cursor) RootValue(def value.Value, flags Flag) value.Value {
	atoms := c.top().atoms
	if len(atoms) == 0 {
		return def
	}
	return c.applyDecrypt(atoms[0].node.ToTree(), flags)
}

// SetValue writes v at key on the current frame's first (writable)
// atom, marking its Source dirty if the write is a real change.
// Constructing a Cursor whose first atom isn't a writable Map is a
// programming error; SetValue asserts rather than returning one.
func (c *Cursor) SetValue(key string, v value.Value, flags Flag) {
	prefix, leaf := splitLast(key)
	if prefix != "" {
		c.BeginGroup(prefix)
		defer c.EndGroup()
	}

	lvl := c.top()
	assertx.Assert(len(lvl.atoms) > 0, "cursor.SetValue: no atom in scope")
	first := lvl.atoms[0]
	assertx.Assert(first.node.Tag() == value.MapKind && !first.node.IsReadOnly(),
		"cursor.SetValue: first atom is not a writable map")

	encoded := v
	if flags.has(Crypted) && c.crypto != nil {
		if enc, err := c.crypto.Encrypt(v); err == nil {
			encoded = enc
		} else {
			log.WithError(err).Warning("qconfig: encrypt failed, storing plaintext")
		}
	}

	changed, err := first.node.ReplaceChild(leaf, node.FromTree(encoded, false))
	assertx.Assert(err == nil, "cursor.SetValue: %v", err)
	if changed && first.src != nil {
		first.src.MakeDirty()
	}
}

// Remove deletes key from the current frame's first atom.
func (c *Cursor) Remove(key string) bool {
	lvl := c.top()
	if len(lvl.atoms) == 0 {
		return false
	}
	first := lvl.atoms[0]
	ok := first.node.Remove(key)
	if ok && first.src != nil {
		first.src.MakeDirty()
	}
	return ok
}

// RemoveAt deletes the List element at index from the current frame's
// first atom, first popping an active array-element frame.
func (c *Cursor) RemoveAt(index int) bool {
	if c.top().arrayElement {
		c.levels = c.levels[:len(c.levels)-1]
	}
	lvl := c.top()
	if len(lvl.atoms) == 0 {
		return false
	}
	first := lvl.atoms[0]
	ok := first.node.RemoveAt(index)
	if ok && first.src != nil {
		first.src.MakeDirty()
	}
	return ok
}

func (c *Cursor) childNames(wantGroup bool) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range c.top().atoms {
		a.node.IterateMap(func(k string, child *node.Node) bool {
			if seen[k] {
				return true
			}
			seen[k] = true
			if (child.Tag() == value.MapKind) == wantGroup {
				out = append(out, k)
			}
			return true
		})
	}
	return out
}

// ChildGroups lists the current frame's keys whose first-seen value
// (layered by precedence) is a Map.
func (c *Cursor) ChildGroups() []string { return c.childNames(true) }

// ChildKeys lists the current frame's keys whose first-seen value is
// not a Map.
func (c *Cursor) ChildKeys() []string { return c.childNames(false) }

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// HasChildGroup is ChildGroups' predicate form.
func (c *Cursor) HasChildGroup(name string) bool { return contains(c.ChildGroups(), name) }

// HasChildKey is ChildKeys' predicate form.
func (c *Cursor) HasChildKey(name string) bool { return contains(c.ChildKeys(), name) }

// Sync posts a save event (via Saver) for each dirty, not-yet-queued
// Source this Cursor's atoms reference. It may be called explicitly
// at any time, independent of Close's guard-gated auto-sync.
func (c *Cursor) Sync() {
	if c.saver == nil {
		return
	}
	for _, s := range c.sources {
		c.saver.Request(s)
	}
}

// Close is the explicit stand-in for "destroying a Cursor" (§4.6),
// since Go has no destructors: a Cursor with no memory-guard syncs on
// Close; a memory-guarded clone produced by Group/ArrayElement does
// not, because only the original Cursor owns the sync-on-drop
// responsibility. Every Cursor — guarded or not — releases its own
// hold on the Sources it layers (decRefSources), the counterpart of
// incRefSources at construction; it is the guard link, not refcounting,
// that keeps a parent's Sources alive for a still-open child.
func (c *Cursor) Close() {
	if c.guard == nil {
		c.Sync()
	}
	c.decRefSources()
}
