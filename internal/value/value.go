// Package value defines the tree value: the language-neutral
// interchange form (Map, List, Scalar, or Null) that flows between the
// node package and a backend's load/save. It carries no read-only flag
// and no identity — it is a plain, comparable snapshot, the same role
// storage.Value plays for the teacher's key/value stores, generalized
// from an opaque byte string to a tagged tree.
package value

import "time"

// Kind tags the one payload a Value actually holds.
type Kind uint8

const (
	Null Kind = iota
	MapKind
	ListKind
	ScalarKind
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case MapKind:
		return "map"
	case ListKind:
		return "list"
	case ScalarKind:
		return "scalar"
	default:
		return "invalid"
	}
}

// ScalarType enumerates the primitive tagged values a backend is
// expected to round-trip. Opaque covers a backend-preserved value it
// could not classify more precisely (see aescrypto and the INI
// backend).
type ScalarType uint8

const (
	Bool ScalarType = iota
	Int
	Float
	String
	Bytes
	Time
	Opaque
)

// Scalar holds exactly one primitive value, tagged by Kind.
type Scalar struct {
	Kind  ScalarType
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Bytes []byte
	Time  time.Time
}

func Bl(b bool) Scalar        { return Scalar{Kind: Bool, Bool: b} }
func In(i int64) Scalar       { return Scalar{Kind: Int, Int: i} }
func Fl(f float64) Scalar     { return Scalar{Kind: Float, Float: f} }
func Str(s string) Scalar     { return Scalar{Kind: String, Str: s} }
func Byt(b []byte) Scalar     { return Scalar{Kind: Bytes, Bytes: append([]byte(nil), b...)} }
func Tim(t time.Time) Scalar  { return Scalar{Kind: Time, Time: t} }
func Opq(s string) Scalar     { return Scalar{Kind: Opaque, Str: s} }

func (s Scalar) Equal(o Scalar) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case Bool:
		return s.Bool == o.Bool
	case Int:
		return s.Int == o.Int
	case Float:
		return s.Float == o.Float
	case String, Opaque:
		return s.Str == o.Str
	case Bytes:
		if len(s.Bytes) != len(o.Bytes) {
			return false
		}
		for i := range s.Bytes {
			if s.Bytes[i] != o.Bytes[i] {
				return false
			}
		}
		return true
	case Time:
		return s.Time.Equal(o.Time)
	default:
		return false
	}
}

// Value is the tagged tree value. The zero Value is Null.
type Value struct {
	kind   Kind
	keys   []string
	fields map[string]Value
	items  []Value
	scalar Scalar
}

func NewNull() Value { return Value{kind: Null} }

func NewMap() Value {
	return Value{kind: MapKind, fields: map[string]Value{}}
}

func NewList() Value {
	return Value{kind: ListKind}
}

func NewScalar(s Scalar) Value {
	return Value{kind: ScalarKind, scalar: s}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) Scalar() (Scalar, bool) {
	if v.kind != ScalarKind {
		return Scalar{}, false
	}
	return v.scalar, true
}

// Keys returns the Map's keys in insertion order. Nil for non-Maps.
func (v Value) Keys() []string {
	if v.kind != MapKind {
		return nil
	}
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

func (v Value) Get(key string) (Value, bool) {
	if v.kind != MapKind {
		return Value{}, false
	}
	child, ok := v.fields[key]
	return child, ok
}

// WithField returns a copy of the Map with key set to child, appending
// key to the insertion order if it is new.
func (v Value) WithField(key string, child Value) Value {
	if v.kind != MapKind {
		v = NewMap()
	}
	out := v.clone()
	if _, exists := out.fields[key]; !exists {
		out.keys = append(out.keys, key)
	}
	out.fields[key] = child
	return out
}

func (v Value) WithoutField(key string) Value {
	if v.kind != MapKind {
		return v
	}
	out := v.clone()
	if _, exists := out.fields[key]; !exists {
		return v
	}
	delete(out.fields, key)
	newKeys := make([]string, 0, len(out.keys))
	for _, k := range out.keys {
		if k != key {
			newKeys = append(newKeys, k)
		}
	}
	out.keys = newKeys
	return out
}

func (v Value) Items() []Value {
	if v.kind != ListKind {
		return nil
	}
	out := make([]Value, len(v.items))
	copy(out, v.items)
	return out
}

func (v Value) Len() int {
	switch v.kind {
	case MapKind:
		return len(v.keys)
	case ListKind:
		return len(v.items)
	default:
		return 0
	}
}

func (v Value) WithItem(index int, item Value) Value {
	if v.kind != ListKind {
		v = NewList()
	}
	out := v.clone()
	for len(out.items) <= index {
		out.items = append(out.items, NewNull())
	}
	out.items[index] = item
	return out
}

func (v Value) WithAppend(item Value) Value {
	if v.kind != ListKind {
		v = NewList()
	}
	out := v.clone()
	out.items = append(out.items, item)
	return out
}

func (v Value) WithoutIndex(index int) (Value, bool) {
	if v.kind != ListKind || index < 0 || index >= len(v.items) {
		return v, false
	}
	out := v.clone()
	out.items = append(out.items[:index], out.items[index+1:]...)
	return out, true
}

func (v Value) clone() Value {
	out := Value{kind: v.kind, scalar: v.scalar}
	if v.kind == MapKind {
		out.keys = append([]string(nil), v.keys...)
		out.fields = make(map[string]Value, len(v.fields))
		for k, val := range v.fields {
			out.fields[k] = val
		}
	}
	if v.kind == ListKind {
		out.items = append([]Value(nil), v.items...)
	}
	return out
}

// Equal performs the structural equality check the spec requires of
// replaceChild's "unchanged" detection: same kind, and recursively
// equal payload.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case ScalarKind:
		return a.scalar.Equal(b.scalar)
	case MapKind:
		if len(a.keys) != len(b.keys) {
			return false
		}
		for _, k := range a.keys {
			av, aok := a.fields[k]
			bv, bok := b.fields[k]
			if !aok || !bok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case ListKind:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
