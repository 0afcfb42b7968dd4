package backend

import (
	"encoding/json"
	"os"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/qconfig/qconfig/internal/value"
)

// INI is the gopkg.in/ini.v1-backed Backend (already an indirect
// dependency of the teacher repository, via go-ini/ini). INI has no
// native nesting beyond one level of sections, no lists, and no type
// tags on values — every value is a string. String and Opaque scalars
// are written as-is and load back as Opaque. Every other value (a
// bool, number, bytes or time scalar, a List, or anything deeper than
// one level of nesting) is written as a JSON-encoded string, prefixed
// so a later Load can tell it apart from an ordinary value and decode
// it back through the JSON backend's conversion.
type INI struct{}

func (INI) Name() string { return "ini" }

const jsonOpaquePrefix = "!qconfig-json!"

func (INI) Load(path string) (value.Value, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return value.NewNull(), nil
	}
	cfg, err := ini.Load(path)
	if err != nil {
		return value.NewNull(), nil
	}
	root := value.NewMap()
	for _, sec := range cfg.Sections() {
		if sec.Name() == ini.DefaultSection {
			for _, key := range sec.Keys() {
				root = root.WithField(key.Name(), decodeINIValue(key.Value()))
			}
			continue
		}
		section := value.NewMap()
		for _, key := range sec.Keys() {
			section = section.WithField(key.Name(), decodeINIValue(key.Value()))
		}
		root = root.WithField(sec.Name(), section)
	}
	return root, nil
}

func (INI) Save(path string, v value.Value) error {
	cfg := ini.Empty()
	if v.Kind() == value.MapKind {
		for _, k := range v.Keys() {
			child, _ := v.Get(k)
			if child.Kind() == value.MapKind {
				section, err := cfg.NewSection(k)
				if err != nil {
					return errorf("INI.Save", "section %q: %v", k, err)
				}
				for _, sk := range child.Keys() {
					sv, _ := child.Get(sk)
					if _, err := section.NewKey(sk, encodeINIValue(sv)); err != nil {
						return errorf("INI.Save", "%q.%q: %v", k, sk, err)
					}
				}
				continue
			}
			if child.Kind() == value.Null {
				continue
			}
			if _, err := cfg.Section(ini.DefaultSection).NewKey(k, encodeINIValue(child)); err != nil {
				return errorf("INI.Save", "%q: %v", k, err)
			}
		}
	}
	var buf strings.Builder
	if _, err := cfg.WriteTo(&buf); err != nil {
		return errorf("INI.Save", "%q: %v", path, err)
	}
	return atomicWrite(path, []byte(buf.String()))
}

func encodeINIValue(v value.Value) string {
	if v.Kind() == value.ScalarKind {
		s, _ := v.Scalar()
		if s.Kind == value.Opaque || s.Kind == value.String {
			return s.Str
		}
	}
	b, err := json.Marshal(toJSON(v))
	if err != nil {
		return ""
	}
	return jsonOpaquePrefix + string(b)
}

func decodeINIValue(raw string) value.Value {
	if strings.HasPrefix(raw, jsonOpaquePrefix) {
		var parsed interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(raw, jsonOpaquePrefix)), &parsed); err == nil {
			return fromJSON(parsed)
		}
	}
	return value.NewScalar(value.Opq(raw))
}
