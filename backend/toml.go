package backend

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/qconfig/qconfig/internal/value"
)

// TOML is the github.com/pelletier/go-toml/v2-backed Backend
// (promoted here from gcsfuse's indirect dependency, since TOML has no
// Null: a Map field holding Null is dropped on save rather than
// written, and is simply absent — hence Null — on the next load).
type TOML struct{}

func (TOML) Name() string { return "toml" }

func (TOML) Load(path string) (value.Value, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return value.NewNull(), nil
	}
	if err != nil {
		return value.Value{}, errorf("TOML.Load", "%q: %v", path, err)
	}
	if len(b) == 0 {
		return value.NewNull(), nil
	}
	var raw map[string]interface{}
	if err := toml.Unmarshal(b, &raw); err != nil {
		return value.NewNull(), nil
	}
	return fromTOML(raw), nil
}

func (TOML) Save(path string, v value.Value) error {
	b, err := toml.Marshal(toTOML(v))
	if err != nil {
		return errorf("TOML.Save", "%q: %v", path, err)
	}
	return atomicWrite(path, b)
}

func fromTOML(raw interface{}) value.Value {
	switch t := raw.(type) {
	case nil:
		return value.NewNull()
	case bool:
		return value.NewScalar(value.Bl(t))
	case int64:
		return value.NewScalar(value.In(t))
	case int:
		return value.NewScalar(value.In(int64(t)))
	case float64:
		return value.NewScalar(value.Fl(t))
	case string:
		return value.NewScalar(value.Str(t))
	case time.Time:
		return value.NewScalar(value.Tim(t))
	case map[string]interface{}:
		v := value.NewMap()
		for k, child := range t {
			v = v.WithField(k, fromTOML(child))
		}
		return v
	case []interface{}:
		v := value.NewList()
		for _, item := range t {
			v = v.WithAppend(fromTOML(item))
		}
		return v
	default:
		return value.NewNull()
	}
}

// toTOML renders a tree value as the map TOML needs at its root.
// Null fields are omitted: TOML cannot encode an explicit null.
func toTOML(v value.Value) map[string]interface{} {
	out := make(map[string]interface{}, v.Len())
	if v.Kind() != value.MapKind {
		return out
	}
	for _, k := range v.Keys() {
		child, _ := v.Get(k)
		if child.Kind() == value.Null {
			continue
		}
		out[k] = toTOMLValue(child)
	}
	return out
}

func toTOMLValue(v value.Value) interface{} {
	switch v.Kind() {
	case value.ScalarKind:
		s, _ := v.Scalar()
		if s.Kind == value.Time {
			return s.Time
		}
		if s.Kind == value.Bytes {
			return s.Bytes
		}
		return scalarToJSON(s)
	case value.MapKind:
		return toTOML(v)
	case value.ListKind:
		items := v.Items()
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			if item.Kind() == value.Null {
				continue
			}
			out = append(out, toTOMLValue(item))
		}
		return out
	default:
		return nil
	}
}
