package backend

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/qconfig/qconfig/internal/value"
)

// YAML is the gopkg.in/yaml.v3-backed Backend, the format gcsfuse uses
// for its own mount configuration.
type YAML struct{}

func (YAML) Name() string { return "yaml" }

func (YAML) Load(path string) (value.Value, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return value.NewNull(), nil
	}
	if err != nil {
		return value.Value{}, errorf("YAML.Load", "%q: %v", path, err)
	}
	var raw interface{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return value.NewNull(), nil
	}
	return fromYAML(raw), nil
}

func (YAML) Save(path string, v value.Value) error {
	b, err := yaml.Marshal(toYAML(v))
	if err != nil {
		return errorf("YAML.Save", "%q: %v", path, err)
	}
	return atomicWrite(path, b)
}

func fromYAML(raw interface{}) value.Value {
	switch t := raw.(type) {
	case nil:
		return value.NewNull()
	case bool:
		return value.NewScalar(value.Bl(t))
	case int:
		return value.NewScalar(value.In(int64(t)))
	case int64:
		return value.NewScalar(value.In(t))
	case float64:
		return value.NewScalar(value.Fl(t))
	case string:
		return value.NewScalar(value.Str(t))
	case map[string]interface{}:
		v := value.NewMap()
		for k, child := range t {
			v = v.WithField(k, fromYAML(child))
		}
		return v
	case []interface{}:
		v := value.NewList()
		for _, item := range t {
			v = v.WithAppend(fromYAML(item))
		}
		return v
	default:
		return value.NewNull()
	}
}

func toYAML(v value.Value) interface{} {
	switch v.Kind() {
	case value.ScalarKind:
		s, _ := v.Scalar()
		return scalarToJSON(s)
	case value.MapKind:
		out := make(map[string]interface{}, v.Len())
		for _, k := range v.Keys() {
			child, _ := v.Get(k)
			out[k] = toYAML(child)
		}
		return out
	case value.ListKind:
		items := v.Items()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = toYAML(item)
		}
		return out
	default:
		return nil
	}
}
