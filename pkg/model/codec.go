package model

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// DecodeConfig parses YAML configuration text into a desired object tree
func DecodeConfig(s *Schema, source string, data []byte) (*Object, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigFormatError{Source: source, Cause: err}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return FromConfig(s, raw)
}

// FromConfig builds a desired object tree from configuration data using the
// config-key column of each mapping table
func FromConfig(s *Schema, data map[string]any) (*Object, error) {
	return fromConfig(s, data, s.Type)
}

func fromConfig(s *Schema, data map[string]any, path string) (*Object, error) {
	obj := New(s)
	for _, k := range sortedKeys(data) {
		v := data[k]
		p := path + "." + k

		if k == "aliases" && s.Key != "" {
			l, err := coerce(TypeList, v, true)
			if err != nil {
				return nil, schemaError(s, p, "%v", err)
			}
			if l != nil {
				obj.aliases = l.([]string)
			}
			continue
		}

		f, ok := s.fieldByConfigKey(k)
		if !ok {
			return nil, schemaError(s, p, "unknown field %q", k)
		}

		switch f.Kind {
		case KindEmbedded:
			if v == nil {
				continue
			}
			m, ok := v.(map[string]any)
			if !ok {
				return nil, schemaError(s, p, "expected a mapping, got %T", v)
			}
			child, err := fromConfig(f.Schema, m, p)
			if err != nil {
				return nil, err
			}
			obj.embedded[f.Name] = child
		case KindCollection:
			children, err := collectionFromConfig(f, v, p)
			if err != nil {
				return nil, err
			}
			obj.collections[f.Name] = children
		default:
			if err := obj.set(f.Name, v, true); err != nil {
				return nil, schemaError(s, p, "%v", err)
			}
		}
	}
	return obj, nil
}

func collectionFromConfig(f *Field, v any, path string) ([]*Object, error) {
	if v == nil {
		return []*Object{}, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, schemaError(f.Schema, path, "expected a list, got %T", v)
	}

	out := make([]*Object, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		p := fmt.Sprintf("%s[%d]", path, i)
		m, ok := item.(map[string]any)
		if !ok {
			return nil, schemaError(f.Schema, p, "expected a mapping, got %T", item)
		}
		child, err := fromConfig(f.Schema, m, p)
		if err != nil {
			return nil, err
		}
		key := child.Key()
		if key == "" {
			return nil, schemaError(f.Schema, p, "missing required key %q", f.Schema.Key)
		}
		nk := f.Schema.NormalizeKey(key)
		if seen[nk] {
			return nil, schemaError(f.Schema, p, "duplicate %s %q", f.Schema.Key, key)
		}
		seen[nk] = true
		out = append(out, child)
	}
	return out, nil
}

// FromProvider builds a live object tree from a provider payload using the
// provider-key column of each mapping table. Unknown keys are ignored.
func FromProvider(s *Schema, p Payload) (*Object, error) {
	return fromPayload(s, p, (*Field).providerKey, s.Type)
}

// FromWritePayload is the inverse of Serialize
func FromWritePayload(s *Schema, p Payload) (*Object, error) {
	return fromPayload(s, p, (*Field).writeKey, s.Type)
}

func fromPayload(s *Schema, p Payload, keyOf func(*Field) string, path string) (*Object, error) {
	if s.FromProvider != nil {
		p = s.FromProvider(p)
	}

	obj := New(s)
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Kind == KindModelOnly {
			continue
		}
		v, ok := lookup(p, keyOf(f))
		if !ok || v == nil {
			continue
		}
		fp := path + "." + f.Name

		switch f.Kind {
		case KindEmbedded:
			m, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: expected an object, got %T", fp, v)
			}
			child, err := fromPayload(f.Schema, m, keyOf, fp)
			if err != nil {
				return nil, err
			}
			obj.embedded[f.Name] = child
		case KindCollection:
			items, err := payloadList(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fp, err)
			}
			children := make([]*Object, 0, len(items))
			for j, item := range items {
				child, err := fromPayload(f.Schema, item, keyOf, fmt.Sprintf("%s[%d]", fp, j))
				if err != nil {
					return nil, err
				}
				children = append(children, child)
			}
			obj.collections[f.Name] = children
		default:
			if err := obj.set(f.Name, v, false); err != nil {
				return nil, fmt.Errorf("%s: %w", fp, err)
			}
		}
	}
	return obj, nil
}

func payloadList(v any) ([]Payload, error) {
	switch x := v.(type) {
	case []Payload:
		return x, nil
	case []any:
		out := make([]Payload, 0, len(x))
		for i, e := range x {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element %d: expected an object, got %T", i, e)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
}

// Serialize renders the writable fields of an object under their write keys.
// Read-only, model-only and collection fields are omitted.
func Serialize(o *Object) Payload {
	return serialize(o, nil)
}

// SerializeFields is Serialize restricted to the named top-level fields
func SerializeFields(o *Object, names ...string) Payload {
	only := make(map[string]bool, len(names))
	for _, n := range names {
		only[n] = true
	}
	return serialize(o, only)
}

func serialize(o *Object, only map[string]bool) Payload {
	out := Payload{}
	for i := range o.schema.Fields {
		f := &o.schema.Fields[i]
		if !f.Writable() || (only != nil && !only[f.Name]) {
			continue
		}
		if f.Kind == KindEmbedded {
			if e := o.embedded[f.Name]; e != nil {
				assign(out, f.writeKey(), serialize(e, nil))
			}
			continue
		}
		if v, ok := o.values[f.Name]; ok {
			if l, isList := v.([]string); isList {
				v = append([]string{}, l...)
			}
			assign(out, f.writeKey(), v)
		}
	}
	if o.schema.ToProvider != nil {
		out = o.schema.ToProvider(out)
	}
	return out
}

// ToConfig renders an object tree under its config keys, the shape accepted
// by FromConfig
func ToConfig(o *Object) map[string]any {
	out := map[string]any{}
	if len(o.aliases) > 0 {
		out["aliases"] = append([]string{}, o.aliases...)
	}
	for i := range o.schema.Fields {
		f := &o.schema.Fields[i]
		switch f.Kind {
		case KindEmbedded:
			if e := o.embedded[f.Name]; e != nil {
				out[f.configKey()] = ToConfig(e)
			}
		case KindCollection:
			children, ok := o.collections[f.Name]
			if !ok {
				continue
			}
			items := make([]any, 0, len(children))
			for _, c := range children {
				items = append(items, ToConfig(c))
			}
			out[f.configKey()] = items
		default:
			if v, ok := o.values[f.Name]; ok {
				out[f.configKey()] = v
			}
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
