package model

import (
	"fmt"
)

// Object is one node of the resource graph. Desired and live trees share
// the same representation and differ only in how they were decoded.
type Object struct {
	schema      *Schema
	values      map[string]any
	embedded    map[string]*Object
	collections map[string][]*Object
	aliases     []string
}

// New creates an empty object of the given type
func New(s *Schema) *Object {
	return &Object{
		schema:      s,
		values:      map[string]any{},
		embedded:    map[string]*Object{},
		collections: map[string][]*Object{},
	}
}

// Schema returns the object's type registration
func (o *Object) Schema() *Schema { return o.schema }

// Type returns the resource type name
func (o *Object) Type() string { return o.schema.Type }

// Key returns the natural key, or an empty string for singletons
func (o *Object) Key() string {
	if o.schema.Key == "" {
		return ""
	}
	s, _ := o.values[o.schema.Key].(string)
	return s
}

// Aliases returns the former keys the object may be matched by
func (o *Object) Aliases() []string { return o.aliases }

// Get returns the canonical value of a scalar field, nil if unset
func (o *Object) Get(name string) any { return o.values[name] }

// Has reports whether a scalar field is set
func (o *Object) Has(name string) bool {
	_, ok := o.values[name]
	return ok
}

// String returns a string field or an empty string
func (o *Object) String(name string) string {
	s, _ := o.values[name].(string)
	return s
}

// Bool returns a bool field or false
func (o *Object) Bool(name string) bool {
	b, _ := o.values[name].(bool)
	return b
}

// Int returns an int field or 0
func (o *Object) Int(name string) int64 {
	n, _ := o.values[name].(int64)
	return n
}

// List returns a list field or nil
func (o *Object) List(name string) []string {
	l, _ := o.values[name].([]string)
	return l
}

// Set assigns a scalar field, converting v to its canonical type. Unknown
// fields and values of the wrong type are programming errors and panic.
func (o *Object) Set(name string, v any) *Object {
	if err := o.set(name, v, false); err != nil {
		panic(err)
	}
	return o
}

func (o *Object) set(name string, v any, strict bool) error {
	f, ok := o.schema.Field(name)
	if !ok {
		return fmt.Errorf("%s has no field %q", o.schema.Type, name)
	}
	if f.Kind == KindEmbedded || f.Kind == KindCollection {
		return fmt.Errorf("%s.%s is not a scalar field", o.schema.Type, name)
	}
	cv, err := coerce(f.Type, v, strict)
	if err != nil {
		return err
	}
	if cv == nil {
		delete(o.values, name)
		return nil
	}
	o.values[name] = cv
	return nil
}

// Unset removes a scalar field
func (o *Object) Unset(name string) *Object {
	delete(o.values, name)
	return o
}

// SetAliases records former keys of the object
func (o *Object) SetAliases(aliases ...string) *Object {
	o.aliases = append([]string{}, aliases...)
	return o
}

// Embedded returns the nested object of an embedded field, nil if unset
func (o *Object) Embedded(name string) *Object { return o.embedded[name] }

// SetEmbedded assigns the nested object of an embedded field
func (o *Object) SetEmbedded(name string, child *Object) *Object {
	o.embedded[name] = child
	return o
}

// Children returns the children of a collection field
func (o *Object) Children(name string) []*Object { return o.collections[name] }

// HasCollection reports whether a collection was specified at all. An
// unspecified collection is not managed; an empty one removes everything.
func (o *Object) HasCollection(name string) bool {
	_, ok := o.collections[name]
	return ok
}

// AddChild appends a child to a collection field
func (o *Object) AddChild(name string, child *Object) *Object {
	o.collections[name] = append(o.collections[name], child)
	return o
}

// SetChildren replaces a collection, marking it as managed even when empty
func (o *Object) SetChildren(name string, children []*Object) *Object {
	if children == nil {
		children = []*Object{}
	}
	o.collections[name] = children
	return o
}

// Child finds a child of a collection by natural key
func (o *Object) Child(collection, key string) *Object {
	for _, c := range o.collections[collection] {
		if c.schema.SameKey(c.Key(), key) {
			return c
		}
	}
	return nil
}

// Clone returns a deep copy
func (o *Object) Clone() *Object {
	c := New(o.schema)
	for k, v := range o.values {
		if l, ok := v.([]string); ok {
			v = append([]string{}, l...)
		}
		c.values[k] = v
	}
	for k, e := range o.embedded {
		c.embedded[k] = e.Clone()
	}
	for k, children := range o.collections {
		cc := make([]*Object, 0, len(children))
		for _, ch := range children {
			cc = append(cc, ch.Clone())
		}
		c.collections[k] = cc
	}
	c.aliases = append([]string(nil), o.aliases...)
	return c
}

// Expanded returns a copy with the type's convenience fields expanded,
// recursively for every nested object
func (o *Object) Expanded() *Object {
	c := o.Clone()
	c.expand()
	return c
}

func (o *Object) expand() {
	if o.schema.Expand != nil {
		o.schema.Expand(o)
	}
	for _, e := range o.embedded {
		e.expand()
	}
	for _, children := range o.collections {
		for _, ch := range children {
			ch.expand()
		}
	}
}
