package model

import "strings"

// Kind classifies how a field takes part in decoding, diffing and writing
type Kind int

const (
	// KindSimple is a read/write scalar or primitive list
	KindSimple Kind = iota
	// KindReadOnly is only reported by the platform and never written
	KindReadOnly
	// KindSecret can be written but is only ever read back as the redacted sentinel
	KindSecret
	// KindModelOnly exists in configuration only and is never diffed or written
	KindModelOnly
	// KindEmbedded is a nested object without identity of its own
	KindEmbedded
	// KindCollection is an ordered list of keyed child objects
	KindCollection
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindReadOnly:
		return "read-only"
	case KindSecret:
		return "secret"
	case KindModelOnly:
		return "model-only"
	case KindEmbedded:
		return "embedded"
	case KindCollection:
		return "collection"
	default:
		return "unknown"
	}
}

// ValueType is the primitive type of a scalar field
type ValueType int

const (
	TypeString ValueType = iota
	TypeBool
	TypeInt
	TypeList
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeList:
		return "list"
	default:
		return "unknown"
	}
}

// Source names the back end that reads and writes a field
type Source int

const (
	SourceREST Source = iota
	SourceGraphQL
	SourceWeb
)

func (s Source) String() string {
	switch s {
	case SourceGraphQL:
		return "graphql"
	case SourceWeb:
		return "web"
	default:
		return "rest"
	}
}

// Field is one row of a resource type's mapping table
type Field struct {
	Name string
	Kind Kind
	Type ValueType

	// ConfigKey, ProviderKey and WriteKey are dotted paths. Empty values fall back
	// to Name, ConfigKey and ProviderKey respectively.
	ConfigKey   string
	ProviderKey string
	WriteKey    string

	// Ordered marks list fields whose element order is meaningful.
	Ordered bool
	// FoldCase compares string values and list elements case-insensitively.
	FoldCase bool
	// Terminal marks boolean fields that lock the resource once set to true.
	Terminal bool
	Source   Source

	// Schema describes the nested object of embedded and collection fields.
	Schema *Schema
}

func (f *Field) configKey() string {
	if f.ConfigKey != "" {
		return f.ConfigKey
	}
	return f.Name
}

func (f *Field) providerKey() string {
	if f.ProviderKey != "" {
		return f.ProviderKey
	}
	return f.configKey()
}

func (f *Field) writeKey() string {
	if f.WriteKey != "" {
		return f.WriteKey
	}
	return f.providerKey()
}

// Same reports whether two canonical values of the field are equal
func (f *Field) Same(a, b any) bool {
	if f.FoldCase {
		a, b = foldValue(a), foldValue(b)
	}
	return Equal(a, b, f.Ordered)
}

// Writable reports whether the field is ever sent to the platform
func (f *Field) Writable() bool {
	return f.Kind == KindSimple || f.Kind == KindSecret || f.Kind == KindEmbedded
}

// Schema is the registration of one resource type
type Schema struct {
	// Type is the resource type name reported in patches.
	Type string
	// Key names the natural key field. Empty for singleton objects.
	Key string
	// FoldKey matches natural keys case-insensitively.
	FoldKey bool
	Fields  []Field

	// Include decides whether a field takes part in comparison. Nil includes all.
	Include func(f *Field, desired, live *Object) bool
	// ValidKey decides whether a desired/live pairing found by key or alias is accepted.
	ValidKey func(desired, live *Object) bool
	// Expand rewrites model-only convenience fields into real fields.
	Expand func(o *Object)
	// FromProvider and ToProvider adapt payloads whose shape differs from the table.
	FromProvider func(p Payload) Payload
	ToProvider   func(p Payload) Payload
}

// Field returns the field registered under name
func (s *Schema) Field(name string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

func (s *Schema) fieldByConfigKey(key string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].configKey() == key {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// Collections returns the keyed-collection fields in declaration order
func (s *Schema) Collections() []*Field {
	var out []*Field
	for i := range s.Fields {
		if s.Fields[i].Kind == KindCollection {
			out = append(out, &s.Fields[i])
		}
	}
	return out
}

// SameKey compares two natural keys under the schema's folding rule
func (s *Schema) SameKey(a, b string) bool {
	if s.FoldKey {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// NormalizeKey returns the form of key used for lookups
func (s *Schema) NormalizeKey(key string) string {
	if s.FoldKey {
		return strings.ToLower(key)
	}
	return key
}

// IncludeField applies the schema's inclusion predicate
func (s *Schema) IncludeField(f *Field, desired, live *Object) bool {
	if f.Kind == KindModelOnly {
		return false
	}
	if s.Include == nil {
		return true
	}
	return s.Include(f, desired, live)
}

// AcceptsKey applies the schema's key-validity predicate
func (s *Schema) AcceptsKey(desired, live *Object) bool {
	if desired.Schema().Type != live.Schema().Type {
		return false
	}
	if s.ValidKey == nil {
		return true
	}
	return s.ValidKey(desired, live)
}
