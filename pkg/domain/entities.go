// Package domain defines the identity, value, and error types shared by the
// entity graph store and the layers built on top of it.
package domain

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Kind identifies a registered entity kind. Concrete kinds hold entities;
// abstract kinds only name a closed set of concrete implementors.
type Kind string

// EntitySource tags the origin of an entity (for example the file or import
// job that produced it). Sources are opaque and compared by equality.
type EntitySource string

// EntityID is the store-assigned identity of an entity. Seq is unique within
// the concrete kind for the lifetime of a lineage and is never reused.
type EntityID struct {
	Kind Kind   `json:"kind" msgpack:"kind"`
	Seq  uint64 `json:"seq" msgpack:"seq"`
}

// IsZero reports whether the identifier was never assigned.
func (id EntityID) IsZero() bool { return id.Kind == "" && id.Seq == 0 }

func (id EntityID) String() string {
	return fmt.Sprintf("%s#%d", id.Kind, id.Seq)
}

// Compare orders identifiers by kind name, then sequence.
func (id EntityID) Compare(other EntityID) int {
	if c := strings.Compare(string(id.Kind), string(other.Kind)); c != 0 {
		return c
	}
	switch {
	case id.Seq < other.Seq:
		return -1
	case id.Seq > other.Seq:
		return 1
	}
	return 0
}

// SymbolicID is a stable, user-meaningful identifier derived from an entity's
// key fields. Soft links store symbolic ids rather than EntityIDs.
type SymbolicID struct {
	Kind Kind   `json:"kind" msgpack:"kind"`
	Key  string `json:"key" msgpack:"key"`
}

// IsZero reports whether the symbolic id is unset.
func (s SymbolicID) IsZero() bool { return s.Kind == "" && s.Key == "" }

func (s SymbolicID) String() string {
	return string(s.Kind) + ":" + s.Key
}

// ParseSymbolicID parses the "kind:key" form produced by SymbolicID.String.
func ParseSymbolicID(raw string) (SymbolicID, error) {
	kind, key, ok := strings.Cut(raw, ":")
	if !ok || kind == "" {
		return SymbolicID{}, fmt.Errorf("invalid symbolic id %q", raw)
	}
	return SymbolicID{Kind: Kind(kind), Key: key}, nil
}

// FieldType enumerates the value shapes a field may hold.
type FieldType string

// Supported field types.
const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
	// FieldList is an ordered list of strings.
	FieldList FieldType = "list"
	// FieldSet is a list of unique strings that keeps first-insertion order.
	FieldSet FieldType = "set"
	// FieldLink holds one SymbolicID (a soft link).
	FieldLink FieldType = "link"
	// FieldLinks holds an ordered list of SymbolicIDs.
	FieldLinks FieldType = "links"
)

// Scalar reports whether values of the type can participate in a symbolic key.
func (t FieldType) Scalar() bool {
	switch t {
	case FieldString, FieldInt, FieldFloat, FieldBool:
		return true
	}
	return false
}

// Linking reports whether the type carries soft links.
func (t FieldType) Linking() bool { return t == FieldLink || t == FieldLinks }

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldInt, FieldFloat, FieldBool, FieldList, FieldSet, FieldLink, FieldLinks:
		return true
	}
	return false
}

// EntityData is an immutable entity record. Instances are shared between
// snapshots; every mutation produces a new record.
type EntityData struct {
	id     EntityID
	source EntitySource
	fields map[string]any
}

// NewEntityData builds a record from already-normalized field values. The map
// is owned by the record afterwards and must not be mutated by the caller.
func NewEntityData(id EntityID, source EntitySource, fields map[string]any) *EntityData {
	if fields == nil {
		fields = map[string]any{}
	}
	return &EntityData{id: id, source: source, fields: fields}
}

// ID returns the entity identity.
func (e *EntityData) ID() EntityID { return e.id }

// Kind returns the concrete kind of the entity.
func (e *EntityData) Kind() Kind { return e.id.Kind }

// Source returns the entity source tag.
func (e *EntityData) Source() EntitySource { return e.source }

// Has reports whether the field carries a value.
func (e *EntityData) Has(name string) bool {
	_, ok := e.fields[name]
	return ok
}

// Field returns a copy of the field value.
func (e *EntityData) Field(name string) (any, bool) {
	v, ok := e.fields[name]
	if !ok {
		return nil, false
	}
	return CloneValue(v), true
}

// FieldNames returns the names of populated fields in sorted order.
func (e *EntityData) FieldNames() []string {
	names := make([]string, 0, len(e.fields))
	for name := range e.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fields returns a deep copy of all field values.
func (e *EntityData) Fields() map[string]any {
	out := make(map[string]any, len(e.fields))
	for k, v := range e.fields {
		out[k] = CloneValue(v)
	}
	return out
}

// String returns a string field or "".
func (e *EntityData) String(name string) string {
	s, _ := e.fields[name].(string)
	return s
}

// Int returns an int field or 0.
func (e *EntityData) Int(name string) int64 {
	n, _ := e.fields[name].(int64)
	return n
}

// Float returns a float field or 0.
func (e *EntityData) Float(name string) float64 {
	f, _ := e.fields[name].(float64)
	return f
}

// Bool returns a bool field or false.
func (e *EntityData) Bool(name string) bool {
	b, _ := e.fields[name].(bool)
	return b
}

// Strings returns a copy of a list or set field.
func (e *EntityData) Strings(name string) []string {
	list, _ := e.fields[name].([]string)
	return slices.Clone(list)
}

// Link returns a soft link field.
func (e *EntityData) Link(name string) (SymbolicID, bool) {
	sid, ok := e.fields[name].(SymbolicID)
	return sid, ok
}

// Links returns a copy of a multi-valued soft link field.
func (e *EntityData) Links(name string) []SymbolicID {
	list, _ := e.fields[name].([]SymbolicID)
	return slices.Clone(list)
}

// WithFields returns a new record sharing identity and source with e but
// carrying the supplied field map. Ownership of fields passes to the record.
func (e *EntityData) WithFields(fields map[string]any) *EntityData {
	return &EntityData{id: e.id, source: e.source, fields: fields}
}

// WithSource returns a copy of e tagged with another source.
func (e *EntityData) WithSource(source EntitySource) *EntityData {
	return &EntityData{id: e.id, source: source, fields: e.fields}
}

// RawFields exposes the shared field map for copy-on-write callers inside the
// store. Callers must not mutate the returned map.
func (e *EntityData) RawFields() map[string]any { return e.fields }

// CloneValue copies slice-backed values so callers never alias stored state.
func CloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return slices.Clone(t)
	case []SymbolicID:
		return slices.Clone(t)
	default:
		return v
	}
}
