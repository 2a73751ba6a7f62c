package schema

import "entitygraph/pkg/domain"

// Field describes one typed attribute of a kind.
type Field struct {
	Name     string
	Type     domain.FieldType
	Optional bool
	// Default is assigned when the field is absent at creation time.
	Default    any
	HasDefault bool
	// Target is the kind referenced by link and links fields.
	Target domain.Kind
	// NullOnDelete clears references when the target entity is removed.
	NullOnDelete bool
}

// Required reports whether a value must be present at commit time.
func (f Field) Required() bool { return !f.Optional && !f.HasDefault }

// FieldBuilder is the fluent declaration of a Field.
type FieldBuilder struct {
	f Field
}

// String declares a string field.
func String(name string) *FieldBuilder { return newField(name, domain.FieldString) }

// Int declares an int64 field.
func Int(name string) *FieldBuilder { return newField(name, domain.FieldInt) }

// Float declares a float64 field.
func Float(name string) *FieldBuilder { return newField(name, domain.FieldFloat) }

// Bool declares a bool field.
func Bool(name string) *FieldBuilder { return newField(name, domain.FieldBool) }

// List declares an ordered string list field.
func List(name string) *FieldBuilder { return newField(name, domain.FieldList) }

// Set declares a unique string set field.
func Set(name string) *FieldBuilder { return newField(name, domain.FieldSet) }

// Link declares a soft link to an entity of the target kind.
func Link(name string, target domain.Kind) *FieldBuilder {
	b := newField(name, domain.FieldLink)
	b.f.Target = target
	return b
}

// Links declares an ordered list of soft links to the target kind.
func Links(name string, target domain.Kind) *FieldBuilder {
	b := newField(name, domain.FieldLinks)
	b.f.Target = target
	return b
}

// TypedField declares a field by type name, as the YAML loader does.
func TypedField(name string, t domain.FieldType, target domain.Kind) *FieldBuilder {
	b := newField(name, t)
	b.f.Target = target
	return b
}

func newField(name string, t domain.FieldType) *FieldBuilder {
	return &FieldBuilder{f: Field{Name: name, Type: t}}
}

// Optional allows the field to stay unset.
func (b *FieldBuilder) Optional() *FieldBuilder {
	b.f.Optional = true
	return b
}

// Default sets the value assigned when the field is absent at creation.
func (b *FieldBuilder) Default(v any) *FieldBuilder {
	b.f.Default = v
	b.f.HasDefault = true
	return b
}

// NullOnDelete clears dangling references when the target is removed.
func (b *FieldBuilder) NullOnDelete() *FieldBuilder {
	b.f.NullOnDelete = true
	return b
}

// Descriptor returns the declared field.
func (b *FieldBuilder) Descriptor() Field { return b.f }
