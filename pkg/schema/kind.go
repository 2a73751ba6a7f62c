package schema

import "entitygraph/pkg/domain"

// KindBuilder declares one kind for NewRegistry.
type KindBuilder struct {
	name         domain.Kind
	abstract     bool
	implementors []domain.Kind
	fields       []*FieldBuilder
	symbolicKey  []string
	edges        []*EdgeBuilder
}

// Entity declares a concrete kind.
func Entity(name domain.Kind) *KindBuilder {
	return &KindBuilder{name: name}
}

// Abstract declares an abstract kind implemented by the listed concrete kinds.
func Abstract(name domain.Kind, implementors ...domain.Kind) *KindBuilder {
	return &KindBuilder{name: name, abstract: true, implementors: implementors}
}

// Fields appends field declarations.
func (b *KindBuilder) Fields(fields ...*FieldBuilder) *KindBuilder {
	b.fields = append(b.fields, fields...)
	return b
}

// SymbolicKey names the scalar fields whose values form the symbolic id.
func (b *KindBuilder) SymbolicKey(fields ...string) *KindBuilder {
	b.symbolicKey = append(b.symbolicKey, fields...)
	return b
}

// Connections appends connections in which this kind is the parent.
func (b *KindBuilder) Connections(edges ...*EdgeBuilder) *KindBuilder {
	b.edges = append(b.edges, edges...)
	return b
}

// KindInfo is the registered description of a kind.
type KindInfo struct {
	Name         domain.Kind
	Abstract     bool
	Implementors []domain.Kind
	// Supertypes lists the abstract kinds a concrete kind implements.
	Supertypes  []domain.Kind
	Fields      []Field
	SymbolicKey []string

	fieldIndex map[string]int
}

// Field looks up a field descriptor by name.
func (k *KindInfo) Field(name string) (Field, bool) {
	i, ok := k.fieldIndex[name]
	if !ok {
		return Field{}, false
	}
	return k.Fields[i], true
}

// LinkFields returns the fields that carry soft links.
func (k *KindInfo) LinkFields() []Field {
	var out []Field
	for _, f := range k.Fields {
		if f.Type.Linking() {
			out = append(out, f)
		}
	}
	return out
}

// HasSymbolicKey reports whether entities of the kind carry a symbolic id.
func (k *KindInfo) HasSymbolicKey() bool { return len(k.SymbolicKey) > 0 }
