package schema

import (
	"fmt"

	"entitygraph/pkg/domain"
)

// Cardinality is the shape of a parent/child connection.
type Cardinality int

// Supported cardinalities. The abstract variants are chosen automatically
// when either endpoint of a connection is an abstract kind.
const (
	OneToOne Cardinality = iota + 1
	OneToMany
	AbstractOneToOne
	AbstractOneToMany
)

func (c Cardinality) String() string {
	switch c {
	case OneToOne:
		return "one-to-one"
	case OneToMany:
		return "one-to-many"
	case AbstractOneToOne:
		return "abstract-one-to-one"
	case AbstractOneToMany:
		return "abstract-one-to-many"
	}
	return fmt.Sprintf("cardinality(%d)", int(c))
}

// Single reports whether a parent may hold at most one child.
func (c Cardinality) Single() bool { return c == OneToOne || c == AbstractOneToOne }

// Abstract reports whether an endpoint is an abstract kind.
func (c Cardinality) Abstract() bool { return c == AbstractOneToOne || c == AbstractOneToMany }

// ConnectionID is the interned identifier of a connection. Equal declaration
// tuples always map to equal identifiers within a registry; zero is invalid.
type ConnectionID int32

// Valid reports whether the identifier was issued by a registry.
func (id ConnectionID) Valid() bool { return id > 0 }

// Connection is the registered description of a typed parent/child relation.
type Connection struct {
	ID          ConnectionID
	Name        string
	Parent      domain.Kind
	Child       domain.Kind
	Cardinality Cardinality
	// Containment cascades parent removal to children.
	Containment bool
	// ParentRequired makes a child without a parent fail commit.
	ParentRequired bool
}

func (c *Connection) String() string {
	return fmt.Sprintf("%s(%s->%s %s)", c.Name, c.Parent, c.Child, c.Cardinality)
}

type connectionKey struct {
	parent      domain.Kind
	child       domain.Kind
	cardinality Cardinality
	containment bool
}

// EdgeBuilder is the fluent declaration of a connection owned by the parent.
type EdgeBuilder struct {
	name           string
	child          domain.Kind
	single         bool
	containment    bool
	optionalParent bool
}

// Contains declares a containment connection: removing the parent removes
// its children.
func Contains(name string, child domain.Kind) *EdgeBuilder {
	return &EdgeBuilder{name: name, child: child, containment: true}
}

// References declares a non-owning connection: removing the parent detaches
// its children instead of removing them.
func References(name string, child domain.Kind) *EdgeBuilder {
	return &EdgeBuilder{name: name, child: child}
}

// One restricts the parent to at most one child.
func (e *EdgeBuilder) One() *EdgeBuilder {
	e.single = true
	return e
}

// OptionalParent lets children exist without a parent in this connection.
func (e *EdgeBuilder) OptionalParent() *EdgeBuilder {
	e.optionalParent = true
	return e
}
