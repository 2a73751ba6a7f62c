// Package store implements the entity graph: immutable snapshots with
// structural sharing, copy-on-write builders, typed parent/child relations,
// the soft-link index and the consistency checks that gate every commit.
package store

import (
	"iter"
	"slices"
	"sync"

	"github.com/google/uuid"

	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
)

// lineage is the chain of snapshots produced by successive commits. Only one
// builder may hold its write lease at a time.
type lineage struct {
	id string

	mu     sync.Mutex
	head   uint64
	holder uuid.UUID
}

func newLineage(id string, head uint64) *lineage {
	if id == "" {
		id = uuid.NewString()
	}
	return &lineage{id: id, head: head}
}

// Snapshot is an immutable, consistent view of the graph. It is safe for
// concurrent readers and stays valid after later commits.
type Snapshot struct {
	st      *state
	lineage *lineage
	version uint64
}

var _ Reader = (*Snapshot)(nil)

// Empty returns the initial snapshot of a new lineage.
func Empty(reg *schema.Registry) *Snapshot {
	return &Snapshot{st: newState(reg), lineage: newLineage("", 0)}
}

// Registry returns the schema the snapshot was built against.
func (s *Snapshot) Registry() *schema.Registry { return s.st.reg }

// Version is the commit number of the snapshot within its lineage.
func (s *Snapshot) Version() uint64 { return s.version }

// Lineage identifies the commit chain the snapshot belongs to.
func (s *Snapshot) Lineage() string { return s.lineage.id }

// IsHead reports whether no later commit exists on the snapshot's lineage.
func (s *Snapshot) IsHead() bool {
	s.lineage.mu.Lock()
	defer s.lineage.mu.Unlock()
	return s.lineage.head == s.version
}

// Builder starts a builder on top of the snapshot.
func (s *Snapshot) Builder() (*Builder, error) { return NewBuilder(s) }

// Get returns the entity with the given identity.
func (s *Snapshot) Get(id domain.EntityID) (*domain.EntityData, bool) { return s.st.get(id) }

// EntitiesOfKind iterates entities of a kind in insertion order. Abstract
// kinds yield each implementor in declaration order.
func (s *Snapshot) EntitiesOfKind(kind domain.Kind) iter.Seq[*domain.EntityData] {
	return s.st.entitiesOfKind(kind)
}

// Count returns the number of live entities of a kind.
func (s *Snapshot) Count(kind domain.Kind) int { return s.st.count(kind) }

// ResolveSymbolic returns the live entity claiming sid.
func (s *Snapshot) ResolveSymbolic(sid domain.SymbolicID) (*domain.EntityData, bool) {
	return s.st.resolveSymbolic(sid)
}

// ParentOf returns the parent of child in the connection.
func (s *Snapshot) ParentOf(conn schema.ConnectionID, child domain.EntityID) (*domain.EntityData, bool) {
	return s.st.parentOf(conn, child)
}

// ChildrenOf iterates the ordered children of parent in the connection.
func (s *Snapshot) ChildrenOf(conn schema.ConnectionID, parent domain.EntityID) iter.Seq[*domain.EntityData] {
	return s.st.childrenOf(conn, parent)
}

// ChildIDs returns the ordered child identities of parent in the connection.
func (s *Snapshot) ChildIDs(conn schema.ConnectionID, parent domain.EntityID) []domain.EntityID {
	return slices.Clone(s.st.childIDs(conn, parent))
}

// SoftLinksTo returns the entities whose soft links reference sid, whether
// or not sid currently resolves.
func (s *Snapshot) SoftLinksTo(sid domain.SymbolicID) []domain.EntityID {
	return s.st.softLinksTo(sid)
}

// EntitiesBySource returns the entities tagged with source, sorted by id.
func (s *Snapshot) EntitiesBySource(source domain.EntitySource) []domain.EntityID {
	return s.st.entitiesBySource(source)
}

// Size returns the total number of live entities.
func (s *Snapshot) Size() int {
	n := 0
	for _, table := range s.st.kinds {
		n += table.Len()
	}
	return n
}
