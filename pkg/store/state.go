package store

import (
	"iter"
	"maps"
	"slices"

	"github.com/benbjohnson/immutable"

	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
)

// relationTable indexes one connection in both directions.
type relationTable struct {
	children *immutable.Map[domain.EntityID, []domain.EntityID]
	parents  *immutable.Map[domain.EntityID, domain.EntityID]
}

func newRelationTable() relationTable {
	return relationTable{
		children: newIDMap[[]domain.EntityID](),
		parents:  newIDMap[domain.EntityID](),
	}
}

// state is the persistent graph shared by snapshots and builders. The small
// top-level maps are copied on first write by a builder; everything below
// them is a persistent structure and shared between versions.
type state struct {
	reg       *schema.Registry
	kinds     map[domain.Kind]*immutable.SortedMap[uint64, *domain.EntityData]
	seqs      map[domain.Kind]uint64
	relations []relationTable
	symbols   *immutable.Map[domain.SymbolicID, []domain.EntityID]
	linksTo   *immutable.Map[domain.SymbolicID, []domain.EntityID]
	linksFrom *immutable.Map[domain.EntityID, []domain.SymbolicID]
	sources   *immutable.Map[domain.EntitySource, []domain.EntityID]
}

func newState(reg *schema.Registry) *state {
	st := &state{
		reg:       reg,
		kinds:     make(map[domain.Kind]*immutable.SortedMap[uint64, *domain.EntityData]),
		seqs:      make(map[domain.Kind]uint64),
		relations: make([]relationTable, len(reg.Connections())),
		symbols:   newSymbolMap[[]domain.EntityID](),
		linksTo:   newSymbolMap[[]domain.EntityID](),
		linksFrom: newIDMap[[]domain.SymbolicID](),
		sources:   newSourceMap(),
	}
	for _, kind := range reg.Kinds() {
		if info, _ := reg.Kind(kind); !info.Abstract {
			st.kinds[kind] = newKindTable()
		}
	}
	for i := range st.relations {
		st.relations[i] = newRelationTable()
	}
	return st
}

// clone copies the top-level containers so writes do not leak into the
// snapshot that shares st.
func (st *state) clone() *state {
	cp := *st
	cp.kinds = maps.Clone(st.kinds)
	cp.seqs = maps.Clone(st.seqs)
	cp.relations = slices.Clone(st.relations)
	return &cp
}

func (st *state) get(id domain.EntityID) (*domain.EntityData, bool) {
	table, ok := st.kinds[id.Kind]
	if !ok {
		return nil, false
	}
	return table.Get(id.Seq)
}

func (st *state) live(id domain.EntityID) bool {
	_, ok := st.get(id)
	return ok
}

func (st *state) entitiesOfKind(kind domain.Kind) iter.Seq[*domain.EntityData] {
	kinds := st.reg.ConcreteKinds(kind)
	return func(yield func(*domain.EntityData) bool) {
		for _, k := range kinds {
			table, ok := st.kinds[k]
			if !ok {
				continue
			}
			for itr := table.Iterator(); !itr.Done(); {
				_, ent, _ := itr.Next()
				if !yield(ent) {
					return
				}
			}
		}
	}
}

func (st *state) count(kind domain.Kind) int {
	n := 0
	for _, k := range st.reg.ConcreteKinds(kind) {
		if table, ok := st.kinds[k]; ok {
			n += table.Len()
		}
	}
	return n
}

func (st *state) resolveSymbolic(sid domain.SymbolicID) (*domain.EntityData, bool) {
	claimants, ok := st.symbols.Get(sid)
	if !ok || len(claimants) == 0 {
		return nil, false
	}
	return st.get(claimants[0])
}

func (st *state) relation(conn schema.ConnectionID) (relationTable, bool) {
	if !conn.Valid() || int(conn) > len(st.relations) {
		return relationTable{}, false
	}
	return st.relations[conn-1], true
}

func (st *state) parentID(conn schema.ConnectionID, child domain.EntityID) (domain.EntityID, bool) {
	rel, ok := st.relation(conn)
	if !ok {
		return domain.EntityID{}, false
	}
	return rel.parents.Get(child)
}

func (st *state) parentOf(conn schema.ConnectionID, child domain.EntityID) (*domain.EntityData, bool) {
	pid, ok := st.parentID(conn, child)
	if !ok {
		return nil, false
	}
	return st.get(pid)
}

func (st *state) childIDs(conn schema.ConnectionID, parent domain.EntityID) []domain.EntityID {
	rel, ok := st.relation(conn)
	if !ok {
		return nil
	}
	children, _ := rel.children.Get(parent)
	return children
}

func (st *state) childrenOf(conn schema.ConnectionID, parent domain.EntityID) iter.Seq[*domain.EntityData] {
	ids := st.childIDs(conn, parent)
	return func(yield func(*domain.EntityData) bool) {
		for _, id := range ids {
			ent, ok := st.get(id)
			if !ok {
				continue
			}
			if !yield(ent) {
				return
			}
		}
	}
}

func (st *state) softLinksTo(sid domain.SymbolicID) []domain.EntityID {
	holders, _ := st.linksTo.Get(sid)
	return slices.Clone(holders)
}

func (st *state) entitiesBySource(source domain.EntitySource) []domain.EntityID {
	ids, _ := st.sources.Get(source)
	return slices.Clone(ids)
}

// Reader is the read surface shared by snapshots and builders. Façades read
// exclusively through it.
type Reader interface {
	Registry() *schema.Registry
	Get(id domain.EntityID) (*domain.EntityData, bool)
	EntitiesOfKind(kind domain.Kind) iter.Seq[*domain.EntityData]
	Count(kind domain.Kind) int
	ResolveSymbolic(sid domain.SymbolicID) (*domain.EntityData, bool)
	ParentOf(conn schema.ConnectionID, child domain.EntityID) (*domain.EntityData, bool)
	ChildrenOf(conn schema.ConnectionID, parent domain.EntityID) iter.Seq[*domain.EntityData]
	ChildIDs(conn schema.ConnectionID, parent domain.EntityID) []domain.EntityID
	SoftLinksTo(sid domain.SymbolicID) []domain.EntityID
	EntitiesBySource(source domain.EntitySource) []domain.EntityID
}
