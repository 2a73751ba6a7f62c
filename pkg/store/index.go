package store

import (
	"cmp"
	"hash/maphash"
	"slices"

	"github.com/benbjohnson/immutable"

	"entitygraph/pkg/domain"
)

var hashSeed = maphash.MakeSeed()

// comparableHasher adapts maphash to immutable.Hasher for any comparable key.
type comparableHasher[K comparable] struct{}

func (comparableHasher[K]) Hash(key K) uint32 { return uint32(maphash.Comparable(hashSeed, key)) }

func (comparableHasher[K]) Equal(a, b K) bool { return a == b }

type seqComparer struct{}

func (seqComparer) Compare(a, b uint64) int { return cmp.Compare(a, b) }

func newIDMap[V any]() *immutable.Map[domain.EntityID, V] {
	return immutable.NewMap[domain.EntityID, V](comparableHasher[domain.EntityID]{})
}

func newSymbolMap[V any]() *immutable.Map[domain.SymbolicID, V] {
	return immutable.NewMap[domain.SymbolicID, V](comparableHasher[domain.SymbolicID]{})
}

func newSourceMap() *immutable.Map[domain.EntitySource, []domain.EntityID] {
	return immutable.NewMap[domain.EntitySource, []domain.EntityID](comparableHasher[domain.EntitySource]{})
}

func newKindTable() *immutable.SortedMap[uint64, *domain.EntityData] {
	return immutable.NewSortedMap[uint64, *domain.EntityData](seqComparer{})
}

func compareIDs(a, b domain.EntityID) int { return a.Compare(b) }

func compareSymbols(a, b domain.SymbolicID) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	return cmp.Compare(a.Key, b.Key)
}

// withID returns a sorted copy of set containing id. The input is never
// modified since it may be shared with a snapshot.
func withID(set []domain.EntityID, id domain.EntityID) []domain.EntityID {
	i, found := slices.BinarySearchFunc(set, id, compareIDs)
	if found {
		return set
	}
	out := make([]domain.EntityID, 0, len(set)+1)
	out = append(out, set[:i]...)
	out = append(out, id)
	return append(out, set[i:]...)
}

// withoutID returns a copy of set without id.
func withoutID(set []domain.EntityID, id domain.EntityID) []domain.EntityID {
	i, found := slices.BinarySearchFunc(set, id, compareIDs)
	if !found {
		return set
	}
	out := make([]domain.EntityID, 0, len(set)-1)
	out = append(out, set[:i]...)
	return append(out, set[i+1:]...)
}

// appendOrdered returns a copy of an insertion-ordered list with id appended.
func appendOrdered(list []domain.EntityID, id domain.EntityID) []domain.EntityID {
	out := make([]domain.EntityID, 0, len(list)+1)
	out = append(out, list...)
	return append(out, id)
}

// removeOrdered returns a copy of an insertion-ordered list without id.
func removeOrdered(list []domain.EntityID, id domain.EntityID) []domain.EntityID {
	i := slices.Index(list, id)
	if i < 0 {
		return list
	}
	out := make([]domain.EntityID, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}

// symbolSet normalizes a list of symbolic ids into a sorted unique slice.
func symbolSet(ids []domain.SymbolicID) []domain.SymbolicID {
	out := slices.Clone(ids)
	slices.SortFunc(out, compareSymbols)
	return slices.Compact(out)
}
