package store_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/pkg/domain"
	"entitygraph/pkg/store"
)

func TestSnapshotIsImmutable(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	b := newBuilder(t, store.Empty(reg))
	mod := mustCreate(t, b, kindModule, map[string]any{"name": "core", "tags": []string{"a"}})
	s1 := mustCommit(t, b)

	require.NoError(t, b.ModifyEntity(mod, "name", "platform"))
	require.NoError(t, b.ModifyEntity(mod, "tags", []string{"a", "b"}))

	before, ok := s1.Get(mod)
	require.True(t, ok)
	assert.Equal(t, "core", before.String("name"))
	assert.Equal(t, []string{"a"}, before.Strings("tags"))

	s2 := mustCommit(t, b)
	assert.Equal(t, s1.Version()+1, s2.Version())

	old, _ := s1.Get(mod)
	assert.Equal(t, "core", old.String("name"))
	cur, _ := s2.Get(mod)
	assert.Equal(t, "platform", cur.String("name"))
	assert.Equal(t, []string{"a", "b"}, cur.Strings("tags"))

	_, ok = s1.ResolveSymbolic(sid(kindModule, "core"))
	assert.True(t, ok)
	_, ok = s2.ResolveSymbolic(sid(kindModule, "core"))
	assert.False(t, ok)

	tags := old.Strings("tags")
	tags[0] = "mutated"
	again, _ := s1.Get(mod)
	assert.Equal(t, []string{"a"}, again.Strings("tags"))
}

func TestEntitiesOfKindInsertionOrder(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	b := newBuilder(t, store.Empty(reg))
	var want []domain.EntityID
	for _, name := range []string{"zeta", "alpha", "mid"} {
		want = append(want, mustCreate(t, b, kindModule, map[string]any{"name": name}))
	}
	snap := mustCommit(t, b)

	assert.Equal(t, want, ids(snap.EntitiesOfKind(kindModule)))
	assert.Equal(t, want, ids(snap.EntitiesOfKind(kindModule)), "sequence must be restartable")
	assert.Equal(t, 3, snap.Count(kindModule))
	assert.Equal(t, 3, snap.Size())

	var first []domain.EntityID
	for ent := range snap.EntitiesOfKind(kindModule) {
		first = append(first, ent.ID())
		break
	}
	assert.Equal(t, want[:1], first)
	assert.Empty(t, ids(snap.EntitiesOfKind(kindLibrary)))
}

func TestEntitiesBySource(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	b := newBuilder(t, store.Empty(reg))
	local := mustCreate(t, b, kindModule, map[string]any{"name": "local"})
	imported, err := b.CreateEntity(kindModule, srcImport, map[string]any{"name": "imported"})
	require.NoError(t, err)
	lib, err := b.CreateEntity(kindLibrary, srcImport, map[string]any{"name": "guava"})
	require.NoError(t, err)
	snap := mustCommit(t, b)

	assert.Equal(t, []domain.EntityID{local}, snap.EntitiesBySource(srcProject))
	assert.Equal(t, []domain.EntityID{lib, imported}, snap.EntitiesBySource(srcImport))

	removed, err := b.RemoveBySource(srcImport)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.EntityID{lib, imported}, removed)
	next := mustCommit(t, b)
	assert.Empty(t, next.EntitiesBySource(srcImport))
	assert.Equal(t, 1, next.Size())
	assert.Len(t, snap.EntitiesBySource(srcImport), 2)
}

func TestSnapshotConcurrentReaders(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	b := newBuilder(t, store.Empty(reg))
	tree := seedModuleTree(t, b, "core")
	snap := mustCommit(t, b)
	sourceRoots := connID(t, reg, "contentRoot.sourceRoots")

	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				if snap.Count(kindSource) != 2 {
					errs <- "source count changed"
					return
				}
				if len(snap.ChildIDs(sourceRoots, tree.root)) != 2 {
					errs <- "children changed"
					return
				}
				ent, ok := snap.Get(tree.module)
				if !ok || ent.String("name") != "core" {
					errs <- "module changed"
					return
				}
			}
		}()
	}
	for i := range 50 {
		src := mustCreate(t, b, kindSource, map[string]any{"url": "file://gen"})
		require.NoError(t, b.AddChild(sourceRoots, store.RefOf(tree.root), store.RefOf(src)))
		require.NoError(t, b.ModifyEntity(tree.module, "type", []string{"JAVA", "KOTLIN"}[i%2]))
		mustCommit(t, b)
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}
}

func TestBuilderReadsSeePendingState(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	empty := store.Empty(reg)
	b := newBuilder(t, empty)
	tree := seedModuleTree(t, b, "core")

	got, ok := b.Get(tree.module)
	require.True(t, ok)
	assert.Equal(t, "JAVA", got.String("type"), "default applied")
	parent, ok := b.ParentOf(connID(t, reg, "module.contentRoots"), tree.root)
	require.True(t, ok)
	assert.Equal(t, tree.module, parent.ID())
	_, ok = empty.Get(tree.module)
	assert.False(t, ok)
	assert.Zero(t, empty.Size())
}
