package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
	"entitygraph/pkg/store"
)

func TestRenamePropagatesToSoftLinks(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	b := newBuilder(t, store.Empty(reg))
	core := mustCreate(t, b, kindModule, map[string]any{"name": "core"})
	app := mustCreate(t, b, kindModule, map[string]any{
		"name":         "app",
		"dependencies": []domain.SymbolicID{sid(kindModule, "core")},
	})
	run := mustCreate(t, b, kindRunConfig, map[string]any{"name": "run-app", "module": "module:core"})
	before := mustCommit(t, b)
	assert.Equal(t, []domain.EntityID{app, run}, before.SoftLinksTo(sid(kindModule, "core")))

	require.NoError(t, b.ModifyEntity(core, "name", "kernel"))
	after, changes, err := b.CommitWithChanges()
	require.NoError(t, err)

	appData, _ := after.Get(app)
	assert.Equal(t, []domain.SymbolicID{sid(kindModule, "kernel")}, appData.Links("dependencies"))
	runData, _ := after.Get(run)
	link, ok := runData.Link("module")
	require.True(t, ok)
	assert.Equal(t, sid(kindModule, "kernel"), link)

	assert.Empty(t, after.SoftLinksTo(sid(kindModule, "core")))
	assert.Equal(t, []domain.EntityID{app, run}, after.SoftLinksTo(sid(kindModule, "kernel")))

	props := make(map[domain.EntityID][]string)
	for _, c := range changes {
		props[c.Entity] = c.Properties
	}
	assert.Equal(t, []string{"name"}, props[core])
	assert.Equal(t, []string{"dependencies"}, props[app])
	assert.Equal(t, []string{"module"}, props[run])

	old, _ := before.Get(app)
	assert.Equal(t, []domain.SymbolicID{sid(kindModule, "core")}, old.Links("dependencies"))
}

func TestRenameOntoTakenSymbolicIDFailsCommit(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	b := newBuilder(t, store.Empty(reg))
	core := mustCreate(t, b, kindModule, map[string]any{"name": "core"})
	mustCreate(t, b, kindModule, map[string]any{"name": "kernel"})
	app := mustCreate(t, b, kindModule, map[string]any{
		"name":         "app",
		"dependencies": []domain.SymbolicID{sid(kindModule, "core")},
	})
	before := mustCommit(t, b)

	require.NoError(t, b.ModifyEntity(core, "name", "kernel"))
	_, err := b.Commit()
	require.Error(t, err)
	assert.True(t, domain.IsDuplicateSymbolicID(err))

	appData, _ := before.Get(app)
	assert.Equal(t, []domain.SymbolicID{sid(kindModule, "core")}, appData.Links("dependencies"))
	assert.Equal(t, []domain.EntityID{app}, before.SoftLinksTo(sid(kindModule, "core")))
}

func TestDanglingSoftLinkResolvesLater(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	ghost := sid(kindModule, "ghost")
	b := newBuilder(t, store.Empty(reg))
	run := mustCreate(t, b, kindRunConfig, map[string]any{"name": "run", "module": ghost})
	snap := mustCommit(t, b)

	_, ok := snap.ResolveSymbolic(ghost)
	assert.False(t, ok)
	assert.Equal(t, []domain.EntityID{run}, snap.SoftLinksTo(ghost))

	mod := mustCreate(t, b, kindModule, map[string]any{"name": "ghost"})
	next := mustCommit(t, b)
	got, ok := next.ResolveSymbolic(ghost)
	require.True(t, ok)
	assert.Equal(t, mod, got.ID())
}

func TestRemovalNullsOptedInLinks(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	coreSID := sid(kindModule, "core")
	b := newBuilder(t, store.Empty(reg))
	core := mustCreate(t, b, kindModule, map[string]any{"name": "core"})
	lib := mustCreate(t, b, kindLibrary, map[string]any{
		"name":  "guava",
		"users": []domain.SymbolicID{coreSID, sid(kindModule, "app")},
	})
	run := mustCreate(t, b, kindRunConfig, map[string]any{"name": "run", "module": coreSID})
	mustCommit(t, b)

	_, err := b.RemoveEntity(core)
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, b.ChangedProperties(lib))
	snap := mustCommit(t, b)

	libData, _ := snap.Get(lib)
	assert.Equal(t, []domain.SymbolicID{sid(kindModule, "app")}, libData.Links("users"))
	runData, _ := snap.Get(run)
	link, ok := runData.Link("module")
	require.True(t, ok, "non-opted link keeps its dangling value")
	assert.Equal(t, coreSID, link)
	assert.Equal(t, []domain.EntityID{run}, snap.SoftLinksTo(coreSID))
}

func TestRemovalKeepsLinksWhileAnotherClaimantRemains(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	coreSID := sid(kindModule, "core")
	b := newBuilder(t, store.Empty(reg))
	first := mustCreate(t, b, kindModule, map[string]any{"name": "core"})
	lib := mustCreate(t, b, kindLibrary, map[string]any{"name": "guava", "users": []domain.SymbolicID{coreSID}})
	mustCommit(t, b)

	second := mustCreate(t, b, kindModule, map[string]any{"name": "core"})
	_, err := b.RemoveEntity(first)
	require.NoError(t, err)
	snap := mustCommit(t, b)

	libData, _ := snap.Get(lib)
	assert.Equal(t, []domain.SymbolicID{coreSID}, libData.Links("users"))
	got, ok := snap.ResolveSymbolic(coreSID)
	require.True(t, ok)
	assert.Equal(t, second, got.ID())
}

func TestEditingLinksReindexesHolder(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	b := newBuilder(t, store.Empty(reg))
	run := mustCreate(t, b, kindRunConfig, map[string]any{"name": "run", "module": sid(kindModule, "a")})
	mustCommit(t, b)

	require.NoError(t, b.ModifyEntity(run, "module", sid(kindModule, "b")))
	assert.Empty(t, b.SoftLinksTo(sid(kindModule, "a")))
	assert.Equal(t, []domain.EntityID{run}, b.SoftLinksTo(sid(kindModule, "b")))

	require.NoError(t, b.ModifyEntity(run, "module", nil))
	assert.Empty(t, b.SoftLinksTo(sid(kindModule, "b")))
}

func TestSwappedRenamesKeepLinkTargets(t *testing.T) {
	t.Parallel()
	for _, order := range []string{"x-first", "y-first"} {
		t.Run(order, func(t *testing.T) {
			t.Parallel()
			reg := testRegistry(t)
			b := newBuilder(t, store.Empty(reg))
			x := mustCreate(t, b, kindModule, map[string]any{"name": "x"})
			y := mustCreate(t, b, kindModule, map[string]any{"name": "y"})
			runX := mustCreate(t, b, kindRunConfig, map[string]any{"name": "run-x", "module": "module:x"})
			runY := mustCreate(t, b, kindRunConfig, map[string]any{"name": "run-y", "module": "module:y"})
			mustCommit(t, b)

			if order == "x-first" {
				require.NoError(t, b.ModifyEntity(x, "name", "y"))
				require.NoError(t, b.ModifyEntity(y, "name", "x"))
			} else {
				require.NoError(t, b.ModifyEntity(y, "name", "x"))
				require.NoError(t, b.ModifyEntity(x, "name", "y"))
			}
			snap := mustCommit(t, b)

			for holder, want := range map[domain.EntityID]domain.EntityID{runX: x, runY: y} {
				data, _ := snap.Get(holder)
				link, ok := data.Link("module")
				require.True(t, ok)
				got, ok := snap.ResolveSymbolic(link)
				require.True(t, ok)
				assert.Equal(t, want, got.ID(), "%s links %s", holder, link)
			}
			assert.Equal(t, []domain.EntityID{runY}, snap.SoftLinksTo(sid(kindModule, "x")))
			assert.Equal(t, []domain.EntityID{runX}, snap.SoftLinksTo(sid(kindModule, "y")))
		})
	}
}

func TestChainedRenameFollowsEntity(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	b := newBuilder(t, store.Empty(reg))
	core := mustCreate(t, b, kindModule, map[string]any{"name": "core"})
	run := mustCreate(t, b, kindRunConfig, map[string]any{"name": "run", "module": "module:core"})
	mustCommit(t, b)

	require.NoError(t, b.ModifyEntity(core, "name", "kernel"))
	require.NoError(t, b.ModifyEntity(core, "name", "base"))
	late := mustCreate(t, b, kindRunConfig, map[string]any{"name": "late", "module": "module:kernel"})
	snap := mustCommit(t, b)

	runData, _ := snap.Get(run)
	link, _ := runData.Link("module")
	assert.Equal(t, sid(kindModule, "base"), link)
	lateData, _ := snap.Get(late)
	link, _ = lateData.Link("module")
	assert.Equal(t, sid(kindModule, "kernel"), link, "links written after a rename are left alone")
}

func TestClearingSymbolicKeyNullsOptedInLinks(t *testing.T) {
	t.Parallel()
	reg, err := schema.NewRegistry(
		schema.Entity("tool").
			Fields(schema.String("alias").Optional()).
			SymbolicKey("alias"),
		schema.Entity("recipe").
			Fields(
				schema.String("name"),
				schema.Links("tools", "tool").Optional().NullOnDelete(),
				schema.Link("primary", "tool").Optional(),
			),
	)
	require.NoError(t, err)
	hammer := sid("tool", "hammer")
	b := newBuilder(t, store.Empty(reg))
	tool := mustCreate(t, b, "tool", map[string]any{"alias": "hammer"})
	recipe := mustCreate(t, b, "recipe", map[string]any{
		"name":    "shelf",
		"tools":   []domain.SymbolicID{hammer, sid("tool", "saw")},
		"primary": hammer,
	})
	mustCommit(t, b)

	require.NoError(t, b.ModifyEntity(tool, "alias", nil))
	assert.Equal(t, []string{"tools"}, b.ChangedProperties(recipe))
	snap := mustCommit(t, b)

	_, ok := snap.ResolveSymbolic(hammer)
	assert.False(t, ok)
	data, _ := snap.Get(recipe)
	assert.Equal(t, []domain.SymbolicID{sid("tool", "saw")}, data.Links("tools"))
	link, ok := data.Link("primary")
	require.True(t, ok, "non-opted link keeps its dangling value")
	assert.Equal(t, hammer, link)
}

func TestLinkValuesMustNameTargetKind(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	b := newBuilder(t, store.Empty(reg))

	_, err := b.CreateEntity(kindRunConfig, srcProject, map[string]any{"name": "run", "module": "library:guava"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "module", verr.Field)

	_, err = b.CreateEntity(kindModule, srcProject, map[string]any{
		"name":         "app",
		"dependencies": []domain.SymbolicID{sid(kindModule, "core"), sid(kindRunConfig, "run")},
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "dependencies", verr.Field)

	run := mustCreate(t, b, kindRunConfig, map[string]any{"name": "run", "module": "module:missing"})
	err = b.ModifyEntity(run, "module", sid(kindLibrary, "guava"))
	require.ErrorAs(t, err, &verr)
	snap := mustCommit(t, b)

	data, _ := snap.Get(run)
	link, ok := data.Link("module")
	require.True(t, ok)
	assert.Equal(t, sid(kindModule, "missing"), link)
}
