package store_test

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/require"

	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
	"entitygraph/pkg/store"
)

const (
	kindModule    domain.Kind = "module"
	kindRoot      domain.Kind = "contentRoot"
	kindSource    domain.Kind = "sourceRoot"
	kindSettings  domain.Kind = "moduleSettings"
	kindLibrary   domain.Kind = "library"
	kindRunConfig domain.Kind = "runConfig"
	kindArtifact  domain.Kind = "artifact"
	kindElement   domain.Kind = "element"
	kindFile      domain.Kind = "file"
	kindDirectory domain.Kind = "directory"

	srcProject domain.EntitySource = "project.xml"
	srcImport  domain.EntitySource = "gradle-import"
)

func testRegistry(t testing.TB) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(
		schema.Entity(kindModule).
			Fields(
				schema.String("name"),
				schema.String("type").Default("JAVA"),
				schema.Links("dependencies", kindModule).Optional(),
				schema.Set("tags").Optional(),
				schema.List("order").Optional(),
			).
			SymbolicKey("name").
			Connections(
				schema.Contains("contentRoots", kindRoot),
				schema.Contains("settings", kindSettings).One(),
				schema.References("libraries", kindLibrary).OptionalParent(),
			),
		schema.Entity(kindRoot).
			Fields(schema.String("url"), schema.List("excluded").Optional()).
			SymbolicKey("url").
			Connections(schema.Contains("sourceRoots", kindSource)),
		schema.Entity(kindSource).
			Fields(schema.String("url"), schema.String("rootType").Default("java-source")),
		schema.Entity(kindSettings).
			Fields(schema.String("languageLevel").Optional()),
		schema.Entity(kindLibrary).
			Fields(schema.String("name"), schema.Links("users", kindModule).Optional().NullOnDelete()).
			SymbolicKey("name"),
		schema.Entity(kindRunConfig).
			Fields(schema.String("name"), schema.Link("module", kindModule).Optional()).
			SymbolicKey("name"),
		schema.Entity(kindArtifact).
			Fields(schema.String("name")).
			SymbolicKey("name").
			Connections(schema.Contains("root", kindElement).One().OptionalParent()),
		schema.Abstract(kindElement, kindFile, kindDirectory),
		schema.Entity(kindFile).Fields(schema.String("path")),
		schema.Entity(kindDirectory).
			Fields(schema.String("name")).
			Connections(schema.Contains("children", kindElement).OptionalParent()),
	)
	require.NoError(t, err)
	return reg
}

func connID(t testing.TB, reg *schema.Registry, name string) schema.ConnectionID {
	t.Helper()
	id, ok := reg.ConnectionByName(name)
	require.True(t, ok, "connection %s", name)
	return id
}

func newBuilder(t testing.TB, snap *store.Snapshot) *store.Builder {
	t.Helper()
	b, err := store.NewBuilder(snap)
	require.NoError(t, err)
	t.Cleanup(b.Discard)
	return b
}

func mustCreate(t testing.TB, b *store.Builder, kind domain.Kind, fields map[string]any) domain.EntityID {
	t.Helper()
	id, err := b.CreateEntity(kind, srcProject, fields)
	require.NoError(t, err)
	return id
}

func mustCommit(t testing.TB, b *store.Builder) *store.Snapshot {
	t.Helper()
	snap, err := b.Commit()
	require.NoError(t, err)
	return snap
}

func sid(kind domain.Kind, key string) domain.SymbolicID {
	return domain.SymbolicID{Kind: kind, Key: key}
}

func ids(seq iter.Seq[*domain.EntityData]) []domain.EntityID {
	var out []domain.EntityID
	for ent := range seq {
		out = append(out, ent.ID())
	}
	return out
}

// moduleTree holds a module with one content root and two source roots.
type moduleTree struct {
	module  domain.EntityID
	root    domain.EntityID
	sources []domain.EntityID
}

func seedModuleTree(t testing.TB, b *store.Builder, name string) moduleTree {
	t.Helper()
	reg := b.Registry()
	tree := moduleTree{module: mustCreate(t, b, kindModule, map[string]any{"name": name})}
	tree.root = mustCreate(t, b, kindRoot, map[string]any{"url": "file://" + name})
	require.NoError(t, b.AddChild(connID(t, reg, "module.contentRoots"), store.RefOf(tree.module), store.RefOf(tree.root)))
	for _, dir := range []string{"src", "test"} {
		src := mustCreate(t, b, kindSource, map[string]any{"url": "file://" + name + "/" + dir})
		require.NoError(t, b.AddChild(connID(t, reg, "contentRoot.sourceRoots"), store.RefOf(tree.root), store.RefOf(src)))
		tree.sources = append(tree.sources, src)
	}
	return tree
}
