package schema_test

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
)

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	f, err := os.Open("testdata/project.yaml")
	require.NoError(t, err)
	defer f.Close()

	reg, err := schema.LoadYAML(f)
	require.NoError(t, err)

	mod, ok := reg.Kind("module")
	require.True(t, ok)
	assert.Equal(t, []string{"name"}, mod.SymbolicKey)
	typ, ok := mod.Field("type")
	require.True(t, ok)
	assert.Equal(t, "JAVA", typ.Default)
	assert.False(t, typ.Required())
	deps, _ := mod.Field("dependencies")
	assert.Equal(t, domain.FieldLinks, deps.Type)
	assert.Equal(t, domain.Kind("module"), deps.Target)

	settings, ok := reg.ConnectionByName("module.settings")
	require.True(t, ok)
	conn, _ := reg.Connection(settings)
	assert.Equal(t, schema.OneToOne, conn.Cardinality)

	children, ok := reg.ConnectionByName("directory.children")
	require.True(t, ok)
	conn, _ = reg.Connection(children)
	assert.Equal(t, schema.AbstractOneToMany, conn.Cardinality)
	assert.False(t, conn.ParentRequired)
	assert.Equal(t, []domain.Kind{"file", "directory"}, reg.ConcreteKinds("element"))
}

func TestDecodeDocumentRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	_, err := schema.DecodeDocument(strings.NewReader("kinds:\n  - name: module\n    colour: red\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")

	_, err = schema.DecodeDocument(strings.NewReader(""))
	assert.ErrorContains(t, err, "empty document")
}

func TestProblems(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "valid",
			doc:  "kinds:\n  - name: module\n    fields:\n      - {name: name, type: string}\n",
		},
		{
			name: "lint",
			doc: `kinds:
  - name: module
    implementors: [file]
    fields:
      - {name: name}
      - {name: size, type: int, null_on_delete: true}
    connections:
      - {name: roots}
`,
			want: []string{
				`kind "module" connections[0] missing child`,
				`kind "module" field "size" sets null_on_delete on non-link type int`,
				`kind "module" fields[0] missing type`,
				`kind "module" lists implementors but is not abstract`,
			},
		},
		{
			name: "registry",
			doc: `kinds:
  - name: element
    abstract: true
  - name: module
    connections:
      - {name: roots, child: contentRoot}
`,
			want: []string{
				`abstract kind "element" has no registered implementor`,
				`kind "module" connection "roots" targets unknown kind "contentRoot"`,
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			doc, err := schema.DecodeDocument(strings.NewReader(tc.doc))
			require.NoError(t, err)
			assert.Equal(t, tc.want, schema.Problems(doc))
		})
	}
}

func TestLoadYAMLReportsConfigurationError(t *testing.T) {
	t.Parallel()
	_, err := schema.LoadYAML(strings.NewReader("kinds: []\n"))
	require.True(t, domain.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "kinds section must not be empty")
}
