package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/archive"
	"entitygraph/internal/blob"
	"entitygraph/internal/codec"
	"entitygraph/internal/config"
	"entitygraph/pkg/schema"
	"entitygraph/pkg/store"
)

const validSchema = `version: "1"
kinds:
  - name: module
    symbolic_key: [name]
    fields:
      - {name: name, type: string}
  - name: element
    abstract: true
    implementors: [file]
  - name: file
    fields:
      - {name: path, type: string}
`

const brokenSchema = `version: "1"
kinds:
  - name: module
    implementors: [file]
    fields:
      - {name: name}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, stderr bytes.Buffer
	prev := errWriter
	errWriter = &stderr
	t.Cleanup(func() { errWriter = prev })
	code := run(args, &out)
	return code, out.String(), stderr.String()
}

func commitModules(t *testing.T, reg *schema.Registry, names ...string) []*store.Snapshot {
	t.Helper()
	snap := store.Empty(reg)
	var out []*store.Snapshot
	for _, name := range names {
		b, err := snap.Builder()
		require.NoError(t, err)
		_, err = b.CreateEntity("module", "project.xml", map[string]any{"name": name})
		require.NoError(t, err)
		snap, err = b.Commit()
		b.Discard()
		require.NoError(t, err)
		out = append(out, snap)
	}
	return out
}

func TestSchemaValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", validSchema)
	bad := writeFile(t, dir, "bad.yaml", brokenSchema)

	code, out, _ := runCLI(t, "schema", "validate", good)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "ok (3 kinds)")

	code, out, stderr := runCLI(t, "schema", "validate", bad)
	assert.Equal(t, exitProblems, code)
	assert.Contains(t, out, "lists implementors but is not abstract")
	assert.Contains(t, out, "missing type")
	assert.Contains(t, stderr, "2 problem(s) found")

	code, _, stderr = runCLI(t, "schema", "validate", filepath.Join(dir, "missing.yaml"))
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "graphctl:")

	code, _, _ = runCLI(t, "schema", "validate")
	assert.Equal(t, exitError, code)
}

func TestSchemaFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "good.yaml", validSchema)
	reg, err := schema.LoadYAML(strings.NewReader(validSchema))
	require.NoError(t, err)

	code, out, _ := runCLI(t, "schema", "fingerprint", path)
	require.Equal(t, exitOK, code)
	assert.Equal(t, reg.Fingerprint(), strings.TrimSpace(out))

	code, _, _ = runCLI(t, "schema", "fingerprint", writeFile(t, dir, "bad.yaml", brokenSchema))
	assert.Equal(t, exitError, code)
}

func TestDumpInspect(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.yaml", validSchema)
	reg, err := schema.LoadYAML(strings.NewReader(validSchema))
	require.NoError(t, err)
	snaps := commitModules(t, reg, "app", "lib")
	head := snaps[len(snaps)-1]

	payload, err := codec.MsgPack().Encode(head.Dump())
	require.NoError(t, err)
	dumpPath := writeFile(t, dir, "head.msgpack", string(payload))

	code, out, stderr := runCLI(t, "dump", "inspect", "--schema", schemaPath, dumpPath)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, out, "version:  2")
	assert.Contains(t, out, "codec:    msgpack")
	assert.Contains(t, out, "entities: 2")
	assert.Regexp(t, `module\s+2`, out)
	assert.Regexp(t, `file\s+0`, out)
	assert.NotContains(t, out, "element")

	// Explicit codec overrides the extension.
	code, _, _ = runCLI(t, "dump", "inspect", "--schema", schemaPath, "--codec", "json", dumpPath)
	assert.Equal(t, exitError, code)

	other := writeFile(t, dir, "other.yaml", strings.Replace(validSchema, "{name: path, type: string}", "{name: path, type: int}", 1))
	code, _, stderr = runCLI(t, "dump", "inspect", "--schema", other, dumpPath)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "fingerprint")

	code, _, _ = runCLI(t, "dump", "inspect", dumpPath)
	assert.Equal(t, exitError, code, "schema flag is required")
}

func TestArchiveCommands(t *testing.T) {
	root := t.TempDir()
	prev := loadConfig
	t.Cleanup(func() { loadConfig = prev })
	loadConfig = func() (config.Config, error) {
		cfg := config.Default()
		cfg.Blob = config.Blob{Driver: "fs", FSRoot: root}
		return cfg, nil
	}

	reg, err := schema.LoadYAML(strings.NewReader(validSchema))
	require.NoError(t, err)
	blobs, err := blob.NewFilesystem(root)
	require.NoError(t, err)
	arch := archive.New(blobs, codec.JSON())
	for _, snap := range commitModules(t, reg, "a", "b", "c") {
		_, err := arch.Put(context.Background(), "main", snap)
		require.NoError(t, err)
	}

	code, out, stderr := runCLI(t, "archive", "list")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, archive.Key("main", 3, "json"))

	code, out, _ = runCLI(t, "archive", "list", "--lineage", "other")
	require.Equal(t, exitOK, code)
	assert.NotContains(t, out, "snapshots/")

	code, out, _ = runCLI(t, "archive", "prune", "--keep", "1")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "2 version(s) removed")
	entries, err := arch.List(context.Background(), "main")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(3), entries[0].Version)

	code, _, _ = runCLI(t, "archive", "prune", "--keep", "0")
	assert.Equal(t, exitError, code)

	loadConfig = func() (config.Config, error) { return config.Default(), nil }
	code, _, stderr = runCLI(t, "archive", "list")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "no blob driver configured")
}

func TestMainUsesExitFn(t *testing.T) {
	prevExit, prevArgs := exitFn, os.Args
	t.Cleanup(func() { exitFn, os.Args = prevExit, prevArgs })
	var stderr bytes.Buffer
	prevErr := errWriter
	errWriter = &stderr
	t.Cleanup(func() { errWriter = prevErr })

	got := -1
	exitFn = func(code int) { got = code }
	os.Args = []string{"graphctl", "bogus"}
	main()
	assert.Equal(t, exitError, got)
}
