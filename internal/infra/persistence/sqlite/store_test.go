package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "graph.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if s.Path() != path {
		t.Fatalf("unexpected path %s", s.Path())
	}
	if _, ok, err := s.Load(ctx, "main"); err != nil || ok {
		t.Fatalf("expected no payload, ok=%v err=%v", ok, err)
	}
	if err := s.Save(ctx, "main", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, "main", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := s.Save(ctx, "branch", []byte(`{}`)); err != nil {
		t.Fatalf("save branch: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	got, ok, err := reopened.Load(ctx, "main")
	if err != nil || !ok || string(got) != `{"v":2}` {
		t.Fatalf("expected latest payload, got %q ok=%v err=%v", got, ok, err)
	}
	names, err := reopened.Lineages(ctx)
	if err != nil || len(names) != 2 || names[0] != "branch" || names[1] != "main" {
		t.Fatalf("unexpected lineages %v err=%v", names, err)
	}
	var count int
	if err := reopened.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil || count != 2 {
		t.Fatalf("expected two rows, got %d err=%v", count, err)
	}
}

func TestNewStoreFailsOnUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	if _, err := NewStore(filepath.Join(blocker, "graph.db")); err == nil {
		t.Fatalf("expected error when parent is a file")
	}
}
