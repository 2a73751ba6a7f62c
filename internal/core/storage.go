package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"entitygraph/internal/archive"
	"entitygraph/internal/blob"
	"entitygraph/internal/codec"
	"entitygraph/internal/config"
	badgerstore "entitygraph/internal/infra/persistence/badger"
	"entitygraph/internal/infra/persistence/memory"
	"entitygraph/internal/infra/persistence/postgres"
	"entitygraph/internal/infra/persistence/sqlite"
	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
	"entitygraph/pkg/store"
)

// OpenSnapshotStore selects a persistence backend from cfg. Badger's
// internal log lines go to logger when it is a *slog.Logger.
func OpenSnapshotStore(ctx context.Context, cfg config.Storage, logger Logger) (domain.SnapshotStore, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return memory.NewStore(), nil
	case config.StorageSQLite, "":
		return sqlite.NewStore(cfg.SQLitePath)
	case config.StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	case config.StorageBadger:
		bcfg := badgerstore.Config{Path: cfg.BadgerPath, InMemory: cfg.BadgerInMemory, SyncWrites: !cfg.BadgerInMemory}
		if sl, ok := logger.(*slog.Logger); ok {
			bcfg.Logger = sl.With("component", "badger")
		}
		return badgerstore.NewStore(bcfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// OpenWorkspace builds a workspace from configuration: it opens the snapshot
// store and, when a blob driver is set, the archive, then restores the head
// persisted under cfg.Lineage. With nothing persisted it falls back to the
// latest archived version, then to an empty snapshot. Options given by the
// caller override the configured ones.
func OpenWorkspace(ctx context.Context, cfg config.Config, reg *schema.Registry, opts ...Option) (*Workspace, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	scratch := &Workspace{logger: noopLogger{}, rules: domain.NewRulesEngine()}
	for _, opt := range opts {
		opt(scratch)
	}

	persist, err := OpenSnapshotStore(ctx, cfg.Storage, scratch.logger)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	var arch *archive.Archive
	if cfg.Blob.ArchiveEnabled() {
		blobs, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			_ = persist.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		arch = archive.New(blobs, c)
	}

	head, source, err := loadHead(ctx, reg, cfg.Lineage, persist, arch)
	if err != nil {
		_ = persist.Close()
		return nil, err
	}
	base := []Option{
		WithLineageName(cfg.Lineage),
		WithCodec(c),
		WithSnapshotStore(persist),
		WithArchive(arch),
		WithHead(head),
	}
	w, err := NewWorkspace(reg, append(base, opts...)...)
	if err != nil {
		_ = persist.Close()
		return nil, err
	}
	w.logger.Info("workspace opened", "lineage", w.name, "storage", cfg.Storage.Driver,
		"archive", cfg.Blob.Driver, "codec", c.Name(), "source", source, "version", head.Version())
	return w, nil
}

func loadHead(ctx context.Context, reg *schema.Registry, name string, persist domain.SnapshotStore, arch *archive.Archive) (*store.Snapshot, string, error) {
	payload, ok, err := persist.Load(ctx, name)
	if err != nil {
		return nil, "", fmt.Errorf("load %s: %w", name, err)
	}
	if ok {
		snap, err := decodePersisted(reg, payload)
		if err != nil {
			return nil, "", fmt.Errorf("restore %s: %w", name, err)
		}
		return snap, "persisted", nil
	}
	if arch != nil {
		snap, err := arch.Restore(ctx, reg, name, 0)
		switch {
		case err == nil:
			return snap, "archive", nil
		case !errors.Is(err, archive.ErrNoSnapshots):
			return nil, "", err
		}
	}
	return store.Empty(reg), "empty", nil
}

// decodePersisted accepts any registered codec so the configured codec can
// change between runs.
func decodePersisted(reg *schema.Registry, payload []byte) (*store.Snapshot, error) {
	var errs []error
	for _, name := range codec.Names() {
		c, _ := codec.ByName(name)
		d, err := c.Decode(payload)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return store.Restore(reg, d)
	}
	return nil, errors.Join(errs...)
}
