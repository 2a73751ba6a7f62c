package domain

import "context"

// SnapshotStore is a durable home for encoded snapshot dumps, keyed by
// lineage name. Implementations overwrite the previous payload on Save.
type SnapshotStore interface {
	Save(ctx context.Context, lineage string, payload []byte) error
	Load(ctx context.Context, lineage string) ([]byte, bool, error)
	Lineages(ctx context.Context) ([]string, error)
	Close() error
}

// Codec turns dumps into bytes and back.
type Codec interface {
	Name() string
	Extension() string
	ContentType() string
	Encode(Dump) ([]byte, error)
	Decode([]byte) (Dump, error)
}
