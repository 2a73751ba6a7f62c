// Package postgres persists encoded snapshot dumps to a Postgres table via
// the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"entitygraph/pkg/domain"
)

var _ domain.SnapshotStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/entitygraph?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const (
	stateDDL = `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BYTEA NOT NULL
	)`
	upsertSQL   = `INSERT INTO state (bucket, payload) VALUES ($1, $2) ON CONFLICT (bucket) DO UPDATE SET payload = EXCLUDED.payload`
	selectSQL   = `SELECT payload FROM state WHERE bucket = $1`
	lineagesSQL = `SELECT bucket FROM state ORDER BY bucket`
)

// Store keeps one payload row per lineage.
type Store struct {
	db *sql.DB
}

// NewStore opens a Postgres-backed store using dsn (falls back to
// defaultDSN), pings it and ensures the state table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, stateDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure state table: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts the payload for lineage.
func (s *Store) Save(ctx context.Context, lineage string, payload []byte) error {
	if _, err := s.db.ExecContext(ctx, upsertSQL, lineage, payload); err != nil {
		return fmt.Errorf("upsert %s: %w", lineage, err)
	}
	return nil
}

// Load returns the payload stored for lineage.
func (s *Store) Load(ctx context.Context, lineage string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, selectSQL, lineage).Scan(&payload)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("select %s: %w", lineage, err)
	}
	return payload, true, nil
}

// Lineages lists the stored lineages in lexical order.
func (s *Store) Lineages(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, lineagesSQL)
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sql.Open implementation used by NewStore. It
// returns a restore function that reinstates the previous opener.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
