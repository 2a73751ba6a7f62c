// Package blob re-exports the blob storage contract and selects a backend
// from configuration. Packages outside the blob tree depend on this package
// rather than on the infra implementations.
package blob

import (
	"context"
	"fmt"

	"entitygraph/internal/blob/core"
	"entitygraph/internal/config"
	"entitygraph/internal/infra/blob/fs"
	memorystore "entitygraph/internal/infra/blob/memory"
	infraS3 "entitygraph/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrNotFound reports a missing blob.
	ErrNotFound = core.ErrNotFound
	// ErrExists reports a Put against an existing key.
	ErrExists = core.ErrExists
)

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem returns a Store rooted at root.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewMockS3ForTests exposes the fake-transport S3 store for cross-package
// tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests(0) }

// Open constructs the Store named by cfg.Driver.
func Open(ctx context.Context, cfg config.Blob) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return infraS3.New(ctx, infraS3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	case DriverMemory:
		return NewMemory(), nil
	case "":
		return nil, fmt.Errorf("blob driver not configured")
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
