// Package config loads workspace configuration from the environment.
//
//	ENTITYGRAPH_LINEAGE: lineage name persisted and archived (default main)
//	ENTITYGRAPH_CODEC: json|msgpack (default json)
//	ENTITYGRAPH_STORAGE_DRIVER: memory|sqlite|postgres|badger (default sqlite)
//	ENTITYGRAPH_SQLITE_PATH: database file when driver=sqlite (default ./entitygraph.db)
//	ENTITYGRAPH_POSTGRES_DSN: connection string when driver=postgres
//	ENTITYGRAPH_BADGER_PATH: data directory when driver=badger
//	ENTITYGRAPH_BADGER_IN_MEMORY: true|false, ignore the path and keep data in memory
//	ENTITYGRAPH_BLOB_DRIVER: fs|s3|memory, enables the snapshot archive (default disabled)
//	ENTITYGRAPH_BLOB_FS_ROOT: directory root when blob driver=fs (default ./blobdata)
//	ENTITYGRAPH_BLOB_S3_BUCKET: bucket when blob driver=s3 (required)
//	ENTITYGRAPH_BLOB_S3_REGION: region (default us-east-1)
//	ENTITYGRAPH_BLOB_S3_ENDPOINT: custom endpoint for MinIO (optional)
//	ENTITYGRAPH_BLOB_S3_PATH_STYLE: true|false (default false)
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Environment variable prefix shared by every setting.
const envPrefix = "ENTITYGRAPH_"

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageBadger   = "badger"
)

// Config is the complete workspace configuration.
type Config struct {
	Lineage string `validate:"required,max=128,excludesall=/\\"`
	Codec   string `validate:"required,oneof=json msgpack"`
	Storage Storage
	Blob    Blob
}

// Storage selects the snapshot persistence backend.
type Storage struct {
	Driver         string `validate:"required,oneof=memory sqlite postgres badger"`
	SQLitePath     string
	PostgresDSN    string `validate:"required_if=Driver postgres"`
	BadgerPath     string `validate:"required_if=Driver badger BadgerInMemory false"`
	BadgerInMemory bool
}

// Blob selects the snapshot archive backend. An empty driver disables the
// archive.
type Blob struct {
	Driver      string `validate:"omitempty,oneof=fs s3 memory"`
	FSRoot      string
	S3Bucket    string `validate:"required_if=Driver s3"`
	S3Region    string
	S3Endpoint  string `validate:"omitempty,url"`
	S3PathStyle bool
}

// ArchiveEnabled reports whether a blob driver is configured.
func (b Blob) ArchiveEnabled() bool { return b.Driver != "" }

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		Lineage: "main",
		Codec:   "json",
		Storage: Storage{Driver: StorageSQLite},
	}
}

// FromEnv loads configuration from the process environment.
func FromEnv() (Config, error) {
	return Load(os.LookupEnv)
}

// Load builds a Config from lookup, applying defaults for unset variables,
// and validates the result.
func Load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	var errs []error
	getBool := func(name string) bool {
		v, ok := get(name)
		if !ok {
			return false
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		}
		return b
	}

	if v, ok := get("LINEAGE"); ok {
		cfg.Lineage = v
	}
	if v, ok := get("CODEC"); ok {
		cfg.Codec = strings.ToLower(v)
	}
	if v, ok := get("STORAGE_DRIVER"); ok {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	cfg.Storage.SQLitePath, _ = get("SQLITE_PATH")
	cfg.Storage.PostgresDSN, _ = get("POSTGRES_DSN")
	cfg.Storage.BadgerPath, _ = get("BADGER_PATH")
	cfg.Storage.BadgerInMemory = getBool("BADGER_IN_MEMORY")

	if v, ok := get("BLOB_DRIVER"); ok {
		cfg.Blob.Driver = strings.ToLower(v)
	}
	cfg.Blob.FSRoot, _ = get("BLOB_FS_ROOT")
	cfg.Blob.S3Bucket, _ = get("BLOB_S3_BUCKET")
	cfg.Blob.S3Region, _ = get("BLOB_S3_REGION")
	cfg.Blob.S3Endpoint, _ = get("BLOB_S3_ENDPOINT")
	cfg.Blob.S3PathStyle = getBool("BLOB_S3_PATH_STYLE")

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports every failing field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s fails %s", field, fe.Tag())
	}
}
