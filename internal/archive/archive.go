// Package archive keeps an append-only history of snapshot dumps in a blob
// store. Every archived version is a separate, create-only object:
//
//	snapshots/<name>/<version, 20 digits>.<codec extension>
//
// so List returns versions in order and older versions are never rewritten.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"entitygraph/internal/blob"
	"entitygraph/internal/codec"
	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
	"entitygraph/pkg/store"
)

const rootPrefix = "snapshots/"

// Metadata keys written alongside every archived dump.
const (
	MetaName        = "name"
	MetaVersion     = "version"
	MetaFingerprint = "schema-fingerprint"
	MetaCodec       = "codec"
)

var (
	// ErrNoSnapshots is returned by Restore when nothing was archived under a
	// name.
	ErrNoSnapshots = errors.New("archive: no snapshots")
	// ErrVersionNotFound is returned by Restore for an unarchived version.
	ErrVersionNotFound = errors.New("archive: version not found")
)

// Entry describes one archived snapshot version.
type Entry struct {
	Name     string
	Version  uint64
	Key      string
	Codec    string
	Size     int64
	Checksum string
	Created  time.Time
}

// Archive writes and reads snapshot dumps through a blob store.
type Archive struct {
	blobs blob.Store
	codec domain.Codec
}

// New returns an archive writing with c. A nil codec selects JSON.
func New(blobs blob.Store, c domain.Codec) *Archive {
	if c == nil {
		c = codec.JSON()
	}
	return &Archive{blobs: blobs, codec: c}
}

// Driver reports the underlying blob driver.
func (a *Archive) Driver() blob.Driver { return a.blobs.Driver() }

// Key returns the object key for version of name written with ext.
func Key(name string, version uint64, ext string) string {
	return fmt.Sprintf("%s%s/%020d.%s", rootPrefix, name, version, ext)
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return fmt.Errorf("archive: invalid name %q", name)
	}
	return nil
}

// Put archives snap under name. Re-archiving an existing version fails with
// blob.ErrExists.
func (a *Archive) Put(ctx context.Context, name string, snap *store.Snapshot) (Entry, error) {
	if err := validName(name); err != nil {
		return Entry{}, err
	}
	d := snap.Dump()
	payload, err := a.codec.Encode(d)
	if err != nil {
		return Entry{}, err
	}
	key := Key(name, d.Version, a.codec.Extension())
	info, err := a.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: a.codec.ContentType(),
		Metadata: map[string]string{
			MetaName:        name,
			MetaVersion:     strconv.FormatUint(d.Version, 10),
			MetaFingerprint: d.SchemaFingerprint,
			MetaCodec:       a.codec.Name(),
		},
	})
	if err != nil {
		return Entry{}, fmt.Errorf("archive %s v%d: %w", name, d.Version, err)
	}
	entry, ok := parseKey(info)
	if !ok {
		return Entry{}, fmt.Errorf("archive %s: unexpected key %s", name, info.Key)
	}
	return entry, nil
}

// List returns the archived versions of name in ascending version order.
// Objects that do not follow the key layout are skipped.
func (a *Archive) List(ctx context.Context, name string) ([]Entry, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	infos, err := a.blobs.List(ctx, rootPrefix+name+"/")
	if err != nil {
		return nil, fmt.Errorf("list archive %s: %w", name, err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		if e, ok := parseKey(info); ok && e.Name == name {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Latest returns the highest archived version of name.
func (a *Archive) Latest(ctx context.Context, name string) (Entry, bool, error) {
	entries, err := a.List(ctx, name)
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[len(entries)-1], true, nil
}

// Fetch reads and decodes the dump stored for e, using the codec its key
// extension names.
func (a *Archive) Fetch(ctx context.Context, e Entry) (domain.Dump, error) {
	c, err := codec.ByName(e.Codec)
	if err != nil {
		return domain.Dump{}, err
	}
	_, rc, err := a.blobs.Get(ctx, e.Key)
	if err != nil {
		return domain.Dump{}, fmt.Errorf("fetch %s: %w", e.Key, err)
	}
	defer rc.Close()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return domain.Dump{}, fmt.Errorf("read %s: %w", e.Key, err)
	}
	return c.Decode(payload)
}

// Restore rebuilds the snapshot archived as version of name against reg.
// Version zero selects the latest archived version.
func (a *Archive) Restore(ctx context.Context, reg *schema.Registry, name string, version uint64) (*store.Snapshot, error) {
	entries, err := a.List(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoSnapshots, name)
	}
	entry := entries[len(entries)-1]
	if version != 0 {
		found := false
		for _, e := range entries {
			if e.Version == version {
				entry, found = e, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s has no version %d", ErrVersionNotFound, name, version)
		}
	}
	d, err := a.Fetch(ctx, entry)
	if err != nil {
		return nil, err
	}
	return store.Restore(reg, d)
}

// Prune deletes all but the newest keep versions of name and returns the
// removed entries.
func (a *Archive) Prune(ctx context.Context, name string, keep int) ([]Entry, error) {
	entries, err := a.List(ctx, name)
	if err != nil {
		return nil, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(entries) <= keep {
		return nil, nil
	}
	doomed := entries[:len(entries)-keep]
	for _, e := range doomed {
		if _, err := a.blobs.Delete(ctx, e.Key); err != nil {
			return nil, fmt.Errorf("prune %s: %w", e.Key, err)
		}
	}
	return doomed, nil
}

func parseKey(info blob.Info) (Entry, bool) {
	rest, ok := strings.CutPrefix(info.Key, rootPrefix)
	if !ok {
		return Entry{}, false
	}
	name, file := path.Split(rest)
	name = strings.TrimSuffix(name, "/")
	if name == "" || strings.Contains(name, "/") {
		return Entry{}, false
	}
	stem, ext, ok := strings.Cut(file, ".")
	if !ok || len(stem) != 20 {
		return Entry{}, false
	}
	version, err := strconv.ParseUint(stem, 10, 64)
	if err != nil {
		return Entry{}, false
	}
	return Entry{
		Name:     name,
		Version:  version,
		Key:      info.Key,
		Codec:    ext,
		Size:     info.Size,
		Checksum: info.Checksum,
		Created:  info.LastModified,
	}, true
}
