// Package archive exports session snapshots as YAML documents into a blob
// store and imports them back.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"fitsync/internal/blob"
	"fitsync/pkg/domain"
)

const (
	// DefaultPrefix is the key prefix archives are written under.
	DefaultPrefix = "sessions/"
	contentType   = "application/yaml"
	extension     = ".yaml"
)

// Metadata keys stored with every archive.
const (
	MetaSession  = "session"
	MetaFunction = "function"
	MetaRuns     = "runs"
)

// ErrNotArchive is returned when a key does not name an archive document.
var ErrNotArchive = errors.New("not a session archive")

// Entry describes one stored archive.
type Entry struct {
	Key      string
	Session  string
	Function string
	Runs     int
	Size     int64
	Stored   time.Time
}

// Archiver reads and writes snapshot archives.
type Archiver struct {
	store  blob.Store
	prefix string
	newID  func() uuid.UUID
}

// Option customises an Archiver.
type Option func(*Archiver)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(a *Archiver) {
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// WithIDGenerator replaces uuid.New, mainly for tests.
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(a *Archiver) {
		if gen != nil {
			a.newID = gen
		}
	}
}

// New returns an archiver over store.
func New(store blob.Store, opts ...Option) *Archiver {
	a := &Archiver{store: store, prefix: DefaultPrefix, newID: uuid.New}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Export writes snap under a fresh key and returns its entry. session is the
// name the snapshot was saved under, if any.
func (a *Archiver) Export(ctx context.Context, session string, snap domain.Snapshot) (Entry, error) {
	if a.store == nil {
		return Entry{}, errors.New("archive: no blob store")
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return Entry{}, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return Entry{}, fmt.Errorf("encode snapshot: %w", err)
	}
	key := a.prefix + a.newID().String() + extension
	meta := map[string]string{
		MetaFunction: snap.Function,
		MetaRuns:     strconv.Itoa(len(snap.Runs)),
	}
	if session != "" {
		meta[MetaSession] = session
	}
	info, err := a.store.Put(ctx, key, &buf, blob.PutOptions{ContentType: contentType, Metadata: meta})
	if err != nil {
		return Entry{}, fmt.Errorf("store archive %s: %w", key, err)
	}
	return entryFrom(info), nil
}

// Import reads the archive at key. Snapshots from a newer format are
// rejected.
func (a *Archiver) Import(ctx context.Context, key string) (domain.Snapshot, error) {
	if !a.owns(key) {
		return domain.Snapshot{}, fmt.Errorf("%s: %w", key, ErrNotArchive)
	}
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("read archive %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	return Decode(rc)
}

// Stat returns the entry for key without reading the document.
func (a *Archiver) Stat(ctx context.Context, key string) (Entry, error) {
	if !a.owns(key) {
		return Entry{}, fmt.Errorf("%s: %w", key, ErrNotArchive)
	}
	info, err := a.store.Head(ctx, key)
	if err != nil {
		return Entry{}, fmt.Errorf("stat archive %s: %w", key, err)
	}
	return entryFrom(info), nil
}

// Decode parses one YAML snapshot document.
func Decode(r io.Reader) (domain.Snapshot, error) {
	var snap domain.Snapshot
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version > domain.SnapshotVersion {
		return domain.Snapshot{}, fmt.Errorf("snapshot version %d is newer than supported %d", snap.Version, domain.SnapshotVersion)
	}
	return snap, nil
}

// List returns archives, newest first.
func (a *Archiver) List(ctx context.Context) ([]Entry, error) {
	infos, err := a.store.List(ctx, a.prefix)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	out := make([]Entry, 0, len(infos))
	for _, info := range infos {
		if !a.owns(info.Key) {
			continue
		}
		out = append(out, entryFrom(info))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Stored.Equal(out[j].Stored) {
			return out[i].Stored.After(out[j].Stored)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// Delete removes an archive and reports whether it existed.
func (a *Archiver) Delete(ctx context.Context, key string) (bool, error) {
	if !a.owns(key) {
		return false, fmt.Errorf("%s: %w", key, ErrNotArchive)
	}
	return a.store.Delete(ctx, key)
}

func (a *Archiver) owns(key string) bool {
	return strings.HasPrefix(key, a.prefix) && strings.HasSuffix(key, extension)
}

func entryFrom(info blob.Info) Entry {
	e := Entry{
		Key:      info.Key,
		Session:  info.Metadata[MetaSession],
		Function: info.Metadata[MetaFunction],
		Size:     info.Size,
		Stored:   info.LastModified,
	}
	if n, err := strconv.Atoi(info.Metadata[MetaRuns]); err == nil {
		e.Runs = n
	}
	return e
}
