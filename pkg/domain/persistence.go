package domain

import (
	"context"
	"errors"
	"time"
)

// ErrSnapshotNotFound is returned when a named session snapshot does not exist.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotInfo summarises a stored snapshot without loading its rows.
type SnapshotInfo struct {
	Name       string
	SavedAt    time.Time
	Function   string
	Components int
	Runs       int
}

// SnapshotStore is a minimal abstraction over durable session storage.
// Snapshots are keyed by session name; Save replaces any previous snapshot.
type SnapshotStore interface {
	Save(ctx context.Context, name string, snap Snapshot) error
	Load(ctx context.Context, name string) (Snapshot, error)
	Delete(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]SnapshotInfo, error)
}

// Info derives the summary of s under name.
func (s Snapshot) Info(name string) SnapshotInfo {
	return SnapshotInfo{
		Name:       name,
		SavedAt:    s.SavedAt,
		Function:   s.Function,
		Components: s.Components,
		Runs:       len(s.Runs),
	}
}
