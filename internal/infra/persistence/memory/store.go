// Package memory keeps session snapshots in process memory. It backs the
// memory storage driver and is embedded by the durable stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"fitsync/pkg/domain"
)

var _ domain.SnapshotStore = (*Store)(nil)

// Store is a mutex-guarded map of snapshots keyed by session name. Snapshots
// are deep-copied on the way in and out.
type Store struct {
	mu    sync.RWMutex
	snaps map[string]domain.Snapshot
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{snaps: make(map[string]domain.Snapshot)}
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("snapshot name required")
	}
	return nil
}

// Save implements domain.SnapshotStore.
func (s *Store) Save(_ context.Context, name string, snap domain.Snapshot) error {
	if err := checkName(name); err != nil {
		return err
	}
	s.mu.Lock()
	s.snaps[name] = snap.Clone()
	s.mu.Unlock()
	return nil
}

// Load implements domain.SnapshotStore.
func (s *Store) Load(_ context.Context, name string) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[name]
	if !ok {
		return domain.Snapshot{}, fmt.Errorf("%s: %w", name, domain.ErrSnapshotNotFound)
	}
	return snap.Clone(), nil
}

// Delete implements domain.SnapshotStore.
func (s *Store) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snaps[name]; !ok {
		return false, nil
	}
	delete(s.snaps, name)
	return true, nil
}

// List implements domain.SnapshotStore. Entries are sorted by name.
func (s *Store) List(_ context.Context) ([]domain.SnapshotInfo, error) {
	s.mu.RLock()
	out := make([]domain.SnapshotInfo, 0, len(s.snaps))
	for name, snap := range s.snaps {
		out = append(out, snap.Info(name))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ExportState returns a deep copy of every snapshot.
func (s *Store) ExportState() map[string]domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Snapshot, len(s.snaps))
	for name, snap := range s.snaps {
		out[name] = snap.Clone()
	}
	return out
}

// ImportState replaces the contents of the store.
func (s *Store) ImportState(state map[string]domain.Snapshot) {
	next := make(map[string]domain.Snapshot, len(state))
	for name, snap := range state {
		next[name] = snap.Clone()
	}
	s.mu.Lock()
	s.snaps = next
	s.mu.Unlock()
}
