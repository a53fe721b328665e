package core

import (
	"context"
	"fmt"

	"fitsync/internal/infra/persistence/memory"
	"fitsync/internal/infra/persistence/postgres"
	"fitsync/internal/infra/persistence/sqlite"
	"fitsync/pkg/domain"
)

// StorageDriver identifies a concrete snapshot store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // process memory only
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// SnapshotStore persists named session snapshots.
type SnapshotStore = domain.SnapshotStore

// StorageOptions selects a snapshot store. Driver defaults to sqlite.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenSnapshotStore constructs the configured store. Stores holding a
// database connection also implement io.Closer.
func OpenSnapshotStore(ctx context.Context, opts StorageOptions) (SnapshotStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
