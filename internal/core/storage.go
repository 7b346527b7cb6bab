package core

import (
	"context"
	"fmt"

	"mitonet/internal/infra/persistence/postgres"
	"mitonet/internal/infra/persistence/sqlite"
	"mitonet/internal/infra/persistence/sqlstore"
	"mitonet/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory sqlite (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and parameterises a backend.
type StorageOptions struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// OpenPersistentStore opens the relational store named by opts.Driver and
// applies the schema. Defaults to sqlite when unset.
func OpenPersistentStore(ctx context.Context, opts StorageOptions, extra ...sqlstore.Option) (domain.PersistentStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = string(StorageSQLite)
	}
	var (
		store *sqlstore.Store
		err   error
	)
	switch StorageDriver(driver) {
	case StorageMemory:
		store, err = sqlite.NewMemoryStore(ctx, extra...)
	case StorageSQLite:
		store, err = sqlite.NewStore(ctx, opts.SQLitePath, extra...)
	case StoragePostgres:
		store, err = postgres.NewStore(ctx, opts.PostgresDSN, extra...)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	return store, nil
}
