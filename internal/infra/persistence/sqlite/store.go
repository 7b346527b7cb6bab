// Package sqlite opens the relational store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mitonet/internal/infra/persistence/sqlstore"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const (
	driverName = "sqlite"
	// DefaultPath is used when no database path is configured.
	DefaultPath = "mitonet.db"
	pragmas     = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// NewStore opens (creating if needed) the database file at path and applies the schema.
func NewStore(ctx context.Context, path string, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	return open(ctx, "file:"+path+"?"+pragmas+"&_pragma=journal_mode(WAL)", opts...)
}

// NewMemoryStore opens a private in-memory database. Its contents vanish on Close.
func NewMemoryStore(ctx context.Context, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	opts = append([]sqlstore.Option{sqlstore.WithDriverName("memory")}, opts...)
	return open(ctx, "file::memory:?"+pragmas, opts...)
}

func open(ctx context.Context, dsn string, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers and keeps in-memory databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	store, err := sqlstore.New(ctx, db, sqlstore.SQLite, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
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
