// Package sqlstore implements the relational store over database/sql. The
// sqlite and postgres adapters share it and differ only in their Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mitonet/internal/entitymodel/sqlbundle"
	"mitonet/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store is a domain.PersistentStore backed by a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	driver  string
	now     func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDriverName overrides the name reported by Driver.
func WithDriverName(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.driver = name
		}
	}
}

// New applies the dialect's DDL bundle to db and returns a store over it.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	s := &Store{db: db, dialect: dialect, driver: dialect.Name, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	ddl, err := sqlbundle.For(dialect.Name)
	if err != nil {
		return nil, err
	}
	if err := ApplyDDL(ctx, db, ddl); err != nil {
		return nil, err
	}
	return s, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ApplyDDL executes every statement of a DDL script.
func ApplyDDL(ctx context.Context, db execer, ddl string) error {
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// RunInTransaction runs fn inside one database transaction. The transaction
// commits only when fn returns nil.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&txn{ctx: ctx, tx: tx, d: s.dialect, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// View runs fn against a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(domain.Reader) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&txn{ctx: ctx, tx: tx, d: s.dialect, now: s.now})
}

// Driver reports the configured driver name.
func (s *Store) Driver() string { return s.driver }

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// txn implements domain.Transaction over a *sql.Tx.
type txn struct {
	ctx context.Context
	tx  *sql.Tx
	d   Dialect
	now func() time.Time
}

func (t *txn) exec(query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(t.ctx, t.d.Rebind(query), args...)
}

func (t *txn) query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(t.ctx, t.d.Rebind(query), args...)
}

func (t *txn) queryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(t.ctx, t.d.Rebind(query), args...)
}

func (t *txn) count(query string, args ...any) (int64, error) {
	var n int64
	if err := t.queryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *txn) stamp() time.Time { return t.now().UTC() }

func notFound(err error, entity, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrEntityNotFound{Entity: entity, Key: key}
	}
	return err
}

// collect drains rows through scan.
func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer func() { _ = rows.Close() }()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
