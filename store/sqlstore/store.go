/*
Package sqlstore persists workspaces, schedules, holidays, requests and the
allowance ledger through sqlx.

PURPOSE:
  One Store serves both supported drivers. Queries are written with `?`
  placeholders and rebound for the connection's driver, so the same SQL runs
  on SQLite (default, single file or :memory:) and PostgreSQL.

INTERFACES IMPLEMENTED:
  allowance.TxStore:  via (*Store).Allowances()
  workspace.TxStore:  via (*Store).Workspaces()
  schedule.Store:     directly

STORAGE FORMATS:
  - dates (TimePoint):   TEXT "2006-01-02", compared lexicographically
  - times of day:        TEXT "15:04:05"
  - timestamps:          TIMESTAMP, always written in UTC
  - decimals:            TEXT, exact
  - stats / payloads:    TEXT JSON
  - weekly schedules:    49 columns, 7 per weekday (monday_am_start ...)

UPSERTS:
  member_allowances is keyed by (member_id, allowance_type_id, year) and
  written with ON CONFLICT ... DO UPDATE, which both drivers support.

SQLITE:
  Opened with a single connection. Transactions are serialized and a
  :memory: database is shared by every query.

SEE ALSO:
  - schema.go:          tables and indexes
  - allowance/store.go: ledger contract
  - workspace/store.go: orchestration contract
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/absentify/allowance-engine/allowance"
	"github.com/absentify/allowance-engine/config"
	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/logger"
	"github.com/absentify/allowance-engine/workspace"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store implements the ledger and orchestration stores. A Store handed to a
// WithTx callback is bound to that transaction.
type Store struct {
	db  *sqlx.DB // nil inside a transaction
	q   sqlx.ExtContext
	log *logger.Logger
}

// New opens the configured database and migrates the schema.
func New(cfg config.DatabaseConfig, log *logger.Logger) (*Store, error) {
	dsn := cfg.DSN
	if cfg.Driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sqlx.Connect(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	switch {
	case cfg.Driver == DriverSQLite:
		db.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := Wrap(db, log)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// NewSQLite opens a SQLite database at path. Use ":memory:" in tests.
func NewSQLite(path string, log *logger.Logger) (*Store, error) {
	return New(config.DatabaseConfig{Driver: DriverSQLite, DSN: path}, log)
}

// Wrap uses an existing connection without migrating.
func Wrap(db *sqlx.DB, log *logger.Logger) *Store {
	return &Store{db: db, q: db, log: log.WithComponent("sqlstore")}
}

func sqliteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_busy_timeout=5000"
	}
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
}

// Close closes the connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a transaction. A Store that is already bound to a
// transaction runs fn directly.
func (s *Store) WithTx(ctx context.Context, fn func(*Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Store{q: tx, log: s.log}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// CONTRACT ADAPTERS
// =============================================================================

// Allowances exposes the store as an allowance.TxStore.
func (s *Store) Allowances() allowance.TxStore { return allowanceStore{s} }

// Workspaces exposes the store as a workspace.TxStore.
func (s *Store) Workspaces() workspace.TxStore { return workspaceStore{s} }

type allowanceStore struct{ *Store }

func (a allowanceStore) WithTx(ctx context.Context, fn func(allowance.Store) error) error {
	return a.Store.WithTx(ctx, func(tx *Store) error { return fn(tx) })
}

type workspaceStore struct{ *Store }

func (w workspaceStore) WithTx(ctx context.Context, fn func(workspace.Store) error) error {
	return w.Store.WithTx(ctx, func(tx *Store) error { return fn(tx) })
}

// =============================================================================
// QUERY HELPERS
// =============================================================================

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	err := sqlx.GetContext(ctx, s.q, dest, s.q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.q.ExecContext(ctx, s.q.Rebind(query), args...)
	if err != nil {
		return nil, mapError(err)
	}
	return res, nil
}

// execOne fails NotFound when the statement touched no row.
func (s *Store) execOne(ctx context.Context, resource, id, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return generic.NotFound(resource, id)
	}
	return nil
}

// mapError turns unique violations of either driver into a ValidationError.
func mapError(err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", generic.Validation("unique", "a row with the same key already exists"), err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}
