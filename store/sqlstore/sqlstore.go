/*
Package sqlstore provides a SQL-backed implementation of walks.TxStore.

PURPOSE:
  Persists every engine entity in SQLite (development, tests, single node)
  or PostgreSQL (production). Both dialects share one schema and one set of
  queries; placeholders are written as '?' and rebound to $n for PostgreSQL.

DRIVERS:
  sqlite:   github.com/mattn/go-sqlite3, driver name "sqlite3"
  postgres: github.com/jackc/pgx/v5/stdlib, driver name "pgx"

CONCURRENCY:
  There is no store-level mutex; the database serializes writers.
  - SQLite is opened with one connection and BEGIN IMMEDIATE, so
    transactions run one after another.
  - PostgreSQL transactions take pg_advisory_xact_lock on the aggregate
    key (LockKey: a slot before counting occupancy, a dog before touching
    its assessments), and credit adjustments are a single conditional
    UPDATE.
  - Status changes on subscriptions and assessments are conditional on the
    prior status.

INVARIANTS ENFORCED BY THE SCHEMA:
  - CHECK (credits_used BETWEEN 0 AND total_credits)
  - UNIQUE idempotency_key on credit_entries
  - one release-or-consume entry per walk (partial unique index)
  - assessment result only when status = 'completed'
  - one pending-or-scheduled assessment per dog (partial unique index)

CACHING:
  Walkers and plans are read through a TTL cache. Writes invalidate the key
  immediately, and transactional writes invalidate again after commit.
  Reads inside a transaction bypass the cache. A read only fills the cache
  if the key was not invalidated while the row was loading.

MIGRATION:
  Schema is auto-migrated on Open(). For production, use a proper
  migration tool with versioned migrations.

SEE ALSO:
  - walks/store.go: interface contract
  - walks/store/memory.go: in-memory implementation for testing
  - store/cache: the TTL cache
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/walk-engine/store/cache"
	"github.com/warp/walk-engine/walks"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unknown database driver %q (use sqlite or postgres)", s)
}

// Options configures Open.
type Options struct {
	Dialect Dialect
	// DSN is a file path (or ":memory:") for SQLite and a connection URL for
	// PostgreSQL.
	DSN string

	// CacheTTL bounds how long walkers and plans are served from memory.
	// Zero disables the cache.
	CacheTTL time.Duration

	MaxOpenConns int
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements walks.TxStore. A Store returned by Open talks to the
// pool; the Store handed to a WithTx callback is a copy bound to the
// transaction.
type Store struct {
	db      *sql.DB
	q       querier
	dialect Dialect
	now     func() time.Time

	walkers *cache.Cache[walks.Walker]
	plans   *cache.Cache[walks.SubscriptionPlan]

	// touched collects cache keys written inside a transaction; nil outside.
	touched *[]string
}

var _ walks.TxStore = (*Store)(nil)
var _ walks.KeyLocker = (*Store)(nil)

// Open connects, applies the schema, and returns a ready store.
func Open(ctx context.Context, opts Options) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch opts.Dialect {
	case DialectSQLite:
		db, err = openSQLite(opts.DSN)
	case DialectPostgres:
		db, err = openPostgres(ctx, opts.DSN, opts.MaxOpenConns)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", opts.Dialect)
	}
	if err != nil {
		return nil, err
	}

	s := New(db, opts.Dialect, opts.CacheTTL)
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// OpenSQLite opens a SQLite store at path. Use ":memory:" for an in-memory
// database.
func OpenSQLite(path string) (*Store, error) {
	return Open(context.Background(), Options{Dialect: DialectSQLite, DSN: path})
}

// New wraps an existing pool. The schema is not applied.
func New(db *sql.DB, dialect Dialect, cacheTTL time.Duration) *Store {
	return &Store{
		db:      db,
		q:       db,
		dialect: dialect,
		now:     time.Now,
		walkers: cache.New[walks.Walker](cacheTTL),
		plans:   cache.New[walks.SubscriptionPlan](cacheTTL),
	}
}

func openSQLite(path string) (*sql.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per connection, and SQLite
	// has a single writer anyway.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

func openPostgres(ctx context.Context, dsn string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Dialect() Dialect { return s.dialect }

// =============================================================================
// TRANSACTIONS (walks.TxStore, walks.KeyLocker)
// =============================================================================

// WithTx executes fn within a database transaction. Nested calls join the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(walks.Store) error) error {
	if s.inTx() {
		return fn(s)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	view := *s
	view.q = sqlTx
	view.touched = new([]string)

	if err := fn(&view); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.walkers.Invalidate(*view.touched...)
	s.plans.Invalidate(*view.touched...)
	return nil
}

// LockKey serializes transactions writing to one aggregate. PostgreSQL
// takes a transaction-scoped advisory lock; SQLite transactions are already
// exclusive.
func (s *Store) LockKey(ctx context.Context, key string) error {
	if !s.inTx() || s.dialect != DialectPostgres {
		return nil
	}
	if _, err := s.exec(ctx, `SELECT pg_advisory_xact_lock(hashtext(?))`, key); err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	return nil
}

func (s *Store) inTx() bool { return s.touched != nil }

func (s *Store) touch(key string) {
	if s.touched != nil {
		*s.touched = append(*s.touched, key)
	}
}

// =============================================================================
// QUERY HELPERS
// =============================================================================

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.rebind(query), args...)
}

// rebind turns '?' placeholders into $1, $2, ... for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Times are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *walks.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(ns sql.NullString) (*walks.Date, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := walks.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

// isOpenAssessmentViolation reports a hit on idx_assessments_open.
func isOpenAssessmentViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique && strings.Contains(se.Error(), "assessments.dog_id")
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505" && pe.ConstraintName == "idx_assessments_open"
	}
	return false
}

func isCheckViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintCheck
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23514"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23503"
	}
	return false
}

// mapWriteErr converts constraint violations into engine errors.
func mapWriteErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, walks.ErrDuplicateIdempotencyKey)
	case isCheckViolation(err), isForeignKeyViolation(err):
		return fmt.Errorf("%s: %v: %w", op, err, walks.ErrInvalidInput)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}

func expectOne(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return walks.NewNotFound(entity, id)
	}
	return nil
}
