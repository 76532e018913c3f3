// Package store provides the relational store abstraction shared by the local
// (offline) database and the remote (server-of-record) database.
//
// A Store pairs a database/sql handle with a Dialect. The dialect owns every
// piece of vendor-specific SQL: catalog queries, identifier quoting, staging
// relations, the set-oriented bulk load and the merge statement. Rows are
// schema-agnostic (see RowSet) so the sync engine keeps working as tables
// gain or lose columns.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a relational database reachable through a Dialect.
type Store struct {
	db      *sql.DB
	dialect Dialect
	name    string

	batchSize int
}

// Option configures a Store.
type Option func(*Store)

// WithName labels the store in logs and errors ("local", "remote").
func WithName(name string) Option {
	return func(s *Store) { s.name = name }
}

// WithBatchSize sets the row batch size used by dialects that bulk-load with
// multi-row statements.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// DefaultBatchSize matches the batch size of the original bulk copy path.
const DefaultBatchSize = 5000

// New wraps an open database handle.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:        db,
		dialect:   dialect,
		name:      dialect.Name(),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying sql.DB connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Name returns the label given with WithName.
func (s *Store) Name() string { return s.name }

// BatchSize returns the configured bulk-load batch size.
func (s *Store) BatchSize() int { return s.batchSize }

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close %s store: %w", s.name, err)
	}
	return nil
}

// Conn pins a single connection. Staging relations are connection-scoped, so
// every staging/merge sequence must run on the returned *sql.Conn.
func (s *Store) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s connection: %w", s.name, err)
	}
	return conn, nil
}

// Ping acquires a connection, pings it and releases it.
func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping %s store: %w", s.name, err)
	}
	return nil
}

// Count returns the number of rows in table matching where. An empty where
// counts the whole table.
func (s *Store) Count(ctx context.Context, table, where string, args ...any) (int64, error) {
	query := "SELECT COUNT(*) FROM " + s.dialect.Ref(Table(table))
	if where != "" {
		query += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

// Select reads every column of the rows in table matching where.
func (s *Store) Select(ctx context.Context, table, where string, args ...any) (*RowSet, error) {
	query := "SELECT * FROM " + s.dialect.Ref(Table(table))
	if where != "" {
		query += " WHERE " + where
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer rows.Close()

	rs, err := ScanRowSet(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	return rs, nil
}

// InTx runs fn inside a write transaction on a pinned connection, rolling
// back when fn fails. Plain statements are used instead of conn.BeginTx so
// that dialect code can keep using the raw driver connection inside the
// transaction (pgx COPY needs it).
func InTx(ctx context.Context, conn *sql.Conn, d Dialect, fn func() error) (err error) {
	if _, err := conn.ExecContext(ctx, d.Begin()); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(rbCtx, "ROLLBACK")
	}()

	if err := fn(); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// QuoteList quotes and comma-joins identifiers.
func QuoteList(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// ConflictAction renders the ON CONFLICT action of a merge: every non-key
// column takes the incoming value, or DO NOTHING when all columns are key.
func ConflictAction(d Dialect, key, columns []string) string {
	isKey := make(map[string]bool, len(key))
	for _, k := range key {
		isKey[k] = true
	}
	var sets []string
	for _, c := range columns {
		if isKey[c] {
			continue
		}
		q := d.QuoteIdent(c)
		sets = append(sets, q+" = excluded."+q)
	}
	if len(sets) == 0 {
		return "DO NOTHING"
	}
	return "DO UPDATE SET " + strings.Join(sets, ", ")
}
