package store

import (
	"context"
	"database/sql"
	"time"
)

// Relation names a table either in the store's default schema or in the
// connection-scoped temporary namespace.
type Relation struct {
	Name      string
	Temporary bool
}

// Table returns a Relation for a regular table.
func Table(name string) Relation { return Relation{Name: name} }

// Temp returns a Relation for a connection-scoped temporary table.
func Temp(name string) Relation { return Relation{Name: name, Temporary: true} }

// Column describes one column as reported by the store's catalog.
type Column struct {
	Name     string
	DataType string
	Nullable bool
	Position int
	// PrimaryKey is the 1-based position of the column within the primary
	// key, or 0 when the column is not part of it.
	PrimaryKey int
}

// SingleWriter is implemented by dialects whose database admits one write
// transaction at a time. Concurrent writers only queue on the lock there.
type SingleWriter interface {
	SingleWriter() bool
}

// Dialect isolates vendor-specific SQL.
type Dialect interface {
	// Name identifies the dialect ("sqlite", "postgres").
	Name() string
	// QuoteIdent quotes a single identifier.
	QuoteIdent(name string) string
	// Ref renders a relation as a quoted, qualified reference.
	Ref(rel Relation) string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// Begin returns the statement that opens a write transaction.
	Begin() string

	// Columns lists the table's columns in ordinal order. An unknown table
	// yields an empty slice.
	Columns(ctx context.Context, q Querier, table string) ([]Column, error)
	// PrimaryKey lists the primary key columns in key order.
	PrimaryKey(ctx context.Context, q Querier, table string) ([]string, error)
	// ForeignKeys lists the tables referenced by table's foreign keys.
	ForeignKeys(ctx context.Context, q Querier, table string) ([]string, error)
	// TableExists reports whether table exists in the default schema.
	TableExists(ctx context.Context, q Querier, table string) (bool, error)

	// AfterPredicate renders "column is later than the n-th argument".
	AfterPredicate(column string, n int) string
	// TimeArg converts an instant into the argument compared by AfterPredicate.
	TimeArg(t time.Time) any

	// CreateStaging creates an empty, unindexed temporary relation with the
	// column shape of target.
	CreateStaging(ctx context.Context, conn *sql.Conn, target string, staging Relation) error
	// DropStaging drops a relation created by CreateStaging.
	DropStaging(ctx context.Context, conn *sql.Conn, staging Relation) error
	// BulkLoad loads rs into dest with a set-oriented operation. columns
	// describe the destination (types drive value coercion).
	BulkLoad(ctx context.Context, conn *sql.Conn, dest Relation, columns []Column, rs *RowSet, batchSize int) error
	// MergeSQL renders a single statement that updates target rows whose key
	// matches a staged row and inserts the rest.
	MergeSQL(target string, staging Relation, key, columns []string) string
	// RelaxConstraints suspends referential-integrity checks for table on
	// conn. The returned func restores them.
	RelaxConstraints(ctx context.Context, conn *sql.Conn, table string) (restore func(context.Context) error, err error)
	// RelaxInTx reports whether RelaxConstraints runs inside the write
	// transaction (rolled back with it) rather than before it.
	RelaxInTx() bool
}
