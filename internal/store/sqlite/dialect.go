package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
)

// maxVariables is SQLITE_MAX_VARIABLE_NUMBER for SQLite >= 3.32.
const maxVariables = 32766

// timeLayout is a format julianday() parses.
const timeLayout = "2006-01-02 15:04:05.000"

// Dialect speaks SQLite (and libSQL).
type Dialect struct{}

var _ store.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d Dialect) Ref(rel store.Relation) string {
	if rel.Temporary {
		return "temp." + d.QuoteIdent(rel.Name)
	}
	return "main." + d.QuoteIdent(rel.Name)
}

func (Dialect) Placeholder(int) string { return "?" }

// Begin takes the write lock up front. A deferred transaction that reads
// first fails with SQLITE_BUSY_SNAPSHOT under WAL instead of waiting.
func (Dialect) Begin() string { return "BEGIN IMMEDIATE" }

// SingleWriter reports true: a database file has one writer at a time.
func (Dialect) SingleWriter() bool { return true }

func (Dialect) Columns(ctx context.Context, q store.Querier, table string) ([]store.Column, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT cid, name, type, "notnull", pk FROM pragma_table_info(?, 'main') ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []store.Column
	for rows.Next() {
		var (
			c       store.Column
			notNull int
		)
		if err := rows.Scan(&c.Position, &c.Name, &c.DataType, &notNull, &c.PrimaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		c.Nullable = notNull == 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (d Dialect) PrimaryKey(ctx context.Context, q store.Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name FROM pragma_table_info(?, 'main') WHERE pk > 0 ORDER BY pk`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan primary key column: %w", err)
		}
		pk = append(pk, name)
	}
	return pk, rows.Err()
}

func (Dialect) ForeignKeys(ctx context.Context, q store.Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT "table" FROM pragma_foreign_key_list(?, 'main') ORDER BY 1`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (Dialect) TableExists(ctx context.Context, q store.Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AfterPredicate compares through julianday() so RFC 3339 text, SQLite
// "YYYY-MM-DD HH:MM:SS" text and numeric julian days all order correctly.
func (d Dialect) AfterPredicate(column string, _ int) string {
	return fmt.Sprintf("julianday(%s) > julianday(?)", d.QuoteIdent(column))
}

func (Dialect) TimeArg(t time.Time) any {
	return t.UTC().Format(timeLayout)
}

func (d Dialect) CreateStaging(ctx context.Context, conn *sql.Conn, target string, staging store.Relation) error {
	query := fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT * FROM %s WHERE 0",
		d.QuoteIdent(staging.Name), d.Ref(store.Table(target)))
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}
	return nil
}

func (d Dialect) DropStaging(ctx context.Context, conn *sql.Conn, staging store.Relation) error {
	if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+d.Ref(staging)); err != nil {
		return fmt.Errorf("failed to drop staging table: %w", err)
	}
	return nil
}

// BulkLoad inserts rs with multi-row INSERT statements of up to batchSize
// rows each. The caller owns the surrounding transaction.
func (d Dialect) BulkLoad(ctx context.Context, conn *sql.Conn, dest store.Relation, _ []store.Column, rs *store.RowSet, batchSize int) error {
	if rs.Len() == 0 {
		return nil
	}
	width := len(rs.Columns)
	if width == 0 {
		return fmt.Errorf("row set has no columns")
	}

	perStmt := batchSize
	if perStmt <= 0 || perStmt*width > maxVariables {
		perStmt = maxVariables / width
	}

	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", d.Ref(dest), store.QuoteList(d, rs.Columns))
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"

	var (
		stmt     *sql.Stmt
		stmtRows int
	)
	defer func() {
		if stmt != nil {
			_ = stmt.Close()
		}
	}()

	for start := 0; start < len(rs.Rows); start += perStmt {
		end := min(start+perStmt, len(rs.Rows))
		n := end - start

		if stmt == nil || stmtRows != n {
			if stmt != nil {
				_ = stmt.Close()
			}
			query := head + strings.TrimSuffix(strings.Repeat(tuple+", ", n), ", ")
			var err error
			if stmt, err = conn.PrepareContext(ctx, query); err != nil {
				return fmt.Errorf("failed to prepare bulk insert: %w", err)
			}
			stmtRows = n
		}

		args := make([]any, 0, n*width)
		for _, row := range rs.Rows[start:end] {
			args = append(args, row...)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert rows %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

// MergeSQL renders an UPSERT. "WHERE true" keeps the parser from reading ON
// CONFLICT as a join constraint.
func (d Dialect) MergeSQL(target string, staging store.Relation, key, columns []string) string {
	cols := store.QuoteList(d, columns)
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WHERE true ON CONFLICT (%s) %s",
		d.Ref(store.Table(target)), cols, cols, d.Ref(staging),
		store.QuoteList(d, key), store.ConflictAction(d, key, columns))
}

// RelaxConstraints turns foreign key enforcement off for the connection.
// SQLite has no per-table switch and ignores the pragma inside a
// transaction, so it must run before the caller begins one.
func (Dialect) RelaxConstraints(ctx context.Context, conn *sql.Conn, _ string) (func(context.Context) error, error) {
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		return nil, fmt.Errorf("failed to disable foreign keys: %w", err)
	}
	return func(ctx context.Context) error {
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			return fmt.Errorf("failed to re-enable foreign keys: %w", err)
		}
		return nil
	}, nil
}

func (Dialect) RelaxInTx() bool { return false }
