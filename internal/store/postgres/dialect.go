package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
)

// Dialect speaks PostgreSQL within one schema.
type Dialect struct {
	Schema string
}

var _ store.Dialect = Dialect{}

// New returns a dialect bound to schema ("public" when empty).
func New(schema string) Dialect {
	if schema == "" {
		schema = DefaultSchema
	}
	return Dialect{Schema: schema}
}

func (Dialect) Name() string { return "postgres" }

func (Dialect) QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Ref leaves temporary relations unqualified so they resolve through pg_temp.
func (d Dialect) Ref(rel store.Relation) string {
	return d.identifier(rel).Sanitize()
}

func (d Dialect) identifier(rel store.Relation) pgx.Identifier {
	if rel.Temporary {
		return pgx.Identifier{rel.Name}
	}
	return pgx.Identifier{d.schema(), rel.Name}
}

func (d Dialect) schema() string {
	if d.Schema == "" {
		return DefaultSchema
	}
	return d.Schema
}

func (Dialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Dialect) Begin() string { return "BEGIN" }

func (d Dialect) Columns(ctx context.Context, q store.Querier, table string) ([]store.Column, error) {
	const query = `
		SELECT c.column_name, c.data_type, c.is_nullable = 'YES', c.ordinal_position,
		       COALESCE(k.ordinal_position, 0)
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT kcu.column_name, kcu.ordinal_position
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON kcu.constraint_name = tc.constraint_name
			 AND kcu.constraint_schema = tc.constraint_schema
			 AND kcu.table_name = tc.table_name
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND tc.table_schema = $1 AND tc.table_name = $2
		) k ON k.column_name = c.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`

	rows, err := q.QueryContext(ctx, query, d.schema(), table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []store.Column
	for rows.Next() {
		var c store.Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &c.Position, &c.PrimaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (d Dialect) PrimaryKey(ctx context.Context, q store.Querier, table string) ([]string, error) {
	const query = `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name
		 AND kcu.constraint_schema = tc.constraint_schema
		 AND kcu.table_name = tc.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1 AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`

	return queryStrings(ctx, q, query, d.schema(), table)
}

func (d Dialect) ForeignKeys(ctx context.Context, q store.Querier, table string) ([]string, error) {
	const query = `
		SELECT DISTINCT ccu.table_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name
		 AND ccu.constraint_schema = tc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1 AND tc.table_name = $2
		ORDER BY 1`

	return queryStrings(ctx, q, query, d.schema(), table)
}

func (d Dialect) TableExists(ctx context.Context, q store.Querier, table string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, d.schema(), table).Scan(&exists)
	return exists, err
}

func (d Dialect) AfterPredicate(column string, n int) string {
	return fmt.Sprintf("%s > %s", d.QuoteIdent(column), d.Placeholder(n))
}

func (Dialect) TimeArg(t time.Time) any { return t.UTC() }

func (d Dialect) CreateStaging(ctx context.Context, conn *sql.Conn, target string, staging store.Relation) error {
	query := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS)",
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

// BulkLoad streams rs with COPY FROM STDIN. Values are coerced to the
// destination column types first because SQLite hands back int64 booleans
// and text timestamps.
func (d Dialect) BulkLoad(ctx context.Context, conn *sql.Conn, dest store.Relation, columns []store.Column, rs *store.RowSet, _ int) error {
	if rs.Len() == 0 {
		return nil
	}

	types := make(map[string]string, len(columns))
	for _, c := range columns {
		types[c.Name] = c.DataType
	}

	rows := make([][]any, len(rs.Rows))
	for i, row := range rs.Rows {
		out := make([]any, len(row))
		for j, v := range row {
			cv, err := Coerce(v, types[rs.Columns[j]])
			if err != nil {
				return fmt.Errorf("row %d column %s: %w", i, rs.Columns[j], err)
			}
			out[j] = cv
		}
		rows[i] = out
	}

	return rawConn(conn, func(c *pgx.Conn) error {
		n, err := c.CopyFrom(ctx, d.identifier(dest), rs.Columns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy into %s failed: %w", dest.Name, err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("copy into %s wrote %d of %d rows", dest.Name, n, len(rows))
		}
		return nil
	})
}

// MergeSQL renders INSERT ... ON CONFLICT. OVERRIDING SYSTEM VALUE lets the
// local key values land in GENERATED ALWAYS identity columns.
func (d Dialect) MergeSQL(target string, staging store.Relation, key, columns []string) string {
	cols := store.QuoteList(d, columns)
	return fmt.Sprintf("INSERT INTO %s (%s) OVERRIDING SYSTEM VALUE SELECT %s FROM %s ON CONFLICT (%s) %s",
		d.Ref(store.Table(target)), cols, cols, d.Ref(staging),
		store.QuoteList(d, key), store.ConflictAction(d, key, columns))
}

// RelaxConstraints disables every trigger on table, foreign key triggers
// included. Requires table ownership. Called inside the mirror transaction,
// so other sessions never see the table unchecked and a rollback restores
// the triggers.
func (d Dialect) RelaxConstraints(ctx context.Context, conn *sql.Conn, table string) (func(context.Context) error, error) {
	ref := d.Ref(store.Table(table))
	if _, err := conn.ExecContext(ctx, "ALTER TABLE "+ref+" DISABLE TRIGGER ALL"); err != nil {
		return nil, fmt.Errorf("failed to disable triggers on %s: %w", table, err)
	}
	return func(ctx context.Context) error {
		if _, err := conn.ExecContext(ctx, "ALTER TABLE "+ref+" ENABLE TRIGGER ALL"); err != nil {
			return fmt.Errorf("failed to enable triggers on %s: %w", table, err)
		}
		return nil
	}, nil
}

func (Dialect) RelaxInTx() bool { return true }

func queryStrings(ctx context.Context, q store.Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
