package store

import (
	"database/sql"
	"fmt"
)

// RowSet is an ordered, schema-agnostic batch of rows. Every row holds one
// value per entry of Columns, in the same order.
type RowSet struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (rs *RowSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Index returns the position of column, or -1.
func (rs *RowSet) Index(column string) int {
	for i, c := range rs.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Row returns the i-th row as an ordered name/value view.
func (rs *RowSet) Row(i int) Row {
	return Row{columns: rs.Columns, values: rs.Rows[i]}
}

// Project returns a RowSet restricted to columns, in that order. Values are
// shared with rs.
func (rs *RowSet) Project(columns []string) (*RowSet, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		j := rs.Index(c)
		if j < 0 {
			return nil, fmt.Errorf("column %q not in row set", c)
		}
		idx[i] = j
	}

	out := &RowSet{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]any, len(rs.Rows)),
	}
	for r, row := range rs.Rows {
		projected := make([]any, len(idx))
		for i, j := range idx {
			projected[i] = row[j]
		}
		out.Rows[r] = projected
	}
	return out, nil
}

// Row is one row of a RowSet.
type Row struct {
	columns []string
	values  []any
}

// Columns returns the column names in order.
func (r Row) Columns() []string { return r.columns }

// Values returns the values in column order.
func (r Row) Values() []any { return r.values }

// Get returns the value of the named column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// ScanRowSet drains rows into a RowSet. []byte values are copied because the
// driver may reuse the buffer.
func ScanRowSet(rows *sql.Rows) (*RowSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	rs := &RowSet{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = append([]byte(nil), b...)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return rs, nil
}
