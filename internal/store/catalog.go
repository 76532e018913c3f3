package store

import (
	"context"
	"fmt"
)

// Columns returns the table's columns in ordinal order.
func (s *Store) Columns(ctx context.Context, table string) ([]Column, error) {
	cols, err := s.dialect.Columns(ctx, s.db, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	return cols, nil
}

// ColumnNames returns the table's column names in ordinal order.
func (s *Store) ColumnNames(ctx context.Context, table string) ([]string, error) {
	cols, err := s.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names, nil
}

// HasColumn reports whether table has a column with exactly this name.
func (s *Store) HasColumn(ctx context.Context, table, column string) (bool, error) {
	cols, err := s.Columns(ctx, table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if c.Name == column {
			return true, nil
		}
	}
	return false, nil
}

// PrimaryKeyColumns returns the primary key columns of table in key order.
// An empty slice means no primary key could be discovered.
func (s *Store) PrimaryKeyColumns(ctx context.Context, table string) ([]string, error) {
	pk, err := s.dialect.PrimaryKey(ctx, s.db, table)
	if err != nil {
		return nil, fmt.Errorf("failed to discover primary key of %s: %w", table, err)
	}
	return pk, nil
}

// PrimaryKeyColumn returns the first primary key column of table, or "" when
// none can be discovered.
func (s *Store) PrimaryKeyColumn(ctx context.Context, table string) (string, error) {
	pk, err := s.PrimaryKeyColumns(ctx, table)
	if err != nil {
		return "", err
	}
	if len(pk) == 0 {
		return "", nil
	}
	return pk[0], nil
}

// ForeignKeys returns the distinct tables referenced by table.
func (s *Store) ForeignKeys(ctx context.Context, table string) ([]string, error) {
	refs, err := s.dialect.ForeignKeys(ctx, s.db, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list foreign keys of %s: %w", table, err)
	}
	return refs, nil
}

// TableExists reports whether table exists.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	ok, err := s.dialect.TableExists(ctx, s.db, table)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return ok, nil
}
