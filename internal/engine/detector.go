package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
)

// DefaultAuditColumns are probed in order to find a table's last-modified
// column.
var DefaultAuditColumns = []string{"updated_at", "created_at"}

// ChangeSet is the rows of one table to apply. It is produced by the
// Detector and consumed immediately by the Applier.
type ChangeSet struct {
	Table string
	Rows  *store.RowSet
	// PrimaryKey is the local table's key, for diagnostics. The Applier
	// merges on the remote table's key.
	PrimaryKey []string
	// Full is true when the whole table was read.
	Full bool
}

// PrimaryKeyColumn returns the first key column, or "".
func (cs *ChangeSet) PrimaryKeyColumn() string {
	if len(cs.PrimaryKey) == 0 {
		return ""
	}
	return cs.PrimaryKey[0]
}

// Detector finds rows changed on the local store since a watermark.
type Detector struct {
	local          *store.Store
	auditColumns   []string
	overrides      map[string]string
	countTimeout   time.Duration
	commandTimeout time.Duration
	logger         *slog.Logger
}

// NewDetector returns a detector over the local store.
func NewDetector(local *store.Store, auditColumns []string, countTimeout, commandTimeout time.Duration, logger *slog.Logger) *Detector {
	if len(auditColumns) == 0 {
		auditColumns = DefaultAuditColumns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		local:          local,
		auditColumns:   auditColumns,
		overrides:      make(map[string]string),
		countTimeout:   countTimeout,
		commandTimeout: commandTimeout,
		logger:         logger,
	}
}

// Pin makes table use column for change detection instead of probing.
func (d *Detector) Pin(table, column string) {
	d.overrides[table] = column
}

// AuditColumn returns the column used to detect changes in table, or "" when
// the table has none.
func (d *Detector) AuditColumn(ctx context.Context, table string) (string, error) {
	candidates := d.auditColumns
	if pinned, ok := d.overrides[table]; ok && pinned != "" {
		candidates = []string{pinned}
	}

	cols, err := d.local.ColumnNames(ctx, table)
	if err != nil {
		return "", err
	}
	for _, want := range candidates {
		for _, c := range cols {
			if c == want {
				return c, nil
			}
		}
	}
	return "", nil
}

// HasChanges reports whether table may hold rows newer than watermark. A
// zero watermark means first sync. Whenever the answer is uncertain (no
// audit column, failed introspection, failed count) it is true.
func (d *Detector) HasChanges(ctx context.Context, table string, watermark time.Time) (bool, error) {
	if watermark.IsZero() {
		return true, nil
	}

	audit, err := d.AuditColumn(ctx, table)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		d.logger.Warn("audit column lookup failed, treating table as changed", "table", table, "error", err)
		return true, nil
	}
	if audit == "" {
		return true, nil
	}

	cctx, cancel := context.WithTimeout(ctx, d.countTimeout)
	defer cancel()

	dialect := d.local.Dialect()
	n, err := d.local.Count(cctx, table, dialect.AfterPredicate(audit, 1), dialect.TimeArg(watermark))
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		d.logger.Warn("change count failed, treating table as changed", "table", table, "error", err)
		return true, nil
	}
	return n > 0, nil
}

// ReadChanges reads the rows of table whose audit column is later than
// watermark, or the whole table when the watermark is zero or the table has
// no audit column.
func (d *Detector) ReadChanges(ctx context.Context, table string, watermark time.Time) (*ChangeSet, error) {
	var (
		where string
		args  []any
	)
	if !watermark.IsZero() {
		audit, err := d.AuditColumn(ctx, table)
		if err != nil {
			return nil, &ApplyError{Table: table, Op: "read", Err: err}
		}
		if audit != "" {
			dialect := d.local.Dialect()
			where = dialect.AfterPredicate(audit, 1)
			args = []any{dialect.TimeArg(watermark)}
		}
	}

	pk, err := d.local.PrimaryKeyColumns(ctx, table)
	if err != nil {
		return nil, &ApplyError{Table: table, Op: "read", Err: err}
	}

	cctx, cancel := context.WithTimeout(ctx, d.commandTimeout)
	defer cancel()

	rows, err := d.local.Select(cctx, table, where, args...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("read exceeded %s: %w", d.commandTimeout, err)
		}
		return nil, &ApplyError{Table: table, Op: "read", Err: err}
	}

	return &ChangeSet{
		Table:      table,
		Rows:       rows,
		PrimaryKey: pk,
		Full:       where == "",
	}, nil
}
