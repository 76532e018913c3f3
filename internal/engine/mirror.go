package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
)

// Mirror replaces a remote table's contents with the local table's.
type Mirror struct {
	local          *store.Store
	remote         *store.Store
	commandTimeout time.Duration
	bulkTimeout    time.Duration
	logger         *slog.Logger
}

// NewMirror returns a full-mirror applier.
func NewMirror(local, remote *store.Store, commandTimeout, bulkTimeout time.Duration, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		local:          local,
		remote:         remote,
		commandTimeout: commandTimeout,
		bulkTimeout:    bulkTimeout,
		logger:         logger,
	}
}

// MirrorTable reads the whole local table, then on one remote connection
// relaxes referential integrity for the table, deletes every remote row and
// bulk-loads the local rows. Checks are restored whether or not the load
// succeeds. The delete and load commit together.
func (m *Mirror) MirrorTable(ctx context.Context, table string) (n int, err error) {
	rctx, cancel := context.WithTimeout(ctx, m.commandTimeout)
	rows, err := m.local.Select(rctx, table, "")
	cancel()
	if err != nil {
		return 0, &ApplyError{Table: table, Op: "read", Err: err}
	}

	remoteCols, err := m.remote.Columns(ctx, table)
	if err != nil {
		return 0, &SchemaError{Table: table, Err: err}
	}
	if len(remoteCols) == 0 {
		return 0, &SchemaError{Table: table, Err: fmt.Errorf("table does not exist on %s", m.remote.Name())}
	}
	cols, _ := sharedColumns(rows.Columns, remoteCols)
	if rows, err = rows.Project(cols); err != nil {
		return 0, &SchemaError{Table: table, Err: err}
	}

	ctx, cancel = context.WithTimeout(ctx, m.bulkTimeout)
	defer cancel()

	conn, err := m.remote.Conn(ctx)
	if err != nil {
		return 0, &ApplyError{Table: table, Op: "connect", Err: err}
	}
	defer conn.Close()

	d := m.remote.Dialect()
	replace := func() error {
		if _, err := conn.ExecContext(ctx, "DELETE FROM "+d.Ref(store.Table(table))); err != nil {
			return &ApplyError{Table: table, Op: "delete", Err: err}
		}
		if err := d.BulkLoad(ctx, conn, store.Table(table), remoteCols, rows, m.remote.BatchSize()); err != nil {
			return &ApplyError{Table: table, Op: "load", Err: err}
		}
		return nil
	}

	if d.RelaxInTx() {
		// A failed load rolls back the relaxation together with the rows.
		err = store.InTx(ctx, conn, d, func() error {
			restore, err := d.RelaxConstraints(ctx, conn, table)
			if err != nil {
				return &ApplyError{Table: table, Op: "relax", Err: err}
			}
			if err := replace(); err != nil {
				return err
			}
			if err := restore(ctx); err != nil {
				return &ApplyError{Table: table, Op: "restore", Err: err}
			}
			return nil
		})
	} else {
		err = m.replaceRelaxed(ctx, conn, table, replace)
	}
	if err != nil {
		return 0, asApplyError(table, "load", err)
	}
	return rows.Len(), nil
}

// replaceRelaxed relaxes constraints on conn before the transaction and
// restores them afterwards, for dialects that cannot change them inside one.
func (m *Mirror) replaceRelaxed(ctx context.Context, conn *sql.Conn, table string, replace func() error) (err error) {
	d := m.remote.Dialect()
	restore, err := d.RelaxConstraints(ctx, conn, table)
	if err != nil {
		return &ApplyError{Table: table, Op: "relax", Err: err}
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if rerr := restore(rctx); rerr != nil {
			m.logger.Error("failed to restore constraints", "table", table, "error", rerr)
			err = multierr.Append(err, &ApplyError{Table: table, Op: "restore", Err: rerr})
		}
	}()

	return store.InTx(ctx, conn, d, replace)
}
