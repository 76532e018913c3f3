package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
	"github.com/Chwrld/Edu-IT13Project/internal/store/sqlite"
	"github.com/Chwrld/Edu-IT13Project/internal/testutil"
)

// txRelaxDialect relaxes constraints inside the write transaction and
// records each step in relax_steps, which only survives if the transaction
// commits.
type txRelaxDialect struct {
	sqlite.Dialect
	failLoad bool
}

func (*txRelaxDialect) RelaxInTx() bool { return true }

func (*txRelaxDialect) RelaxConstraints(ctx context.Context, conn *sql.Conn, table string) (func(context.Context) error, error) {
	if _, err := conn.ExecContext(ctx, `CREATE TABLE relax_steps (step TEXT)`); err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO relax_steps VALUES ('relaxed')`); err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		_, err := conn.ExecContext(ctx, `INSERT INTO relax_steps VALUES ('restored')`)
		return err
	}, nil
}

func (d *txRelaxDialect) BulkLoad(ctx context.Context, conn *sql.Conn, dest store.Relation, columns []store.Column, rs *store.RowSet, batchSize int) error {
	if d.failLoad {
		return errors.New("load refused")
	}
	return d.Dialect.BulkLoad(ctx, conn, dest, columns, rs, batchSize)
}

func newTxRelaxMirror(t *testing.T, failLoad bool) (*Mirror, *store.Store, *store.Store) {
	t.Helper()

	local := testutil.OpenSQLite(t, "local")
	base := testutil.OpenSQLite(t, "remote")
	remote := store.New(base.DB(), &txRelaxDialect{failLoad: failLoad}, store.WithName("remote"))

	testutil.SeedAccounts(t, local, 2, "2024-01-10 00:00:00")
	testutil.Exec(t, remote, `INSERT INTO accounts (id, name) VALUES (99, 'stale')`)

	m := NewMirror(local, remote, 30*time.Second, 30*time.Second, slog.New(slog.DiscardHandler))
	return m, local, remote
}

func TestMirrorRelaxesInsideTransaction(t *testing.T) {
	m, _, remote := newTxRelaxMirror(t, false)

	n, err := m.MirrorTable(context.Background(), "accounts")
	if err != nil {
		t.Fatalf("MirrorTable() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("MirrorTable() = %d, want 2", n)
	}
	if got := testutil.Count(t, remote, "accounts"); got != 2 {
		t.Errorf("remote accounts = %d, want 2", got)
	}
	if got := testutil.Count(t, remote, "relax_steps"); got != 2 {
		t.Errorf("relax steps committed = %d, want relaxed and restored", got)
	}
}

func TestMirrorFailedLoadRollsBackRelaxation(t *testing.T) {
	m, _, remote := newTxRelaxMirror(t, true)

	_, err := m.MirrorTable(context.Background(), "accounts")
	var ae *ApplyError
	if !errors.As(err, &ae) || ae.Op != "load" {
		t.Fatalf("MirrorTable() error = %v, want load ApplyError", err)
	}

	if name := testutil.QueryString(t, remote, `SELECT name FROM accounts WHERE id = 99`); name != "stale" {
		t.Errorf("remote row 99 = %q, want the delete rolled back", name)
	}
	exists, err := remote.TableExists(context.Background(), "relax_steps")
	if err != nil {
		t.Fatalf("TableExists() failed: %v", err)
	}
	if exists {
		t.Error("relaxation survived a rolled-back mirror")
	}
}
