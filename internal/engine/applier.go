package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
)

// cleanupTimeout bounds staging cleanup and constraint restoration, which
// run even after the caller's context is done.
const cleanupTimeout = 30 * time.Second

// Applier merges change sets into the remote store through a staging
// relation.
type Applier struct {
	remote      *store.Store
	bulkTimeout time.Duration
	logger      *slog.Logger
}

// NewApplier returns an applier targeting remote.
func NewApplier(remote *store.Store, bulkTimeout time.Duration, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{remote: remote, bulkTimeout: bulkTimeout, logger: logger}
}

// Apply upserts every row of cs into the remote table and returns the
// number of rows processed. It is idempotent: applying the same change set
// twice leaves the same remote state.
//
// The remote table's primary key is the merge key; without one Apply fails
// with a SchemaError wrapping ErrNoPrimaryKey before touching any row. Local
// columns missing on the remote side are dropped from the merge.
func (a *Applier) Apply(ctx context.Context, cs *ChangeSet) (int, error) {
	table := cs.Table

	key, err := a.remote.PrimaryKeyColumns(ctx, table)
	if err != nil {
		return 0, &SchemaError{Table: table, Err: err}
	}
	if len(key) == 0 {
		return 0, &SchemaError{Table: table, Err: ErrNoPrimaryKey}
	}
	if cs.Rows.Len() == 0 {
		return 0, nil
	}

	remoteCols, err := a.remote.Columns(ctx, table)
	if err != nil {
		return 0, &SchemaError{Table: table, Err: err}
	}
	cols, dropped := sharedColumns(cs.Rows.Columns, remoteCols)
	if len(dropped) > 0 {
		a.logger.Debug("ignoring local-only columns", "table", table, "columns", dropped)
	}
	for _, k := range key {
		if !slices.Contains(cols, k) {
			return 0, &SchemaError{Table: table, Err: fmt.Errorf("key column %s missing from local rows", k)}
		}
	}

	rows, err := cs.Rows.Project(cols)
	if err != nil {
		return 0, &SchemaError{Table: table, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, a.bulkTimeout)
	defer cancel()

	conn, err := a.remote.Conn(ctx)
	if err != nil {
		return 0, &ApplyError{Table: table, Op: "connect", Err: err}
	}
	defer conn.Close()

	d := a.remote.Dialect()
	staging := store.Temp(stagingName(table))
	if err := d.CreateStaging(ctx, conn, table, staging); err != nil {
		return 0, &ApplyError{Table: table, Op: "stage", Err: err}
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if err := d.DropStaging(dctx, conn, staging); err != nil {
			a.logger.Warn("failed to drop staging table", "table", table, "staging", staging.Name, "error", err)
		}
	}()

	err = store.InTx(ctx, conn, d, func() error {
		if err := d.BulkLoad(ctx, conn, staging, remoteCols, rows, a.remote.BatchSize()); err != nil {
			return &ApplyError{Table: table, Op: "load", Err: err}
		}
		if _, err := conn.ExecContext(ctx, d.MergeSQL(table, staging, key, cols)); err != nil {
			return &ApplyError{Table: table, Op: "merge", Err: err}
		}
		return nil
	})
	if err != nil {
		return 0, asApplyError(table, "merge", err)
	}

	return rows.Len(), nil
}

// asApplyError wraps err in an ApplyError unless it already is one.
func asApplyError(table, op string, err error) error {
	var ae *ApplyError
	if errors.As(err, &ae) {
		return err
	}
	return &ApplyError{Table: table, Op: op, Err: err}
}

var unsafeIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// stagingName returns a unique staging relation name for table, short enough
// for PostgreSQL's 63-byte identifier limit.
func stagingName(table string) string {
	base := unsafeIdent.ReplaceAllString(table, "_")
	if len(base) > 40 {
		base = base[:40]
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "stg_" + base + "_" + id[:12]
}

// sharedColumns returns the local columns that exist remotely, in local
// order, and the ones that do not.
func sharedColumns(local []string, remote []store.Column) (shared, dropped []string) {
	have := make(map[string]bool, len(remote))
	for _, c := range remote {
		have[c.Name] = true
	}
	for _, c := range local {
		if have[c] {
			shared = append(shared, c)
		} else {
			dropped = append(dropped, c)
		}
	}
	return shared, dropped
}
