// Package postgres provides the PostgreSQL dialect over the pgx stdlib
// driver. Bulk loads use the COPY protocol through the raw pgx connection.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
)

// DriverName is the name used with store.Open.
const DriverName = "postgres"

// DefaultSchema is used when no schema is configured.
const DefaultSchema = "public"

func init() {
	store.Register(DriverName, func(ctx context.Context, dsn string, opts store.OpenOptions) (*sql.DB, store.Dialect, error) {
		db, err := OpenDB(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, New(opts.Schema), nil
	})
}

// OpenDB opens a connection pool. The DSN is anything pgx.ParseConfig
// accepts (URL or key=value).
//
// OpenDB does not ping: the remote store is allowed to be unreachable, and
// connectivity is decided by the probe at sync time.
func OpenDB(_ context.Context, dsn string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	db := stdlib.OpenDB(*cfg)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// rawConn runs fn with the pgx connection behind a pinned *sql.Conn.
func rawConn(conn *sql.Conn, fn func(*pgx.Conn) error) error {
	return conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		return fn(c.Conn())
	})
}
