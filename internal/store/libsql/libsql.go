// Package libsql opens libSQL databases (local files or Turso/sqld servers)
// through go-libsql. libSQL speaks the SQLite dialect.
//
// DSNs are either "file:path" for an embedded database or
// "libsql://host?authToken=..." for a server.
package libsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
	"github.com/Chwrld/Edu-IT13Project/internal/store/sqlite"
)

// DriverName is the name used with store.Open.
const DriverName = "libsql"

func init() {
	store.Register(DriverName, func(ctx context.Context, dsn string, _ store.OpenOptions) (*sql.DB, store.Dialect, error) {
		db, err := OpenDB(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, sqlite.Dialect{}, nil
	})
}

// OpenDB opens a libSQL handle. Remote servers are not pinged so that an
// unreachable server does not prevent startup.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql database: %w", err)
	}

	if IsLocal(dsn) {
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping libsql database: %w", err)
		}
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// IsLocal reports whether dsn names an embedded database file.
func IsLocal(dsn string) bool {
	return strings.HasPrefix(dsn, "file:")
}
