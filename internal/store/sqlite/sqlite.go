// Package sqlite opens SQLite databases through ncruces/go-sqlite3 and
// provides the SQLite dialect, which libSQL shares.
//
// Databases are opened in WAL mode with a busy timeout and foreign keys
// enforced. The pragmas travel in the DSN so that every pooled connection
// gets them, not just the first one.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
)

// DriverName is the name used with store.Open.
const DriverName = "sqlite"

func init() {
	store.Register(DriverName, func(ctx context.Context, dsn string, _ store.OpenOptions) (*sql.DB, store.Dialect, error) {
		db, err := OpenDB(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, Dialect{}, nil
	})
}

var pragmas = []string{
	"_pragma=journal_mode(wal)",
	"_pragma=busy_timeout(5000)",
	"_pragma=foreign_keys(1)",
}

// DSN turns a path or file: URI into a DSN carrying the connection pragmas.
func DSN(path string) string {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(pragmas, "&")
}

// OpenDB opens (creating if needed) the SQLite database at path.
//
// The caller MUST call Close on the returned handle.
//
// Example:
//
//	db, err := sqlite.OpenDB(ctx, "data/edu.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	if file := FilePath(path); file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Checkpoint truncates the WAL so the main database file is self-contained.
func Checkpoint(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	return nil
}

// FilePath extracts the filesystem path from a path or file: URI. It returns
// "" for in-memory databases.
func FilePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == ":memory:" {
		return ""
	}
	return p
}
