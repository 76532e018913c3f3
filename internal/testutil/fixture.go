// Package testutil provides SQLite-backed fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
	"github.com/Chwrld/Edu-IT13Project/internal/store/sqlite"
)

// Schema is a small school database: accounts are referenced by students,
// courses are referenced by enrollments and announcements, settings has no
// audit column and audit_log has no primary key.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS courses (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS students (
	id INTEGER PRIMARY KEY,
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	grade_level INTEGER,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS enrollments (
	student_id INTEGER NOT NULL REFERENCES students(id),
	course_id INTEGER NOT NULL REFERENCES courses(id),
	created_at DATETIME,
	PRIMARY KEY (student_id, course_id)
);
CREATE TABLE IF NOT EXISTS announcements (
	id INTEGER PRIMARY KEY,
	course_id INTEGER REFERENCES courses(id),
	body TEXT,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT
);
CREATE TABLE IF NOT EXISTS audit_log (
	message TEXT,
	created_at DATETIME
);
`

// Sequential and Parallel split the fixture schema into dependency tiers.
var (
	Sequential = []string{"accounts", "courses", "students"}
	Parallel   = []string{"enrollments", "announcements", "settings"}
)

// OpenSQLite opens a fresh SQLite store in the test's temp directory with the
// fixture schema applied. The store is closed when the test ends.
func OpenSQLite(t *testing.T, name string) *store.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".db")
	db, err := sqlite.OpenDB(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to open %s database: %v", name, err)
	}
	s := store.New(db, sqlite.Dialect{}, store.WithName(name))
	t.Cleanup(func() { _ = s.Close() })

	Exec(t, s, Schema)
	return s
}

// Exec runs a statement and fails the test on error.
func Exec(t *testing.T, s *store.Store, query string, args ...any) {
	t.Helper()

	if _, err := s.DB().ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("exec failed: %v\n%s", err, query)
	}
}

// Count returns the number of rows in table.
func Count(t *testing.T, s *store.Store, table string) int64 {
	t.Helper()

	n, err := s.Count(context.Background(), table, "")
	if err != nil {
		t.Fatalf("count %s failed: %v", table, err)
	}
	return n
}

// QueryString returns a single string column of the first row.
func QueryString(t *testing.T, s *store.Store, query string, args ...any) string {
	t.Helper()

	var v string
	if err := s.DB().QueryRowContext(context.Background(), query, args...).Scan(&v); err != nil {
		t.Fatalf("query failed: %v\n%s", err, query)
	}
	return v
}

// SeedAccounts inserts n accounts stamped with updatedAt.
func SeedAccounts(t *testing.T, s *store.Store, n int, updatedAt string) {
	t.Helper()

	for i := 1; i <= n; i++ {
		Exec(t, s, `INSERT INTO accounts (id, name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			i, fmt.Sprintf("user%d", i), fmt.Sprintf("user%d@school.test", i), updatedAt, updatedAt)
	}
}

// OfflineStore returns a store whose connection pool is already closed, so
// every ping fails the way an unreachable server does.
func OfflineStore(t *testing.T) *store.Store {
	t.Helper()

	s := OpenSQLite(t, "offline")
	if err := s.DB().Close(); err != nil {
		t.Fatalf("failed to close offline store: %v", err)
	}
	return s
}
