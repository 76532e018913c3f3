package sqlite_test

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
	"github.com/Chwrld/Edu-IT13Project/internal/store/sqlite"
	"github.com/Chwrld/Edu-IT13Project/internal/testutil"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		in         string
		wantPrefix string
	}{
		{"data/edu.db", "file:data/edu.db?_pragma="},
		{"file:data/edu.db", "file:data/edu.db?_pragma="},
		{"file:data/edu.db?mode=rwc", "file:data/edu.db?mode=rwc&_pragma="},
	}

	for _, tt := range tests {
		got := sqlite.DSN(tt.in)
		if !strings.HasPrefix(got, tt.wantPrefix) {
			t.Errorf("DSN(%q) = %q, want prefix %q", tt.in, got, tt.wantPrefix)
		}
		if !strings.Contains(got, "foreign_keys(1)") {
			t.Errorf("DSN(%q) = %q, missing foreign_keys pragma", tt.in, got)
		}
	}

	if got := sqlite.FilePath("file:data/edu.db?mode=rwc"); got != "data/edu.db" {
		t.Errorf("FilePath() = %q", got)
	}
	if got := sqlite.FilePath(":memory:"); got != "" {
		t.Errorf("FilePath(:memory:) = %q, want empty", got)
	}
}

func TestCatalog(t *testing.T) {
	s := testutil.OpenSQLite(t, "catalog")
	ctx := context.Background()

	cols, err := s.ColumnNames(ctx, "accounts")
	if err != nil {
		t.Fatalf("ColumnNames() failed: %v", err)
	}
	want := []string{"id", "name", "email", "created_at", "updated_at"}
	if !reflect.DeepEqual(cols, want) {
		t.Errorf("ColumnNames() = %v, want %v", cols, want)
	}

	tests := []struct {
		table  string
		wantPK []string
		wantFK []string
	}{
		{"accounts", []string{"id"}, nil},
		{"students", []string{"id"}, []string{"accounts"}},
		{"enrollments", []string{"student_id", "course_id"}, []string{"courses", "students"}},
		{"audit_log", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			pk, err := s.PrimaryKeyColumns(ctx, tt.table)
			if err != nil {
				t.Fatalf("PrimaryKeyColumns() failed: %v", err)
			}
			if !reflect.DeepEqual(pk, tt.wantPK) {
				t.Errorf("PrimaryKeyColumns() = %v, want %v", pk, tt.wantPK)
			}

			fk, err := s.ForeignKeys(ctx, tt.table)
			if err != nil {
				t.Fatalf("ForeignKeys() failed: %v", err)
			}
			if !reflect.DeepEqual(fk, tt.wantFK) {
				t.Errorf("ForeignKeys() = %v, want %v", fk, tt.wantFK)
			}
		})
	}

	first, err := s.PrimaryKeyColumn(ctx, "audit_log")
	if err != nil {
		t.Fatalf("PrimaryKeyColumn() failed: %v", err)
	}
	if first != "" {
		t.Errorf("PrimaryKeyColumn(audit_log) = %q, want empty", first)
	}
}

func TestHasColumnAndTableExists(t *testing.T) {
	s := testutil.OpenSQLite(t, "introspect")
	ctx := context.Background()

	tests := []struct {
		table, column string
		want          bool
	}{
		{"accounts", "updated_at", true},
		{"settings", "updated_at", false},
		{"audit_log", "created_at", true},
		{"missing", "id", false},
	}
	for _, tt := range tests {
		got, err := s.HasColumn(ctx, tt.table, tt.column)
		if err != nil {
			t.Fatalf("HasColumn(%s, %s) failed: %v", tt.table, tt.column, err)
		}
		if got != tt.want {
			t.Errorf("HasColumn(%s, %s) = %v, want %v", tt.table, tt.column, got, tt.want)
		}
	}

	ok, err := s.TableExists(ctx, "courses")
	if err != nil || !ok {
		t.Errorf("TableExists(courses) = %v, %v", ok, err)
	}
	ok, err = s.TableExists(ctx, "nope")
	if err != nil || ok {
		t.Errorf("TableExists(nope) = %v, %v", ok, err)
	}
}

// stageAndMerge runs the staging/load/merge sequence the applier uses.
func stageAndMerge(t *testing.T, s *store.Store, table string, key []string, rs *store.RowSet, batch int) {
	t.Helper()
	ctx := context.Background()
	d := s.Dialect()

	conn, err := s.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() failed: %v", err)
	}
	defer conn.Close()

	stg := store.Temp("stg_" + table)
	if err := d.CreateStaging(ctx, conn, table, stg); err != nil {
		t.Fatalf("CreateStaging() failed: %v", err)
	}
	defer func() {
		if err := d.DropStaging(ctx, conn, stg); err != nil {
			t.Errorf("DropStaging() failed: %v", err)
		}
	}()

	err = store.InTx(ctx, conn, d, func() error {
		if err := d.BulkLoad(ctx, conn, stg, nil, rs, batch); err != nil {
			return err
		}
		_, err := conn.ExecContext(ctx, d.MergeSQL(table, stg, key, rs.Columns))
		return err
	})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	s := testutil.OpenSQLite(t, "merge")
	testutil.SeedAccounts(t, s, 3, "2024-01-01 00:00:00")

	rs := &store.RowSet{
		Columns: []string{"id", "name", "email", "created_at", "updated_at"},
		Rows: [][]any{
			{int64(2), "renamed", "two@school.test", "2024-01-01 00:00:00", "2024-02-01 00:00:00"},
			{int64(4), "four", "four@school.test", "2024-02-01 00:00:00", "2024-02-01 00:00:00"},
		},
	}

	for i := 0; i < 2; i++ {
		stageAndMerge(t, s, "accounts", []string{"id"}, rs, 1)
	}

	if n := testutil.Count(t, s, "accounts"); n != 4 {
		t.Errorf("expected 4 accounts, got %d", n)
	}
	if name := testutil.QueryString(t, s, "SELECT name FROM accounts WHERE id = 2"); name != "renamed" {
		t.Errorf("expected account 2 renamed, got %q", name)
	}
	if name := testutil.QueryString(t, s, "SELECT name FROM accounts WHERE id = 1"); name != "user1" {
		t.Errorf("expected account 1 untouched, got %q", name)
	}
}

func TestMergeCompositeKeyOnly(t *testing.T) {
	s := testutil.OpenSQLite(t, "composite")
	testutil.SeedAccounts(t, s, 1, "2024-01-01 00:00:00")
	testutil.Exec(t, s, `INSERT INTO courses (id, title) VALUES (1, 'Math'), (2, 'Art')`)
	testutil.Exec(t, s, `INSERT INTO students (id, account_id) VALUES (1, 1)`)

	rs := &store.RowSet{
		Columns: []string{"student_id", "course_id"},
		Rows:    [][]any{{int64(1), int64(1)}, {int64(1), int64(2)}},
	}
	stageAndMerge(t, s, "enrollments", []string{"student_id", "course_id"}, rs, 100)
	stageAndMerge(t, s, "enrollments", []string{"student_id", "course_id"}, rs, 100)

	if n := testutil.Count(t, s, "enrollments"); n != 2 {
		t.Errorf("expected 2 enrollments, got %d", n)
	}
}

func TestRelaxConstraints(t *testing.T) {
	s := testutil.OpenSQLite(t, "relax")
	ctx := context.Background()
	d := s.Dialect()

	if _, err := s.DB().Exec(`INSERT INTO students (id, account_id) VALUES (1, 99)`); err == nil {
		t.Fatal("expected foreign key violation with constraints enforced")
	}

	conn, err := s.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() failed: %v", err)
	}
	defer conn.Close()

	restore, err := d.RelaxConstraints(ctx, conn, "students")
	if err != nil {
		t.Fatalf("RelaxConstraints() failed: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO students (id, account_id) VALUES (1, 99)`); err != nil {
		t.Fatalf("insert with relaxed constraints failed: %v", err)
	}
	if err := restore(ctx); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO students (id, account_id) VALUES (2, 98)`); err == nil {
		t.Error("expected foreign key violation after restore")
	}
}

func TestMergeSQL(t *testing.T) {
	d := sqlite.Dialect{}

	got := d.MergeSQL("settings", store.Temp("stg"), []string{"key"}, []string{"key", "value"})
	want := `INSERT INTO main."settings" ("key", "value") SELECT "key", "value" FROM temp."stg" WHERE true ON CONFLICT ("key") DO UPDATE SET "value" = excluded."value"`
	if got != want {
		t.Errorf("MergeSQL() =\n%s\nwant\n%s", got, want)
	}

	got = d.MergeSQL("enrollments", store.Temp("stg"), []string{"a", "b"}, []string{"a", "b"})
	if !strings.HasSuffix(got, "DO NOTHING") {
		t.Errorf("key-only MergeSQL() = %s, want DO NOTHING", got)
	}
}
