package manifest

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Chwrld/Edu-IT13Project/internal/testutil"
)

func TestDefault(t *testing.T) {
	m := Default()

	if m.Len() != 16 {
		t.Errorf("expected 16 tables, got %d", m.Len())
	}
	if m.Sequential[0].Name != "users" {
		t.Errorf("first sequential table = %s, want users", m.Sequential[0].Name)
	}
	for _, spec := range m.Parallel {
		if spec.Tier != Parallel {
			t.Errorf("%s has tier %v, want parallel", spec.Name, spec.Tier)
		}
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		sequential []string
		parallel   []string
		wantErr    bool
	}{
		{"valid", []string{"users"}, []string{"messages"}, false},
		{"audit override", []string{"users:modified_on"}, nil, false},
		{"duplicate across tiers", []string{"users"}, []string{"users"}, true},
		{"empty name", []string{" :updated_at"}, nil, true},
		{"no tables", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.sequential, tt.parallel)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec("messages : sent_at")
	if err != nil {
		t.Fatalf("ParseSpec() failed: %v", err)
	}
	if spec.Name != "messages" || spec.AuditColumn != "sent_at" {
		t.Errorf("ParseSpec() = %+v", spec)
	}

	m, err := New([]string{"users"}, []string{"messages:sent_at"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	got, ok := m.Lookup("messages")
	if !ok || got.AuditColumn != "sent_at" || got.Tier != Parallel {
		t.Errorf("Lookup(messages) = %+v, %v", got, ok)
	}
}

type fakeCatalog map[string][]string

func (f fakeCatalog) ForeignKeys(_ context.Context, table string) ([]string, error) {
	if refs, ok := f[table]; ok {
		return refs, nil
	}
	return nil, nil
}

func TestFromForeignKeys(t *testing.T) {
	cat := fakeCatalog{
		"students":        {"users"},
		"advisers":        {"users"},
		"courses":         {"advisers"},
		"student_courses": {"students", "courses"},
		"messages":        {"users", "conversations", "messages"},
		"conversations":   {"users"},
		"legacy":          {"archived_table"},
	}
	tables := []string{"messages", "student_courses", "courses", "students", "advisers", "users", "conversations", "legacy"}

	m, err := FromForeignKeys(context.Background(), cat, tables)
	if err != nil {
		t.Fatalf("FromForeignKeys() failed: %v", err)
	}

	wantSeq := []string{"users", "students", "advisers", "courses", "conversations"}
	var gotSeq []string
	for _, s := range m.Sequential {
		gotSeq = append(gotSeq, s.Name)
	}
	if !reflect.DeepEqual(gotSeq, wantSeq) {
		t.Errorf("sequential = %v, want %v", gotSeq, wantSeq)
	}

	wantPar := []string{"student_courses", "messages", "legacy"}
	var gotPar []string
	for _, s := range m.Parallel {
		gotPar = append(gotPar, s.Name)
	}
	if !reflect.DeepEqual(gotPar, wantPar) {
		t.Errorf("parallel = %v, want %v", gotPar, wantPar)
	}

	// Every referenced table precedes its dependents.
	index := make(map[string]int)
	for i, name := range m.Names() {
		index[name] = i
	}
	for table, refs := range cat {
		for _, ref := range refs {
			if _, listed := index[ref]; !listed || ref == table {
				continue
			}
			if index[ref] >= index[table] {
				t.Errorf("%s scheduled before its dependency %s", table, ref)
			}
		}
	}
}

func TestFromForeignKeysCycle(t *testing.T) {
	cat := fakeCatalog{
		"a": {"b"},
		"b": {"a"},
		"c": nil,
	}
	if _, err := FromForeignKeys(context.Background(), cat, []string{"a", "b", "c"}); err == nil {
		t.Fatal("expected cycle error")
	}
}

type failingCatalog struct{}

func (failingCatalog) ForeignKeys(context.Context, string) ([]string, error) {
	return nil, errors.New("catalog unavailable")
}

func TestFromForeignKeysCatalogError(t *testing.T) {
	if _, err := FromForeignKeys(context.Background(), failingCatalog{}, []string{"a"}); err == nil {
		t.Fatal("expected catalog error")
	}
}

func TestFromForeignKeysSQLite(t *testing.T) {
	db := testutil.OpenSQLite(t, "schema")
	tables := []string{"enrollments", "announcements", "students", "courses", "accounts", "settings", "audit_log"}

	m, err := FromForeignKeys(context.Background(), db, tables)
	if err != nil {
		t.Fatalf("FromForeignKeys() failed: %v", err)
	}

	want := []string{"courses", "accounts", "students"}
	var got []string
	for _, s := range m.Sequential {
		got = append(got, s.Name)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sequential = %v, want %v", got, want)
	}
	if len(m.Parallel) != 4 {
		t.Errorf("expected 4 parallel tables, got %d", len(m.Parallel))
	}
}
