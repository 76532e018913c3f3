package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
)

func TestCoerce(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	tests := []struct {
		name     string
		value    any
		dataType string
		want     any
		wantErr  bool
	}{
		{"nil passes through", nil, "boolean", nil, false},
		{"int to bool", int64(1), "boolean", true, false},
		{"zero to bool", int64(0), "boolean", false, false},
		{"string to bool", "true", "boolean", true, false},
		{"bad bool", "maybe", "boolean", nil, true},
		{"string to int", "42", "integer", int64(42), false},
		{"integral float to int", float64(7), "bigint", int64(7), false},
		{"fractional float to int", 7.5, "bigint", nil, true},
		{"int to float", int64(3), "double precision", float64(3), false},
		{"uuid text", id.String(), "uuid", [16]byte(id), false},
		{"bad uuid", "nope", "uuid", nil, true},
		{"int to text", int64(5), "text", "5", false},
		{"bytes to text", []byte("abc"), "character varying", "abc", false},
		{"unknown type untouched", "x", "jsonb", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.value, tt.dataType)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Coerce(%v, %q) expected error, got %v", tt.value, tt.dataType, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce(%v, %q) failed: %v", tt.value, tt.dataType, err)
			}
			if got != tt.want {
				t.Errorf("Coerce(%v, %q) = %#v, want %#v", tt.value, tt.dataType, got, tt.want)
			}
		})
	}
}

func TestCoerceTimestamps(t *testing.T) {
	want := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

	for _, s := range []string{
		"2024-03-01T08:30:00Z",
		"2024-03-01 08:30:00",
		"2024-03-01T08:30:00.000",
		"2024-03-01 08:30",
	} {
		got, err := Coerce(s, "timestamp without time zone")
		if err != nil {
			t.Fatalf("Coerce(%q) failed: %v", s, err)
		}
		if tm, ok := got.(time.Time); !ok || !tm.Equal(want) {
			t.Errorf("Coerce(%q) = %v, want %v", s, got, want)
		}
	}

	if _, err := Coerce("yesterday-ish", "timestamp with time zone"); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestCoerceNumeric(t *testing.T) {
	got, err := Coerce("12.50", "numeric")
	if err != nil {
		t.Fatalf("Coerce() failed: %v", err)
	}
	n, ok := got.(pgtype.Numeric)
	if !ok || !n.Valid {
		t.Fatalf("Coerce() = %#v, want valid pgtype.Numeric", got)
	}
	f, err := n.Float64Value()
	if err != nil {
		t.Fatalf("Float64Value() failed: %v", err)
	}
	if f.Float64 != 12.5 {
		t.Errorf("numeric value = %v, want 12.5", f.Float64)
	}
}

func TestDialectSQL(t *testing.T) {
	d := New("")

	if got := d.Ref(store.Table("users")); got != `"public"."users"` {
		t.Errorf("Ref() = %s", got)
	}
	if got := d.AfterPredicate("updated_at", 2); got != `"updated_at" > $2` {
		t.Errorf("AfterPredicate() = %s", got)
	}

	got := d.MergeSQL("users", store.Temp("stg"), []string{"id"}, []string{"id", "name"})
	want := `INSERT INTO "public"."users" ("id", "name") OVERRIDING SYSTEM VALUE SELECT "id", "name" FROM "stg" ON CONFLICT ("id") DO UPDATE SET "name" = excluded."name"`
	if got != want {
		t.Errorf("MergeSQL() =\n%s\nwant\n%s", got, want)
	}
}
