package watermark

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Chwrld/Edu-IT13Project/internal/testutil"
)

func TestGetBeforeFirstSync(t *testing.T) {
	db := testutil.OpenSQLite(t, "local")

	w, err := New(db, DefaultConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	_, ok, err := w.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if ok {
		t.Error("expected no watermark before first sync")
	}

	exists, err := db.TableExists(context.Background(), "sync_state")
	if err != nil {
		t.Fatalf("TableExists() failed: %v", err)
	}
	if !exists {
		t.Error("expected sync_state to be provisioned by Get")
	}
}

func TestSetThenGet(t *testing.T) {
	db := testutil.OpenSQLite(t, "local")
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	w, err := New(db, DefaultConfig(), WithClock(clock))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	first := time.Date(2024, 5, 1, 11, 59, 0, 123456789, time.FixedZone("PHT", 8*3600))
	if err := w.Set(ctx, first); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	second := first.Add(time.Hour)
	if err := w.Set(ctx, second); err != nil {
		t.Fatalf("second Set() failed: %v", err)
	}

	got, ok, err := w.Get(ctx)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !ok {
		t.Fatal("expected watermark after Set")
	}
	if !got.Equal(second) {
		t.Errorf("Get() = %v, want %v", got, second)
	}
	if got.Location() != time.UTC {
		t.Errorf("Get() location = %v, want UTC", got.Location())
	}

	if n := testutil.Count(t, db, "sync_state"); n != 1 {
		t.Errorf("expected one watermark row, got %d", n)
	}
	stamp := testutil.QueryString(t, db, "SELECT updated_at FROM sync_state")
	if stamp != "2024-05-01T12:00:00Z" {
		t.Errorf("updated_at = %q, want fake clock time", stamp)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	db := testutil.OpenSQLite(t, "local")
	ctx := context.Background()

	a, err := New(db, Config{Key: "remote_a"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	b, err := New(db, Config{Key: "remote_b"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := a.Set(ctx, time.Now()); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if _, ok, _ := b.Get(ctx); ok {
		t.Error("watermark for remote_b should be unset")
	}

	if err := a.Reset(ctx); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}
	if _, ok, _ := a.Get(ctx); ok {
		t.Error("watermark should be unset after Reset")
	}
}

func TestNewValidation(t *testing.T) {
	db := testutil.OpenSQLite(t, "local")

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"custom table", Config{Table: "edusync_state"}, false},
		{"injection", Config{Table: "x; DROP TABLE accounts"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(db, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil store")
	}
}
