package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Chwrld/Edu-IT13Project/internal/engine"
)

// fakeSyncer counts runs and reports a switchable connectivity.
type fakeSyncer struct {
	online atomic.Bool
	runs   atomic.Int32
	fail   atomic.Bool
}

func newFakeSyncer(online bool) *fakeSyncer {
	s := &fakeSyncer{}
	s.online.Store(online)
	return s
}

func (s *fakeSyncer) RunDeltaSync(ctx context.Context) engine.SyncOutcome {
	s.runs.Add(1)
	if s.fail.Load() {
		return engine.SyncOutcome{Err: &engine.SchemaError{Table: "accounts", Err: engine.ErrNoPrimaryKey}}
	}
	return engine.SyncOutcome{Success: true, RecordsSynced: 1}
}

func (s *fakeSyncer) IsOnline(ctx context.Context) bool { return s.online.Load() }

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Interval = time.Hour
	cfg.Debounce = 30 * time.Millisecond
	cfg.Logger = slog.New(slog.DiscardHandler)
	return cfg
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// startDaemon runs d in the background and stops it when the test ends.
func startDaemon(t *testing.T, d *Daemon) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Start() returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})
}

func TestNewWithConfig(t *testing.T) {
	tests := []struct {
		name    string
		syncer  Syncer
		config  *Config
		wantErr bool
	}{
		{"defaults", newFakeSyncer(true), nil, false},
		{"custom", newFakeSyncer(true), testConfig(), false},
		{"nil syncer", nil, nil, true},
		{"negative interval", newFakeSyncer(true), &Config{Interval: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewWithConfig(tt.syncer, tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewWithConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if d != nil {
				if d.config.Interval <= 0 || d.config.Debounce <= 0 || d.config.Logger == nil || d.config.Clock == nil {
					t.Errorf("defaults not applied: %+v", d.config)
				}
				_ = d.Stop()
			}
		})
	}
}

func TestDaemonInitialSync(t *testing.T) {
	s := newFakeSyncer(true)
	d, err := NewWithConfig(s, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	startDaemon(t, d)

	waitFor(t, "initial sync", func() bool { return s.runs.Load() == 1 })
	waitFor(t, "stats", func() bool { return d.Stats().Runs == 1 })

	st := d.Stats()
	if !st.Online || st.Failures != 0 || st.LastOutcome == nil || !st.LastOutcome.Success {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestDaemonInterval(t *testing.T) {
	s := newFakeSyncer(true)
	cfg := testConfig()
	cfg.Interval = 20 * time.Millisecond
	d, err := NewWithConfig(s, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	startDaemon(t, d)

	waitFor(t, "scheduled syncs", func() bool { return s.runs.Load() >= 3 })
}

func TestDaemonCountsFailures(t *testing.T) {
	s := newFakeSyncer(true)
	s.fail.Store(true)
	d, err := NewWithConfig(s, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	startDaemon(t, d)

	waitFor(t, "failed run", func() bool { return d.Stats().Failures == 1 })
	if st := d.Stats(); st.LastOutcome == nil || st.LastOutcome.Success {
		t.Errorf("LastOutcome = %+v, want failure", st.LastOutcome)
	}
}

func TestDaemonOfflineSkipsAndReportsConnectivity(t *testing.T) {
	s := newFakeSyncer(false)

	var (
		mu      sync.Mutex
		changes []bool
	)
	cfg := testConfig()
	cfg.Interval = 20 * time.Millisecond
	cfg.OnConnectivity = func(online bool) {
		mu.Lock()
		changes = append(changes, online)
		mu.Unlock()
	}
	d, err := NewWithConfig(s, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	startDaemon(t, d)

	waitFor(t, "skipped syncs", func() bool { return d.Stats().Skipped >= 3 })
	if n := s.runs.Load(); n != 0 {
		t.Errorf("ran %d syncs while offline", n)
	}

	s.online.Store(true)
	waitFor(t, "sync after reconnect", func() bool { return s.runs.Load() >= 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 || changes[0] || !changes[1] {
		t.Errorf("connectivity changes = %v, want [false true]", changes)
	}
}

func TestDaemonFileChangeTriggersSync(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "local.db")
	if err := os.WriteFile(dbPath, []byte("v1"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	s := newFakeSyncer(true)
	cfg := testConfig()
	cfg.WatchPath = dbPath
	d, err := NewWithConfig(s, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	startDaemon(t, d)

	waitFor(t, "initial sync", func() bool { return s.runs.Load() == 1 })
	// Let the post-sync suppression window pass.
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(dbPath, []byte("v2"), 0644); err != nil {
			t.Fatalf("WriteFile() failed: %v", err)
		}
	}
	waitFor(t, "sync after file change", func() bool { return s.runs.Load() >= 2 })
}

func TestDaemonStopIsIdempotent(t *testing.T) {
	d, err := NewWithConfig(newFakeSyncer(true), testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("second Stop() failed: %v", err)
	}
}

func TestTriggerCoalesces(t *testing.T) {
	d, err := NewWithConfig(newFakeSyncer(true), testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	defer d.Stop()

	if !d.Trigger("first") {
		t.Error("first Trigger() not queued")
	}
	if d.Trigger("second") {
		t.Error("second Trigger() queued while one is pending")
	}
}
