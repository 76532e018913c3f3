package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"

	"github.com/Chwrld/Edu-IT13Project/internal/manifest"
	"github.com/Chwrld/Edu-IT13Project/internal/store"
	"github.com/Chwrld/Edu-IT13Project/internal/watermark"
)

// Fallback selects how tables without an audit column are synced.
type Fallback string

const (
	// FallbackUpsert reads the whole table and merges it.
	FallbackUpsert Fallback = "upsert"
	// FallbackMirror replaces the remote table with the local one.
	FallbackMirror Fallback = "mirror"
)

// Status messages reported by Status.
const (
	StatusOnline  = "Online - Ready to sync"
	StatusOffline = "Offline - Using local database"
)

// Config holds engine configuration.
type Config struct {
	// Local is the offline store changes are read from. Required.
	Local *store.Store
	// Remote is the server-of-record store changes are applied to. Required.
	Remote *store.Store
	// Manifest lists the synced tables by tier. Required.
	Manifest manifest.Manifest
	// Watermarks persists the last successful sync. Required.
	Watermarks *watermark.Store

	// ProbeTimeout bounds the connectivity probe (default: 5s).
	ProbeTimeout time.Duration
	// CountTimeout bounds each change count (default: 10s).
	CountTimeout time.Duration
	// CommandTimeout bounds each local read (default: 30s).
	CommandTimeout time.Duration
	// BulkTimeout bounds each staging load and merge (default: 300s).
	BulkTimeout time.Duration

	// AuditColumns are probed in order for change detection
	// (default: updated_at, created_at).
	AuditColumns []string
	// Parallelism caps concurrent tables in the parallel tier (0 = one
	// goroutine per table). Forced to 1 when the remote is a single-writer
	// database (SQLite, libSQL).
	Parallelism int
	// Fallback is the strategy for tables without an audit column
	// (default: upsert).
	Fallback Fallback
	// LockFile, when set, is locked for the duration of a run so that only
	// one process syncs a given local database.
	LockFile string
}

// DefaultConfig returns the default timeouts and strategy. Stores, manifest
// and watermark store must still be set.
func DefaultConfig() Config {
	return Config{
		ProbeTimeout:   5 * time.Second,
		CountTimeout:   10 * time.Second,
		CommandTimeout: 30 * time.Second,
		BulkTimeout:    300 * time.Second,
		AuditColumns:   append([]string(nil), DefaultAuditColumns...),
		Fallback:       FallbackUpsert,
	}
}

// Engine synchronizes the local store into the remote store.
type Engine struct {
	cfg       Config
	clock     clockwork.Clock
	logger    *slog.Logger
	observers []Observer

	prober   *Prober
	detector *Detector
	applier  *Applier
	mirror   *Mirror

	runMu    sync.Mutex
	fileLock *flock.Flock

	stateMu sync.RWMutex
	state   State
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock that stamps run start times.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// New creates an engine. Zero timeouts take their defaults.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Local == nil {
		return nil, fmt.Errorf("local store cannot be nil")
	}
	if cfg.Remote == nil {
		return nil, fmt.Errorf("remote store cannot be nil")
	}
	if cfg.Watermarks == nil {
		return nil, fmt.Errorf("watermark store cannot be nil")
	}
	if cfg.Manifest.Len() == 0 {
		return nil, fmt.Errorf("manifest has no tables")
	}
	if cfg.Parallelism < 0 {
		return nil, fmt.Errorf("parallelism must be >= 0")
	}

	def := DefaultConfig()
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.CountTimeout <= 0 {
		cfg.CountTimeout = def.CountTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if cfg.BulkTimeout <= 0 {
		cfg.BulkTimeout = def.BulkTimeout
	}
	if len(cfg.AuditColumns) == 0 {
		cfg.AuditColumns = def.AuditColumns
	}
	switch cfg.Fallback {
	case "":
		cfg.Fallback = FallbackUpsert
	case FallbackUpsert, FallbackMirror:
	default:
		return nil, fmt.Errorf("unknown fallback %q (want %s or %s)", cfg.Fallback, FallbackUpsert, FallbackMirror)
	}

	e := &Engine{
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if cfg.LockFile != "" {
		e.fileLock = flock.New(cfg.LockFile)
	}

	e.prober = NewProber(cfg.Remote, cfg.ProbeTimeout)
	e.detector = NewDetector(cfg.Local, cfg.AuditColumns, cfg.CountTimeout, cfg.CommandTimeout, e.logger)
	for _, spec := range cfg.Manifest.Tables() {
		if spec.AuditColumn != "" {
			e.detector.Pin(spec.Name, spec.AuditColumn)
		}
	}
	if sw, ok := cfg.Remote.Dialect().(store.SingleWriter); ok && sw.SingleWriter() && e.cfg.Parallelism != 1 {
		e.logger.Debug("remote admits one writer, applying the parallel tier one table at a time", "dialect", cfg.Remote.Dialect().Name())
		e.cfg.Parallelism = 1
	}
	e.applier = NewApplier(cfg.Remote, cfg.BulkTimeout, e.logger)
	e.mirror = NewMirror(cfg.Local, cfg.Remote, cfg.CommandTimeout, cfg.BulkTimeout, e.logger)

	return e, nil
}

// Manifest returns the synced tables.
func (e *Engine) Manifest() manifest.Manifest { return e.cfg.Manifest }

// State returns the current run phase.
func (e *Engine) State() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// IsOnline reports whether the remote store is reachable right now.
func (e *Engine) IsOnline(ctx context.Context) bool {
	return e.prober.IsOnline(ctx)
}

// Probe is IsOnline with the reason for being offline.
func (e *Engine) Probe(ctx context.Context) error {
	return e.prober.Probe(ctx)
}

// LastSync returns the watermark of the last successful run.
func (e *Engine) LastSync(ctx context.Context) (time.Time, bool, error) {
	t, ok, err := e.cfg.Watermarks.Get(ctx)
	if err != nil {
		return time.Time{}, false, &WatermarkError{Op: "read", Err: err}
	}
	return t, ok, nil
}

// ResetWatermark forgets the last successful run so the next delta sync
// transfers every table in full.
func (e *Engine) ResetWatermark(ctx context.Context) error {
	if err := e.cfg.Watermarks.Reset(ctx); err != nil {
		return &WatermarkError{Op: "reset", Err: err}
	}
	return nil
}

// Status summarizes connectivity and the last successful run.
type Status struct {
	Online   bool       `json:"online" yaml:"online"`
	Message  string     `json:"status" yaml:"status"`
	LastSync *time.Time `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
	State    string     `json:"state" yaml:"state"`
}

// Status probes the remote store and reads the watermark.
func (e *Engine) Status(ctx context.Context) Status {
	st := Status{
		Online: e.IsOnline(ctx),
		State:  e.State().String(),
	}
	st.Message = StatusOffline
	if st.Online {
		st.Message = StatusOnline
	}
	if t, ok, err := e.LastSync(ctx); err != nil {
		e.logger.Warn("failed to read watermark", "error", err)
	} else if ok {
		st.LastSync = &t
	}
	return st
}

// RunDeltaSync applies the rows changed since the last successful run.
func (e *Engine) RunDeltaSync(ctx context.Context) SyncOutcome {
	return e.run(ctx, ModeDelta, time.Time{})
}

// RunDeltaSyncSince is RunDeltaSync with an explicit watermark. The stored
// watermark advances to the run start only when since is not after it;
// otherwise rows changed between the two were never read, and the stored
// watermark is left as it was.
func (e *Engine) RunDeltaSyncSince(ctx context.Context, since time.Time) SyncOutcome {
	if since.IsZero() {
		return e.RunDeltaSync(ctx)
	}
	return e.run(ctx, ModeDelta, since.UTC())
}

// RunFullSync mirrors every table in dependency order and then sets the
// watermark to the run start.
func (e *Engine) RunFullSync(ctx context.Context) SyncOutcome {
	return e.run(ctx, ModeFull, time.Time{})
}

func (e *Engine) run(ctx context.Context, mode Mode, since time.Time) (out SyncOutcome) {
	out = SyncOutcome{Mode: mode, PerTableCounts: map[string]int{}}

	if !e.runMu.TryLock() {
		out.Err = ErrSyncInProgress
		return out
	}
	defer e.runMu.Unlock()

	if e.fileLock != nil {
		locked, err := e.fileLock.TryLock()
		if err != nil {
			out.Err = fmt.Errorf("failed to acquire lock file: %w", err)
			return out
		}
		if !locked {
			out.Err = ErrSyncInProgress
			return out
		}
		defer func() {
			if err := e.fileLock.Unlock(); err != nil {
				e.logger.Warn("failed to release lock file", "path", e.cfg.LockFile, "error", err)
			}
		}()
	}

	start := e.clock.Now().UTC()
	out.StartedAt = start
	t := newTally()
	log := e.logger.With("mode", string(mode))

	defer func() {
		out.PerTableCounts, out.RecordsSynced = t.snapshot()
		out.Duration = e.clock.Since(start)
		e.setState(Idle, mode)

		typ := EventSyncCompleted
		if out.Success {
			log.Info("sync complete", "records", out.RecordsSynced, "tables", len(out.PerTableCounts), "duration", out.Duration)
		} else {
			typ = EventSyncFailed
			log.Warn("sync failed", "error", out.Err, "records", out.RecordsSynced, "duration", out.Duration)
		}
		final := out
		e.emit(Event{Type: typ, Mode: mode, Records: out.RecordsSynced, Err: out.Err, Outcome: &final})
	}()

	e.emit(Event{Type: EventSyncStarted, Mode: mode})
	log.Info("sync started", "tables", e.cfg.Manifest.Len())

	e.setState(CheckingConnectivity, mode)
	if err := e.prober.Probe(ctx); err != nil {
		out.Err = err
		return out
	}

	e.setState(ComputingWatermark, mode)
	previous, hasPrevious, err := e.cfg.Watermarks.Get(ctx)
	if err != nil {
		log.Warn("watermark unreadable, treating as first sync", "error", &WatermarkError{Op: "read", Err: err})
		hasPrevious = false
	}
	wm := since
	if wm.IsZero() && hasPrevious && mode == ModeDelta {
		wm = previous
	}
	if wm.IsZero() {
		log.Info("no watermark, transferring every table in full")
	} else {
		log.Debug("syncing changes since watermark", "watermark", wm)
	}

	fn := e.tableFunc(mode, wm)

	e.setState(SyncingSequentialTier, mode)
	if err := runSequential(ctx, e.cfg.Manifest.Sequential, fn, t); err != nil {
		out.Err = err
		return out
	}

	e.setState(SyncingParallelTier, mode)
	if err := runParallel(ctx, e.cfg.Manifest.Parallel, e.cfg.Parallelism, fn, t); err != nil {
		out.Err = err
		return out
	}

	e.setState(AdvancingWatermark, mode)
	if !since.IsZero() && (!hasPrevious || since.After(previous)) {
		log.Info("explicit watermark skipped older changes, keeping the stored one", "since", since, "watermark", previous)
		out.Success = true
		if hasPrevious {
			out.Watermark = previous
		}
		return out
	}
	next := start
	if hasPrevious && previous.After(start) {
		log.Warn("clock is behind the stored watermark, keeping it", "watermark", previous, "start", start)
		next = previous
	}
	if err := e.cfg.Watermarks.Set(ctx, next); err != nil {
		out.Err = &WatermarkError{Op: "write", Err: err}
		return out
	}

	out.Success = true
	out.Watermark = next
	return out
}

// tableFunc returns the per-table strategy for a run.
func (e *Engine) tableFunc(mode Mode, wm time.Time) tableFunc {
	return func(ctx context.Context, spec manifest.TableSpec) (int, error) {
		var (
			n   int
			err error
		)
		if mode == ModeFull {
			n, err = e.mirror.MirrorTable(ctx, spec.Name)
		} else {
			n, err = e.syncDelta(ctx, spec.Name, wm)
		}

		if err != nil {
			e.logger.Warn("table sync failed", "table", spec.Name, "tier", spec.Tier.String(), "error", err)
			e.emit(Event{Type: EventTableFailed, Mode: mode, Table: spec.Name, Err: err})
			return 0, err
		}
		e.logger.Debug("table synced", "table", spec.Name, "tier", spec.Tier.String(), "records", n)
		e.emit(Event{Type: EventTableSynced, Mode: mode, Table: spec.Name, Records: n})
		return n, nil
	}
}

// syncDelta detects and applies one table's changes. Tables without an
// audit column follow the configured fallback.
func (e *Engine) syncDelta(ctx context.Context, table string, wm time.Time) (int, error) {
	if e.cfg.Fallback == FallbackMirror {
		audit, err := e.detector.AuditColumn(ctx, table)
		if err == nil && audit == "" {
			return e.mirror.MirrorTable(ctx, table)
		}
	}

	changed, err := e.detector.HasChanges(ctx, table, wm)
	if err != nil {
		return 0, err
	}
	if !changed {
		return 0, nil
	}

	cs, err := e.detector.ReadChanges(ctx, table, wm)
	if err != nil {
		return 0, err
	}
	return e.applier.Apply(ctx, cs)
}

func (e *Engine) setState(s State, mode Mode) {
	e.stateMu.Lock()
	changed := e.state != s
	e.state = s
	e.stateMu.Unlock()

	if changed {
		e.emit(Event{Type: EventStateChanged, Mode: mode, State: s})
	}
}

func (e *Engine) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = e.clock.Now()
	}
	for _, o := range e.observers {
		o.OnEvent(ev)
	}
}
