package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Chwrld/Edu-IT13Project/internal/engine"
)

// Syncer runs delta syncs. *engine.Engine satisfies it.
type Syncer interface {
	RunDeltaSync(ctx context.Context) engine.SyncOutcome
	IsOnline(ctx context.Context) bool
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval between scheduled syncs. Connectivity is re-probed on every
	// tick.
	Interval time.Duration

	// Debounce is how long the database file must stay quiet after a change
	// before a sync is triggered. Rapid writes are batched into one sync.
	Debounce time.Duration

	// WatchPath is the local SQLite file to watch. Empty disables file
	// triggers.
	WatchPath string

	// OnConnectivity, when set, is called with the first probe result and
	// then on every change.
	OnConnectivity func(online bool)

	Logger *slog.Logger
	Clock  clockwork.Clock
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 5 * time.Minute,
		Debounce: 2 * time.Second,
		Logger:   slog.Default(),
		Clock:    clockwork.NewRealClock(),
	}
}

// Stats summarizes the daemon's activity.
type Stats struct {
	Runs     int
	Failures int
	// Skipped counts triggers dropped because the remote was offline.
	Skipped     int
	Online      bool
	LastOutcome *engine.SyncOutcome
}

// Daemon triggers delta syncs on a schedule, on local database changes and
// when connectivity returns.
type Daemon struct {
	syncer  Syncer
	config  *Config
	watcher *FileWatcher

	trigger chan string

	pendingMu     sync.Mutex
	pendingAt     time.Time
	syncing       bool
	suppressUntil time.Time

	statsMu     sync.Mutex
	stats       Stats
	onlineKnown bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon with the default configuration.
func New(s Syncer) (*Daemon, error) {
	return NewWithConfig(s, DefaultConfig())
}

// NewWithConfig creates a daemon. Zero fields of config take their
// defaults.
func NewWithConfig(s Syncer, config *Config) (*Daemon, error) {
	if s == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.Interval < 0 || config.Debounce < 0 {
		return nil, fmt.Errorf("interval and debounce must not be negative")
	}
	if config.Interval == 0 {
		config.Interval = def.Interval
	}
	if config.Debounce == 0 {
		config.Debounce = def.Debounce
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if config.Clock == nil {
		config.Clock = def.Clock
	}

	d := &Daemon{
		syncer:  s,
		config:  config,
		trigger: make(chan string, 1),
	}
	if config.WatchPath != "" {
		w, err := NewFileWatcher()
		if err != nil {
			return nil, err
		}
		d.watcher = w
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start runs an initial sync and then keeps syncing until ctx is cancelled
// or Stop is called. It blocks.
func (d *Daemon) Start(ctx context.Context) error {
	log := d.config.Logger
	log.Info("starting daemon", "interval", d.config.Interval, "watch", d.config.WatchPath)

	if d.watcher != nil {
		if err := d.watcher.Start(d.config.WatchPath); err != nil {
			return fmt.Errorf("failed to watch local database: %w", err)
		}
		d.wg.Add(2)
		go d.watchFileEvents()
		go d.processChanges()
	}

	d.wg.Add(2)
	go d.runWorker()
	go d.tick()

	d.Trigger("startup")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and waits for an in-flight sync to finish.
// It is safe to call more than once.
func (d *Daemon) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		d.config.Logger.Info("stopping daemon")
		d.cancel()
		if d.watcher != nil {
			err = d.watcher.Stop()
		}
		d.wg.Wait()
		d.config.Logger.Info("daemon stopped")
	})
	return err
}

// Trigger requests a sync. Requests made while one is already pending are
// merged into it; Trigger reports whether this request was queued.
func (d *Daemon) Trigger(reason string) bool {
	select {
	case d.trigger <- reason:
		return true
	default:
		return false
	}
}

// Stats returns a snapshot of the daemon's counters.
func (d *Daemon) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

func (d *Daemon) runWorker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case reason := <-d.trigger:
			d.syncOnce(reason)
		}
	}
}

func (d *Daemon) syncOnce(reason string) {
	log := d.config.Logger.With("trigger", reason)

	if !d.checkConnectivity() {
		d.statsMu.Lock()
		d.stats.Skipped++
		d.statsMu.Unlock()
		log.Debug("remote offline, skipping sync")
		return
	}

	d.setSyncing(true)
	out := d.syncer.RunDeltaSync(d.ctx)
	d.setSyncing(false)

	if errors.Is(out.Err, engine.ErrOffline) {
		d.setOnline(false)
	}
	if errors.Is(out.Err, engine.ErrSyncInProgress) {
		log.Debug("another sync is running, skipping")
		return
	}

	d.statsMu.Lock()
	d.stats.Runs++
	if !out.Success {
		d.stats.Failures++
	}
	d.stats.LastOutcome = &out
	d.statsMu.Unlock()

	if out.Success {
		log.Info("sync complete", "records", out.RecordsSynced, "duration", out.Duration)
	} else {
		log.Warn("sync failed", "error", out.Err)
	}
}

// tick triggers a sync every interval.
func (d *Daemon) tick() {
	defer d.wg.Done()

	ticker := d.config.Clock.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.Chan():
			d.Trigger("interval")
		}
	}
}

func (d *Daemon) checkConnectivity() bool {
	online := d.syncer.IsOnline(d.ctx)
	d.setOnline(online)
	return online
}

func (d *Daemon) setOnline(online bool) {
	d.statsMu.Lock()
	changed := !d.onlineKnown || d.stats.Online != online
	d.onlineKnown = true
	d.stats.Online = online
	d.statsMu.Unlock()

	if !changed {
		return
	}
	if online {
		d.config.Logger.Info("remote store reachable")
	} else {
		d.config.Logger.Warn("remote store unreachable, working offline")
	}
	if d.config.OnConnectivity != nil {
		d.config.OnConnectivity(online)
	}
}

// setSyncing marks a run in progress. Our own writes to the local database
// (the watermark) must not re-trigger a sync, so file events are ignored
// while syncing and for one debounce interval afterwards.
func (d *Daemon) setSyncing(v bool) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	d.syncing = v
	if !v {
		d.suppressUntil = d.config.Clock.Now().Add(d.config.Debounce)
		d.pendingAt = time.Time{}
	}
}

func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.queueChange(event)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Warn("watcher error", "error", err)
		}
	}
}

func (d *Daemon) queueChange(event FileEvent) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	now := d.config.Clock.Now()
	if d.syncing || now.Before(d.suppressUntil) {
		return
	}
	d.config.Logger.Debug("local database changed", "path", event.Path, "op", event.Op.String())
	d.pendingAt = now
}

// processChanges triggers a sync once the database has been quiet for the
// debounce interval.
func (d *Daemon) processChanges() {
	defer d.wg.Done()

	ticker := d.config.Clock.NewTicker(max(d.config.Debounce/2, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.Chan():
			if d.takeSettledChange() {
				d.Trigger("file change")
			}
		}
	}
}

func (d *Daemon) takeSettledChange() bool {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	if d.pendingAt.IsZero() || d.config.Clock.Since(d.pendingAt) < d.config.Debounce {
		return false
	}
	d.pendingAt = time.Time{}
	return true
}
