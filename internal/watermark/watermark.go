// Package watermark persists the instant of the last successful sync in a
// small key/value table on the local store.
//
// The table is created on first use:
//
//	sync_state (
//	    sync_key   TEXT PRIMARY KEY,
//	    sync_value TEXT NOT NULL,  -- RFC 3339, UTC
//	    updated_at TEXT NOT NULL
//	)
//
// A missing table or a missing row both mean "never synced".
package watermark

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
)

// Config holds watermark store configuration.
type Config struct {
	// Table is the backing table name (default "sync_state").
	Table string
	// Key selects the row (default "last_sync"). Different keys let several
	// sync pairs share one local database.
	Key string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Table: "sync_state",
		Key:   "last_sync",
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store reads and writes the watermark row.
type Store struct {
	db    *store.Store
	cfg   Config
	clock clockwork.Clock

	mu          sync.Mutex
	provisioned bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for the updated_at column.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New creates a watermark store on db. Nothing is written until the first
// Get or Set.
func New(db *store.Store, cfg Config, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultConfig().Table
	}
	if cfg.Key == "" {
		cfg.Key = DefaultConfig().Key
	}
	if !identRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid watermark table name %q", cfg.Table)
	}

	s := &Store{db: db, cfg: cfg, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Key returns the configured watermark key.
func (s *Store) Key() string { return s.cfg.Key }

// Get returns the stored watermark. ok is false when no sync has completed.
func (s *Store) Get(ctx context.Context) (t time.Time, ok bool, err error) {
	if err := s.ensure(ctx); err != nil {
		return time.Time{}, false, err
	}

	d := s.db.Dialect()
	query := fmt.Sprintf("SELECT sync_value FROM %s WHERE sync_key = %s",
		d.Ref(store.Table(s.cfg.Table)), d.Placeholder(1))

	rows, err := s.db.DB().QueryContext(ctx, query, s.cfg.Key)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read watermark: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return time.Time{}, false, rows.Err()
	}
	var value string
	if err := rows.Scan(&value); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to scan watermark: %w", err)
	}

	t, err = time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid watermark %q: %w", value, err)
	}
	return t.UTC(), true, nil
}

// Set stores t as the watermark.
func (s *Store) Set(ctx context.Context, t time.Time) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}

	d := s.db.Dialect()
	query := fmt.Sprintf(`INSERT INTO %s (sync_key, sync_value, updated_at) VALUES (%s, %s, %s)
		ON CONFLICT (sync_key) DO UPDATE SET sync_value = excluded.sync_value, updated_at = excluded.updated_at`,
		d.Ref(store.Table(s.cfg.Table)), d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))

	now := s.clock.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.DB().ExecContext(ctx, query, s.cfg.Key, t.UTC().Format(time.RFC3339Nano), now); err != nil {
		return fmt.Errorf("failed to write watermark: %w", err)
	}
	return nil
}

// Reset forgets the watermark so the next sync is a first sync.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}

	d := s.db.Dialect()
	query := fmt.Sprintf("DELETE FROM %s WHERE sync_key = %s",
		d.Ref(store.Table(s.cfg.Table)), d.Placeholder(1))
	if _, err := s.db.DB().ExecContext(ctx, query, s.cfg.Key); err != nil {
		return fmt.Errorf("failed to reset watermark: %w", err)
	}
	return nil
}

// ensure creates the backing table once per Store.
func (s *Store) ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.provisioned {
		return nil
	}

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		sync_key TEXT PRIMARY KEY,
		sync_value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`, s.db.Dialect().Ref(store.Table(s.cfg.Table)))

	if _, err := s.db.DB().ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create watermark table: %w", err)
	}
	s.provisioned = true
	return nil
}
