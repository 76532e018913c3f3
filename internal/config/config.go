// Package config loads edusync settings from a config file, EDUSYNC_*
// environment variables and built-in defaults, in increasing precedence
// order: defaults < file < environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/Chwrld/Edu-IT13Project/internal/logging"
	"github.com/Chwrld/Edu-IT13Project/internal/manifest"
)

// FileName is the base name searched for when no file is given.
const FileName = "edusync"

// EnvPrefix prefixes environment overrides: local.dsn is EDUSYNC_LOCAL_DSN.
const EnvPrefix = "EDUSYNC"

// Known store drivers.
var Drivers = []string{"sqlite", "postgres", "libsql"}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Schema string `mapstructure:"schema"`
}

type TimeoutConfig struct {
	Probe   time.Duration `mapstructure:"probe"`
	Count   time.Duration `mapstructure:"count"`
	Command time.Duration `mapstructure:"command"`
	Bulk    time.Duration `mapstructure:"bulk"`
}

type SyncConfig struct {
	BatchSize    int      `mapstructure:"batch_size"`
	Parallelism  int      `mapstructure:"parallelism"`
	AuditColumns []string `mapstructure:"audit_columns"`
	Fallback     string   `mapstructure:"fallback"`
	LockFile     string   `mapstructure:"lock_file"`
}

type WatermarkConfig struct {
	Table string `mapstructure:"table"`
	Key   string `mapstructure:"key"`
}

type TablesConfig struct {
	Sequential []string `mapstructure:"sequential"`
	Parallel   []string `mapstructure:"parallel"`
	// AutoOrder re-derives the tiers from the local store's foreign keys,
	// using Sequential and Parallel only as the set of tables.
	AutoOrder bool `mapstructure:"auto_order"`
}

type DaemonConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type DashboardConfig struct {
	// Port serves the live dashboard when non-zero.
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	SeqURL     string `mapstructure:"seq_url"`
}

// Config is the complete edusync configuration.
type Config struct {
	Local     StoreConfig     `mapstructure:"local"`
	Remote    StoreConfig     `mapstructure:"remote"`
	Timeouts  TimeoutConfig   `mapstructure:"timeouts"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Watermark WatermarkConfig `mapstructure:"watermark"`
	Tables    TablesConfig    `mapstructure:"tables"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`

	// File is the config file that was read, or "" when none was found.
	File string `mapstructure:"-"`
}

// Default returns the built-in configuration: a local SQLite file synced to
// PostgreSQL with the school database manifest.
func Default() Config {
	return Config{
		Local:  StoreConfig{Driver: "sqlite", DSN: "edusync.db"},
		Remote: StoreConfig{Driver: "postgres", Schema: "public"},
		Timeouts: TimeoutConfig{
			Probe:   5 * time.Second,
			Count:   10 * time.Second,
			Command: 30 * time.Second,
			Bulk:    300 * time.Second,
		},
		Sync: SyncConfig{
			BatchSize:    5000,
			AuditColumns: []string{"updated_at", "created_at"},
			Fallback:     "upsert",
		},
		Watermark: WatermarkConfig{Table: "sync_state", Key: "last_sync"},
		Tables: TablesConfig{
			Sequential: slices.Clone(manifest.DefaultSequential),
			Parallel:   slices.Clone(manifest.DefaultParallel),
		},
		Daemon: DaemonConfig{Interval: 5 * time.Minute, Debounce: 2 * time.Second},
		Log:    LogConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// sections flattens c into section -> key -> value. Durations are rendered
// as strings when text is true.
func sections(c Config, text bool) map[string]map[string]any {
	dur := func(d time.Duration) any {
		if text {
			return d.String()
		}
		return d
	}
	return map[string]map[string]any{
		"local":  {"driver": c.Local.Driver, "dsn": c.Local.DSN, "schema": c.Local.Schema},
		"remote": {"driver": c.Remote.Driver, "dsn": c.Remote.DSN, "schema": c.Remote.Schema},
		"timeouts": {
			"probe":   dur(c.Timeouts.Probe),
			"count":   dur(c.Timeouts.Count),
			"command": dur(c.Timeouts.Command),
			"bulk":    dur(c.Timeouts.Bulk),
		},
		"sync": {
			"batch_size":    c.Sync.BatchSize,
			"parallelism":   c.Sync.Parallelism,
			"audit_columns": c.Sync.AuditColumns,
			"fallback":      c.Sync.Fallback,
			"lock_file":     c.Sync.LockFile,
		},
		"watermark": {"table": c.Watermark.Table, "key": c.Watermark.Key},
		"tables": {
			"sequential": c.Tables.Sequential,
			"parallel":   c.Tables.Parallel,
			"auto_order": c.Tables.AutoOrder,
		},
		"daemon":    {"interval": dur(c.Daemon.Interval), "debounce": dur(c.Daemon.Debounce)},
		"dashboard": {"port": c.Dashboard.Port},
		"log": {
			"level":        c.Log.Level,
			"file":         c.Log.File,
			"max_size_mb":  c.Log.MaxSizeMB,
			"max_backups":  c.Log.MaxBackups,
			"max_age_days": c.Log.MaxAgeDays,
			"seq_url":      c.Log.SeqURL,
		},
	}
}

// SetDefaults registers every key of Default with v.
func SetDefaults(v *viper.Viper) {
	for section, keys := range sections(Default(), false) {
		for key, value := range keys {
			v.SetDefault(section+"."+key, value)
		}
	}
}

// Load reads configuration into a Config. When file is empty, edusync.*
// is searched for in the working directory and $HOME/.edusync; a missing
// file is not an error. An explicitly named file must exist.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".edusync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration can drive a sync.
func (c *Config) Validate() error {
	for _, s := range []struct {
		name string
		cfg  StoreConfig
	}{{"local", c.Local}, {"remote", c.Remote}} {
		if !slices.Contains(Drivers, s.cfg.Driver) {
			return fmt.Errorf("%s.driver: unknown driver %q (want one of %s)", s.name, s.cfg.Driver, strings.Join(Drivers, ", "))
		}
		if s.cfg.DSN == "" {
			return fmt.Errorf("%s.dsn is required", s.name)
		}
	}

	for name, d := range map[string]time.Duration{
		"timeouts.probe":   c.Timeouts.Probe,
		"timeouts.count":   c.Timeouts.Count,
		"timeouts.command": c.Timeouts.Command,
		"timeouts.bulk":    c.Timeouts.Bulk,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive, got %d", c.Sync.BatchSize)
	}
	if c.Sync.Parallelism < 0 {
		return fmt.Errorf("sync.parallelism must be >= 0, got %d", c.Sync.Parallelism)
	}
	switch c.Sync.Fallback {
	case "upsert", "mirror":
	default:
		return fmt.Errorf("sync.fallback: unknown strategy %q (want upsert or mirror)", c.Sync.Fallback)
	}

	if len(c.Tables.Sequential)+len(c.Tables.Parallel) == 0 {
		return fmt.Errorf("tables: no tables configured")
	}
	if c.Daemon.Interval <= 0 {
		return fmt.Errorf("daemon.interval must be positive, got %s", c.Daemon.Interval)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Manifest builds the table manifest. With tables.auto_order the tiers are
// derived from the foreign keys reported by cat; audit column pins carry over.
func (c *Config) Manifest(ctx context.Context, cat manifest.Catalog) (manifest.Manifest, error) {
	if !c.Tables.AutoOrder {
		return manifest.New(c.Tables.Sequential, c.Tables.Parallel)
	}

	var names []string
	pins := make(map[string]string)
	for _, entry := range slices.Concat(c.Tables.Sequential, c.Tables.Parallel) {
		spec, err := manifest.ParseSpec(entry)
		if err != nil {
			return manifest.Manifest{}, err
		}
		names = append(names, spec.Name)
		if spec.AuditColumn != "" {
			pins[spec.Name] = spec.AuditColumn
		}
	}

	m, err := manifest.FromForeignKeys(ctx, cat, names)
	if err != nil {
		return manifest.Manifest{}, err
	}
	for i := range m.Sequential {
		m.Sequential[i].AuditColumn = pins[m.Sequential[i].Name]
	}
	for i := range m.Parallel {
		m.Parallel[i].AuditColumn = pins[m.Parallel[i].Name]
	}
	return m, nil
}

// Logging returns the logger options.
func (c *Config) Logging() logging.Options {
	return logging.Options{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		SeqURL:     c.Log.SeqURL,
	}
}

// WriteDefault writes the default configuration as TOML.
func WriteDefault(w io.Writer) error {
	if _, err := io.WriteString(w, "# edusync configuration\n# Every key can be overridden by EDUSYNC_<SECTION>_<KEY>.\n\n"); err != nil {
		return err
	}
	if err := toml.NewEncoder(w).Encode(sections(Default(), true)); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
