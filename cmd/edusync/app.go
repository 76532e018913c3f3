package main

import (
	"context"
	"fmt"

	"github.com/Chwrld/Edu-IT13Project/internal/config"
	"github.com/Chwrld/Edu-IT13Project/internal/engine"
	"github.com/Chwrld/Edu-IT13Project/internal/manifest"
	"github.com/Chwrld/Edu-IT13Project/internal/store"
	"github.com/Chwrld/Edu-IT13Project/internal/store/sqlite"
	"github.com/Chwrld/Edu-IT13Project/internal/watermark"
)

// app holds the opened stores and the engine for one command.
type app struct {
	local    *store.Store
	remote   *store.Store
	manifest manifest.Manifest
	engine   *engine.Engine
}

func openStore(ctx context.Context, name string, sc config.StoreConfig, batch int) (*store.Store, error) {
	s, err := store.Open(ctx, sc.Driver, sc.DSN, store.OpenOptions{Schema: sc.Schema},
		store.WithName(name), store.WithBatchSize(batch))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", name, err)
	}
	return s, nil
}

// openApp opens both stores and builds the engine from the loaded config.
func openApp(ctx context.Context, opts ...engine.Option) (*app, error) {
	local, err := openStore(ctx, "local", cfg.Local, cfg.Sync.BatchSize)
	if err != nil {
		return nil, err
	}
	remote, err := openStore(ctx, "remote", cfg.Remote, cfg.Sync.BatchSize)
	if err != nil {
		_ = local.Close()
		return nil, err
	}
	a := &app{local: local, remote: remote}

	a.manifest, err = cfg.Manifest(ctx, local)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build table manifest: %w", err)
	}

	wm, err := watermark.New(local, watermark.Config{Table: cfg.Watermark.Table, Key: cfg.Watermark.Key})
	if err != nil {
		a.Close()
		return nil, err
	}

	ecfg := engine.Config{
		Local:          local,
		Remote:         remote,
		Manifest:       a.manifest,
		Watermarks:     wm,
		ProbeTimeout:   cfg.Timeouts.Probe,
		CountTimeout:   cfg.Timeouts.Count,
		CommandTimeout: cfg.Timeouts.Command,
		BulkTimeout:    cfg.Timeouts.Bulk,
		AuditColumns:   cfg.Sync.AuditColumns,
		Parallelism:    cfg.Sync.Parallelism,
		Fallback:       engine.Fallback(cfg.Sync.Fallback),
		LockFile:       cfg.Sync.LockFile,
	}
	a.engine, err = engine.New(ecfg, append([]engine.Option{engine.WithLogger(logger)}, opts...)...)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// localFile returns the local SQLite file, or "" when the local store is
// not a file.
func (a *app) localFile() string {
	if cfg.Local.Driver != sqlite.DriverName {
		return ""
	}
	return sqlite.FilePath(cfg.Local.DSN)
}

func (a *app) Close() {
	if a.remote != nil {
		_ = a.remote.Close()
	}
	if a.local != nil {
		_ = a.local.Close()
	}
}
