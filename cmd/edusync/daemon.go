package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Chwrld/Edu-IT13Project/internal/daemon"
	"github.com/Chwrld/Edu-IT13Project/internal/dashboard"
	"github.com/Chwrld/Edu-IT13Project/internal/engine"
	"github.com/Chwrld/Edu-IT13Project/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Sync continuously in the foreground",
	Long: `Run delta syncs until interrupted.

The daemon syncs:
  1. at startup
  2. every daemon.interval
  3. when the local SQLite file changes and then stays quiet for daemon.debounce

Each trigger re-probes the remote first; while it is unreachable the daemon
keeps running and syncs as soon as it comes back.

With --port (or dashboard.port) a WebSocket dashboard streams progress:
  ws://localhost:<port>/ws`,
	PersistentPreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Dashboard.Port, _ = cmd.Flags().GetInt("port")
		}

		ctx, cancel := runContext(cmd.Context())
		defer cancel()

		var (
			opts    []engine.Option
			handler *dashboard.Handler
		)
		if cfg.Dashboard.Port > 0 {
			server := dashboard.NewServer(&dashboard.Config{Port: cfg.Dashboard.Port, Logger: logger})
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer func() {
				if err := server.Stop(); err != nil {
					logger.Warn("dashboard shutdown failed", "error", err)
				}
			}()
			handler = dashboard.NewHandler(server, logger)
			opts = append(opts, engine.WithObserver(handler))
			fmt.Printf("   Dashboard: ws://localhost:%d/ws\n", cfg.Dashboard.Port)
		}

		a, err := openApp(ctx, opts...)
		if err != nil {
			return err
		}
		defer a.Close()

		dcfg := daemon.DefaultConfig()
		dcfg.Interval = cfg.Daemon.Interval
		dcfg.Debounce = cfg.Daemon.Debounce
		dcfg.WatchPath = a.localFile()
		dcfg.Logger = logger
		if handler != nil {
			dcfg.OnConnectivity = handler.OnConnectivity
		}

		d, err := daemon.NewWithConfig(a.engine, dcfg)
		if err != nil {
			return err
		}

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("→"))
		fmt.Printf("   Interval: %s\n", dcfg.Interval)
		if dcfg.WatchPath != "" {
			fmt.Printf("   Watching: %s\n", dcfg.WatchPath)
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := d.Start(ctx); err != nil {
			return fmt.Errorf("daemon stopped with error: %w", err)
		}

		st := d.Stats()
		fmt.Printf("\n%s Daemon stopped after %d runs (%d failed, %d skipped offline)\n",
			ui.RenderPass("✓"), st.Runs, st.Failures, st.Skipped)
		return nil
	},
}

func init() {
	daemonCmd.Flags().IntP("port", "p", 0, "serve the WebSocket dashboard on this port")
	rootCmd.AddCommand(daemonCmd)
}
