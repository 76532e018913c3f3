package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/Chwrld/Edu-IT13Project/internal/engine"
	"github.com/Chwrld/Edu-IT13Project/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push local changes to the remote database",
	Long: `Run one sync now.

By default only rows changed since the last successful sync are sent. The
watermark can be overridden for one run:

  edusync sync                      # changes since the last successful sync
  edusync sync --since "2 days ago" # changes since a given time
  edusync sync --since 2024-06-01T00:00:00Z
  edusync sync --reset              # forget the watermark, send every row
  edusync sync --full               # replace every remote table

--full deletes remote rows that do not exist locally.`,
	PersistentPreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")
		reset, _ := cmd.Flags().GetBool("reset")
		sinceArg, _ := cmd.Flags().GetString("since")

		if full && sinceArg != "" {
			return fmt.Errorf("--full and --since cannot be combined")
		}

		ctx, cancel := runContext(cmd.Context())
		defer cancel()

		var since time.Time
		if sinceArg != "" {
			t, err := parseSince(sinceArg, time.Now())
			if err != nil {
				return err
			}
			since = t
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if reset {
			if err := a.engine.ResetWatermark(ctx); err != nil {
				return err
			}
			fmt.Printf("%s Watermark cleared, sending every row\n", ui.RenderWarn("!"))
		}

		var out engine.SyncOutcome
		switch {
		case full:
			fmt.Printf("%s Mirroring %d tables to remote...\n", ui.RenderAccent("→"), a.manifest.Len())
			out = a.engine.RunFullSync(ctx)
		case !since.IsZero():
			fmt.Printf("%s Syncing changes since %s...\n", ui.RenderAccent("→"), since.Format(time.RFC3339))
			out = a.engine.RunDeltaSyncSince(ctx, since)
		default:
			fmt.Printf("%s Syncing changes to remote...\n", ui.RenderAccent("→"))
			out = a.engine.RunDeltaSync(ctx)
		}

		return printOutcome(out)
	},
}

// parseSince accepts RFC 3339 or natural language relative to now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: not a time", s)
	}
	if r.Time.After(now) {
		return time.Time{}, fmt.Errorf("--since %q is in the future", s)
	}
	return r.Time.UTC(), nil
}

func printOutcome(out engine.SyncOutcome) error {
	if !out.Success {
		if len(out.PerTableCounts) > 0 {
			fmt.Printf("\nApplied before the failure:\n%s", ui.Counts(out.PerTableCounts, false))
		}
		return fmt.Errorf("sync failed: %s", out.FailureReason())
	}

	fmt.Printf("%s Synced %d records in %v\n", ui.RenderPass("✓"), out.RecordsSynced, out.Duration.Round(time.Millisecond))
	if out.RecordsSynced > 0 {
		fmt.Print(ui.Counts(out.PerTableCounts, false))
	}
	if out.Watermark.IsZero() {
		fmt.Printf("   %s\n", ui.RenderMuted("watermark not set"))
	} else {
		fmt.Printf("   %s\n", ui.RenderMuted("watermark "+out.Watermark.Format(time.RFC3339)))
	}
	return nil
}

func init() {
	syncCmd.Flags().Bool("full", false, "replace every remote table with the local contents")
	syncCmd.Flags().Bool("reset", false, "forget the stored watermark before syncing")
	syncCmd.Flags().String("since", "", "sync changes since this time (RFC 3339 or e.g. \"yesterday\")")

	rootCmd.AddCommand(syncCmd)
}

// runContext is used by commands that run until interrupted.
func runContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
