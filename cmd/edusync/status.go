package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Chwrld/Edu-IT13Project/internal/engine"
	"github.com/Chwrld/Edu-IT13Project/internal/manifest"
	"github.com/Chwrld/Edu-IT13Project/internal/ui"
)

// statusReport is the machine-readable form of `edusync status`.
type statusReport struct {
	engine.Status `yaml:",inline"`
	Local         string   `json:"local" yaml:"local"`
	Remote        string   `json:"remote" yaml:"remote"`
	Sequential    []string `json:"sequential" yaml:"sequential"`
	Parallel      []string `json:"parallel" yaml:"parallel"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show connectivity and the last successful sync",
	Long: `Probe the remote database and report whether a sync can run now,
when the last successful sync started, and which tables are synced in which
tier.

Formats: text (default), json, yaml.`,
	PersistentPreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		r := statusReport{
			Status:     a.engine.Status(cmd.Context()),
			Local:      cfg.Local.Driver,
			Remote:     cfg.Remote.Driver,
			Sequential: specNames(a.manifest.Sequential),
			Parallel:   specNames(a.manifest.Parallel),
		}
		return writeStatus(os.Stdout, format, r)
	},
}

func specNames(specs []manifest.TableSpec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

func writeStatus(w io.Writer, format string, r statusReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)

	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode status: %w", err)
		}
		return enc.Close()

	case "", "text":
		mark := ui.RenderPass("●")
		if !r.Online {
			mark = ui.RenderWarn("●")
		}
		fmt.Fprintf(w, "\n%s %s\n\n", mark, r.Message)
		fmt.Fprintf(w, "Local:      %s\n", r.Local)
		fmt.Fprintf(w, "Remote:     %s\n", r.Remote)
		if r.LastSync != nil {
			fmt.Fprintf(w, "Last sync:  %s (%s ago)\n", r.LastSync.Local().Format("2006-01-02 15:04:05"),
				time.Since(*r.LastSync).Round(time.Second))
		} else {
			fmt.Fprintf(w, "Last sync:  %s\n", ui.RenderMuted("never"))
		}
		fmt.Fprintf(w, "Sequential: %d tables\n", len(r.Sequential))
		fmt.Fprintf(w, "Parallel:   %d tables\n\n", len(r.Parallel))
		return nil

	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

func init() {
	statusCmd.Flags().StringP("format", "f", "text", "output format: text, json, yaml")
	rootCmd.AddCommand(statusCmd)
}
