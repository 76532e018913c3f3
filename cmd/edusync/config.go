package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Chwrld/Edu-IT13Project/internal/config"
	"github.com/Chwrld/Edu-IT13Project/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default edusync.toml",
	Long: `Write the default configuration to edusync.toml (or the given path).

Edit remote.dsn before the first sync. Every key can also be set from the
environment, e.g. EDUSYNC_REMOTE_DSN.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.FileName + ".toml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")

		flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
		if force {
			flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		}
		f, err := os.OpenFile(path, flags, 0644)
		if os.IsExist(err) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}

		if err := config.WriteDefault(f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}

		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:               "show",
	Short:             "Print the effective configuration",
	PersistentPreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.File != "" {
			fmt.Printf("# from %s\n", cfg.File)
		}
		keys := v.AllKeys()
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s = %v\n", k, v.Get(k))
		}
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
