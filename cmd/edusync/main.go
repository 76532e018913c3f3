// Command edusync keeps an offline-capable local database in sync with a
// remote server-of-record database.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Chwrld/Edu-IT13Project/internal/config"
	"github.com/Chwrld/Edu-IT13Project/internal/logging"

	_ "github.com/Chwrld/Edu-IT13Project/internal/store/libsql"
	_ "github.com/Chwrld/Edu-IT13Project/internal/store/postgres"
	_ "github.com/Chwrld/Edu-IT13Project/internal/store/sqlite"
)

var (
	cfgFile string
	v       = viper.New()

	cfg         *config.Config
	logger      = slog.New(slog.DiscardHandler)
	stopLogging = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "edusync",
	Short: "Offline-first delta sync between a local and a remote database",
	Long: `edusync copies rows changed in a local database to a remote database.

Changes are detected by audit timestamp (updated_at, then created_at) since the
last successful sync, applied in foreign-key order through a staging table, and
merged idempotently on the remote primary key. While the remote is unreachable
nothing is touched and the next run picks up everything since the last success.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// loadConfig reads configuration and sets up logging. Commands that need a
// database call it from PersistentPreRunE.
func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = c

	l, cleanup, err := logging.Setup(cfg.Logging())
	if err != nil {
		return err
	}
	logger = l
	stopLogging = cleanup
	slog.SetDefault(logger)

	if cfg.File != "" {
		logger.Debug("loaded config", "file", cfg.File)
	}
	return nil
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./edusync.toml or $HOME/.edusync/edusync.toml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("local-dsn", "", "local database DSN")
	rootCmd.PersistentFlags().String("remote-dsn", "", "remote database DSN")

	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("local.dsn", rootCmd.PersistentFlags().Lookup("local-dsn"))
	_ = v.BindPFlag("remote.dsn", rootCmd.PersistentFlags().Lookup("remote-dsn"))
}

func main() {
	err := rootCmd.Execute()
	stopLogging()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
