package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bkonkle/taskdeck/internal/config"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath string
	userFlag   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "taskdeck",
	Short: "Live task board for a multi-worker agent backend",
	Long: `taskdeck watches the tasks a team of named workers performs for you.

It loads a snapshot of your tasks over REST, keeps it current from the
event stream, and lets you address workers with @mentions:

  taskdeck send "@scout research quantum computing"
  taskdeck watch`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "taskdeck %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./taskdeck.yaml, then ~/.config/taskdeck/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User id (overrides user_id)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo sets version information from build flags
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// GetRootCmd returns the root command for testing and subcommand registration
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig loads configuration, applying the global flags as overrides.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if userFlag != "" {
		loader.SetOverride("user_id", userFlag)
	}
	if verbose {
		loader.SetOverride("log.level", "debug")
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = loader.LoadFromPath(configPath)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
