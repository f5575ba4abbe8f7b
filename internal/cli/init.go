package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bkonkle/taskdeck/internal/config"
)

var (
	initForce  bool
	initGlobal bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default configuration to ./taskdeck.yaml, or to
~/.config/taskdeck/config.yaml with --global.

Safe to run multiple times - will not overwrite existing config.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config")
	initCmd.Flags().BoolVar(&initGlobal, "global", false, "Write the global config instead of the project config")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	path := "taskdeck.yaml"
	if initGlobal {
		path = config.GlobalConfigPath()
		if path == "" {
			return fmt.Errorf("could not determine home directory")
		}
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		fmt.Fprintf(out, "Config %s already exists, skipping\n", path)
		return nil
	}

	cfg := config.DefaultConfig()
	if userFlag != "" {
		cfg.UserID = userFlag
	}
	if err := config.Write(cfg, path); err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	fmt.Fprintf(out, "Created %s\n", path)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Set api.base_url and user_id")
	fmt.Fprintln(out, "  2. Check the workers: taskdeck agents")
	fmt.Fprintln(out, "  3. Open the board:    taskdeck watch")
	return nil
}
