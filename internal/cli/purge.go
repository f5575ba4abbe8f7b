package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bkonkle/taskdeck/internal/task"
)

var purgeStatuses []string

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete finished tasks on the backend",
	Long: `Delete every task in the given statuses. By default completed and failed
tasks are removed.

Examples:
  taskdeck purge
  taskdeck purge --status failed`,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().StringSliceVar(&purgeStatuses, "status", []string{"completed", "failed"}, "Statuses to purge")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, _ []string) error {
	statuses, err := parseStatuses(purgeStatuses)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.api.PurgeTasks(cmd.Context(), statuses...); err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s tasks\n", color.GreenString("Purged"), strings.Join(purgeStatuses, ", "))
	return nil
}

func parseStatuses(names []string) ([]task.Status, error) {
	statuses := make([]task.Status, 0, len(names))
	for _, name := range names {
		s, ok := task.ParseStatus(name)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", name)
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}
