package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bkonkle/taskdeck/internal/command"
	"github.com/bkonkle/taskdeck/internal/task"
)

var (
	updateStatus string
	updateResult string
)

var updateCmd = &cobra.Command{
	Use:   "update <task-id>",
	Short: "Manually set a task's status or result",
	Long: `Patch a task on the backend. The change reaches every client through
the event stream.

Examples:
  taskdeck update T-42 --status failed
  taskdeck update T-42 --result "done by hand"`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "New status (queued, in_progress, tool_call, completed, failed)")
	updateCmd.Flags().StringVar(&updateResult, "result", "", "New result text")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	var patch command.Patch
	if cmd.Flags().Changed("status") {
		s := task.Status(updateStatus)
		patch.Status = &s
	}
	if cmd.Flags().Changed("result") {
		r := updateResult
		patch.Result = &r
	}

	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	updated, err := a.submitter.Annotate(cmd.Context(), args[0], patch)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", updated.ID, colorStatus(updated.Status))
	return nil
}
