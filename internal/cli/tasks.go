package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bkonkle/taskdeck/internal/task"
	"github.com/bkonkle/taskdeck/internal/view"
)

var tasksOutput string

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"ls"},
	Short:   "List tasks by status column",
	Long: `Load a snapshot of your tasks and print them grouped into the five
status columns: QUEUED, IN_PROGRESS, TOOL_CALL, COMPLETED and FAILED.

Examples:
  taskdeck tasks
  taskdeck tasks -o json`,
	RunE: runTasks,
}

func init() {
	tasksCmd.Flags().StringVarP(&tasksOutput, "output", "o", "table", "Output format (table, json)")
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{engine: true})
	if err != nil {
		return err
	}
	defer a.close()

	return a.run(ctx, func(ctx context.Context) error {
		snap, err := a.waitLoaded(ctx)
		if err != nil {
			return err
		}
		cols := view.Columns(snap.Tasks)
		out := cmd.OutOrStdout()

		switch tasksOutput {
		case "json":
			return printJSON(out, columnsJSON(cols))
		default:
			return printColumns(out, cols, time.Now())
		}
	})
}

type columnJSON struct {
	Status string      `json:"status"`
	Count  int         `json:"count"`
	Tasks  []task.Task `json:"tasks"`
}

func columnsJSON(cols []view.Column) []columnJSON {
	res := make([]columnJSON, 0, len(cols))
	for _, c := range cols {
		tasks := c.Tasks
		if tasks == nil {
			tasks = []task.Task{}
		}
		res = append(res, columnJSON{Status: c.Title(), Count: len(c.Tasks), Tasks: tasks})
	}
	return res
}

func printColumns(w io.Writer, cols []view.Column, now time.Time) error {
	if view.Total(cols) == 0 {
		fmt.Fprintln(w, "No tasks yet.")
		fmt.Fprintln(w, "\nSend one with:")
		fmt.Fprintln(w, `  taskdeck send "@worker what to do"`)
		return nil
	}

	for _, c := range cols {
		if len(c.Tasks) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s (%d)\n", colorStatus(c.Status), len(c.Tasks))

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, t := range c.Tasks {
			detail := ""
			switch {
			case t.ErrorMessage != nil:
				detail = truncate(*t.ErrorMessage, 40)
			case t.Status.IsActive():
				detail = fmt.Sprintf("%d%%", t.ProgressPercentage)
				if t.ConsultationTargetNickname != nil {
					detail += " consulting @" + *t.ConsultationTargetNickname
				}
			}
			fmt.Fprintf(tw, "  %s\t@%s\t%s\t%s\t%s\n",
				t.ID,
				t.AgentNickname,
				truncate(t.CommandText, 50),
				formatDuration(now.Sub(t.CreatedAt)),
				detail,
			)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	return nil
}
