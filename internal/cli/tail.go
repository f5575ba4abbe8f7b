package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bkonkle/taskdeck/internal/engine"
	"github.com/bkonkle/taskdeck/internal/logging"
	"github.com/bkonkle/taskdeck/internal/task"
)

var (
	tailJSON     bool
	tailSnapshot bool
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print stream events as they are applied",
	Long: `Connect to the event stream and print every event with the effect it had
on the local task table. Events for tasks the table does not know are shown
as ignored.

Examples:
  taskdeck tail
  taskdeck tail --json`,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().BoolVar(&tailJSON, "json", false, "Print events as JSON lines in wire format")
	tailCmd.Flags().BoolVar(&tailSnapshot, "snapshot", true, "Load existing tasks before tailing")
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{stream: true})
	if err != nil {
		return err
	}
	defer a.close()

	table := task.NewTable(a.cfg.Engine.TombstoneCapacity)
	if tailSnapshot {
		if err := seedTable(ctx, a, table); err != nil {
			return err
		}
	}

	tl := &tailer{
		out:    cmd.OutOrStdout(),
		table:  table,
		fetch:  a.api.GetTask,
		logger: a.logger,
	}
	reducer := task.NewReducer(logging.Component(a.logger, "reducer"), nil)

	return a.run(ctx, func(ctx context.Context) error {
		drainer := engine.NewDrainer(reducer, tl.observer(ctx))
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-a.log.Notify():
				drainer.Drain(table, a.log)
			}
		}
	})
}

// tailer prints applied events and materializes announced tasks.
type tailer struct {
	out    io.Writer
	table  *task.Table
	fetch  func(ctx context.Context, id string) (task.Task, error)
	logger *slog.Logger
}

// observer prints each event, then runs its effects before the next event
// is applied, so later events in the same batch find the fetched task.
func (tl *tailer) observer(ctx context.Context) func(task.Event, task.Outcome) {
	return func(ev task.Event, res task.Outcome) {
		if err := printEvent(tl.out, ev, res); err != nil {
			tl.logger.Warn("could not print event", "kind", ev.Kind(), "error", err)
		}
		tl.materialize(ctx, res.Effects)
	}
}

func (tl *tailer) materialize(ctx context.Context, effects []task.Effect) {
	for _, eff := range effects {
		f, ok := eff.(task.FetchTask)
		if !ok || tl.table.Has(f.TaskID) {
			continue
		}
		t, err := tl.fetch(ctx, f.TaskID)
		if err == nil {
			err = task.ValidateRecord(t)
		}
		if err != nil {
			tl.logger.Warn("point fetch failed", "task_id", f.TaskID, "error", err)
			if !tailJSON {
				fmt.Fprintf(tl.out, "  fetch %s failed: %v\n", f.TaskID, err)
			}
			continue
		}
		if tl.table.Adopt(t) && !tailJSON {
			fmt.Fprintf(tl.out, "  fetched %s @%s %s\n", t.ID, t.AgentNickname, colorStatus(t.Status))
		}
	}
}

func seedTable(ctx context.Context, a *app, table *task.Table) error {
	tasks, err := a.api.ListTasks(ctx, a.cfg.UserID)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	for _, t := range tasks {
		if err := task.ValidateRecord(t); err != nil {
			a.logger.Warn("skipping invalid task record", "error", err)
			continue
		}
		table.Upsert(t)
	}
	return nil
}

func printEvent(w io.Writer, ev task.Event, res task.Outcome) error {
	if tailJSON {
		data, err := task.EncodeEvent(ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	effect := color.GreenString("applied")
	switch {
	case res.Ignored != "":
		effect = color.HiBlackString("ignored (%s)", res.Ignored)
	case !res.Changed && len(res.Effects) > 0:
		effect = color.CyanString("new task, fetching")
	}
	_, err := fmt.Fprintf(w, "%s  %-24s %-12s %s  %s\n",
		ev.At().Local().Format("15:04:05.000"),
		ev.Kind(),
		ev.Subject(),
		describeEvent(ev),
		effect,
	)
	return err
}

func describeEvent(ev task.Event) string {
	switch e := ev.(type) {
	case task.StatusChanged:
		if e.OldStatus == nil {
			return "new → " + e.NewStatus.Label()
		}
		return e.OldStatus.Label() + " → " + e.NewStatus.Label()
	case task.Progress:
		if node := task.Deref(e.CurrentNode); node != "" {
			return fmt.Sprintf("%d%% %s", e.Percentage, node)
		}
		return fmt.Sprintf("%d%%", e.Percentage)
	case task.ConsultationStarted:
		return "consulting @" + e.TargetAgentNickname
	case task.ConsultationCompleted:
		return "consultation returned"
	case task.Completed:
		return e.Status.Label()
	case task.MetadataUpdated:
		return fmt.Sprintf("%d metadata keys", len(e.Metadata))
	case task.Deleted:
		return "deleted"
	case task.Unknown:
		return "unknown event"
	default:
		return ""
	}
}
