package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bkonkle/taskdeck/internal/view"
)

var (
	timelineAgent  string
	timelineOutput string
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print the conversation timeline",
	Long: `Print your commands and the workers' responses as one feed, oldest first.

Examples:
  taskdeck timeline
  taskdeck timeline --agent scout`,
	RunE: runTimeline,
}

func init() {
	timelineCmd.Flags().StringVarP(&timelineAgent, "agent", "a", "", "Only show this worker's tasks")
	timelineCmd.Flags().StringVarP(&timelineOutput, "output", "o", "text", "Output format (text, json)")
	rootCmd.AddCommand(timelineCmd)
}

func runTimeline(cmd *cobra.Command, _ []string) error {
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
		items := view.Timeline(snap.Tasks, timelineAgent)
		if timelineOutput == "json" {
			if items == nil {
				items = []view.Item{}
			}
			return printJSON(cmd.OutOrStdout(), items)
		}
		printTimeline(cmd.OutOrStdout(), items)
		return nil
	})
}

func printTimeline(w io.Writer, items []view.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No activity.")
		return
	}
	for _, it := range items {
		who := "you"
		if it.Kind != view.KindUserCommand {
			who = "@" + it.AgentNickname
		}
		fmt.Fprintf(w, "%s  %-10s %s\n",
			it.Timestamp.Local().Format("2006-01-02 15:04:05"),
			who,
			colorKind(it.Kind, it.Text),
		)
	}
}
