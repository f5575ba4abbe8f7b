package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var sendDryRun bool

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a command to a worker",
	Long: `Send a command. Mention exactly one worker with @nickname (or greet one,
as in "hi scout, ...") to address it directly. Anything else goes to the
orchestrator. The text is sent as typed.

Examples:
  taskdeck send "@scout research quantum computing"
  taskdeck send "@scout @scribe compare notes" --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "Print the routing decision without sending")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{roster: true})
	if err != nil {
		return err
	}
	defer a.close()

	text := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	if a.rosterFallback {
		fmt.Fprintln(cmd.ErrOrStderr(), color.YellowString("Warning: backend roster unavailable, using built-in workers"))
	}

	if sendDryRun {
		decision, err := a.submitter.Route(text)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", decision.Describe(), color.HiBlackString("(%s)", decision.Target.ID))
		return nil
	}

	res, err := a.submitter.Submit(ctx, text)
	if err != nil {
		return err
	}
	if res.Accepted() {
		fmt.Fprintf(out, "%s %s\n", color.GreenString("Accepted"), res.Decision.Describe())
		return nil
	}
	fmt.Fprintf(out, "%s %s %s\n", color.GreenString("Sent"), res.Task.ID, res.Decision.Describe())
	return nil
}
