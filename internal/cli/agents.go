package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var agentsOutput string

var agentsCmd = &cobra.Command{
	Use:     "agents",
	Aliases: []string{"workers"},
	Short:   "List the workers commands can be routed to",
	RunE:    runAgents,
}

func init() {
	agentsCmd.Flags().StringVarP(&agentsOutput, "output", "o", "table", "Output format (table, json)")
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), appOptions{roster: true})
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	if agentsOutput == "json" {
		return printJSON(out, a.roster.Workers())
	}

	if a.rosterFallback {
		fmt.Fprintln(out, color.YellowString("Backend roster unavailable, showing built-in workers.\n"))
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NICKNAME\tSPECIALIZATION\tDESCRIPTION")
	fmt.Fprintln(w, "--------\t--------------\t-----------")
	for _, wk := range a.roster.Workers() {
		nick := "@" + wk.Nickname
		if wk.Orchestrator {
			nick += color.CyanString(" *")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", nick, wk.Specialization, truncate(wk.Description, 60))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out, color.HiBlackString("\n* orchestrator: receives commands that name no single worker"))
	return nil
}
