package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	feedbackRating  int
	feedbackComment string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <task-id>",
	Short: "Rate a task's result",
	Long: `Rate a finished task from 1 to 5 stars with an optional comment.

Examples:
  taskdeck feedback T-42 --rating 5
  taskdeck feedback T-42 -r 2 -m "missed the second half"`,
	Args: cobra.ExactArgs(1),
	RunE: runFeedback,
}

func init() {
	feedbackCmd.Flags().IntVarP(&feedbackRating, "rating", "r", 0, "Rating from 1 to 5")
	feedbackCmd.Flags().StringVarP(&feedbackComment, "message", "m", "", "Optional comment")
	_ = feedbackCmd.MarkFlagRequired("rating")
	rootCmd.AddCommand(feedbackCmd)
}

func runFeedback(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.submitter.Feedback(cmd.Context(), args[0], feedbackRating, feedbackComment); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d/5\n", color.GreenString("Rated"), args[0], feedbackRating)
	return nil
}
