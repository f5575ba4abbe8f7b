package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/bkonkle/taskdeck/internal/task"
	"github.com/bkonkle/taskdeck/internal/view"
)

// colorStatus colors a status label. fatih/color disables itself when stdout
// is not a terminal.
func colorStatus(status task.Status) string {
	label := status.Label()
	switch status {
	case task.StatusQueued:
		return color.HiBlackString(label)
	case task.StatusInProgress:
		return color.YellowString(label)
	case task.StatusToolCall:
		return color.MagentaString(label)
	case task.StatusCompleted:
		return color.GreenString(label)
	case task.StatusFailed:
		return color.RedString(label)
	default:
		return label
	}
}

func colorKind(kind view.ItemKind, text string) string {
	switch kind {
	case view.KindUserCommand:
		return color.CyanString(text)
	case view.KindSystemEvent:
		return color.HiBlackString(text)
	case view.KindAgentResponse:
		return color.GreenString(text)
	default:
		return text
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
