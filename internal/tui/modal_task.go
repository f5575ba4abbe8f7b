package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bkonkle/taskdeck/internal/task"
)

// TaskDetails is everything the details modal shows about one task.
type TaskDetails struct {
	Task         task.Task
	Consultation *task.Consultation
	History      []task.StatusChange
	Durations    map[task.Status]time.Duration
}

// TaskDetailsModal renders a modal with Overview, History and Metadata tabs.
type TaskDetailsModal struct {
	details TaskDetails
	tabs    *TabsModel
	width   int
	height  int
}

// NewTaskDetailsModal creates a new task details modal.
func NewTaskDetailsModal(details TaskDetails, width, height int) *TaskDetailsModal {
	m := &TaskDetailsModal{details: details, width: width, height: height}
	m.tabs = NewTabsModel([]Tab{
		{Title: "Overview", Content: m.overview},
		{Title: "History", Content: m.history},
		{Title: "Metadata", Content: m.metadata},
	}, m.innerWidth())
	return m
}

// Update handles tab navigation keys.
func (m *TaskDetailsModal) Update(msg tea.KeyMsg) tea.Cmd {
	m.tabs.HandleKey(msg)
	return nil
}

// TaskID returns the id of the task on display.
func (m *TaskDetailsModal) TaskID() string {
	return m.details.Task.ID
}

// Refresh replaces the task data, keeping the active tab.
func (m *TaskDetailsModal) Refresh(details TaskDetails) {
	m.details = details
}

// SetSize updates the modal dimensions.
func (m *TaskDetailsModal) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.tabs.SetWidth(m.innerWidth())
}

func (m *TaskDetailsModal) innerWidth() int {
	return max(20, min(m.width*4/5, 90)-6)
}

// View renders the modal.
func (m *TaskDetailsModal) View() string {
	t := m.details.Task
	modalWidth := min(m.width*4/5, 90)
	modalHeight := max(10, min(m.height*4/5, 30))

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		Render(fmt.Sprintf("%s %s  %s", TaskStatusIcon(t.Status), t.ID, Truncate(t.CommandText, m.innerWidth()-len(t.ID)-6)))

	body := lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		m.tabs.View(),
		"",
		MutedStyle.Render("[←/→] switch tab  [Esc] close"),
	)

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorPrimary).
		Padding(1, 2).
		Width(modalWidth).
		MaxHeight(modalHeight + 2).
		Render(body)
}

func (m *TaskDetailsModal) overview(width int) string {
	t := m.details.Task
	var sb strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&sb, "%s %s\n", MutedStyle.Render(fmt.Sprintf("%-12s", label)), value)
	}

	status := lipgloss.NewStyle().Foreground(TaskStatusColor(t.Status)).Render(t.Status.Label())
	row("Status:", status)
	row("Worker:", orNone(t.AgentNickname))
	if t.ThreadID != "" {
		row("Thread:", t.ThreadID)
	}
	row("Progress:", fmt.Sprintf("%d%%", t.ProgressPercentage))
	if node := task.Deref(t.CurrentNode); node != "" {
		row("Node:", node)
	}
	row("Created:", formatTime(&t.CreatedAt))
	row("Started:", formatTime(t.StartedAt))
	row("Completed:", formatTime(t.CompletedAt))

	if c := m.details.Consultation; c != nil {
		state := "waiting"
		switch {
		case !c.Open():
			state = "resolved as " + c.ResolvedStatus.Label()
		case c.Returned():
			state = "returned, awaiting status"
		}
		row("Consulting:", fmt.Sprintf("@%s (%s)", c.TargetAgentNickname, state))
	}

	sb.WriteString("\n")
	sb.WriteString(HeaderStyle.Render("Command"))
	sb.WriteString("\n")
	sb.WriteString(lipgloss.NewStyle().Width(width).Render(t.CommandText))
	sb.WriteString("\n")

	switch {
	case t.ErrorMessage != nil:
		sb.WriteString("\n")
		sb.WriteString(ErrorStyle.Render("Error"))
		sb.WriteString("\n")
		sb.WriteString(lipgloss.NewStyle().Width(width).Render(*t.ErrorMessage))
	case t.Result != nil:
		sb.WriteString("\n")
		sb.WriteString(SuccessStyle.Render("Result"))
		sb.WriteString("\n")
		sb.WriteString(lipgloss.NewStyle().Width(width).Render(*t.Result))
	}
	return sb.String()
}

func (m *TaskDetailsModal) history(int) string {
	if len(m.details.History) == 0 {
		return MutedStyle.Render("No status changes observed in this session.")
	}

	var sb strings.Builder
	for _, c := range m.details.History {
		from := "-"
		if c.From != "" {
			from = c.From.Label()
		}
		to := lipgloss.NewStyle().Foreground(TaskStatusColor(c.To)).Render(c.To.Label())
		fmt.Fprintf(&sb, "%s  %s → %s", MutedStyle.Render(c.Timestamp.Format("15:04:05")), from, to)
		if c.Message != "" {
			fmt.Fprintf(&sb, "  %s", MutedStyle.Render(c.Message))
		}
		sb.WriteString("\n")
	}

	if len(m.details.Durations) > 0 {
		sb.WriteString("\n")
		sb.WriteString(HeaderStyle.Render("Time in status"))
		sb.WriteString("\n")
		for _, s := range task.Statuses {
			if d, ok := m.details.Durations[s]; ok {
				fmt.Fprintf(&sb, "  %-12s %s\n", s.Label(), d.Round(time.Second))
			}
		}
	}
	return sb.String()
}

func (m *TaskDetailsModal) metadata(width int) string {
	md := m.details.Task.Metadata
	if len(md) == 0 {
		return MutedStyle.Render("No metadata.")
	}

	var sb strings.Builder
	if tokens, ok := md.TokenUsage(); ok {
		fmt.Fprintf(&sb, "%s %d\n\n", MutedStyle.Render("Tokens:"), tokens)
	}
	if steps, ok := md.ExecutionTrace(); ok && len(steps) > 0 {
		sb.WriteString(HeaderStyle.Render("Execution trace"))
		sb.WriteString("\n")
		for _, step := range steps {
			fmt.Fprintf(&sb, "  %-20s %-10s %dms\n", Truncate(step.Node, 20), step.Status, step.DurationMS)
		}
		sb.WriteString("\n")
	}

	keys := make([]string, 0, len(md))
	for k := range md {
		if k == "execution_trace" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw, err := json.Marshal(md[k])
		value := string(raw)
		if err != nil {
			value = fmt.Sprintf("%v", md[k])
		}
		fmt.Fprintf(&sb, "%s %s\n", InfoStyle.Render(k+":"), Truncate(value, max(10, width-len(k)-2)))
	}
	return sb.String()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return MutedStyle.Render("-")
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orNone(s string) string {
	if s == "" {
		return MutedStyle.Render("(none)")
	}
	return s
}
