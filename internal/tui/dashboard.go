package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bkonkle/taskdeck/internal/command"
	"github.com/bkonkle/taskdeck/internal/engine"
	"github.com/bkonkle/taskdeck/internal/task"
	"github.com/bkonkle/taskdeck/internal/view"
)

// errBoardStopped replaces engine.ErrStopped in the status line.
var errBoardStopped = errors.New("the board is no longer syncing; restart taskdeck watch")

// Pane represents the different panes in the dashboard.
type Pane int

const (
	// PaneBoard is the five status columns.
	PaneBoard Pane = iota
	// PaneTimeline is the conversation timeline.
	PaneTimeline
	// PaneInput is the command input.
	PaneInput
)

const paneCount = 3

// Source provides task state. *engine.Engine implements it.
type Source interface {
	Snapshot() *engine.Snapshot
	Changes() <-chan struct{}
	Tracker() *task.StatusTracker
	Resync()
	Purge(ctx context.Context, statuses ...task.Status) (int, error)
}

// Commander submits commands. *command.Submitter implements it.
type Commander interface {
	Submit(ctx context.Context, text string) (command.Result, error)
}

// Connection reports the event stream state. *stream.Client implements it.
type Connection interface {
	Connected() bool
}

// KeyMap defines the key bindings for the dashboard.
type KeyMap struct {
	Quit     key.Binding
	Help     key.Binding
	Tab      key.Binding
	ShiftTab key.Binding
	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	Enter    key.Binding
	Input    key.Binding
	Agent    key.Binding
	Purge    key.Binding
	Resync   key.Binding
	Top      key.Binding
	Bottom   key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next pane"),
		),
		ShiftTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "prev pane"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("k/↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("j/↓", "down"),
		),
		Left: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("h/←", "prev column"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("l/→", "next column"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "details"),
		),
		Input: key.NewBinding(
			key.WithKeys("i", "/"),
			key.WithHelp("i", "write command"),
		),
		Agent: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "filter worker"),
		),
		Purge: key.NewBinding(
			key.WithKeys("P"),
			key.WithHelp("P", "purge finished"),
		),
		Resync: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "resync"),
		),
		Top: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G"),
			key.WithHelp("G", "go to bottom"),
		),
	}
}

// Model is the main dashboard model.
type Model struct {
	// Data
	snap    *engine.Snapshot
	columns []view.Column
	items   []view.Item
	workers []string

	// UI State
	activePane      Pane
	column          int
	rows            []int
	timelineOffset  int
	timelineFollow  bool
	agentFilter     string
	showHelp        bool
	showTaskDetails bool
	modal           *TaskDetailsModal
	input           textinput.Model
	submitting      bool
	connected       bool
	statusMsg       string
	errorMsg        string

	// Dimensions
	width  int
	height int

	keys KeyMap

	// Providers (injected dependencies)
	ctx       context.Context
	source    Source
	commander Commander
	conn      Connection

	pollInterval time.Duration
}

// NewModel creates a new dashboard model. Any provider may be nil.
func NewModel(ctx context.Context, source Source, commander Commander, conn Connection) Model {
	input := textinput.New()
	input.Placeholder = "@worker what to do..."
	input.Prompt = "› "
	input.CharLimit = command.MaxCommandLength

	m := Model{
		activePane:     PaneBoard,
		rows:           make([]int, len(task.Statuses)),
		timelineFollow: true,
		input:          input,
		keys:           DefaultKeyMap(),
		ctx:            ctx,
		source:         source,
		commander:      commander,
		conn:           conn,
		pollInterval:   time.Second,
	}
	m.refresh()
	return m
}

// changedMsg is sent after the engine publishes a new snapshot.
type changedMsg struct{}

// tickMsg is sent on each poll interval.
type tickMsg time.Time

// submitResultMsg contains the result of a submitted command.
type submitResultMsg struct {
	result command.Result
	err    error
}

// purgeResultMsg contains the result of a purge.
type purgeResultMsg struct {
	removed int
	err     error
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForChange(), m.tick())
}

func (m Model) waitForChange() tea.Cmd {
	if m.source == nil {
		return nil
	}
	changes := m.source.Changes()
	return func() tea.Msg {
		<-changes
		return changedMsg{}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, m.width-8)
		if m.modal != nil {
			m.modal.SetSize(m.width, m.height)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case changedMsg:
		m.refresh()
		return m, m.waitForChange()

	case tickMsg:
		if m.conn != nil {
			m.connected = m.conn.Connected()
		}
		return m, m.tick()

	case submitResultMsg:
		m.submitting = false
		if msg.err != nil {
			m.errorMsg = fmt.Sprintf("Send failed: %v", msg.err)
			return m, nil
		}
		if msg.result.Accepted() {
			m.statusMsg = fmt.Sprintf("Accepted %s", msg.result.Decision.Describe())
		} else {
			m.statusMsg = fmt.Sprintf("Task %s %s", msg.result.Task.ID, msg.result.Decision.Describe())
		}
		m.refresh()
		return m, nil

	case purgeResultMsg:
		if msg.err != nil {
			m.errorMsg = fmt.Sprintf("Purge failed: %v", msg.err)
		} else {
			m.statusMsg = fmt.Sprintf("Purged %d finished tasks", msg.removed)
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	// Handle Esc to close modals/help
	if msg.Type == tea.KeyEsc {
		switch {
		case m.showTaskDetails:
			m.showTaskDetails = false
			m.modal = nil
			return m, nil
		case m.showHelp:
			m.showHelp = false
			return m, nil
		case m.activePane == PaneInput:
			m.input.Blur()
			m.activePane = PaneBoard
			return m, nil
		}
	}

	if m.showTaskDetails && m.modal != nil {
		return m, m.modal.Update(msg)
	}

	if m.activePane == PaneInput {
		return m.handleInputKey(msg)
	}

	// Clear any error/status messages on key press
	m.errorMsg = ""
	m.statusMsg = ""

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp

	case key.Matches(msg, m.keys.Tab):
		return m, m.focus((m.activePane + 1) % paneCount)

	case key.Matches(msg, m.keys.ShiftTab):
		return m, m.focus((m.activePane + paneCount - 1) % paneCount)

	case key.Matches(msg, m.keys.Input):
		return m, m.focus(PaneInput)

	case key.Matches(msg, m.keys.Up):
		m.navigateUp()

	case key.Matches(msg, m.keys.Down):
		m.navigateDown()

	case key.Matches(msg, m.keys.Left):
		if m.activePane == PaneBoard && m.column > 0 {
			m.column--
		}

	case key.Matches(msg, m.keys.Right):
		if m.activePane == PaneBoard && m.column < len(m.columns)-1 {
			m.column++
		}

	case key.Matches(msg, m.keys.Top):
		if m.activePane == PaneTimeline {
			m.timelineOffset = 0
			m.timelineFollow = false
		}

	case key.Matches(msg, m.keys.Bottom):
		if m.activePane == PaneTimeline {
			m.timelineFollow = true
			m.scrollTimelineToBottom()
		}

	case key.Matches(msg, m.keys.Agent):
		m.cycleAgentFilter()

	case key.Matches(msg, m.keys.Purge):
		return m, m.purge()

	case key.Matches(msg, m.keys.Resync):
		if m.source != nil {
			m.source.Resync()
			m.statusMsg = "Resync requested"
		}

	case key.Matches(msg, m.keys.Enter):
		if t, ok := m.SelectedTask(); ok {
			m.modal = NewTaskDetailsModal(m.details(t), m.width, m.height)
			m.showTaskDetails = true
		}
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab:
		return m, m.focus(PaneBoard)
	case tea.KeyShiftTab:
		return m, m.focus(PaneTimeline)
	case tea.KeyEnter:
		return m.submit()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) focus(p Pane) tea.Cmd {
	m.activePane = p
	if p == PaneInput {
		return m.input.Focus()
	}
	m.input.Blur()
	return nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		m.errorMsg = command.ErrEmptyCommand.Error()
		return m, nil
	}
	if m.commander == nil {
		m.errorMsg = "Sending is not available"
		return m, nil
	}

	m.input.SetValue("")
	m.submitting = true
	m.errorMsg = ""
	m.statusMsg = "Sending..."
	ctx, commander := m.ctx, m.commander
	return m, func() tea.Msg {
		res, err := commander.Submit(ctx, text)
		return submitResultMsg{result: res, err: err}
	}
}

func (m Model) purge() tea.Cmd {
	if m.source == nil {
		return nil
	}
	ctx, source := m.ctx, m.source
	return func() tea.Msg {
		n, err := source.Purge(ctx)
		if errors.Is(err, engine.ErrStopped) {
			err = errBoardStopped
		}
		return purgeResultMsg{removed: n, err: err}
	}
}

// refresh rebuilds derived views from the latest snapshot.
func (m *Model) refresh() {
	if m.source == nil {
		m.snap = &engine.Snapshot{}
	} else {
		m.snap = m.source.Snapshot()
	}
	m.columns = view.Columns(m.snap.Tasks)
	m.workers = view.Nicknames(m.snap.Tasks)
	m.items = view.Timeline(m.snap.Tasks, m.agentFilter)

	// Keep cursors in bounds
	for i, col := range m.columns {
		if m.rows[i] >= len(col.Tasks) {
			m.rows[i] = max(0, len(col.Tasks)-1)
		}
	}
	if m.timelineFollow {
		m.scrollTimelineToBottom()
	} else if m.timelineOffset > len(m.items)-1 {
		m.timelineOffset = max(0, len(m.items)-1)
	}

	if m.modal != nil {
		if t, ok := m.snap.Task(m.modal.TaskID()); ok {
			m.modal.Refresh(m.details(t))
		}
	}
}

func (m *Model) details(t task.Task) TaskDetails {
	d := TaskDetails{Task: t}
	if c, ok := m.snap.Consultations[t.ID]; ok {
		d.Consultation = &c
	}
	if m.source != nil {
		tracker := m.source.Tracker()
		d.History = tracker.GetHistory(t.ID)
		d.Durations = tracker.TimeInStatus(t.ID)
	}
	return d
}

func (m *Model) cycleAgentFilter() {
	options := append([]string{""}, m.workers...)
	next := ""
	for i, w := range options {
		if strings.EqualFold(w, m.agentFilter) {
			next = options[(i+1)%len(options)]
			break
		}
	}
	m.agentFilter = next
	m.timelineFollow = true
	m.refresh()
}

func (m *Model) navigateUp() {
	switch m.activePane {
	case PaneBoard:
		if m.rows[m.column] > 0 {
			m.rows[m.column]--
		}
	case PaneTimeline:
		if m.timelineOffset > 0 {
			m.timelineOffset--
			m.timelineFollow = false
		}
	}
}

func (m *Model) navigateDown() {
	switch m.activePane {
	case PaneBoard:
		if m.column < len(m.columns) && m.rows[m.column] < len(m.columns[m.column].Tasks)-1 {
			m.rows[m.column]++
		}
	case PaneTimeline:
		if m.timelineOffset < len(m.items)-m.timelineHeight() {
			m.timelineOffset++
			m.timelineFollow = false
		}
	}
}

func (m *Model) scrollTimelineToBottom() {
	m.timelineOffset = max(0, len(m.items)-m.timelineHeight())
}

func (m *Model) timelineHeight() int {
	return max(1, m.bottomHeight()-4)
}

func (m *Model) boardHeight() int {
	return max(6, (m.height-6)*3/5)
}

func (m *Model) bottomHeight() int {
	return max(4, m.height-6-m.boardHeight())
}

// SelectedTask returns the task under the board cursor.
func (m Model) SelectedTask() (task.Task, bool) {
	if m.column >= len(m.columns) {
		return task.Task{}, false
	}
	col := m.columns[m.column]
	if row := m.rows[m.column]; row < len(col.Tasks) {
		return col.Tasks[row], true
	}
	return task.Task{}, false
}

// View renders the dashboard.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	if m.showTaskDetails && m.modal != nil {
		return lipgloss.Place(m.width, m.height,
			lipgloss.Center, lipgloss.Center,
			m.modal.View(),
			lipgloss.WithWhitespaceChars(" "),
			lipgloss.WithWhitespaceForeground(lipgloss.Color("0")))
	}

	return m.renderMainView()
}

func (m Model) renderMainView() string {
	var sb strings.Builder

	title := fmt.Sprintf("taskdeck  %s  %d tasks", ConnectionIndicator(m.connected), view.Total(m.columns))
	sb.WriteString(TitleStyle.Width(m.width).Render(title))
	sb.WriteString("\n")

	sb.WriteString(m.renderBoard(m.boardHeight()))
	sb.WriteString("\n")

	timeline := PaneBorder(m.activePane == PaneTimeline).
		Width(m.width - 2).
		Height(m.bottomHeight()).
		Render(m.renderTimeline(m.width-4, m.bottomHeight()))
	sb.WriteString(timeline)
	sb.WriteString("\n")

	input := PaneBorder(m.activePane == PaneInput).
		Width(m.width - 2).
		Render(m.input.View())
	sb.WriteString(input)
	sb.WriteString("\n")

	sb.WriteString(m.renderStatusBar())
	return sb.String()
}

func (m Model) renderBoard(height int) string {
	if len(m.columns) == 0 {
		return ""
	}
	colWidth := max(12, m.width/len(m.columns))
	boxes := make([]string, 0, len(m.columns))
	for i, col := range m.columns {
		focused := m.activePane == PaneBoard && i == m.column
		content := m.renderColumn(i, col, colWidth-4, height-2)
		boxes = append(boxes, PaneBorder(focused).
			Width(colWidth-2).
			Height(height).
			Render(content))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func (m Model) renderColumn(idx int, col view.Column, width, height int) string {
	var sb strings.Builder

	header := lipgloss.NewStyle().Bold(true).Foreground(TaskStatusColor(col.Status)).
		Render(fmt.Sprintf("%s (%d)", col.Title(), len(col.Tasks)))
	sb.WriteString(header)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", max(0, width)))
	sb.WriteString("\n")

	if len(col.Tasks) == 0 {
		sb.WriteString(MutedStyle.Render("empty"))
		return sb.String()
	}

	// Each card uses two lines.
	visible := max(1, (height-2)/2)
	start := 0
	if row := m.rows[idx]; row >= visible {
		start = row - visible + 1
	}
	for i := start; i < len(col.Tasks) && i < start+visible; i++ {
		t := col.Tasks[i]
		selected := m.activePane == PaneBoard && idx == m.column && i == m.rows[idx]

		line := fmt.Sprintf("%s %s", TaskStatusIcon(t.Status), Truncate(t.CommandText, width-2))
		if selected {
			line = SelectedStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
		sb.WriteString(MutedStyle.Render(Truncate(cardDetail(t), width)))
		sb.WriteString("\n")
	}
	if remaining := len(col.Tasks) - start - visible; remaining > 0 {
		sb.WriteString(MutedStyle.Render(fmt.Sprintf("... and %d more", remaining)))
	}
	return sb.String()
}

func cardDetail(t task.Task) string {
	parts := []string{"@" + t.AgentNickname}
	if t.Status.IsActive() {
		parts = append(parts, fmt.Sprintf("%d%%", t.ProgressPercentage))
	}
	if t.ConsultationTargetNickname != nil {
		parts = append(parts, "⇄ @"+*t.ConsultationTargetNickname)
	}
	if t.ErrorMessage != nil {
		parts = append(parts, *t.ErrorMessage)
	}
	return strings.Join(parts, " ")
}

func (m Model) renderTimeline(width, height int) string {
	var sb strings.Builder

	filter := "all workers"
	if m.agentFilter != "" {
		filter = "@" + m.agentFilter
	}
	headerParts := []string{fmt.Sprintf("Timeline: %s", filter)}
	if m.timelineFollow {
		headerParts = append(headerParts, SuccessStyle.Render("[follow]"))
	}
	sb.WriteString(HeaderStyle.Render(strings.Join(headerParts, " ")))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", max(0, width)))
	sb.WriteString("\n")

	if len(m.items) == 0 {
		if m.snap != nil && m.snap.LoadError != "" {
			sb.WriteString(ErrorStyle.Render("Snapshot failed: " + m.snap.LoadError))
		} else {
			sb.WriteString(MutedStyle.Render("No activity yet. Press i to send a command."))
		}
		return sb.String()
	}

	end := min(m.timelineOffset+max(1, height-3), len(m.items))
	for i := m.timelineOffset; i < end; i++ {
		it := m.items[i]
		ts := MutedStyle.Render(it.Timestamp.Local().Format("[15:04:05]"))
		who := "you"
		if it.Kind != view.KindUserCommand {
			who = "@" + it.AgentNickname
		}
		text := lipgloss.NewStyle().Foreground(ItemKindColor(it.Kind)).
			Render(Truncate(fmt.Sprintf("%s: %s", who, oneLine(it.Text)), width-12))
		fmt.Fprintf(&sb, "%s %s\n", ts, text)
	}
	return sb.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (m Model) renderStatusBar() string {
	left := ""
	switch {
	case m.errorMsg != "":
		left = ErrorStyle.Render(m.errorMsg)
	case m.statusMsg != "":
		left = InfoStyle.Render(m.statusMsg)
	case m.snap != nil && !m.snap.Loaded:
		left = MutedStyle.Render("Loading tasks...")
	}

	right := HelpStyle.Render("[?] help  [i] command  [tab] switch pane  [q] quit")
	padding := max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right))

	return StatusBarStyle.Width(m.width).Render(
		left + strings.Repeat(" ", padding) + right,
	)
}

func (m Model) renderHelp() string {
	var sb strings.Builder

	sb.WriteString(TitleStyle.Width(m.width).Render("taskdeck - Help"))
	sb.WriteString("\n\n")

	sections := []struct {
		title string
		keys  []string
	}{
		{
			title: "Navigation",
			keys: []string{
				"Tab / Shift+Tab  Switch pane",
				"h/l or ←/→       Switch column",
				"j/k or ↓/↑       Move in list",
				"Enter            Task details",
			},
		},
		{
			title: "Commands",
			keys: []string{
				"i or /           Write a command (@worker to address one)",
				"Enter            Send (in command input)",
				"Esc              Leave command input",
			},
		},
		{
			title: "Timeline",
			keys: []string{
				"a                Cycle worker filter",
				"g / G            Top / follow",
			},
		},
		{
			title: "General",
			keys: []string{
				"P                Purge completed and failed tasks",
				"R                Resync with the backend",
				"?                Toggle help",
				"q / Ctrl+C       Quit",
			},
		},
	}

	for _, section := range sections {
		sb.WriteString(HeaderStyle.Render(section.title))
		sb.WriteString("\n")
		for _, k := range section.keys {
			sb.WriteString("  " + k + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString(HelpStyle.Render("Press ? to close help"))
	return sb.String()
}
