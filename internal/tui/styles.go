// Package tui provides the BubbleTea-based terminal dashboard for taskdeck.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bkonkle/taskdeck/internal/task"
	"github.com/bkonkle/taskdeck/internal/view"
)

// Colors used throughout the TUI.
var (
	ColorPrimary   = lipgloss.Color("12")  // Blue
	ColorSecondary = lipgloss.Color("245") // Gray
	ColorSuccess   = lipgloss.Color("42")  // Green
	ColorWarning   = lipgloss.Color("226") // Yellow
	ColorError     = lipgloss.Color("196") // Red
	ColorInfo      = lipgloss.Color("14")  // Cyan
	ColorMuted     = lipgloss.Color("240") // Dark gray
	ColorOrange    = lipgloss.Color("208") // Orange
	ColorWhite     = lipgloss.Color("255")
)

// Base styles.
var (
	// HeaderStyle is used for pane headers.
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// SelectedStyle highlights the currently selected item.
	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorWhite).
			Background(lipgloss.Color("57"))

	// MutedStyle is for secondary/muted text.
	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	// HelpStyle is for help text at the bottom.
	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// TitleStyle is for the main title bar.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	// StatusBarStyle is for the status bar.
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Background(lipgloss.Color("236"))
)

// TaskStatusIcon returns a styled icon for task status.
func TaskStatusIcon(status task.Status) string {
	style := lipgloss.NewStyle().Foreground(TaskStatusColor(status))
	switch status {
	case task.StatusQueued:
		return style.Render("○")
	case task.StatusInProgress:
		return style.Render("◐")
	case task.StatusToolCall:
		return style.Render("⇄")
	case task.StatusCompleted:
		return style.Render("✓")
	case task.StatusFailed:
		return style.Render("✗")
	default:
		return "?"
	}
}

// TaskStatusColor returns the color for a task status.
func TaskStatusColor(status task.Status) lipgloss.Color {
	switch status {
	case task.StatusQueued:
		return ColorSecondary
	case task.StatusInProgress:
		return ColorWarning
	case task.StatusToolCall:
		return ColorOrange
	case task.StatusCompleted:
		return ColorSuccess
	case task.StatusFailed:
		return ColorError
	default:
		return ColorWhite
	}
}

// ItemKindColor returns the color for a timeline entry.
func ItemKindColor(kind view.ItemKind) lipgloss.Color {
	switch kind {
	case view.KindUserCommand:
		return ColorPrimary
	case view.KindSystemEvent:
		return ColorSecondary
	case view.KindAgentResponse:
		return ColorSuccess
	default:
		return ColorWhite
	}
}

// ConnectionIndicator renders the stream connection state.
func ConnectionIndicator(connected bool) string {
	if connected {
		return SuccessStyle.Render("● live")
	}
	return ErrorStyle.Render("○ offline")
}

// PaneBorder returns a border style for panes.
func PaneBorder(focused bool) lipgloss.Style {
	borderColor := ColorMuted
	if focused {
		borderColor = ColorPrimary
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor)
}

// Truncate shortens s to at most maxLen runes, adding "..." if needed.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
