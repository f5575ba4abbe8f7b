package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Tab is a titled page whose content is rendered on demand.
type Tab struct {
	Title   string
	Content func(width int) string
}

// TabsModel manages a tabbed interface.
type TabsModel struct {
	tabs      []Tab
	activeTab int
	width     int
}

// NewTabsModel creates a new tabs model.
func NewTabsModel(tabs []Tab, width int) *TabsModel {
	return &TabsModel{tabs: tabs, width: width}
}

// SetWidth updates the render width.
func (m *TabsModel) SetWidth(width int) {
	m.width = width
}

// HandleKey processes key input for tab navigation.
// Returns true if the key was handled.
func (m *TabsModel) HandleKey(msg tea.KeyMsg) bool {
	switch s := msg.String(); s {
	case "left", "h":
		m.PrevTab()
		return true
	case "right", "l", "tab":
		m.NextTab()
		return true
	default:
		// Digits jump straight to a tab.
		if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
			idx := int(s[0] - '1')
			if idx < len(m.tabs) {
				m.activeTab = idx
				return true
			}
		}
	}
	return false
}

// NextTab moves to the next tab, wrapping around.
func (m *TabsModel) NextTab() {
	if len(m.tabs) == 0 {
		return
	}
	m.activeTab = (m.activeTab + 1) % len(m.tabs)
}

// PrevTab moves to the previous tab, wrapping around.
func (m *TabsModel) PrevTab() {
	if len(m.tabs) == 0 {
		return
	}
	m.activeTab = (m.activeTab + len(m.tabs) - 1) % len(m.tabs)
}

// Active returns the index of the current tab.
func (m *TabsModel) Active() int {
	return m.activeTab
}

// Title returns the title of a tab by index.
func (m *TabsModel) Title(index int) string {
	if index >= 0 && index < len(m.tabs) {
		return m.tabs[index].Title
	}
	return ""
}

// Len returns the number of tabs.
func (m *TabsModel) Len() int {
	return len(m.tabs)
}

func (m *TabsModel) renderTabBar() string {
	rendered := make([]string, 0, len(m.tabs)*2)
	separator := lipgloss.NewStyle().Foreground(ColorMuted).Render("│")

	for i, tab := range m.tabs {
		style := lipgloss.NewStyle().Foreground(ColorSecondary).Padding(0, 2)
		if i == m.activeTab {
			style = lipgloss.NewStyle().
				Foreground(lipgloss.Color("15")).
				Background(ColorPrimary).
				Bold(true).
				Padding(0, 2)
		}
		if i > 0 {
			rendered = append(rendered, separator)
		}
		rendered = append(rendered, style.Render(tab.Title))
	}

	bar := lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
	border := lipgloss.NewStyle().Foreground(ColorMuted).Render(strings.Repeat("─", max(0, m.width)))
	return lipgloss.JoinVertical(lipgloss.Left, bar, border)
}

// View renders the tab bar and the active tab.
func (m *TabsModel) View() string {
	if len(m.tabs) == 0 {
		return "No tabs available"
	}
	content := m.tabs[m.activeTab].Content(m.width)
	return lipgloss.JoinVertical(lipgloss.Left, m.renderTabBar(), content)
}
