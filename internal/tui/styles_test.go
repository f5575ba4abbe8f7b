package tui

import (
	"strings"
	"testing"

	"github.com/bkonkle/taskdeck/internal/task"
	"github.com/bkonkle/taskdeck/internal/view"
)

func TestTaskStatusIcon(t *testing.T) {
	tests := []struct {
		status task.Status
		icon   string
	}{
		{task.StatusQueued, "○"},
		{task.StatusInProgress, "◐"},
		{task.StatusToolCall, "⇄"},
		{task.StatusCompleted, "✓"},
		{task.StatusFailed, "✗"},
		{"archived", "?"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if icon := TaskStatusIcon(tt.status); !strings.Contains(icon, tt.icon) {
				t.Errorf("TaskStatusIcon(%s) = %q, want it to contain %q", tt.status, icon, tt.icon)
			}
		})
	}
}

func TestTaskStatusColor(t *testing.T) {
	if TaskStatusColor(task.StatusFailed) != ColorError {
		t.Error("expected failed tasks to use the error color")
	}
	if TaskStatusColor(task.StatusCompleted) != ColorSuccess {
		t.Error("expected completed tasks to use the success color")
	}
	if TaskStatusColor("unknown") != ColorWhite {
		t.Error("expected unknown status to fall back to white")
	}
}

func TestItemKindColor(t *testing.T) {
	kinds := []view.ItemKind{view.KindUserCommand, view.KindSystemEvent, view.KindAgentResponse}
	seen := map[string]bool{}
	for _, k := range kinds {
		seen[string(ItemKindColor(k))] = true
	}
	if len(seen) != len(kinds) {
		t.Errorf("expected distinct colors per item kind, got %v", seen)
	}
}

func TestConnectionIndicator(t *testing.T) {
	if !strings.Contains(ConnectionIndicator(true), "live") {
		t.Error("expected live indicator")
	}
	if !strings.Contains(ConnectionIndicator(false), "offline") {
		t.Error("expected offline indicator")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"héllo wörld", 8, "héllo..."},
	}

	for _, tt := range tests {
		if got := Truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
