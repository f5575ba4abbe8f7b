package view

import (
	"testing"
	"time"

	"github.com/bkonkle/taskdeck/internal/task"
	"github.com/stretchr/testify/require"
)

func TestTimeline_ItemsPerStatus(t *testing.T) {
	queued := mk("T1", "bob", task.StatusQueued, 0)

	running := mk("T2", "sue", task.StatusToolCall, time.Second)
	running.StartedAt = task.TimePtr(base.Add(5 * time.Second))
	running.CurrentNode = task.StringPtr("searching")

	done := mk("T3", "bob", task.StatusCompleted, 2*time.Second)
	done.StartedAt = task.TimePtr(base.Add(3 * time.Second))
	done.CompletedAt = task.TimePtr(base.Add(10 * time.Second))
	done.Result = task.StringPtr("42")

	failed := mk("T4", "rex", task.StatusFailed, 3*time.Second)
	failed.ErrorMessage = task.StringPtr("boom")
	failed.Result = task.StringPtr("ignored")

	items := Timeline([]task.Task{done, failed, running, queued}, "")

	type row struct {
		kind ItemKind
		id   string
		text string
	}
	var got []row
	for _, it := range items {
		got = append(got, row{it.Kind, it.TaskID, it.Text})
	}
	require.Equal(t, []row{
		{KindUserCommand, "T1", "cmd T1"},
		{KindUserCommand, "T2", "cmd T2"},
		{KindUserCommand, "T3", "cmd T3"},
		{KindUserCommand, "T4", "cmd T4"},
		{KindAgentResponse, "T4", "boom"},
		{KindSystemEvent, "T2", "sue is searching..."},
		{KindAgentResponse, "T3", "42"},
	}, got)
}

func TestTimeline_SortedAscending(t *testing.T) {
	var tasks []task.Task
	for i, off := range []time.Duration{9, 3, 7, 1} {
		tk := mk(string(rune('A'+i)), "bob", task.StatusInProgress, off*time.Second)
		tasks = append(tasks, tk)
	}

	items := Timeline(tasks, "")
	for i := 1; i < len(items); i++ {
		require.False(t, items[i].Timestamp.Before(items[i-1].Timestamp), "item %d out of order", i)
	}
	require.Len(t, items, 8)
	require.Equal(t, "bob is processing...", items[1].Text)
}

func TestTimeline_NicknameFilter(t *testing.T) {
	tasks := []task.Task{
		mk("T1", "bob", task.StatusQueued, 0),
		mk("T2", "Sue", task.StatusQueued, time.Second),
	}

	items := Timeline(tasks, "SUE")
	require.Len(t, items, 1)
	require.Equal(t, "T2", items[0].TaskID)

	require.Empty(t, Timeline(tasks, "nobody"))
}

func TestNicknames(t *testing.T) {
	tasks := []task.Task{
		mk("T1", "bob", task.StatusQueued, 0),
		mk("T2", "Sue", task.StatusQueued, 0),
		mk("T3", "BOB", task.StatusQueued, 0),
		mk("T4", "", task.StatusQueued, 0),
	}
	require.Equal(t, []string{"bob", "Sue"}, Nicknames(tasks))
}
