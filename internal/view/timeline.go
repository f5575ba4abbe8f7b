package view

import (
	"sort"
	"strings"
	"time"

	"github.com/bkonkle/taskdeck/internal/task"
)

// ItemKind identifies what a timeline item represents.
type ItemKind string

const (
	// KindUserCommand is the command that created the task
	KindUserCommand ItemKind = "user_command"
	// KindSystemEvent reports that a worker is busy with the task
	KindSystemEvent ItemKind = "system_event"
	// KindAgentResponse is the outcome of a finished task
	KindAgentResponse ItemKind = "agent_response"
)

// Item is one entry of the conversation timeline.
type Item struct {
	Kind          ItemKind
	TaskID        string
	AgentNickname string
	Text          string
	Status        task.Status
	Timestamp     time.Time
}

// Timeline synthesizes up to three items per task and merges them into one
// feed sorted by timestamp. A non-empty nickname restricts the feed to that
// worker's tasks (case-insensitive).
func Timeline(tasks []task.Task, nickname string) []Item {
	var items []Item
	for _, t := range tasks {
		if nickname != "" && !strings.EqualFold(t.AgentNickname, nickname) {
			continue
		}
		items = append(items, itemsFor(t)...)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
	return items
}

func itemsFor(t task.Task) []Item {
	items := []Item{{
		Kind:          KindUserCommand,
		TaskID:        t.ID,
		AgentNickname: t.AgentNickname,
		Text:          t.CommandText,
		Status:        t.Status,
		Timestamp:     t.CreatedAt,
	}}

	switch {
	case t.Status.IsActive():
		step := task.Deref(t.CurrentNode)
		if step == "" {
			step = "processing"
		}
		items = append(items, Item{
			Kind:          KindSystemEvent,
			TaskID:        t.ID,
			AgentNickname: t.AgentNickname,
			Text:          t.AgentNickname + " is " + step + "...",
			Status:        t.Status,
			Timestamp:     firstTime(t.StartedAt, nil, t.CreatedAt),
		})

	case t.Status.IsTerminal():
		text := task.Deref(t.Result)
		if t.Status == task.StatusFailed {
			text = task.Deref(t.ErrorMessage)
		}
		items = append(items, Item{
			Kind:          KindAgentResponse,
			TaskID:        t.ID,
			AgentNickname: t.AgentNickname,
			Text:          text,
			Status:        t.Status,
			Timestamp:     firstTime(t.CompletedAt, t.StartedAt, t.CreatedAt),
		})
	}
	return items
}

func firstTime(a, b *time.Time, fallback time.Time) time.Time {
	if a != nil {
		return *a
	}
	if b != nil {
		return *b
	}
	return fallback
}

// Nicknames returns the distinct worker nicknames in tasks, in order of
// first appearance.
func Nicknames(tasks []task.Task) []string {
	seen := make(map[string]bool)
	var names []string
	for _, t := range tasks {
		key := strings.ToLower(t.AgentNickname)
		if t.AgentNickname == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, t.AgentNickname)
	}
	return names
}
