// Package view derives read-only presentations from task snapshots. Nothing
// here is stored; every call recomputes from the tasks it is given.
package view

import (
	"github.com/bkonkle/taskdeck/internal/task"
)

// Column groups the tasks of one status.
type Column struct {
	Status task.Status
	Tasks  []task.Task
}

// Title returns the column heading.
func (c Column) Title() string {
	return c.Status.Label()
}

// Columns partitions tasks into exactly five columns in board order. Every
// task lands in exactly one column; tasks with a status outside the known
// set go to QUEUED. The input order is kept within each column.
func Columns(tasks []task.Task) []Column {
	cols := make([]Column, len(task.Statuses))
	index := make(map[task.Status]int, len(task.Statuses))
	for i, s := range task.Statuses {
		cols[i] = Column{Status: s}
		index[s] = i
	}

	for _, t := range tasks {
		i, ok := index[t.Status]
		if !ok {
			i = index[task.StatusQueued]
		}
		cols[i].Tasks = append(cols[i].Tasks, t)
	}
	return cols
}

// Counts returns the number of tasks per column status.
func Counts(cols []Column) map[task.Status]int {
	counts := make(map[task.Status]int, len(cols))
	for _, c := range cols {
		counts[c.Status] = len(c.Tasks)
	}
	return counts
}

// Total returns the number of tasks across all columns.
func Total(cols []Column) int {
	n := 0
	for _, c := range cols {
		n += len(c.Tasks)
	}
	return n
}
