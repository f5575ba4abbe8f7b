package task

import (
	"reflect"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTombstoneCapacity bounds how many deleted ids the table remembers.
const DefaultTombstoneCapacity = 1024

// Table is the canonical in-memory mapping from task id to task record.
//
// A Table is owned by a single goroutine (the engine loop) and is not safe
// for concurrent use. Every mutation bumps a monotonic sequence number so
// late network results can tell whether a record changed after they were
// requested.
type Table struct {
	entries    map[string]*entry
	seq        uint64
	tombstones *lru.Cache[string, uint64]
}

type entry struct {
	task    Task
	seq     uint64
	consult *Consultation
}

// NewTable creates an empty table remembering up to tombstoneCapacity
// deleted ids. A capacity <= 0 uses DefaultTombstoneCapacity.
func NewTable(tombstoneCapacity int) *Table {
	if tombstoneCapacity <= 0 {
		tombstoneCapacity = DefaultTombstoneCapacity
	}
	tombstones, err := lru.New[string, uint64](tombstoneCapacity)
	if err != nil {
		// Only returned for a non-positive size, which is excluded above.
		panic(err)
	}
	return &Table{
		entries:    make(map[string]*entry),
		tombstones: tombstones,
	}
}

// Seq returns the sequence number of the latest mutation.
func (t *Table) Seq() uint64 {
	return t.seq
}

// Len returns the number of tasks.
func (t *Table) Len() int {
	return len(t.entries)
}

// Has reports whether the id is present.
func (t *Table) Has(id string) bool {
	_, ok := t.entries[id]
	return ok
}

// Get returns a copy of the task.
func (t *Table) Get(id string) (Task, bool) {
	e, ok := t.entries[id]
	if !ok {
		return Task{}, false
	}
	return e.task.Clone(), true
}

// Upsert inserts the task or fully overwrites the record with the same id.
// Writing identical content is a no-op and returns false.
func (t *Table) Upsert(task Task) bool {
	if e, ok := t.entries[task.ID]; ok {
		if reflect.DeepEqual(e.task, task) {
			return false
		}
		e.task = task.Clone()
		e.seq = t.next()
		return true
	}
	t.tombstones.Remove(task.ID)
	t.entries[task.ID] = &entry{task: task.Clone(), seq: t.next()}
	return true
}

// UpsertIfUnchangedSince writes the task only if its record was not mutated
// and its id was not deleted after asOf. Snapshot and point-fetch results use
// this so a stale response cannot regress state applied from the stream.
func (t *Table) UpsertIfUnchangedSince(task Task, asOf uint64) bool {
	if e, ok := t.entries[task.ID]; ok && e.seq > asOf {
		return false
	}
	if deletedAt, ok := t.tombstones.Peek(task.ID); ok && deletedAt > asOf {
		return false
	}
	return t.Upsert(task)
}

// Adopt inserts a task that is neither present nor recently deleted. It is
// used for records returned by command submission, which may race with the
// stream's own view of the same task.
func (t *Table) Adopt(task Task) bool {
	if t.Has(task.ID) || t.tombstones.Contains(task.ID) {
		return false
	}
	return t.Upsert(task)
}

// Update applies fn to the stored record. It returns false if the id is
// unknown. fn must not retain the pointer.
func (t *Table) Update(id string, fn func(*Task)) bool {
	e, ok := t.entries[id]
	if !ok {
		return false
	}
	before := e.task.Clone()
	fn(&e.task)
	if !reflect.DeepEqual(before, e.task) {
		e.seq = t.next()
	}
	return true
}

// Delete removes the task and remembers the deletion.
func (t *Table) Delete(id string) bool {
	if _, ok := t.entries[id]; !ok {
		return false
	}
	delete(t.entries, id)
	t.tombstones.Add(id, t.next())
	return true
}

// Purge removes every task whose status is in statuses and returns the
// number removed.
func (t *Table) Purge(statuses ...Status) int {
	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	removed := 0
	for id, e := range t.entries {
		if want[e.task.Status] {
			t.Delete(id)
			removed++
		}
	}
	return removed
}

// Prune removes tasks that are absent from keep and were not mutated after
// asOf. It returns the number removed.
func (t *Table) Prune(keep map[string]bool, asOf uint64) int {
	removed := 0
	for id, e := range t.entries {
		if keep[id] || e.seq > asOf {
			continue
		}
		t.Delete(id)
		removed++
	}
	return removed
}

// List returns copies of all tasks ordered by creation time, then id.
func (t *Table) List() []Task {
	tasks := make([]Task, 0, len(t.entries))
	for _, e := range t.entries {
		tasks = append(tasks, e.task.Clone())
	}
	SortByCreated(tasks)
	return tasks
}

// Consultation returns the consultation state of the task, if any.
func (t *Table) Consultation(id string) (Consultation, bool) {
	e, ok := t.entries[id]
	if !ok || e.consult == nil {
		return Consultation{}, false
	}
	return *e.consult, true
}

func (t *Table) setConsultation(id string, c *Consultation) {
	if e, ok := t.entries[id]; ok {
		e.consult = c
		e.seq = t.next()
	}
}

func (t *Table) next() uint64 {
	t.seq++
	return t.seq
}

// SortByCreated orders tasks by creation time, breaking ties by id.
func SortByCreated(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
