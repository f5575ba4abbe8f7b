package task

import (
	"fmt"
	"sync"
	"time"
)

// StatusChange is one status transition observed on the stream.
type StatusChange struct {
	TaskID    string
	From      Status // empty for the first status seen
	To        Status
	Timestamp time.Time
	Worker    string
	Message   string
}

// TransitionError reports a transition outside the expected lifecycle. The
// change is recorded anyway.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("unexpected transition: %s → %s", e.From, e.To)
}

// StatusTracker keeps the status history of every task seen this session.
// The engine loop writes to it and the dashboard reads from it, so every
// method is safe for concurrent use. History is not persisted.
type StatusTracker struct {
	mu      sync.RWMutex
	history map[string][]StatusChange
	now     func() time.Time
}

// NewStatusTracker creates an empty tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		history: make(map[string][]StatusChange),
		now:     time.Now,
	}
}

// RecordChange appends c to its task's history. A zero timestamp is stamped
// with the current time. The returned error is a *TransitionError when the
// transition was unexpected.
func (st *StatusTracker) RecordChange(c StatusChange) error {
	st.mu.Lock()
	if c.Timestamp.IsZero() {
		c.Timestamp = st.now()
	}
	st.history[c.TaskID] = append(st.history[c.TaskID], c)
	st.mu.Unlock()

	if !Expected(c.From, c.To) {
		return &TransitionError{From: c.From, To: c.To}
	}
	return nil
}

// GetHistory returns a copy of the task's history, oldest first.
func (st *StatusTracker) GetHistory(taskID string) []StatusChange {
	st.mu.RLock()
	defer st.mu.RUnlock()

	h := st.history[taskID]
	if len(h) == 0 {
		return nil
	}
	out := make([]StatusChange, len(h))
	copy(out, h)
	return out
}

// TimeInStatus sums how long the task spent in each non-terminal status. The
// current status counts up to now unless it is terminal.
func (st *StatusTracker) TimeInStatus(taskID string) map[Status]time.Duration {
	st.mu.RLock()
	defer st.mu.RUnlock()

	h := st.history[taskID]
	out := make(map[Status]time.Duration)
	for i, c := range h {
		if c.To.IsTerminal() {
			break
		}
		end := st.now()
		if i+1 < len(h) {
			end = h[i+1].Timestamp
		}
		if end.After(c.Timestamp) {
			out[c.To] += end.Sub(c.Timestamp)
		}
	}
	return out
}

// Forget drops the history of a deleted task.
func (st *StatusTracker) Forget(taskID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.history, taskID)
}

// TaskCount returns the number of tasks with recorded history.
func (st *StatusTracker) TaskCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.history)
}

// Expected reports whether from → to follows the usual task lifecycle:
// queued may move anywhere, active statuses may not go back to queued, and
// terminal statuses have no successors. Repeats and a missing from are
// always expected.
func Expected(from, to Status) bool {
	if from == "" || from == to {
		return true
	}
	switch from {
	case StatusQueued:
		return to.IsValid()
	case StatusInProgress, StatusToolCall:
		return to.IsValid() && to != StatusQueued
	default:
		return false
	}
}
