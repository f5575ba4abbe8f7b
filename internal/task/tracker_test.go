package task

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func change(id string, from, to Status, at time.Time) StatusChange {
	return StatusChange{TaskID: id, From: from, To: to, Timestamp: at, Worker: "bob"}
}

func TestStatusTracker_RecordChange(t *testing.T) {
	tracker := NewStatusTracker()

	if err := tracker.RecordChange(change("T1", StatusQueued, StatusInProgress, t0)); err != nil {
		t.Fatalf("RecordChange() error: %v", err)
	}

	history := tracker.GetHistory("T1")
	if len(history) != 1 {
		t.Fatalf("History length = %d, want 1", len(history))
	}
	if history[0].From != StatusQueued || history[0].To != StatusInProgress {
		t.Errorf("Change = %v → %v, want queued → in_progress", history[0].From, history[0].To)
	}
	if history[0].Worker != "bob" {
		t.Errorf("Worker = %s, want bob", history[0].Worker)
	}
}

func TestStatusTracker_UnexpectedTransitionIsRecorded(t *testing.T) {
	tracker := NewStatusTracker()

	err := tracker.RecordChange(change("T1", StatusCompleted, StatusInProgress, t0))

	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("RecordChange() error = %v, want *TransitionError", err)
	}
	if te.From != StatusCompleted || te.To != StatusInProgress {
		t.Errorf("TransitionError = %+v", te)
	}
	if len(tracker.GetHistory("T1")) != 1 {
		t.Error("unexpected transition should still be recorded")
	}
}

func TestStatusTracker_StampsZeroTimestamp(t *testing.T) {
	tracker := NewStatusTracker()
	tracker.now = func() time.Time { return t0 }

	_ = tracker.RecordChange(StatusChange{TaskID: "T1", To: StatusQueued})

	history := tracker.GetHistory("T1")
	if len(history) != 1 || !history[0].Timestamp.Equal(t0) {
		t.Errorf("history = %+v, want one change stamped %v", history, t0)
	}
}

func TestStatusTracker_HistoryIsCopy(t *testing.T) {
	tracker := NewStatusTracker()
	_ = tracker.RecordChange(change("T1", "", StatusQueued, t0))

	h := tracker.GetHistory("T1")
	h[0].To = StatusFailed

	if got := tracker.GetHistory("T1")[0].To; got != StatusQueued {
		t.Errorf("stored change mutated through copy: To = %s", got)
	}
	if tracker.GetHistory("missing") != nil {
		t.Error("GetHistory() for unknown task should be nil")
	}
}

func TestExpected(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{"", StatusQueued, true},
		{StatusQueued, StatusInProgress, true},
		{StatusQueued, StatusCompleted, true},
		{StatusQueued, Status("archived"), false},
		{StatusInProgress, StatusToolCall, true},
		{StatusToolCall, StatusInProgress, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusQueued, false},
		{StatusToolCall, StatusQueued, false},
		{StatusCompleted, StatusCompleted, true},
		{StatusCompleted, StatusInProgress, false},
		{StatusFailed, StatusQueued, false},
		{Status("archived"), StatusQueued, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			if got := Expected(tt.from, tt.to); got != tt.want {
				t.Errorf("Expected(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStatusTracker_TimeInStatus(t *testing.T) {
	tracker := NewStatusTracker()

	_ = tracker.RecordChange(change("T1", "", StatusQueued, t0))
	_ = tracker.RecordChange(change("T1", StatusQueued, StatusInProgress, t0.Add(10*time.Second)))
	_ = tracker.RecordChange(change("T1", StatusInProgress, StatusToolCall, t0.Add(40*time.Second)))
	_ = tracker.RecordChange(change("T1", StatusToolCall, StatusInProgress, t0.Add(60*time.Second)))
	_ = tracker.RecordChange(change("T1", StatusInProgress, StatusCompleted, t0.Add(70*time.Second)))

	durations := tracker.TimeInStatus("T1")

	if durations[StatusQueued] != 10*time.Second {
		t.Errorf("queued = %v, want 10s", durations[StatusQueued])
	}
	if durations[StatusInProgress] != 40*time.Second {
		t.Errorf("in_progress = %v, want 40s", durations[StatusInProgress])
	}
	if durations[StatusToolCall] != 20*time.Second {
		t.Errorf("tool_call = %v, want 20s", durations[StatusToolCall])
	}
	if _, ok := durations[StatusCompleted]; ok {
		t.Error("terminal status should not accumulate time")
	}
}

func TestStatusTracker_TimeInStatusOpenEnded(t *testing.T) {
	tracker := NewStatusTracker()
	tracker.now = func() time.Time { return t0.Add(time.Minute) }

	_ = tracker.RecordChange(change("T1", "", StatusInProgress, t0.Add(15*time.Second)))

	if got := tracker.TimeInStatus("T1")[StatusInProgress]; got != 45*time.Second {
		t.Errorf("in_progress = %v, want 45s", got)
	}
}

func TestStatusTracker_ConcurrentAccess(t *testing.T) {
	tracker := NewStatusTracker()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)

		go func(id int) {
			defer wg.Done()
			taskID := fmt.Sprintf("T%d", id)
			_ = tracker.RecordChange(change(taskID, StatusQueued, StatusInProgress, time.Now()))
			_ = tracker.RecordChange(change(taskID, StatusInProgress, StatusCompleted, time.Now()))
		}(i)

		go func(id int) {
			defer wg.Done()
			taskID := fmt.Sprintf("T%d", id)
			tracker.GetHistory(taskID)
			tracker.TimeInStatus(taskID)
		}(i)
	}

	wg.Wait()

	if tracker.TaskCount() != 100 {
		t.Errorf("TaskCount() = %d, want 100", tracker.TaskCount())
	}
}

func TestStatusTracker_Forget(t *testing.T) {
	tracker := NewStatusTracker()

	_ = tracker.RecordChange(change("T1", StatusQueued, StatusInProgress, t0))
	_ = tracker.RecordChange(change("T2", StatusQueued, StatusInProgress, t0))
	_ = tracker.RecordChange(change("T1", StatusInProgress, StatusCompleted, t0))

	if tracker.TaskCount() != 2 {
		t.Errorf("TaskCount() = %d, want 2", tracker.TaskCount())
	}

	tracker.Forget("T1")
	if tracker.TaskCount() != 1 {
		t.Errorf("TaskCount() after Forget() = %d, want 1", tracker.TaskCount())
	}
	if tracker.GetHistory("T1") != nil {
		t.Error("history of forgotten task should be gone")
	}
}
