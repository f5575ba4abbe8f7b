// Package task provides the canonical task model for taskdeck.
//
// A task is one unit of delegated work performed by a named worker. Tasks
// arrive from a bulk snapshot and are mutated by stream events applied
// through the Reducer. The Table holds the canonical copy of every task.
package task

import (
	"strings"
	"time"
)

// Task represents a unit of work tracked through its status lifecycle.
type Task struct {
	ID            string `json:"id" validate:"required"`
	AgentID       string `json:"agent_id"`
	AgentNickname string `json:"agent_nickname"`
	ThreadID      string `json:"thread_id,omitempty"`
	CommandText   string `json:"command_text"`
	Status        Status `json:"status" validate:"required"`

	// ProgressPercentage is reported by the worker (0-100)
	ProgressPercentage int     `json:"progress_percentage" validate:"gte=0,lte=100"`
	CurrentNode        *string `json:"current_node,omitempty"`

	// Consultation fields are set only while the task delegates to another worker
	ConsultationTargetID       *string `json:"consultation_target_id,omitempty"`
	ConsultationTargetNickname *string `json:"consultation_target_nickname,omitempty"`

	Result       *string  `json:"result,omitempty"`
	ErrorMessage *string  `json:"error_message,omitempty"`
	Metadata     Metadata `json:"metadata,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Status values for the task lifecycle.
type Status string

const (
	// StatusQueued - Accepted, waiting for a worker
	StatusQueued Status = "queued"
	// StatusInProgress - Worker actively executing
	StatusInProgress Status = "in_progress"
	// StatusToolCall - Delegating a sub-step to another worker
	StatusToolCall Status = "tool_call"
	// StatusCompleted - Finished successfully (terminal state)
	StatusCompleted Status = "completed"
	// StatusFailed - Finished with an error (terminal state)
	StatusFailed Status = "failed"
)

// Statuses lists every status in board order.
var Statuses = []Status{
	StatusQueued,
	StatusInProgress,
	StatusToolCall,
	StatusCompleted,
	StatusFailed,
}

// ParseStatus normalizes a wire status. The backend is not consistent about
// case, so "IN_PROGRESS" and "in_progress" parse to the same value.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	return st, st.IsValid()
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Unknown values are kept verbatim so nothing is lost on the way in.
func (s *Status) UnmarshalText(text []byte) error {
	if st, ok := ParseStatus(string(text)); ok {
		*s = st
		return nil
	}
	*s = Status(strings.TrimSpace(string(text)))
	return nil
}

// IsValid checks if a Status value is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusToolCall, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive returns true while a worker is executing the task.
func (s Status) IsActive() bool {
	return s == StatusInProgress || s == StatusToolCall
}

// Label returns the upper-case label used for board columns.
func (s Status) Label() string {
	return strings.ToUpper(string(s))
}

// IsTerminal reports whether the task reached a terminal state.
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// Consulting reports whether the task currently delegates to another worker.
func (t *Task) Consulting() bool {
	return t.ConsultationTargetID != nil || t.ConsultationTargetNickname != nil
}

// Clone returns a deep copy safe to hand to readers outside the engine loop.
func (t Task) Clone() Task {
	clone := t
	clone.CurrentNode = copyString(t.CurrentNode)
	clone.ConsultationTargetID = copyString(t.ConsultationTargetID)
	clone.ConsultationTargetNickname = copyString(t.ConsultationTargetNickname)
	clone.Result = copyString(t.Result)
	clone.ErrorMessage = copyString(t.ErrorMessage)
	clone.Metadata = t.Metadata.Clone()
	clone.StartedAt = copyTime(t.StartedAt)
	clone.CompletedAt = copyTime(t.CompletedAt)
	return clone
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
