package task

import "time"

// Event kinds as they appear in the stream's "type" field.
const (
	EventStatusChanged         = "task_status_changed"
	EventProgress              = "task_progress"
	EventConsultationStarted   = "consultation_started"
	EventConsultationCompleted = "consultation_completed"
	EventCompleted             = "task_completed"
	EventMetadataUpdated       = "task_metadata_updated"
	EventDeleted               = "task_deleted"
)

// Event is an incremental task-state change received from the stream.
//
// The set of implementations is closed: each variant below defines sealed
// itself, so embedding Header elsewhere does not produce an Event. The
// Reducer switches over all of them.
type Event interface {
	// Kind returns the wire type of the event.
	Kind() string
	// Subject returns the id of the task the event refers to.
	Subject() string
	// At returns the server timestamp of the event.
	At() time.Time

	sealed()
}

// Header carries the fields every event has.
type Header struct {
	TaskID    string    `json:"task_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Subject returns the task id.
func (h Header) Subject() string { return h.TaskID }

// At returns the event timestamp.
func (h Header) At() time.Time { return h.Timestamp }

// StatusChanged reports a status transition. A nil OldStatus for an unknown
// task announces a brand-new task without its payload.
type StatusChanged struct {
	Header
	OldStatus *Status `json:"old_status"`
	NewStatus Status  `json:"new_status"`
}

// Progress reports execution progress.
type Progress struct {
	Header
	Percentage  int     `json:"progress_percentage"`
	CurrentNode *string `json:"current_node"`
}

// ConsultationStarted opens a consultation: the task's worker delegates a
// sub-step to another worker.
type ConsultationStarted struct {
	Header
	TargetAgentID       string `json:"target_agent_id"`
	TargetAgentNickname string `json:"target_agent_nickname"`
}

// ConsultationCompleted marks the delegated sub-step as returned. It changes
// no task field; the status is resolved by the next StatusChanged.
type ConsultationCompleted struct {
	Header
}

// Completed reports the final outcome of a task.
type Completed struct {
	Header
	Status       Status   `json:"status"`
	Result       *string  `json:"result,omitempty"`
	ErrorMessage *string  `json:"error_message,omitempty"`
	Metadata     Metadata `json:"metadata,omitempty"`
}

// MetadataUpdated carries a metadata fragment to merge.
type MetadataUpdated struct {
	Header
	Metadata Metadata `json:"metadata"`
}

// Deleted removes the task.
type Deleted struct {
	Header
}

// Unknown holds an event whose type this client does not understand.
type Unknown struct {
	Header
	Type string
	Raw  []byte
}

// Kind implementations.

func (StatusChanged) Kind() string         { return EventStatusChanged }
func (Progress) Kind() string              { return EventProgress }
func (ConsultationStarted) Kind() string   { return EventConsultationStarted }
func (ConsultationCompleted) Kind() string { return EventConsultationCompleted }
func (Completed) Kind() string             { return EventCompleted }
func (MetadataUpdated) Kind() string       { return EventMetadataUpdated }
func (Deleted) Kind() string               { return EventDeleted }
func (u Unknown) Kind() string             { return u.Type }

func (StatusChanged) sealed()         {}
func (Progress) sealed()              {}
func (ConsultationStarted) sealed()   {}
func (ConsultationCompleted) sealed() {}
func (Completed) sealed()             {}
func (MetadataUpdated) sealed()       {}
func (Deleted) sealed()               {}
func (Unknown) sealed()               {}
