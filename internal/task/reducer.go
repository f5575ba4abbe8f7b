package task

import (
	"log/slog"
	"time"
)

// Effect is a side effect requested by the Reducer. The reducer never
// performs I/O itself; the caller executes effects.
type Effect interface {
	effect()
}

// FetchTask asks the caller to load the full record of a task announced by
// a payload-less status change and upsert it.
type FetchTask struct {
	TaskID string
}

func (FetchTask) effect() {}

// Outcome describes what applying one event did.
type Outcome struct {
	// Changed is true if the table was mutated.
	Changed bool
	// Ignored is a short reason when the event had no effect.
	Ignored string
	// Effects lists follow-up work for the caller.
	Effects []Effect
}

// Reasons an event is ignored.
const (
	IgnoredUnknownTask = "unknown_task"
	IgnoredTerminal    = "terminal"
	IgnoredUnknownKind = "unknown_kind"
	IgnoredNoop        = "noop"
)

// Reducer applies stream events to a Table. It is the only writer of status
// transitions.
type Reducer struct {
	logger  *slog.Logger
	tracker *StatusTracker
}

// NewReducer creates a reducer. tracker may be nil.
func NewReducer(logger *slog.Logger, tracker *StatusTracker) *Reducer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reducer{logger: logger, tracker: tracker}
}

// Apply applies one event to the table.
func (r *Reducer) Apply(table *Table, ev Event) Outcome {
	switch e := ev.(type) {
	case StatusChanged:
		return r.statusChanged(table, e)
	case Progress:
		return r.progress(table, e)
	case ConsultationStarted:
		return r.consultationStarted(table, e)
	case ConsultationCompleted:
		return r.consultationCompleted(table, e)
	case Completed:
		return r.completed(table, e)
	case MetadataUpdated:
		return r.metadataUpdated(table, e)
	case Deleted:
		return r.deleted(table, e)
	case Unknown:
		r.logger.Debug("ignoring unknown event kind", "kind", e.Type, "task_id", e.TaskID)
		return Outcome{Ignored: IgnoredUnknownKind}
	default:
		r.logger.Debug("ignoring unhandled event", "kind", ev.Kind(), "task_id", ev.Subject())
		return Outcome{Ignored: IgnoredUnknownKind}
	}
}

func (r *Reducer) statusChanged(table *Table, e StatusChanged) Outcome {
	current, ok := table.Get(e.TaskID)
	if !ok {
		if e.OldStatus == nil {
			// New task announced without payload; materialize by id.
			return Outcome{Effects: []Effect{FetchTask{TaskID: e.TaskID}}}
		}
		return r.ignoreUnknown(e)
	}
	if current.IsTerminal() {
		return r.ignoreTerminal(e, current.Status)
	}

	consult, hasConsult := table.Consultation(e.TaskID)
	resolving := hasConsult && consult.Open()

	table.Update(e.TaskID, func(t *Task) {
		t.Status = e.NewStatus
		stampLifecycle(t, e.Timestamp)
		if resolving && e.NewStatus != StatusToolCall {
			t.ConsultationTargetID = nil
			t.ConsultationTargetNickname = nil
		}
	})
	if resolving && e.NewStatus != StatusToolCall {
		table.setConsultation(e.TaskID, consult.resolve(e.Timestamp, e.NewStatus))
	}

	r.record(current, e.NewStatus, e.Timestamp, "")
	return Outcome{Changed: true}
}

func (r *Reducer) progress(table *Table, e Progress) Outcome {
	current, ok := table.Get(e.TaskID)
	if !ok {
		return r.ignoreUnknown(e)
	}
	if current.IsTerminal() {
		return r.ignoreTerminal(e, current.Status)
	}
	table.Update(e.TaskID, func(t *Task) {
		t.ProgressPercentage = clampPercentage(e.Percentage)
		t.CurrentNode = copyString(e.CurrentNode)
	})
	return Outcome{Changed: true}
}

func (r *Reducer) consultationStarted(table *Table, e ConsultationStarted) Outcome {
	current, ok := table.Get(e.TaskID)
	if !ok {
		return r.ignoreUnknown(e)
	}
	if current.IsTerminal() {
		return r.ignoreTerminal(e, current.Status)
	}
	table.Update(e.TaskID, func(t *Task) {
		t.Status = StatusToolCall
		stampLifecycle(t, e.Timestamp)
		t.ConsultationTargetID = StringPtr(e.TargetAgentID)
		t.ConsultationTargetNickname = StringPtr(e.TargetAgentNickname)
	})
	table.setConsultation(e.TaskID, startConsultation(e))

	r.record(current, StatusToolCall, e.Timestamp, "consulting "+e.TargetAgentNickname)
	return Outcome{Changed: true}
}

// consultationCompleted only marks the consultation as returned. The status
// is resolved by the task_status_changed the backend sends next.
func (r *Reducer) consultationCompleted(table *Table, e ConsultationCompleted) Outcome {
	if !table.Has(e.TaskID) {
		return r.ignoreUnknown(e)
	}
	consult, ok := table.Consultation(e.TaskID)
	if !ok || !consult.Open() {
		r.logger.Debug("consultation completed without a pending consultation", "task_id", e.TaskID)
		return Outcome{Ignored: IgnoredNoop}
	}
	table.setConsultation(e.TaskID, consult.markReturned(e.Timestamp))
	return Outcome{Changed: true}
}

func (r *Reducer) completed(table *Table, e Completed) Outcome {
	current, ok := table.Get(e.TaskID)
	if !ok {
		return r.ignoreUnknown(e)
	}
	if current.IsTerminal() {
		// Late metadata is still merged for audit purposes.
		if len(e.Metadata) == 0 {
			return r.ignoreTerminal(e, current.Status)
		}
		table.Update(e.TaskID, func(t *Task) {
			t.Metadata = t.Metadata.Merge(e.Metadata)
		})
		return Outcome{Changed: true}
	}

	table.Update(e.TaskID, func(t *Task) {
		t.Status = e.Status
		t.Result = copyString(e.Result)
		t.ErrorMessage = copyString(e.ErrorMessage)
		t.Metadata = t.Metadata.Merge(e.Metadata)
		stampLifecycle(t, e.Timestamp)
	})
	r.record(current, e.Status, e.Timestamp, Deref(e.ErrorMessage))
	return Outcome{Changed: true}
}

func (r *Reducer) metadataUpdated(table *Table, e MetadataUpdated) Outcome {
	if !table.Has(e.TaskID) {
		return r.ignoreUnknown(e)
	}
	table.Update(e.TaskID, func(t *Task) {
		t.Metadata = t.Metadata.Merge(e.Metadata)
	})
	return Outcome{Changed: true}
}

func (r *Reducer) deleted(table *Table, e Deleted) Outcome {
	if !table.Delete(e.TaskID) {
		return r.ignoreUnknown(e)
	}
	if r.tracker != nil {
		r.tracker.Forget(e.TaskID)
	}
	return Outcome{Changed: true}
}

func (r *Reducer) record(before Task, to Status, at time.Time, message string) {
	if r.tracker == nil || before.Status == to {
		return
	}
	err := r.tracker.RecordChange(StatusChange{
		TaskID:    before.ID,
		From:      before.Status,
		To:        to,
		Timestamp: at,
		Worker:    before.AgentNickname,
		Message:   message,
	})
	if err != nil {
		r.logger.Debug("applied unexpected transition", "task_id", before.ID, "error", err)
	}
}

func (r *Reducer) ignoreUnknown(ev Event) Outcome {
	r.logger.Debug("ignoring event for unknown task", "kind", ev.Kind(), "task_id", ev.Subject())
	return Outcome{Ignored: IgnoredUnknownTask}
}

func (r *Reducer) ignoreTerminal(ev Event, status Status) Outcome {
	r.logger.Debug("ignoring event for terminal task", "kind", ev.Kind(), "task_id", ev.Subject(), "status", status)
	return Outcome{Ignored: IgnoredTerminal}
}

// stampLifecycle fills started_at and completed_at from the event time when
// the backend did not send them with the record.
func stampLifecycle(t *Task, at time.Time) {
	if at.IsZero() {
		return
	}
	if t.Status.IsActive() && t.StartedAt == nil {
		t.StartedAt = TimePtr(at)
	}
	if t.Status.IsTerminal() && t.CompletedAt == nil {
		t.CompletedAt = TimePtr(at)
	}
}

func clampPercentage(p int) int {
	return max(0, min(100, p))
}
