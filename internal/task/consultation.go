package task

import "time"

// ConsultationPhase is the state of the consultation sub-protocol.
//
// The backend announces a consultation in two events and resolves it in a
// third:
//
//	consultation_started    -> PENDING   (status := tool_call, target set)
//	consultation_completed  -> PENDING   (Returned marked, no task change)
//	task_status_changed     -> RESOLVED  (status := new, target cleared)
//
// consultation_completed must not change the status on its own; the worker
// decides what happens next and reports it with the status change.
type ConsultationPhase string

const (
	// ConsultationPending - Delegated sub-step in flight or awaiting status
	ConsultationPending ConsultationPhase = "pending"
	// ConsultationResolved - A status change closed the consultation
	ConsultationResolved ConsultationPhase = "resolved"
)

// Consultation records one worker-to-worker delegation within a task.
type Consultation struct {
	TargetAgentID       string
	TargetAgentNickname string
	Phase               ConsultationPhase
	StartedAt           time.Time
	// ReturnedAt is set by consultation_completed.
	ReturnedAt *time.Time
	// ResolvedAt is set by the status change that closes the consultation.
	ResolvedAt *time.Time
	// ResolvedStatus is the status that closed the consultation.
	ResolvedStatus Status
}

// Returned reports whether the delegate has handed the sub-step back.
func (c Consultation) Returned() bool {
	return c.ReturnedAt != nil
}

// Open reports whether the consultation still awaits its resolving status.
func (c Consultation) Open() bool {
	return c.Phase == ConsultationPending
}

func startConsultation(ev ConsultationStarted) *Consultation {
	return &Consultation{
		TargetAgentID:       ev.TargetAgentID,
		TargetAgentNickname: ev.TargetAgentNickname,
		Phase:               ConsultationPending,
		StartedAt:           ev.Timestamp,
	}
}

func (c Consultation) markReturned(at time.Time) *Consultation {
	c.ReturnedAt = TimePtr(at)
	return &c
}

func (c Consultation) resolve(at time.Time, status Status) *Consultation {
	c.Phase = ConsultationResolved
	c.ResolvedAt = TimePtr(at)
	c.ResolvedStatus = status
	return &c
}
