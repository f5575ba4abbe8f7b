// Package roster provides the list of workers commands can be routed to.
//
// The roster is fetched once from the backend. If the fetch fails or returns
// nothing, the embedded default roster is used so routing always has a
// target.
package roster

import (
	"fmt"
	"strings"
)

// Worker is a named executor that accepts tasks.
type Worker struct {
	// ID is the backend identifier sent as agent_id when a command is routed
	ID string `json:"id" yaml:"id"`

	// Nickname is unique case-insensitively and is what users @mention
	Nickname string `json:"nickname" yaml:"nickname"`

	// Specialization is a short label such as "research" or "code"
	Specialization string `json:"specialization" yaml:"specialization"`

	// Description explains what the worker is good at
	Description string `json:"description" yaml:"description"`

	// Orchestrator marks the worker that decomposes ambiguous commands
	Orchestrator bool `json:"orchestrator,omitempty" yaml:"orchestrator,omitempty"`
}

// Validate checks that the worker can be routed to.
func (w *Worker) Validate() error {
	if w.ID == "" {
		return &ValidationError{Field: "id", Message: "is required"}
	}
	if strings.TrimSpace(w.Nickname) == "" {
		return &ValidationError{Field: "nickname", Message: "is required"}
	}
	if strings.ContainsAny(w.Nickname, " \t@") {
		return &ValidationError{Field: "nickname", Message: fmt.Sprintf("%q must not contain spaces or '@'", w.Nickname)}
	}
	return nil
}

// ValidationError represents a worker validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "worker." + e.Field + ": " + e.Message
}

// Roster is an immutable, ordered set of workers.
type Roster struct {
	workers      []Worker
	byNickname   map[string]int
	orchestrator int
}

// New builds a roster. orchestrator names the default worker by nickname;
// when empty or unknown, the first worker flagged Orchestrator is used, and
// failing that the first worker.
func New(workers []Worker, orchestrator string) (*Roster, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("roster has no workers")
	}

	r := &Roster{
		workers:      make([]Worker, 0, len(workers)),
		byNickname:   make(map[string]int, len(workers)),
		orchestrator: -1,
	}
	for i := range workers {
		w := workers[i]
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("worker %d: %w", i, err)
		}
		key := normalize(w.Nickname)
		if _, dup := r.byNickname[key]; dup {
			return nil, fmt.Errorf("duplicate worker nickname %q", w.Nickname)
		}
		r.byNickname[key] = len(r.workers)
		r.workers = append(r.workers, w)
	}

	if idx, ok := r.byNickname[normalize(orchestrator)]; ok && orchestrator != "" {
		r.orchestrator = idx
	}
	if r.orchestrator < 0 {
		for i, w := range r.workers {
			if w.Orchestrator {
				r.orchestrator = i
				break
			}
		}
	}
	if r.orchestrator < 0 {
		r.orchestrator = 0
	}
	return r, nil
}

// Workers returns the workers in roster order.
func (r *Roster) Workers() []Worker {
	out := make([]Worker, len(r.workers))
	copy(out, r.workers)
	return out
}

// Len returns the number of workers.
func (r *Roster) Len() int {
	return len(r.workers)
}

// Lookup finds a worker by nickname, ignoring case and a leading '@'.
func (r *Roster) Lookup(nickname string) (Worker, bool) {
	idx, ok := r.byNickname[normalize(nickname)]
	if !ok {
		return Worker{}, false
	}
	return r.workers[idx], true
}

// Orchestrator returns the default worker.
func (r *Roster) Orchestrator() Worker {
	return r.workers[r.orchestrator]
}

// Nicknames returns every nickname in roster order.
func (r *Roster) Nicknames() []string {
	names := make([]string, len(r.workers))
	for i, w := range r.workers {
		names[i] = w.Nickname
	}
	return names
}

func normalize(nickname string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(nickname), "@"))
}
