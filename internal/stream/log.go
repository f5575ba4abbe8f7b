package stream

import (
	"sync"

	"github.com/bkonkle/taskdeck/internal/task"
)

// Log is the append-only, ordered record of every event received this
// session. It never shrinks. Readers keep their own cursor and ask for the
// events after it.
type Log struct {
	mu     sync.RWMutex
	events []task.Event
	closed bool
	notify chan struct{}
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{notify: make(chan struct{}, 1)}
}

// Append adds an event to the end of the log. It returns false once the log
// is closed.
func (l *Log) Append(ev task.Event) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.events = append(l.events, ev)
	l.mu.Unlock()

	// Coalesce: one pending signal is enough for any number of appends.
	select {
	case l.notify <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of events appended so far.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Since returns the events at positions n and later, in order.
func (l *Log) Since(n int) []task.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n >= len(l.events) {
		return nil
	}
	out := make([]task.Event, len(l.events)-n)
	copy(out, l.events[n:])
	return out
}

// Last returns the most recent event.
func (l *Log) Last() (task.Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.events) == 0 {
		return nil, false
	}
	return l.events[len(l.events)-1], true
}

// Notify returns a channel that receives a value after the log grows.
// Signals are coalesced, so a reader must drain everything after its cursor
// on each receive.
func (l *Log) Notify() <-chan struct{} {
	return l.notify
}

// Close stops further appends. Events already in the log stay readable.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

// Closed reports whether Close was called.
func (l *Log) Closed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}
