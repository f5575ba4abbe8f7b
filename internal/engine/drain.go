package engine

import (
	"github.com/bkonkle/taskdeck/internal/stream"
	"github.com/bkonkle/taskdeck/internal/task"
)

// DrainResult summarizes one drain pass.
type DrainResult struct {
	// Applied is the number of events taken from the log.
	Applied int
	// Changed is true if any event mutated the table.
	Changed bool
	// Effects collects the follow-up work requested by the reducer.
	Effects []task.Effect
}

// Drainer applies log events to a table exactly once each, in log order.
//
// Applying only the newest event when several arrive together would lose the
// others, so every drain walks from the cursor to the current end of the log.
type Drainer struct {
	reducer *task.Reducer
	cursor  int
	observe func(task.Event, task.Outcome)
}

// NewDrainer creates a drainer starting at the beginning of the log.
// observe, if non-nil, is called for every applied event.
func NewDrainer(reducer *task.Reducer, observe func(task.Event, task.Outcome)) *Drainer {
	return &Drainer{reducer: reducer, observe: observe}
}

// Cursor returns the number of events applied so far.
func (d *Drainer) Cursor() int {
	return d.cursor
}

// Drain applies every event after the cursor and advances it.
func (d *Drainer) Drain(table *task.Table, log *stream.Log) DrainResult {
	var res DrainResult
	for _, ev := range log.Since(d.cursor) {
		out := d.reducer.Apply(table, ev)
		d.cursor++
		res.Applied++
		res.Changed = res.Changed || out.Changed
		res.Effects = append(res.Effects, out.Effects...)
		if d.observe != nil {
			d.observe(ev, out)
		}
	}
	return res
}
