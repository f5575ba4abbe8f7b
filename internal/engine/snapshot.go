package engine

import (
	"github.com/bkonkle/taskdeck/internal/task"
)

// startSnapshot requests the full task list in the background. The table
// sequence at request time guards the result against stream changes made
// while the request was in flight.
func (e *Engine) startSnapshot(prune bool) {
	asOf := e.table.Seq()
	ctx := e.runCtx

	e.group.Go(func() error {
		tasks, err := e.backend.ListTasks(ctx, e.userID)
		e.post(func() { e.applySnapshot(tasks, err, asOf, prune) })
		return nil
	})
}

// applySnapshot upserts every valid record. With prune set, local tasks the
// backend did not return and that were untouched since asOf are removed.
// A failure leaves the table as it is and is not retried.
func (e *Engine) applySnapshot(tasks []task.Task, err error, asOf uint64, prune bool) {
	if !prune {
		e.loaded = true
	}
	if err != nil {
		e.metrics.IncSnapshot("error")
		e.logger.Warn("snapshot load failed", "error", err, "resync", prune)
		if !prune {
			e.loadErr = err.Error()
		}
		return
	}

	keep := make(map[string]bool, len(tasks))
	written, skipped := 0, 0
	for _, t := range tasks {
		if verr := task.ValidateRecord(t); verr != nil {
			skipped++
			e.logger.Warn("skipping invalid snapshot record", "task_id", t.ID, "error", verr)
			continue
		}
		keep[t.ID] = true
		if e.table.UpsertIfUnchangedSince(t, asOf) {
			written++
		}
	}

	pruned := 0
	if prune {
		pruned = e.table.Prune(keep, asOf)
	}

	e.metrics.IncSnapshot("ok")
	e.logger.Info("snapshot applied",
		"received", len(tasks),
		"written", written,
		"skipped", skipped,
		"pruned", pruned,
	)
}
