// Package engine keeps the task table consistent with the backend.
//
// One goroutine, started by Run, owns the table. It applies stream events
// from the log, starts network work in the background, and applies the
// results when they are posted back. Readers never touch the table: they
// load the latest immutable Snapshot and wait on Changes.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/bkonkle/taskdeck/internal/stream"
	"github.com/bkonkle/taskdeck/internal/task"
)

// ErrStopped is returned by operations submitted after Run has returned.
var ErrStopped = errors.New("engine stopped")

// Backend is the subset of the REST API the engine needs.
type Backend interface {
	ListTasks(ctx context.Context, userID string) ([]task.Task, error)
	GetTask(ctx context.Context, id string) (task.Task, error)
	PurgeTasks(ctx context.Context, statuses ...task.Status) error
}

// Snapshot is an immutable view of the table published after every change.
type Snapshot struct {
	// Tasks in creation order.
	Tasks []task.Task
	// Consultations by task id, for tasks that ever consulted.
	Consultations map[string]task.Consultation
	// Seq is the table sequence number the snapshot was taken at.
	Seq uint64
	// Events is the number of stream events applied.
	Events int
	// Loaded is true once the initial snapshot request finished, whether or
	// not it succeeded.
	Loaded bool
	// LoadError is the initial snapshot failure, if any.
	LoadError string
}

// Task returns the task with the given id.
func (s *Snapshot) Task(id string) (task.Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return task.Task{}, false
}

// Options configures an Engine.
type Options struct {
	UserID  string
	Backend Backend
	Log     *stream.Log

	// TombstoneCapacity bounds how many deleted ids are remembered.
	TombstoneCapacity int

	// Tracker receives status history. A new tracker is created when nil.
	Tracker *task.StatusTracker
	Logger  *slog.Logger
	Metrics *Metrics
}

// Engine is the single owner of the task table.
type Engine struct {
	userID  string
	backend Backend
	log     *stream.Log
	logger  *slog.Logger
	metrics *Metrics
	tracker *task.StatusTracker

	// Owned by the Run goroutine.
	table   *task.Table
	drainer *Drainer
	pending map[string]bool
	loaded  bool
	loadErr string
	group   *errgroup.Group
	runCtx  context.Context

	ops     chan func()
	done    chan struct{}
	started atomic.Bool
	stop    sync.Once

	snap    atomic.Pointer[Snapshot]
	changes chan struct{}
}

// New creates an engine. Call Run to start it.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = task.NewStatusTracker()
	}
	log := opts.Log
	if log == nil {
		log = stream.NewLog()
	}

	e := &Engine{
		userID:  opts.UserID,
		backend: opts.Backend,
		log:     log,
		logger:  logger,
		metrics: opts.Metrics,
		tracker: tracker,
		table:   task.NewTable(opts.TombstoneCapacity),
		pending: make(map[string]bool),
		ops:     make(chan func(), 64),
		done:    make(chan struct{}),
		changes: make(chan struct{}, 1),
	}
	reducer := task.NewReducer(logger, tracker)
	e.drainer = NewDrainer(reducer, func(ev task.Event, out task.Outcome) {
		e.metrics.ObserveEvent(ev.Kind(), out.Ignored)
	})
	e.snap.Store(&Snapshot{Consultations: map[string]task.Consultation{}})
	return e
}

// Snapshot returns the latest published state. It is safe to call from any
// goroutine and the result must not be modified.
func (e *Engine) Snapshot() *Snapshot {
	return e.snap.Load()
}

// Changes returns a channel that receives a value after a new snapshot is
// published. Signals are coalesced.
func (e *Engine) Changes() <-chan struct{} {
	return e.changes
}

// Tracker returns the status history tracker.
func (e *Engine) Tracker() *task.StatusTracker {
	return e.tracker
}

// Log returns the event log the engine drains.
func (e *Engine) Log() *stream.Log {
	return e.log
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Run loads the initial snapshot, then applies stream events and background
// results until ctx is cancelled. Results that arrive after Run returns are
// dropped. Run may be called only once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine: Run called twice")
	}

	g, gctx := errgroup.WithContext(ctx)
	e.group = g
	e.runCtx = gctx
	defer func() {
		e.stop.Do(func() { close(e.done) })
		// Background work observes gctx; wait so nothing outlives Run.
		_ = g.Wait()
	}()

	e.startSnapshot(false)
	e.drain()
	e.publish()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.log.Notify():
			e.drain()
		case op := <-e.ops:
			op()
		}
		e.publish()
	}
}

// Resync requests a fresh snapshot that also prunes tasks the backend no
// longer reports. It does not wait for the result.
func (e *Engine) Resync() {
	e.post(func() { e.startSnapshot(true) })
}

// Adopt inserts a task the client created itself unless the stream already
// delivered it or it was deleted meanwhile. It reports whether the task was
// inserted.
func (e *Engine) Adopt(ctx context.Context, t task.Task) (bool, error) {
	if err := task.ValidateRecord(t); err != nil {
		return false, err
	}
	var adopted bool
	err := e.call(ctx, func() {
		adopted = e.table.Adopt(t)
	})
	return adopted, err
}

// Purge deletes all tasks in the given statuses on the backend, then removes
// them locally. It returns the number of tasks removed locally.
func (e *Engine) Purge(ctx context.Context, statuses ...task.Status) (int, error) {
	if len(statuses) == 0 {
		statuses = []task.Status{task.StatusCompleted, task.StatusFailed}
	}
	if err := e.backend.PurgeTasks(ctx, statuses...); err != nil {
		return 0, err
	}
	var removed int
	err := e.call(ctx, func() {
		before := e.table.List()
		removed = e.table.Purge(statuses...)
		for _, t := range before {
			if !e.table.Has(t.ID) {
				e.tracker.Forget(t.ID)
			}
		}
	})
	return removed, err
}

// call runs fn on the engine goroutine and waits for it.
func (e *Engine) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case e.ops <- op:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-e.done:
		// The loop may have exited with op still queued.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn for the engine goroutine. It returns false if the engine
// has stopped, in which case fn never runs.
func (e *Engine) post(fn func()) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.ops <- fn:
		return true
	case <-e.done:
		return false
	}
}

func (e *Engine) drain() {
	res := e.drainer.Drain(e.table, e.log)
	for _, eff := range res.Effects {
		switch eff := eff.(type) {
		case task.FetchTask:
			e.startFetch(eff.TaskID)
		}
	}
}

// startFetch materializes a task announced without its payload. At most
// one fetch per id is in flight.
func (e *Engine) startFetch(id string) {
	if e.pending[id] || e.table.Has(id) {
		return
	}
	e.pending[id] = true
	asOf := e.table.Seq()
	ctx := e.runCtx

	e.group.Go(func() error {
		t, err := e.backend.GetTask(ctx, id)
		e.post(func() { e.applyFetch(id, t, err, asOf) })
		return nil
	})
}

func (e *Engine) applyFetch(id string, t task.Task, err error, asOf uint64) {
	delete(e.pending, id)
	if err != nil {
		e.metrics.IncPointFetch("error")
		e.logger.Warn("point fetch failed", "task_id", id, "error", err)
		return
	}
	if err := task.ValidateRecord(t); err != nil {
		e.metrics.IncPointFetch("invalid")
		e.logger.Warn("point fetch returned an invalid record", "task_id", id, "error", err)
		return
	}
	if !e.table.UpsertIfUnchangedSince(t, asOf) {
		e.metrics.IncPointFetch("stale")
		e.logger.Debug("dropping stale point fetch", "task_id", id)
		return
	}
	e.metrics.IncPointFetch("ok")
}

// publish stores a new snapshot if anything changed since the last one.
func (e *Engine) publish() {
	prev := e.snap.Load()
	if prev.Seq == e.table.Seq() && prev.Events == e.drainer.Cursor() && prev.Loaded == e.loaded {
		return
	}

	tasks := e.table.List()
	consults := make(map[string]task.Consultation)
	for _, t := range tasks {
		if c, ok := e.table.Consultation(t.ID); ok {
			consults[t.ID] = c
		}
	}
	e.snap.Store(&Snapshot{
		Tasks:         tasks,
		Consultations: consults,
		Seq:           e.table.Seq(),
		Events:        e.drainer.Cursor(),
		Loaded:        e.loaded,
		LoadError:     e.loadErr,
	})
	e.metrics.SetTasks(len(tasks))

	select {
	case e.changes <- struct{}{}:
	default:
	}
}
