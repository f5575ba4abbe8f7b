package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bkonkle/taskdeck/internal/stream"
	"github.com/bkonkle/taskdeck/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu       sync.Mutex
	tasks    []task.Task
	listErr  error
	byID     map[string]task.Task
	purged   [][]task.Status
	getCalls atomic.Int32

	// When non-nil, calls block until the channel is closed.
	listGate chan struct{}
	getGate  chan struct{}
}

func (f *fakeBackend) ListTasks(ctx context.Context, userID string) ([]task.Task, error) {
	if f.listGate != nil {
		select {
		case <-f.listGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]task.Task(nil), f.tasks...), nil
}

func (f *fakeBackend) GetTask(ctx context.Context, id string) (task.Task, error) {
	f.getCalls.Add(1)
	if f.getGate != nil {
		select {
		case <-f.getGate:
		case <-ctx.Done():
			return task.Task{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return task.Task{}, errors.New("not found")
	}
	return t, nil
}

func (f *fakeBackend) PurgeTasks(_ context.Context, statuses ...task.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, statuses)
	return nil
}

func (f *fakeBackend) setTasks(tasks ...task.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = tasks
}

func startEngine(t *testing.T, opts Options) (*Engine, context.CancelFunc) {
	t.Helper()
	if opts.Log == nil {
		opts.Log = stream.NewLog()
	}
	e := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errc)
	})
	return e, cancel
}

func waitFor(t *testing.T, e *Engine, cond func(*Snapshot) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(e.Snapshot()) }, 2*time.Second, 5*time.Millisecond)
}

func ids(s *Snapshot) []string {
	out := make([]string, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestEngine_LoadsSnapshot(t *testing.T) {
	backend := &fakeBackend{tasks: []task.Task{
		record("T1", task.StatusQueued),
		record("T2", task.StatusCompleted),
		{ID: "", Status: task.StatusQueued}, // invalid, skipped
	}}
	e, _ := startEngine(t, Options{UserID: "u1", Backend: backend})

	waitFor(t, e, func(s *Snapshot) bool { return s.Loaded })
	s := e.Snapshot()
	require.Equal(t, []string{"T1", "T2"}, ids(s))
	require.Empty(t, s.LoadError)
}

func TestEngine_SnapshotFailureLeavesTableEmpty(t *testing.T) {
	backend := &fakeBackend{listErr: errors.New("connection refused")}
	e, _ := startEngine(t, Options{UserID: "u1", Backend: backend})

	waitFor(t, e, func(s *Snapshot) bool { return s.Loaded })
	require.Empty(t, e.Snapshot().Tasks)
	require.Contains(t, e.Snapshot().LoadError, "connection refused")
}

func TestEngine_DeletionRemovesTask(t *testing.T) {
	backend := &fakeBackend{tasks: []task.Task{record("T1", task.StatusQueued), record("T2", task.StatusQueued)}}
	log := stream.NewLog()
	e, _ := startEngine(t, Options{UserID: "u1", Backend: backend, Log: log})
	waitFor(t, e, func(s *Snapshot) bool { return len(s.Tasks) == 2 })

	log.Append(task.Deleted{Header: hdr("T1", 5)})
	waitFor(t, e, func(s *Snapshot) bool { return len(s.Tasks) == 1 })
	require.Equal(t, []string{"T2"}, ids(e.Snapshot()))
}

func TestEngine_NewTaskFetchedExactlyOnce(t *testing.T) {
	backend := &fakeBackend{
		byID:    map[string]task.Task{"T9": record("T9", task.StatusQueued)},
		getGate: make(chan struct{}),
	}
	log := stream.NewLog()
	e, _ := startEngine(t, Options{UserID: "u1", Backend: backend, Log: log})
	waitFor(t, e, func(s *Snapshot) bool { return s.Loaded })

	log.Append(task.StatusChanged{Header: hdr("T9", 1), NewStatus: task.StatusQueued})
	log.Append(task.StatusChanged{Header: hdr("T9", 1), NewStatus: task.StatusQueued})
	waitFor(t, e, func(s *Snapshot) bool { return s.Events == 2 })
	close(backend.getGate)

	waitFor(t, e, func(s *Snapshot) bool { return len(s.Tasks) == 1 })
	require.Equal(t, "T9", e.Snapshot().Tasks[0].ID)
	require.Equal(t, int32(1), backend.getCalls.Load())

	// Once known, events apply normally.
	log.Append(task.Progress{Header: hdr("T9", 2), Percentage: 40})
	waitFor(t, e, func(s *Snapshot) bool { return s.Tasks[0].ProgressPercentage == 40 })
}

func TestEngine_StaleSnapshotDoesNotRegressStreamState(t *testing.T) {
	backend := &fakeBackend{
		tasks:    []task.Task{record("T1", task.StatusQueued)},
		byID:     map[string]task.Task{"T1": record("T1", task.StatusQueued)},
		listGate: make(chan struct{}),
	}
	log := stream.NewLog()
	e, _ := startEngine(t, Options{UserID: "u1", Backend: backend, Log: log})

	// The stream announces T1 and moves it forward while the snapshot is
	// still in flight.
	log.Append(task.StatusChanged{Header: hdr("T1", 1), NewStatus: task.StatusQueued})
	waitFor(t, e, func(s *Snapshot) bool { return len(s.Tasks) == 1 })
	queued := task.StatusQueued
	log.Append(task.StatusChanged{Header: hdr("T1", 2), OldStatus: &queued, NewStatus: task.StatusInProgress})
	waitFor(t, e, func(s *Snapshot) bool { return s.Tasks[0].Status == task.StatusInProgress })

	close(backend.listGate)
	waitFor(t, e, func(s *Snapshot) bool { return s.Loaded })
	require.Equal(t, task.StatusInProgress, e.Snapshot().Tasks[0].Status)
}

func TestEngine_StaleSnapshotDoesNotResurrectDeletedTask(t *testing.T) {
	backend := &fakeBackend{
		tasks:    []task.Task{record("T1", task.StatusQueued)},
		byID:     map[string]task.Task{"T1": record("T1", task.StatusQueued)},
		listGate: make(chan struct{}),
	}
	log := stream.NewLog()
	e, _ := startEngine(t, Options{UserID: "u1", Backend: backend, Log: log})

	log.Append(task.StatusChanged{Header: hdr("T1", 1), NewStatus: task.StatusQueued})
	waitFor(t, e, func(s *Snapshot) bool { return len(s.Tasks) == 1 })
	log.Append(task.Deleted{Header: hdr("T1", 2)})
	waitFor(t, e, func(s *Snapshot) bool { return len(s.Tasks) == 0 })

	close(backend.listGate)
	waitFor(t, e, func(s *Snapshot) bool { return s.Loaded })
	require.Empty(t, e.Snapshot().Tasks)
}

func TestEngine_ResyncPrunes(t *testing.T) {
	backend := &fakeBackend{tasks: []task.Task{record("T1", task.StatusQueued), record("T2", task.StatusQueued)}}
	e, _ := startEngine(t, Options{UserID: "u1", Backend: backend})
	waitFor(t, e, func(s *Snapshot) bool { return len(s.Tasks) == 2 })

	backend.setTasks(record("T2", task.StatusInProgress))
	e.Resync()

	waitFor(t, e, func(s *Snapshot) bool {
		return len(s.Tasks) == 1 && s.Tasks[0].Status == task.StatusInProgress
	})
	require.Equal(t, []string{"T2"}, ids(e.Snapshot()))
}

func TestEngine_Adopt(t *testing.T) {
	backend := &fakeBackend{}
	log := stream.NewLog()
	e, _ := startEngine(t, Options{UserID: "u1", Backend: backend, Log: log})
	waitFor(t, e, func(s *Snapshot) bool { return s.Loaded })
	ctx := context.Background()

	adopted, err := e.Adopt(ctx, record("T5", task.StatusQueued))
	require.NoError(t, err)
	require.True(t, adopted)

	adopted, err = e.Adopt(ctx, record("T5", task.StatusQueued))
	require.NoError(t, err)
	require.False(t, adopted, "known ids are not overwritten")

	log.Append(task.Deleted{Header: hdr("T5", 1)})
	waitFor(t, e, func(s *Snapshot) bool { return len(s.Tasks) == 0 })
	adopted, err = e.Adopt(ctx, record("T5", task.StatusQueued))
	require.NoError(t, err)
	require.False(t, adopted, "deleted ids are not resurrected")

	_, err = e.Adopt(ctx, task.Task{ID: "bad"})
	require.Error(t, err)
}

func TestEngine_Purge(t *testing.T) {
	backend := &fakeBackend{tasks: []task.Task{
		record("T1", task.StatusQueued),
		record("T2", task.StatusCompleted),
		record("T3", task.StatusFailed),
	}}
	e, _ := startEngine(t, Options{UserID: "u1", Backend: backend})
	waitFor(t, e, func(s *Snapshot) bool { return len(s.Tasks) == 3 })

	removed, err := e.Purge(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, removed)
	require.Equal(t, [][]task.Status{{task.StatusCompleted, task.StatusFailed}}, backend.purged)
	waitFor(t, e, func(s *Snapshot) bool { return len(s.Tasks) == 1 })
}

func TestEngine_LateResultsDroppedAfterStop(t *testing.T) {
	backend := &fakeBackend{listGate: make(chan struct{})}
	e := New(Options{UserID: "u1", Backend: backend})
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	close(backend.listGate)

	require.False(t, e.Snapshot().Loaded)
	_, err := e.Adopt(context.Background(), record("T1", task.StatusQueued))
	require.ErrorIs(t, err, ErrStopped)
}

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := MustNewMetrics(reg)
	backend := &fakeBackend{tasks: []task.Task{record("T1", task.StatusQueued)}}
	log := stream.NewLog()
	e, _ := startEngine(t, Options{UserID: "u1", Backend: backend, Log: log, Metrics: metrics})
	waitFor(t, e, func(s *Snapshot) bool { return len(s.Tasks) == 1 })

	log.Append(task.Progress{Header: hdr("T1", 1), Percentage: 10})
	log.Append(task.Progress{Header: hdr("nope", 1), Percentage: 10})
	waitFor(t, e, func(s *Snapshot) bool { return s.Events == 2 })

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.snapshots.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.eventsApplied.WithLabelValues(task.EventProgress)))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.eventsIgnored.WithLabelValues(task.IgnoredUnknownTask)))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.tasks))

	// Registering twice reuses the collectors.
	require.NotPanics(t, func() { MustNewMetrics(reg) })
}
