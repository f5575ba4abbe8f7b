package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/bkonkle/taskdeck/internal/api"
	"github.com/bkonkle/taskdeck/internal/command"
	"github.com/bkonkle/taskdeck/internal/config"
	"github.com/bkonkle/taskdeck/internal/engine"
	"github.com/bkonkle/taskdeck/internal/logging"
	"github.com/bkonkle/taskdeck/internal/roster"
	"github.com/bkonkle/taskdeck/internal/stream"
)

// appOptions selects which components a command needs.
type appOptions struct {
	// roster fetches the worker roster from the backend. Without it the
	// built-in roster is used.
	roster bool
	// engine owns a task table fed by the snapshot.
	engine bool
	// stream connects the event stream.
	stream bool
	// logFile is used when log.file is unset. Empty logs to stderr.
	logFile string
	// registry receives engine metrics when set.
	registry prometheus.Registerer
}

// app is the composition root shared by the commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer

	api            *api.Client
	roster         *roster.Roster
	rosterFallback bool
	log            *stream.Log
	stream         *stream.Client
	engine         *engine.Engine
	submitter      *command.Submitter
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = opts.logFile
	}
	logger, closer, err := logging.Open(logFile, cfg.Log.Level, os.Stderr)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		closer: closer,
		api:    api.NewClient(cfg.API.BaseURL, api.WithTimeout(cfg.API.Timeout)),
	}

	if opts.roster {
		a.roster, a.rosterFallback, err = roster.Load(ctx, a.api, cfg.Router.Orchestrator, logging.Component(logger, "roster"))
	} else {
		a.roster, err = roster.Default(cfg.Router.Orchestrator)
	}
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load roster: %w", err)
	}

	if opts.stream || opts.engine {
		a.log = stream.NewLog()
	}

	if opts.stream {
		a.stream, err = stream.NewClient(stream.Config{
			URL:          cfg.StreamURL(),
			UserID:       cfg.UserID,
			ConnectDelay: cfg.Stream.ConnectDelay,
			Reconnect:    cfg.Stream.Reconnect,
			ReconnectMin: cfg.Stream.ReconnectMin,
			ReconnectMax: cfg.Stream.ReconnectMax,
		}, a.log, logging.Component(logger, "stream"))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create stream client: %w", err)
		}
	}

	if opts.engine {
		var metrics *engine.Metrics
		if opts.registry != nil {
			metrics = engine.MustNewMetrics(opts.registry)
		}
		a.engine = engine.New(engine.Options{
			UserID:            cfg.UserID,
			Backend:           a.api,
			Log:               a.log,
			TombstoneCapacity: cfg.Engine.TombstoneCapacity,
			Logger:            logging.Component(logger, "engine"),
			Metrics:           metrics,
		})
		if a.stream != nil {
			// Events missed while disconnected are recovered from a fresh snapshot.
			a.stream.OnReconnect(a.engine.Resync)
		}
	}

	var adopter command.Adopter
	if a.engine != nil {
		adopter = a.engine
	}
	a.submitter = command.NewSubmitter(a.api, a.roster, cfg.UserID, adopter, logging.Component(logger, "command"))

	return a, nil
}

// run starts the engine and the stream, calls fn, and tears both down when fn
// returns or ctx is cancelled. The event log is closed last.
func (a *app) run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if a.engine != nil {
		g.Go(func() error {
			return a.engine.Run(gctx)
		})
	}
	if a.stream != nil {
		g.Go(func() error {
			// A dead stream leaves the last known state on screen.
			if err := a.stream.Run(gctx); err != nil && gctx.Err() == nil {
				a.logger.Warn("event stream stopped", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})

	err := g.Wait()
	if a.log != nil {
		a.log.Close()
	}
	return err
}

// waitLoaded blocks until the engine finished its initial snapshot.
func (a *app) waitLoaded(ctx context.Context) (*engine.Snapshot, error) {
	for {
		snap := a.engine.Snapshot()
		if snap.Loaded {
			if snap.LoadError != "" {
				return nil, fmt.Errorf("load tasks: %s", snap.LoadError)
			}
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-a.engine.Changes():
		}
	}
}

func (a *app) close() {
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

// dashboardLogFile keeps log output off the terminal the dashboard draws on.
func dashboardLogFile() string {
	return filepath.Join(os.TempDir(), "taskdeck.log")
}
