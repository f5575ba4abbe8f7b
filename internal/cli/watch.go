package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/bkonkle/taskdeck/internal/tui"
)

var watchMetricsAddr string

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"dashboard", "ui"},
	Short:   "Open the live task board",
	Long: `Open an interactive terminal board of your tasks.

The board provides:
  - Five status columns kept current from the event stream
  - A conversation timeline, filterable per worker
  - A command input that routes @mentions to workers
  - Task details with status history and metadata

Navigation:
  Tab/Shift+Tab - Switch between panes
  h/l, j/k       - Move between columns and cards
  i              - Write a command
  ?              - Show help
  q              - Quit

Logs go to log.file, or to a file in the temp directory.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var reg *prometheus.Registry
	if watchMetricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
	}

	opts := appOptions{roster: true, engine: true, stream: true, logFile: dashboardLogFile()}
	if reg != nil {
		opts.registry = reg
	}
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	if a.rosterFallback {
		a.logger.Info("using built-in roster")
	}

	return a.run(ctx, func(ctx context.Context) error {
		if reg != nil {
			stop := serveMetrics(a, reg, watchMetricsAddr)
			defer stop()
		}

		model := tui.NewModel(ctx, a.engine, a.submitter, a.stream)
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("run dashboard: %w", err)
		}
		return nil
	})
}

// serveMetrics exposes reg over HTTP until the returned func is called.
func serveMetrics(a *app, reg *prometheus.Registry, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
