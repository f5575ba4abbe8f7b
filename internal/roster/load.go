package roster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bkonkle/taskdeck/internal/roster/builtin"
	"gopkg.in/yaml.v3"
)

// Fetcher retrieves the roster from the backend.
type Fetcher interface {
	ListAgents(ctx context.Context) ([]Worker, error)
}

type file struct {
	Workers []Worker `yaml:"workers"`
}

// Builtin returns the embedded default workers.
func Builtin() ([]Worker, error) {
	var f file
	if err := yaml.Unmarshal([]byte(builtin.RosterYAML), &f); err != nil {
		return nil, fmt.Errorf("failed to parse built-in roster: %w", err)
	}
	return f.Workers, nil
}

// Default builds a roster from the embedded workers.
func Default(orchestrator string) (*Roster, error) {
	workers, err := Builtin()
	if err != nil {
		return nil, err
	}
	return New(workers, orchestrator)
}

// Load fetches the roster and falls back to the embedded default when the
// fetch fails, returns no workers, or returns an invalid roster. The
// returned bool is true when the fallback was used.
func Load(ctx context.Context, fetcher Fetcher, orchestrator string, logger *slog.Logger) (*Roster, bool, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if fetcher != nil {
		workers, err := fetcher.ListAgents(ctx)
		switch {
		case err != nil:
			logger.Warn("roster fetch failed, using built-in roster", "error", err)
		case len(workers) == 0:
			logger.Warn("backend returned an empty roster, using built-in roster")
		default:
			r, err := New(workers, orchestrator)
			if err == nil {
				return r, false, nil
			}
			logger.Warn("backend roster is invalid, using built-in roster", "error", err)
		}
	}

	r, err := Default(orchestrator)
	if err != nil {
		return nil, true, err
	}
	return r, true, nil
}
