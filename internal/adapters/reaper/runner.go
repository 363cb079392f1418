// Package reaper provides the adapter for running the render job reaper.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/scadforge/scadforge/config"
	"github.com/scadforge/scadforge/internal/core"
	"github.com/scadforge/scadforge/internal/data"
	"github.com/scadforge/scadforge/internal/observability/statsd"
	"github.com/scadforge/scadforge/internal/service"
)

// Runner constructs the reaper service from its data-layer dependencies
// and runs the maintenance loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB        *sql.DB
	Workspace core.WorkspaceStore
	Config    config.ReaperConfig
	Logger    *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo    core.JobReaperRepository
	Metrics statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Repo == nil {
		return nil, errors.New("either DB or Repo must be provided")
	}
	if opts.Workspace == nil {
		return nil, errors.New("workspace store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	repo := opts.Repo
	if repo == nil {
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{})
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:      repo,
		Workspace: opts.Workspace,
		Config:    opts.Config,
		Logger:    opts.Logger,
		Metrics:   opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{
		reaper: reaper,
		logger: opts.Logger,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}
