package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/scadforge/scadforge/config"
	"github.com/scadforge/scadforge/internal/adapters/jobrunner"
	"github.com/scadforge/scadforge/internal/adapters/openscad"
	"github.com/scadforge/scadforge/internal/adapters/reaper"
	"github.com/scadforge/scadforge/internal/core"
	"github.com/scadforge/scadforge/internal/observability/statsd"
	"github.com/scadforge/scadforge/internal/service"
)

// RenderWorkerConfig contains configuration for the render worker pool.
type RenderWorkerConfig struct {
	Jobs        *service.JobService
	Render      config.RenderConfig
	Logger      *slog.Logger
	Lease       time.Duration
	Concurrency int
	Metrics     statsd.Sink
}

// RunRenderWorker starts the render worker service.
func RunRenderWorker(ctx context.Context, cfg RenderWorkerConfig) error {
	invoker, err := openscad.NewInvoker(openscad.Options{
		Bin:                cfg.Render.OpenSCADBin,
		Timeout:            cfg.Render.JobTimeout,
		XvfbCmd:            cfg.Render.XvfbCmd,
		PreviewEnabled:     cfg.Render.PreviewEnabled,
		PreviewWidth:       cfg.Render.PreviewWidth,
		PreviewHeight:      cfg.Render.PreviewHeight,
		PreviewColorscheme: cfg.Render.PreviewColorscheme,
		Logger:             cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create compiler invoker: %w", err)
	}

	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Jobs:        cfg.Jobs,
		Invoker:     invoker,
		Logger:      cfg.Logger,
		Lease:       cfg.Lease,
		Concurrency: cfg.Concurrency,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create render worker runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB        *sql.DB
	Workspace core.WorkspaceStore
	Logger    *slog.Logger
	Config    config.ReaperConfig
	Metrics   statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:        cfg.DB,
		Workspace: cfg.Workspace,
		Config:    cfg.Config,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
