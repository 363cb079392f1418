// Package jobrunner pulls queued render jobs and drives them through
// the compiler to a terminal state.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scadforge/scadforge/internal/adapters/openscad"
	"github.com/scadforge/scadforge/internal/core"
	"github.com/scadforge/scadforge/internal/domain/model"
	obserrors "github.com/scadforge/scadforge/internal/observability/errors"
	"github.com/scadforge/scadforge/internal/observability/metrics"
	"github.com/scadforge/scadforge/internal/observability/statsd"
	"github.com/scadforge/scadforge/internal/service"
)

// RunnerOptions configures the render worker pool.
type RunnerOptions struct {
	Jobs    *service.JobService // Required: job lifecycle operations
	Invoker core.RenderInvoker  // Required: compiler invocation
	Logger  *slog.Logger

	Lease       time.Duration // per-job lease duration; defaults to 30s
	Concurrency int           // number of worker goroutines; defaults to 1

	Metrics statsd.Sink
}

// Runner reserves queued jobs and renders them. Each worker holds at
// most one job, bounded by its lease; a worker that dies mid-render is
// cleaned up by the reaper when the lease expires.
type Runner struct {
	jobs    *service.JobService
	invoker core.RenderInvoker
	logger  *slog.Logger
	lease   time.Duration
	workers int
	metrics statsd.Sink
}

// NewRunner constructs a render worker pool.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if opts.Invoker == nil {
		return nil, errors.New("RenderInvoker is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lease := opts.Lease
	if lease <= 0 {
		lease = 30 * time.Second
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}

	return &Runner{
		jobs:    opts.Jobs,
		invoker: opts.Invoker,
		logger:  logger.With("component", "render_worker"),
		lease:   lease,
		workers: workers,
		metrics: opts.Metrics,
	}, nil
}

// Run starts worker goroutines and processes jobs until the context is
// cancelled. Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting render workers", "workers", r.workers, "lease", r.lease)

	unsub, notify := r.jobs.Subscribe()
	defer unsub()

	g, ctx := errgroup.WithContext(ctx)
	for range r.workers {
		g.Go(func() error {
			return r.workerLoop(ctx, notify)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !waitForNotify(ctx, notify) {
				return ctx.Err()
			}
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

func waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case _, ok := <-notify:
		return ok
	}
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitRenderLifecycle(r.metrics, metrics.RenderMetric{
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	r.logger.InfoContext(ctx, "rendering job", "job_id", job.ID)

	dir, err := r.jobs.PrepareWorkspace(job)
	if err != nil {
		r.fail(ctx, job.ID, "render failed", service.JobFailureDetails{
			ErrorClass: obserrors.Classify(err),
			Metadata:   map[string]string{"component": "render_worker", "stage": "workspace"},
		})
		r.logger.ErrorContext(ctx, "workspace preparation failed", "job_id", job.ID, "error", err)
		emit("failed", metrics.ResultError, err)
		return
	}

	artifacts, err := r.invoker.Render(ctx, job.ID, dir)
	if err != nil {
		message, class := failureDiagnostic(err)
		r.fail(ctx, job.ID, message, service.JobFailureDetails{
			ErrorClass: class,
			Metadata:   map[string]string{"component": "render_worker", "stage": "compile"},
		})
		r.logger.WarnContext(ctx, "render failed",
			"job_id", job.ID, "error_class", class, "error", err)
		emit("failed", metrics.ResultError, err)
		return
	}

	completed, err := r.jobs.Complete(ctx, job.ID, artifacts)
	switch {
	case err != nil:
		r.logger.ErrorContext(ctx, "complete job error", "job_id", job.ID, "error", err)
		emit("completed", metrics.ResultError, err)
	case !completed:
		// Lease expired and the reaper already failed the job; the
		// terminal state wins and the artifacts are abandoned.
		r.logger.WarnContext(ctx, "job no longer running at completion", "job_id", job.ID)
		emit("completed", metrics.ResultNoop, nil)
	default:
		emit("completed", metrics.ResultSuccess, nil)
	}
}

// failureDiagnostic maps an invocation error to the client-facing
// message stored on the job and a class label for metrics and alerts.
func failureDiagnostic(err error) (message, class string) {
	var renderErr *openscad.RenderError
	if errors.As(err, &renderErr) {
		return renderErr.ClientMessage(), string(renderErr.Class)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout exceeded", "timeout"
	}
	return "render failed", obserrors.Classify(err)
}

func (r *Runner) fail(ctx context.Context, id, msg string, details service.JobFailureDetails) {
	if _, err := r.jobs.FailWithDetails(ctx, id, msg, details); err != nil {
		r.logger.ErrorContext(ctx, "fail job error", "job_id", id, "error", err)
	}
}
