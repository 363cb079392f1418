package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scadforge/scadforge/config"
	"github.com/scadforge/scadforge/internal/core"
	obserrors "github.com/scadforge/scadforge/internal/observability/errors"
	"github.com/scadforge/scadforge/internal/observability/metrics"
	"github.com/scadforge/scadforge/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo      core.JobReaperRepository // Required: reaper repository
	Workspace core.WorkspaceStore      // Required: scratch directory cleanup
	Config    config.ReaperConfig      // Required: reaper configuration
	Logger    *slog.Logger             // Optional: structured logger
	Metrics   statsd.Sink              // Optional: metrics sink (StatsD-compatible)
	Clock     core.TimeProvider        // Optional: time source, defaults to wall clock
}

// ReaperService provides render job maintenance operations.
//
// This service manages:
// - Failing running jobs whose worker lease expired without a result.
// - Deleting terminal and abandoned jobs past the retention age.
// - Reclaiming the scratch directories of deleted jobs.
type ReaperService struct {
	repo      core.JobReaperRepository
	workspace core.WorkspaceStore
	config    config.ReaperConfig
	logger    *slog.Logger
	metrics   statsd.Sink
	clock     core.TimeProvider
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobReaperRepository is required")
	}
	if opts.Workspace == nil {
		return nil, errors.New("WorkspaceStore is required")
	}

	clock := opts.Clock
	if clock == nil {
		clock = wallClock{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"retention_age", opts.Config.RetentionAge,
			"batch_size", opts.Config.BatchSize,
		)
	}

	return &ReaperService{
		repo:      opts.Repo,
		workspace: opts.Workspace,
		config:    opts.Config,
		logger:    logger,
		metrics:   opts.Metrics,
		clock:     clock,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// It performs maintenance at the configured interval.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run maintenance immediately after jitter
	if err := s.RunOnce(ctx); err != nil {
		s.logMaintenanceError(err, "initial maintenance")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logMaintenanceError(err, "maintenance")
				// Continue running despite errors
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

// RunOnce performs a single maintenance pass: fail stalled jobs, then
// delete jobs past the retention age along with their workspaces.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := time.Now()
	m := maintenanceMetrics{}

	var errs []error

	m.StalledCount, m.StalledErr = s.failStalledJobs(ctx)
	if m.StalledErr != nil {
		errs = append(errs, fmt.Errorf("fail stalled jobs: %w", m.StalledErr))
	}

	m.DeletedCount, m.DeletedErr = s.deleteExpiredJobs(ctx)
	if m.DeletedErr != nil {
		errs = append(errs, fmt.Errorf("delete expired jobs: %w", m.DeletedErr))
	}

	m.Elapsed = time.Since(start)
	s.emitMaintenanceMetrics(m)

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("maintenance failed: %w", joined)
	}

	return nil
}

// failStalledJobs force-fails running jobs whose lease expired.
// Loops until no more rows are affected to handle large backlogs in batches.
func (s *ReaperService) failStalledJobs(ctx context.Context) (int64, error) {
	var totalCount int64
	for {
		count, err := s.repo.FailStaleRunningJobs(ctx, s.config.BatchSize)
		if err != nil {
			return totalCount, err
		}
		totalCount += int64(count)
		if count == 0 {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed stalled render jobs", "count", totalCount)
	}

	return totalCount, nil
}

// deleteExpiredJobs removes jobs created before the retention cutoff and
// reclaims their scratch directories. A workspace removal failure is
// logged but does not abort the pass; the directory is orphaned on disk
// and removed on a later operator sweep.
func (s *ReaperService) deleteExpiredJobs(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.config.RetentionAge)

	var totalCount int64
	for {
		ids, err := s.repo.DeleteOldJobs(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			return totalCount, err
		}
		totalCount += int64(len(ids))

		for _, id := range ids {
			if rmErr := s.workspace.Remove(id); rmErr != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "failed to remove job workspace",
					"job_id", id, "error", rmErr)
			}
		}

		if len(ids) == 0 {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted expired render jobs",
			"count", totalCount,
			"cutoff", cutoff,
		)
	}

	return totalCount, nil
}

type maintenanceMetrics struct {
	StalledCount int64
	StalledErr   error
	DeletedCount int64
	DeletedErr   error
	Elapsed      time.Duration
}

func (s *ReaperService) emitMaintenanceMetrics(m maintenanceMetrics) {
	if s.metrics == nil {
		return
	}

	totalCount := m.StalledCount + m.DeletedCount
	firstErr := firstError(m.StalledErr, m.DeletedErr)

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if totalCount == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.maintenance", 1, tags)

	if m.Elapsed > 0 {
		s.metrics.Timing("reaper.maintenance_duration", m.Elapsed, metrics.CloneTags(tags))
	}

	s.emitOperationMetric("fail_stalled", m.StalledCount, m.StalledErr)
	s.emitOperationMetric("delete_expired", m.DeletedCount, m.DeletedErr)

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitOperationMetric(operation string, count int64, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}

	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.operation", 1, tags)

	if err == nil && count > 0 {
		s.metrics.Count("reaper.jobs_processed", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logMaintenanceError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
