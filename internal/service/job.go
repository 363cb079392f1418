package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/scadforge/scadforge/internal/core"
	domainjob "github.com/scadforge/scadforge/internal/domain/job"
	"github.com/scadforge/scadforge/internal/domain/model"
	apperrors "github.com/scadforge/scadforge/internal/errors"
	"github.com/scadforge/scadforge/internal/observability/notify"
	"github.com/scadforge/scadforge/internal/service/failurenotifier"
)

// parentRefPattern matches import()/use<>/include<> directives that reach
// outside the job's scratch directory.
var parentRefPattern = regexp.MustCompile(`(?i)(import\s*\(\s*["'][^"']*\.\./|(use|include)\s*<[^>]*\.\./)`)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo              core.JobRepository        // Required: job repository
	Workspace         core.WorkspaceStore       // Required: per-job scratch directories
	DefaultLease      time.Duration             // Required: default lease duration for render jobs
	MaxSourceBytes    int64                     // Required: submission size cap
	QueueBacklogLimit int                       // Optional: reject submissions past this backlog (0 disables)
	Logger            *slog.Logger              // Optional: structured logger
	FailureNotifier   *failurenotifier.Service  // Optional: failure notification fan-out
	LeasePolicy       *domainjob.LeasePolicy    // Optional: override default lease policy
	Notifier          domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions   domainjob.NotifierOptions // Optional: configure default notifier behaviour
}

// JobService provides business logic for render job operations.
//
// This service manages:
// - Source submission and validation
// - Job status and artifact retrieval
// - Job reservation and lease management for render workers
// - Pub/sub notification system for job availability
// - Graceful shutdown of notification listeners.
type JobService struct {
	repo              core.JobRepository
	workspace         core.WorkspaceStore
	leasePolicy       *domainjob.LeasePolicy
	notifier          domainjob.Notifier
	logger            *slog.Logger
	failureNotifier   *failurenotifier.Service
	maxSourceBytes    int64
	queueBacklogLimit int
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Workspace == nil {
		return nil, errors.New("WorkspaceStore is required")
	}
	if opts.MaxSourceBytes <= 0 {
		return nil, errors.New("MaxSourceBytes must be positive")
	}

	var leasePolicy *domainjob.LeasePolicy
	switch {
	case opts.LeasePolicy != nil:
		leasePolicy = opts.LeasePolicy
	case opts.DefaultLease > 0:
		var err error
		leasePolicy, err = domainjob.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	default:
		return nil, errors.New("DefaultLease must be positive")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
		logger.Debug("JobService initialized",
			"default_lease", leasePolicy.Default(),
			"max_source_bytes", opts.MaxSourceBytes,
		)
	}

	return &JobService{
		repo:              opts.Repo,
		workspace:         opts.Workspace,
		leasePolicy:       leasePolicy,
		notifier:          notifier,
		logger:            logger,
		failureNotifier:   opts.FailureNotifier,
		maxSourceBytes:    opts.MaxSourceBytes,
		queueBacklogLimit: opts.QueueBacklogLimit,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Submit validates the source, enqueues a render job, and writes the
// source into the job's scratch directory. It returns immediately; the
// render happens asynchronously.
func (s *JobService) Submit(ctx context.Context, source string) (*model.Job, error) {
	if err := s.validateSource(source); err != nil {
		return nil, err
	}

	if s.queueBacklogLimit > 0 {
		backlog, err := s.repo.CountQueued(ctx)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "check queue backlog")
		}
		if backlog >= s.queueBacklogLimit {
			return nil, apperrors.Conflictf("render queue is full (%d jobs waiting)", backlog)
		}
	}

	job, err := s.repo.Create(ctx, source)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	// The worker re-creates the scratch dir from the stored source if
	// this write is lost, so a failure here is logged but not fatal.
	if _, wsErr := s.workspace.Prepare(job.ID, source); wsErr != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to prepare job workspace", "job_id", job.ID, "error", wsErr)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job submitted", "id", job.ID, "source_bytes", len(source))
	}

	return job, nil
}

func (s *JobService) validateSource(source string) error {
	if isBlank(source) {
		return apperrors.Validation("source must not be empty")
	}
	if int64(len(source)) > s.maxSourceBytes {
		return apperrors.TooLargef("source exceeds maximum size of %d bytes", s.maxSourceBytes)
	}
	if parentRefPattern.MatchString(source) {
		return apperrors.Validation("source must not reference files outside the job directory")
	}
	return nil
}

func isBlank(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}

// GetStatus returns the status view for a job, including artifact refs
// once the job has completed.
func (s *JobService) GetStatus(ctx context.Context, id string) (*model.JobStatusView, error) {
	job, err := s.getJob(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &model.JobStatusView{
		ID:          job.ID,
		Status:      job.Status,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}

	if job.Status == model.JobStatusCompleted {
		artifacts, aerr := s.repo.ArtifactsByJobID(ctx, id)
		if aerr != nil {
			return nil, apperrors.Wrap(aerr, apperrors.ErrCodeInternal, "list artifacts")
		}
		refs := make([]model.ArtifactRef, 0, len(artifacts))
		for _, a := range artifacts {
			refs = append(refs, model.ArtifactRef{Kind: a.Kind, SizeBytes: a.SizeBytes})
		}
		view.Artifacts = refs
	}

	return view, nil
}

// ArtifactContent is a fetched artifact ready to be served.
type ArtifactContent struct {
	Kind        model.ArtifactKind
	ContentType string
	Filename    string
	Data        []byte
}

// GetArtifact returns the bytes of a produced artifact. The job must be
// completed; a queued or running job yields Conflict, a missing job or
// kind yields NotFound.
func (s *JobService) GetArtifact(ctx context.Context, id string, kind model.ArtifactKind) (*ArtifactContent, error) {
	if !kind.Valid() {
		return nil, apperrors.Validationf("unknown artifact kind %q", string(kind))
	}

	job, err := s.getJob(ctx, id)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case model.JobStatusCompleted:
	case model.JobStatusFailed:
		return nil, apperrors.Conflict("job failed; no artifacts were produced")
	default:
		return nil, apperrors.Conflict("job has not completed yet")
	}

	artifact, err := s.repo.GetArtifact(ctx, id, kind)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("artifact %q not found for job", string(kind))
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "get artifact")
	}

	data, err := s.workspace.ReadFile(id, artifact.Path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "read artifact")
	}

	return &ArtifactContent{
		Kind:        kind,
		ContentType: kind.ContentType(),
		Filename:    kind.Filename(),
		Data:        data,
	}, nil
}

func (s *JobService) getJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return nil, apperrors.NotFound("job not found")
		}
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "get job %s", id)
	}
	return job, nil
}

// ReserveNext reserves the next queued job for a render worker.
func (s *JobService) ReserveNext(ctx context.Context, lease time.Duration) (*model.Job, error) {
	decision := s.leasePolicy.Resolve(lease)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second lease duration to 1 second",
			"requested_duration", decision.Requested)
	}

	job, err := s.repo.ReserveNext(ctx, decision.Seconds)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	if s.logger != nil && job != nil {
		s.logger.DebugContext(ctx, "job reserved", "id", job.ID, "lease_seconds", decision.Seconds)
	}

	return job, nil
}

// Subscribe creates a subscription for job availability notifications.
// Returns an unsubscribe function and a channel that receives signals.
func (s *JobService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe()
}

// Complete records the render output and marks the job completed.
func (s *JobService) Complete(ctx context.Context, id string, artifacts []model.Artifact) (bool, error) {
	completed, err := s.repo.Complete(ctx, id, artifacts)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}

	if s.logger != nil && completed {
		s.logger.InfoContext(ctx, "job completed", "id", id, "artifacts", len(artifacts))
	}

	return completed, nil
}

// JobFailureDetails captures optional context for failure notifications.
type JobFailureDetails struct {
	ErrorClass string
	Metadata   map[string]string
	Severity   string
	OccurredAt time.Time
}

// Fail marks a job as failed with the given diagnostic message.
func (s *JobService) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	return s.FailWithDetails(ctx, id, errMsg, JobFailureDetails{})
}

// FailWithDetails marks a job as failed and propagates optional metadata
// to the failure notifier.
func (s *JobService) FailWithDetails(ctx context.Context, id, errMsg string, details JobFailureDetails) (bool, error) {
	if errMsg == "" {
		return false, errors.New("error message required")
	}

	failed, err := s.repo.Fail(ctx, id, errMsg)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", id, err)
	}

	if s.logger != nil && failed {
		s.logger.InfoContext(ctx, "job failed", "id", id, "error", errMsg, "error_class", details.ErrorClass)
	}

	if failed && s.failureNotifier != nil {
		s.failureNotifier.NotifyJobFailure(ctx, buildJobFailurePayload(id, errMsg, details))
	}

	return failed, nil
}

func buildJobFailurePayload(id, errMsg string, details JobFailureDetails) notify.JobFailurePayload {
	payload := notify.JobFailurePayload{
		JobID:      id,
		Error:      errMsg,
		ErrorClass: details.ErrorClass,
		Severity:   details.Severity,
		OccurredAt: details.OccurredAt,
		Metadata:   copyMetadata(details.Metadata),
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = time.Now()
	}
	if payload.ErrorClass != "" {
		payload.Metadata = mergeMetadata(payload.Metadata, map[string]string{
			"error_class": payload.ErrorClass,
		})
	}
	if len(payload.Metadata) == 0 {
		payload.Metadata = nil
	}

	return payload
}

func copyMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" || v == "" {
			continue
		}
		dst[k] = v
	}
	return dst
}

func mergeMetadata(base, extra map[string]string) map[string]string {
	out := copyMetadata(base)
	if out == nil && len(extra) == 0 {
		return nil
	}
	if out == nil {
		out = make(map[string]string, len(extra))
	}
	for k, v := range extra {
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Stats returns counts of jobs in each state.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return stats, nil
}

// List returns the most recently created jobs up to limit.
func (s *JobService) List(ctx context.Context, limit int) ([]*model.Job, error) {
	jobs, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// PrepareWorkspace (re)creates the scratch directory for a job from its
// stored source. Workers call this before rendering so a lost directory
// never fails a job.
func (s *JobService) PrepareWorkspace(job *model.Job) (string, error) {
	return s.workspace.Prepare(job.ID, job.Source)
}

// StopAllListeners stops all active job notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *JobService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all job listeners")
	}

	if s.notifier != nil {
		s.notifier.StopAll()
	}
}
