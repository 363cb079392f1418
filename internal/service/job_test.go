package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainjob "github.com/scadforge/scadforge/internal/domain/job"
	"github.com/scadforge/scadforge/internal/domain/model"
	apperrors "github.com/scadforge/scadforge/internal/errors"
	"github.com/scadforge/scadforge/internal/mocks"
	"github.com/scadforge/scadforge/internal/observability/notify"
	"github.com/scadforge/scadforge/internal/service/failurenotifier"
)

type stubJobNotifier struct {
	subscribeCalls int
	stopCalled     bool
}

func (s *stubJobNotifier) Subscribe() (func(), <-chan struct{}) {
	s.subscribeCalls++
	ch := make(chan struct{})
	return func() { close(ch) }, ch
}

func (s *stubJobNotifier) StopAll() {
	s.stopCalled = true
}

var _ domainjob.Notifier = (*stubJobNotifier)(nil)

func newTestJobService(t *testing.T, repo *mocks.MockJobRepository, ws *mocks.MockWorkspaceStore) (*JobService, *stubJobNotifier) {
	t.Helper()
	notifier := &stubJobNotifier{}
	svc := MustNewJobService(JobServiceOptions{
		Repo:              repo,
		Workspace:         ws,
		DefaultLease:      30 * time.Second,
		MaxSourceBytes:    1024,
		QueueBacklogLimit: 10,
		Notifier:          notifier,
	})
	return svc, notifier
}

func queuedJob(id, source string) *model.Job {
	now := time.Now().UTC()
	return &model.Job{
		ID:        id,
		Source:    source,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestNewJobService(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	ws := mocks.NewMockWorkspaceStore(ctrl)

	tests := []struct {
		name    string
		opts    JobServiceOptions
		wantErr string
	}{
		{
			name:    "missing repo",
			opts:    JobServiceOptions{Workspace: ws, DefaultLease: time.Second, MaxSourceBytes: 100},
			wantErr: "JobRepository is required",
		},
		{
			name:    "missing workspace",
			opts:    JobServiceOptions{Repo: repo, DefaultLease: time.Second, MaxSourceBytes: 100},
			wantErr: "WorkspaceStore is required",
		},
		{
			name:    "missing source cap",
			opts:    JobServiceOptions{Repo: repo, Workspace: ws, DefaultLease: time.Second},
			wantErr: "MaxSourceBytes must be positive",
		},
		{
			name:    "missing lease",
			opts:    JobServiceOptions{Repo: repo, Workspace: ws, MaxSourceBytes: 100},
			wantErr: "DefaultLease must be positive",
		},
		{
			name: "valid options",
			opts: JobServiceOptions{Repo: repo, Workspace: ws, DefaultLease: time.Second, MaxSourceBytes: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewJobService(tt.opts)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, svc)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, svc)
		})
	}
}

func TestJobService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("valid source is queued and workspace prepared", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		ws := mocks.NewMockWorkspaceStore(ctrl)
		svc, _ := newTestJobService(t, repo, ws)

		source := "cube([10, 10, 10]);"
		job := queuedJob("11111111-1111-1111-1111-111111111111", source)

		repo.EXPECT().CountQueued(ctx).Return(3, nil)
		repo.EXPECT().Create(ctx, source).Return(job, nil)
		ws.EXPECT().Prepare(job.ID, source).Return("/tmp/jobs/"+job.ID, nil)

		got, err := svc.Submit(ctx, source)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, model.JobStatusQueued, got.Status)
	})

	t.Run("empty source is rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc, _ := newTestJobService(t, mocks.NewMockJobRepository(ctrl), mocks.NewMockWorkspaceStore(ctrl))

		for _, source := range []string{"", "   ", "\n\t "} {
			_, err := svc.Submit(ctx, source)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err), "source %q should be a validation error", source)
		}
	})

	t.Run("oversized source is rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc, _ := newTestJobService(t, mocks.NewMockJobRepository(ctrl), mocks.NewMockWorkspaceStore(ctrl))

		big := make([]byte, 2048)
		for i := range big {
			big[i] = 'a'
		}

		_, err := svc.Submit(ctx, string(big))
		require.Error(t, err)
		assert.True(t, apperrors.IsTooLarge(err))
	})

	t.Run("parent path references are rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc, _ := newTestJobService(t, mocks.NewMockJobRepository(ctrl), mocks.NewMockWorkspaceStore(ctrl))

		sources := []string{
			`import("../secrets.scad");`,
			`use <../lib/shape.scad>`,
			`include <../../etc/passwd>`,
			`IMPORT ( "../x.scad" );`,
		}
		for _, source := range sources {
			_, err := svc.Submit(ctx, source)
			require.Error(t, err, "source %q should be rejected", source)
			assert.True(t, apperrors.IsValidation(err))
		}
	})

	t.Run("relative sibling references are allowed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		ws := mocks.NewMockWorkspaceStore(ctrl)
		svc, _ := newTestJobService(t, repo, ws)

		source := "use <shapes.scad>\ncube([1, 2, 3]);"
		job := queuedJob("22222222-2222-2222-2222-222222222222", source)

		repo.EXPECT().CountQueued(ctx).Return(0, nil)
		repo.EXPECT().Create(ctx, source).Return(job, nil)
		ws.EXPECT().Prepare(job.ID, source).Return("/tmp/jobs/"+job.ID, nil)

		_, err := svc.Submit(ctx, source)
		require.NoError(t, err)
	})

	t.Run("full queue is a conflict", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo, mocks.NewMockWorkspaceStore(ctrl))

		repo.EXPECT().CountQueued(ctx).Return(10, nil)

		_, err := svc.Submit(ctx, "sphere(5);")
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("workspace failure does not lose the job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		ws := mocks.NewMockWorkspaceStore(ctrl)
		svc, _ := newTestJobService(t, repo, ws)

		source := "cylinder(h = 5, d = 2);"
		job := queuedJob("33333333-3333-3333-3333-333333333333", source)

		repo.EXPECT().CountQueued(ctx).Return(0, nil)
		repo.EXPECT().Create(ctx, source).Return(job, nil)
		ws.EXPECT().Prepare(job.ID, source).Return("", errors.New("disk full"))

		got, err := svc.Submit(ctx, source)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
	})
}

func TestJobService_GetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("queued job has no artifacts", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo, mocks.NewMockWorkspaceStore(ctrl))

		job := queuedJob("44444444-4444-4444-4444-444444444444", "cube(1);")
		repo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)

		view, err := svc.GetStatus(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, view.ID)
		assert.Equal(t, model.JobStatusQueued, view.Status)
		assert.Nil(t, view.Artifacts)
		assert.Nil(t, view.Error)
	})

	t.Run("completed job lists artifact refs", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo, mocks.NewMockWorkspaceStore(ctrl))

		job := queuedJob("55555555-5555-5555-5555-555555555555", "cube(1);")
		job.Status = model.JobStatusCompleted
		completedAt := time.Now().UTC()
		job.CompletedAt = &completedAt

		repo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)
		repo.EXPECT().ArtifactsByJobID(ctx, job.ID).Return([]*model.Artifact{
			{JobID: job.ID, Kind: model.ArtifactKindMesh, Path: "part.stl", SizeBytes: 4284},
			{JobID: job.ID, Kind: model.ArtifactKindPreview, Path: "preview.png", SizeBytes: 1209},
		}, nil)

		view, err := svc.GetStatus(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, view.Artifacts, 2)
		assert.Equal(t, model.ArtifactKindMesh, view.Artifacts[0].Kind)
		assert.Equal(t, int64(4284), view.Artifacts[0].SizeBytes)
	})

	t.Run("failed job carries the diagnostic", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo, mocks.NewMockWorkspaceStore(ctrl))

		job := queuedJob("66666666-6666-6666-6666-666666666666", "cube([1;")
		job.Status = model.JobStatusFailed
		msg := "syntax error at line 1"
		job.Error = &msg

		repo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)

		view, err := svc.GetStatus(ctx, job.ID)
		require.NoError(t, err)
		require.NotNil(t, view.Error)
		assert.Equal(t, msg, *view.Error)
		assert.Nil(t, view.Artifacts)
	})

	t.Run("unknown job is not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo, mocks.NewMockWorkspaceStore(ctrl))

		repo.EXPECT().GetByID(ctx, "missing").Return(nil, model.ErrJobNotFound)

		_, err := svc.GetStatus(ctx, "missing")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestJobService_GetArtifact(t *testing.T) {
	ctx := context.Background()

	completed := func(id string) *model.Job {
		job := queuedJob(id, "cube(1);")
		job.Status = model.JobStatusCompleted
		return job
	}

	t.Run("returns artifact bytes with content type", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		ws := mocks.NewMockWorkspaceStore(ctrl)
		svc, _ := newTestJobService(t, repo, ws)

		job := completed("77777777-7777-7777-7777-777777777777")
		repo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)
		repo.EXPECT().GetArtifact(ctx, job.ID, model.ArtifactKindMesh).Return(&model.Artifact{
			JobID: job.ID, Kind: model.ArtifactKindMesh, Path: "part.stl", SizeBytes: 10,
		}, nil)
		ws.EXPECT().ReadFile(job.ID, "part.stl").Return([]byte("solid part"), nil)

		content, err := svc.GetArtifact(ctx, job.ID, model.ArtifactKindMesh)
		require.NoError(t, err)
		assert.Equal(t, "model/stl", content.ContentType)
		assert.Equal(t, "part.stl", content.Filename)
		assert.Equal(t, []byte("solid part"), content.Data)
	})

	t.Run("invalid kind", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc, _ := newTestJobService(t, mocks.NewMockJobRepository(ctrl), mocks.NewMockWorkspaceStore(ctrl))

		_, err := svc.GetArtifact(ctx, "id", model.ArtifactKind("gcode"))
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("unknown job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo, mocks.NewMockWorkspaceStore(ctrl))

		repo.EXPECT().GetByID(ctx, "missing").Return(nil, model.ErrJobNotFound)

		_, err := svc.GetArtifact(ctx, "missing", model.ArtifactKindMesh)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("running job is not ready", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo, mocks.NewMockWorkspaceStore(ctrl))

		job := queuedJob("88888888-8888-8888-8888-888888888888", "cube(1);")
		job.Status = model.JobStatusRunning
		repo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)

		_, err := svc.GetArtifact(ctx, job.ID, model.ArtifactKindMesh)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("failed job has no artifacts", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo, mocks.NewMockWorkspaceStore(ctrl))

		job := queuedJob("99999999-9999-9999-9999-999999999999", "cube([1;")
		job.Status = model.JobStatusFailed
		repo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)

		_, err := svc.GetArtifact(ctx, job.ID, model.ArtifactKindMesh)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("kind not produced", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo, mocks.NewMockWorkspaceStore(ctrl))

		job := completed("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
		repo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)
		repo.EXPECT().GetArtifact(ctx, job.ID, model.ArtifactKindPreview).Return(nil, model.ErrJobNotFound)

		_, err := svc.GetArtifact(ctx, job.ID, model.ArtifactKindPreview)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestJobService_ReserveNext(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves lease to whole seconds", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo, mocks.NewMockWorkspaceStore(ctrl))

		job := queuedJob("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb", "cube(1);")
		job.Status = model.JobStatusRunning
		repo.EXPECT().ReserveNext(ctx, 45).Return(job, nil)

		got, err := svc.ReserveNext(ctx, 45*time.Second)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
	})

	t.Run("zero lease uses default", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo, mocks.NewMockWorkspaceStore(ctrl))

		repo.EXPECT().ReserveNext(ctx, 30).Return(nil, model.ErrNoJobsAvailable)

		_, err := svc.ReserveNext(ctx, 0)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})
}

func TestJobService_CompleteAndFail(t *testing.T) {
	ctx := context.Background()

	t.Run("complete delegates with artifacts", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo, mocks.NewMockWorkspaceStore(ctrl))

		artifacts := []model.Artifact{{Kind: model.ArtifactKindMesh, Path: "part.stl", SizeBytes: 12}}
		repo.EXPECT().Complete(ctx, "job-1", artifacts).Return(true, nil)

		ok, err := svc.Complete(ctx, "job-1", artifacts)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("fail requires a message", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc, _ := newTestJobService(t, mocks.NewMockJobRepository(ctrl), mocks.NewMockWorkspaceStore(ctrl))

		_, err := svc.Fail(ctx, "job-1", "")
		require.Error(t, err)
	})

	t.Run("fail notifies registered sinks", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		ws := mocks.NewMockWorkspaceStore(ctrl)

		var received []notify.JobFailurePayload
		fn := failurenotifier.NewService(failurenotifier.Options{
			Sinks: []failurenotifier.SinkRegistration{{
				Name: "capture",
				Sink: notify.SinkFunc(func(ctx context.Context, payload notify.JobFailurePayload) error {
					received = append(received, payload)
					return nil
				}),
			}},
		})

		svc := MustNewJobService(JobServiceOptions{
			Repo:            repo,
			Workspace:       ws,
			DefaultLease:    30 * time.Second,
			MaxSourceBytes:  1024,
			Notifier:        &stubJobNotifier{},
			FailureNotifier: fn,
		})

		repo.EXPECT().Fail(ctx, "job-2", "timeout exceeded").Return(true, nil)

		ok, err := svc.FailWithDetails(ctx, "job-2", "timeout exceeded", JobFailureDetails{
			ErrorClass: "timeout",
		})
		require.NoError(t, err)
		assert.True(t, ok)

		require.Len(t, received, 1)
		assert.Equal(t, "job-2", received[0].JobID)
		assert.Equal(t, "timeout", received[0].ErrorClass)
		assert.Equal(t, notify.SeverityCritical, received[0].Severity)
	})

	t.Run("guarded fail skips notification", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		ws := mocks.NewMockWorkspaceStore(ctrl)

		var called bool
		fn := failurenotifier.NewService(failurenotifier.Options{
			Sinks: []failurenotifier.SinkRegistration{{
				Name: "capture",
				Sink: notify.SinkFunc(func(ctx context.Context, payload notify.JobFailurePayload) error {
					called = true
					return nil
				}),
			}},
		})

		svc := MustNewJobService(JobServiceOptions{
			Repo:            repo,
			Workspace:       ws,
			DefaultLease:    30 * time.Second,
			MaxSourceBytes:  1024,
			Notifier:        &stubJobNotifier{},
			FailureNotifier: fn,
		})

		repo.EXPECT().Fail(ctx, "job-3", "late failure").Return(false, nil)

		ok, err := svc.Fail(ctx, "job-3", "late failure")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, called)
	})
}

func TestJobService_StatsAndList(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo, mocks.NewMockWorkspaceStore(ctrl))

	repo.EXPECT().Stats(ctx).Return(&model.JobStats{Queued: 2, Completed: 5}, nil)
	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Queued)

	repo.EXPECT().List(ctx, 10).Return([]*model.Job{queuedJob("id", "cube(1);")}, nil)
	jobs, err := svc.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestJobService_StopAllListeners(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, notifier := newTestJobService(t, mocks.NewMockJobRepository(ctrl), mocks.NewMockWorkspaceStore(ctrl))

	svc.StopAllListeners()
	assert.True(t, notifier.stopCalled)
}
