package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainjob "github.com/scadforge/scadforge/internal/domain/job"
	"github.com/scadforge/scadforge/internal/domain/model"
	"github.com/scadforge/scadforge/internal/mocks"
	"github.com/scadforge/scadforge/internal/service"
)

type idleNotifier struct{}

func (idleNotifier) Subscribe() (func(), <-chan struct{}) {
	ch := make(chan struct{})
	return func() { close(ch) }, ch
}

func (idleNotifier) StopAll() {}

var _ domainjob.Notifier = idleNotifier{}

type routerFixture struct {
	repo *mocks.MockJobRepository
	ws   *mocks.MockWorkspaceStore
	mux  http.Handler
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	ws := mocks.NewMockWorkspaceStore(ctrl)

	jobs := service.MustNewJobService(service.JobServiceOptions{
		Repo:              repo,
		Workspace:         ws,
		DefaultLease:      30 * time.Second,
		MaxSourceBytes:    1024,
		QueueBacklogLimit: 10,
		Notifier:          idleNotifier{},
	})
	t.Cleanup(jobs.StopAllListeners)

	return &routerFixture{
		repo: repo,
		ws:   ws,
		mux:  NewRouter(RouterServices{Jobs: jobs, MaxBodyBytes: 4096}),
	}
}

func (f *routerFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func completedJob(id string) *model.Job {
	now := time.Now().UTC()
	done := now.Add(2 * time.Second)
	return &model.Job{
		ID:          id,
		Source:      "cube(10);",
		Status:      model.JobStatusCompleted,
		CreatedAt:   now,
		UpdatedAt:   done,
		CompletedAt: &done,
	}
}

func TestSubmitJob(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		f := newRouterFixture(t)
		f.repo.EXPECT().CountQueued(gomock.Any()).Return(0, nil)
		f.repo.EXPECT().Create(gomock.Any(), "cube(10);").DoAndReturn(
			func(_ context.Context, source string) (*model.Job, error) {
				return &model.Job{ID: "job-1", Source: source, Status: model.JobStatusQueued}, nil
			})
		f.ws.EXPECT().Prepare("job-1", "cube(10);").Return("/tmp/jobs/job-1", nil)

		rec := f.do(t, http.MethodPost, "/api/jobs", `{"source":"cube(10);"}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "job-1", decodeBody(t, rec)["job_id"])
	})

	t.Run("malformed json", func(t *testing.T) {
		f := newRouterFixture(t)

		rec := f.do(t, http.MethodPost, "/api/jobs", `{"source":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_json", decodeBody(t, rec)["error"])
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		f := newRouterFixture(t)

		rec := f.do(t, http.MethodPost, "/api/jobs", `{"source":"cube(1);","extra":true}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty source", func(t *testing.T) {
		f := newRouterFixture(t)

		rec := f.do(t, http.MethodPost, "/api/jobs", `{"source":"  "}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation", decodeBody(t, rec)["error"])
	})

	t.Run("oversized source", func(t *testing.T) {
		f := newRouterFixture(t)
		big := strings.Repeat("a", 2048)

		rec := f.do(t, http.MethodPost, "/api/jobs", `{"source":"`+big+`"}`)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("queue full", func(t *testing.T) {
		f := newRouterFixture(t)
		f.repo.EXPECT().CountQueued(gomock.Any()).Return(10, nil)

		rec := f.do(t, http.MethodPost, "/api/jobs", `{"source":"cube(10);"}`)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "conflict", decodeBody(t, rec)["error"])
	})
}

func TestGetJob(t *testing.T) {
	t.Run("completed with artifacts", func(t *testing.T) {
		f := newRouterFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(completedJob("job-1"), nil)
		f.repo.EXPECT().ArtifactsByJobID(gomock.Any(), "job-1").Return([]*model.Artifact{
			{JobID: "job-1", Kind: model.ArtifactKindMesh, Path: "part.stl", SizeBytes: 840},
			{JobID: "job-1", Kind: model.ArtifactKindPreview, Path: "preview.png", SizeBytes: 120},
		}, nil)

		rec := f.do(t, http.MethodGet, "/api/jobs/job-1", "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "job-1", body["job_id"])
		assert.Equal(t, "completed", body["status"])
		artifacts, ok := body["artifacts"].([]any)
		require.True(t, ok)
		assert.Len(t, artifacts, 2)
	})

	t.Run("failed with diagnostic", func(t *testing.T) {
		f := newRouterFixture(t)
		diag := "ERROR: Parser error in line 3"
		job := completedJob("job-2")
		job.Status = model.JobStatusFailed
		job.Error = &diag
		f.repo.EXPECT().GetByID(gomock.Any(), "job-2").Return(job, nil)

		rec := f.do(t, http.MethodGet, "/api/jobs/job-2", "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "failed", body["status"])
		assert.Equal(t, diag, body["error"])
	})

	t.Run("not found", func(t *testing.T) {
		f := newRouterFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "nope").Return(nil, model.ErrJobNotFound)

		rec := f.do(t, http.MethodGet, "/api/jobs/nope", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeBody(t, rec)["error"])
	})

	t.Run("repo failure masked", func(t *testing.T) {
		f := newRouterFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "job-3").Return(nil, errors.New("connection refused"))

		rec := f.do(t, http.MethodGet, "/api/jobs/job-3", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "internal server error", body["message"])
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}

func TestGetArtifact(t *testing.T) {
	t.Run("mesh download", func(t *testing.T) {
		f := newRouterFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(completedJob("job-1"), nil)
		f.repo.EXPECT().GetArtifact(gomock.Any(), "job-1", model.ArtifactKindMesh).Return(
			&model.Artifact{JobID: "job-1", Kind: model.ArtifactKindMesh, Path: "part.stl", SizeBytes: 9}, nil)
		f.ws.EXPECT().ReadFile("job-1", "part.stl").Return([]byte("solid x\n"), nil)

		rec := f.do(t, http.MethodGet, "/api/jobs/job-1/artifact/mesh", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "model/stl", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="part.stl"`)
		assert.Equal(t, "solid x\n", rec.Body.String())
	})

	t.Run("unknown kind", func(t *testing.T) {
		f := newRouterFixture(t)

		rec := f.do(t, http.MethodGet, "/api/jobs/job-1/artifact/gcode", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("job still running", func(t *testing.T) {
		f := newRouterFixture(t)
		job := completedJob("job-1")
		job.Status = model.JobStatusRunning
		job.CompletedAt = nil
		f.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)

		rec := f.do(t, http.MethodGet, "/api/jobs/job-1/artifact/mesh", "")

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("artifact missing", func(t *testing.T) {
		f := newRouterFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(completedJob("job-1"), nil)
		f.repo.EXPECT().GetArtifact(gomock.Any(), "job-1", model.ArtifactKindPreview).
			Return(nil, model.ErrJobNotFound)

		rec := f.do(t, http.MethodGet, "/api/jobs/job-1/artifact/preview", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestJobStats(t *testing.T) {
	f := newRouterFixture(t)
	f.repo.EXPECT().Stats(gomock.Any()).Return(&model.JobStats{Queued: 2, Running: 1, Completed: 7, Failed: 3}, nil)

	rec := f.do(t, http.MethodGet, "/api/jobs/stats", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["queued"])
	assert.Equal(t, float64(7), body["completed"])
}
