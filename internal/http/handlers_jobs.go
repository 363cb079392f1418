// Package httpx provides HTTP handlers and utilities for the scadforge render API.
package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/scadforge/scadforge/internal/domain/model"
	"github.com/scadforge/scadforge/internal/service"
)

// JobHandlers provides HTTP handlers for render job operations.
type JobHandlers struct {
	Svc *service.JobService
	// MaxBodyBytes caps the request body read on submission. Zero disables the cap.
	MaxBodyBytes int64
}

type submitJobRequest struct {
	Source string `json:"source"`
}

type submitJobResponse struct {
	JobID string `json:"job_id"`
}

// SubmitJob handles POST /api/jobs. The job is queued; rendering happens
// asynchronously and clients poll GetJob for the outcome.
func (h *JobHandlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	if h.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)
	}

	var req submitJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Submit(r.Context(), req.Source)
	if err != nil {
		RenderAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, submitJobResponse{JobID: job.ID})
}

// GetJob handles GET /api/jobs/{id} and returns the polling view of a job.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	status, err := h.Svc.GetStatus(r.Context(), jobID)
	if err != nil {
		RenderAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// GetArtifact handles GET /api/jobs/{id}/artifact/{kind} and streams the
// artifact bytes with a download disposition.
func (h *JobHandlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}
	kind := model.ArtifactKind(r.PathValue("kind"))

	artifact, err := h.Svc.GetArtifact(r.Context(), jobID, kind)
	if err != nil {
		RenderAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Data); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// Stats handles GET /api/jobs/stats with queue depth and terminal counts.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		RenderAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
