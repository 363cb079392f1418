// Package model defines the core data types and structures used throughout the scadforge render system.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current status of a render job.
type JobStatus string

const (
	// JobStatusQueued indicates a job is waiting to be picked up by a worker.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates a job is currently being rendered.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has failed to complete.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusQueued || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal returns true once the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// ErrJobNotFound is returned when a job or artifact lookup finds nothing.
var ErrJobNotFound = errors.New("job not found")

// ArtifactKind identifies an output produced by a completed render job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type ArtifactKind string

const (
	// ArtifactKindMesh is the binary STL mesh output.
	ArtifactKindMesh ArtifactKind = "mesh"
	// ArtifactKindPreview is the rasterized PNG preview output.
	ArtifactKindPreview ArtifactKind = "preview"
)

// Valid returns true if the ArtifactKind is valid.
func (k ArtifactKind) Valid() bool {
	return k == ArtifactKindMesh || k == ArtifactKindPreview
}

// UnmarshalText implements encoding.TextUnmarshaler for ArtifactKind.
func (k *ArtifactKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	ak := ArtifactKind(v)
	if ak.Valid() {
		*k = ak
		return nil
	}
	return fmt.Errorf("invalid ArtifactKind: %q", v)
}

// ContentType returns the MIME type served for the artifact kind.
func (k ArtifactKind) ContentType() string {
	switch k {
	case ArtifactKindMesh:
		return "model/stl"
	case ArtifactKindPreview:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// Filename returns the on-disk name of the artifact inside the job workspace.
func (k ArtifactKind) Filename() string {
	switch k {
	case ArtifactKindMesh:
		return "part.stl"
	case ArtifactKindPreview:
		return "preview.png"
	default:
		return string(k)
	}
}

// Job represents a render job with all its metadata and status information.
// Source is immutable after submission; Error is set only on failure.
type Job struct {
	ID             string     `json:"id"                         db:"id"`
	Source         string     `json:"-"                          db:"source"`
	Status         JobStatus  `json:"status"                     db:"status"`
	Error          *string    `json:"error,omitempty"            db:"error"`
	StartedAt      *time.Time `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"     db:"completed_at"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time  `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"                 db:"updated_at"`
}

// Artifact is the stored record of one output file of a completed job.
type Artifact struct {
	JobID     string       `json:"job_id"     db:"job_id"`
	Kind      ArtifactKind `json:"kind"       db:"kind"`
	Path      string       `json:"-"          db:"path"`
	SizeBytes int64        `json:"size_bytes" db:"size_bytes"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// ArtifactRef is the client-visible reference to an artifact, addressable
// by job id plus kind.
type ArtifactRef struct {
	Kind      ArtifactKind `json:"kind"`
	SizeBytes int64        `json:"size_bytes"`
}

// JobStatusView is the polling response for a single job.
type JobStatusView struct {
	ID          string        `json:"job_id"`
	Status      JobStatus     `json:"status"`
	Error       *string       `json:"error,omitempty"`
	Artifacts   []ArtifactRef `json:"artifacts,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// JobStats represents counts of jobs in each state.
type JobStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
