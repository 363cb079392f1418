// Package core defines the service-facing ports of the scadforge render system.
package core

import (
	"context"
	"time"

	"github.com/scadforge/scadforge/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for render job data operations.
type JobRepository interface {
	Create(ctx context.Context, source string) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ArtifactsByJobID(ctx context.Context, jobID string) ([]*model.Artifact, error)
	GetArtifact(ctx context.Context, jobID string, kind model.ArtifactKind) (*model.Artifact, error)
	// ReserveNext atomically claims the oldest queued job for a worker,
	// flipping it to running and setting the ownership lease.
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error)
	// WaitForNotification blocks until a new job is enqueued or ctx is done.
	WaitForNotification(ctx context.Context) error
	// Complete records artifacts and flips a running job to completed.
	// Returns false if the job was not in running state.
	Complete(ctx context.Context, jobID string, artifacts []model.Artifact) (bool, error)
	// Fail flips a running job to failed with a diagnostic message.
	// Returns false if the job was not in running state.
	Fail(ctx context.Context, jobID, errMsg string) (bool, error)
	CountQueued(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*model.JobStats, error)
	List(ctx context.Context, limit int) ([]*model.Job, error)
}

// JobReaperRepository defines the maintenance operations used by the reaper.
type JobReaperRepository interface {
	// FailStaleRunningJobs force-fails running jobs whose lease expired.
	FailStaleRunningJobs(ctx context.Context, batchSize int) (int, error)
	// DeleteOldJobs removes jobs created before the cutoff and returns
	// the deleted ids so callers can reclaim their workspaces.
	DeleteOldJobs(ctx context.Context, cutoff time.Time, batchSize int) ([]string, error)
}

// WorkspaceStore manages per-job scratch directories on disk.
type WorkspaceStore interface {
	// Prepare creates the job's scratch directory and writes the source into it.
	Prepare(jobID, source string) (string, error)
	// JobDir returns the scratch directory path for a job.
	JobDir(jobID string) string
	// ReadFile reads a file from within the job's scratch directory.
	ReadFile(jobID, name string) ([]byte, error)
	// Remove deletes the job's scratch directory.
	Remove(jobID string) error
}

// RenderInvoker runs the external geometry compiler over a prepared workspace.
type RenderInvoker interface {
	Render(ctx context.Context, jobID, dir string) ([]model.Artifact, error)
}

// ConversationRepository stores chat history between code modification turns.
type ConversationRepository interface {
	Append(ctx context.Context, conversationID string, messages ...model.ChatMessage) error
	History(ctx context.Context, conversationID string, limit int) ([]model.ChatMessage, error)
}

// ChatCompleter produces a single completion for an ordered message list.
type ChatCompleter interface {
	Complete(ctx context.Context, messages []model.ChatMessage) (string, error)
}

// TimeProvider abstracts time.Now for deterministic tests.
type TimeProvider interface {
	Now() time.Time
}
