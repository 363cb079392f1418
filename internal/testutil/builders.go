// Package testutil provides testing utilities and helpers for the render job system.
package testutil

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/scadforge/scadforge/internal/domain/model"
)

// Sample OpenSCAD sources for tests.

// ValidSource returns a small OpenSCAD program that renders a cube.
func ValidSource() string {
	return "cube([10, 10, 10]);\n"
}

// BrokenSource returns an OpenSCAD program with a syntax error.
func BrokenSource() string {
	return "cube([10, 10, 10\n"
}

// ParametricSource returns a slightly larger OpenSCAD program with modules.
func ParametricSource() string {
	return `module peg(d, h) {
	cylinder(d = d, h = h, $fn = 64);
}
difference() {
	cube([30, 20, 5]);
	translate([15, 10, -1]) peg(4, 7);
}
`
}

// SeedJobOptions controls the row written by SeedJob.
type SeedJobOptions struct {
	Source         string
	Status         model.JobStatus
	Error          *string
	StartedAt      *time.Time
	CompletedAt    *time.Time
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
}

// SeedJob inserts a render job row directly, bypassing the repository.
// Useful for arranging specific states (stale leases, old jobs) that the
// public API only reaches through timing.
func SeedJob(t TestingTB, db *sql.DB, opts SeedJobOptions) string {
	t.Helper()

	if opts.Source == "" {
		opts.Source = ValidSource()
	}
	if opts.Status == "" {
		opts.Status = model.JobStatusQueued
	}
	if opts.CreatedAt.IsZero() {
		opts.CreatedAt = time.Now().UTC()
	}

	id := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := db.ExecContext(ctx, `
		INSERT INTO render_jobs (id, source, status, error, started_at, completed_at, lease_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, id, opts.Source, string(opts.Status), opts.Error, opts.StartedAt, opts.CompletedAt, opts.LeaseExpiresAt, opts.CreatedAt)
	if err != nil {
		t.Fatalf("Failed to seed render job: %v", err)
	}

	return id
}

// SeedQueuedJob inserts a queued job with the given creation time.
func SeedQueuedJob(t TestingTB, db *sql.DB, createdAt time.Time) string {
	t.Helper()
	return SeedJob(t, db, SeedJobOptions{Status: model.JobStatusQueued, CreatedAt: createdAt})
}

// SeedRunningJob inserts a running job whose lease expires at the given time.
func SeedRunningJob(t TestingTB, db *sql.DB, leaseExpiresAt time.Time) string {
	t.Helper()
	started := leaseExpiresAt.Add(-time.Minute)
	return SeedJob(t, db, SeedJobOptions{
		Status:         model.JobStatusRunning,
		StartedAt:      &started,
		LeaseExpiresAt: &leaseExpiresAt,
		CreatedAt:      started.Add(-time.Second),
	})
}

// SeedCompletedJob inserts a completed job created at the given time.
func SeedCompletedJob(t TestingTB, db *sql.DB, createdAt time.Time) string {
	t.Helper()
	started := createdAt.Add(time.Second)
	completed := started.Add(2 * time.Second)
	return SeedJob(t, db, SeedJobOptions{
		Status:      model.JobStatusCompleted,
		StartedAt:   &started,
		CompletedAt: &completed,
		CreatedAt:   createdAt,
	})
}

// SeedArtifact inserts an artifact row for the given job.
func SeedArtifact(t TestingTB, db *sql.DB, jobID string, kind model.ArtifactKind, path string, size int64) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := db.ExecContext(ctx, `
		INSERT INTO render_artifacts (job_id, kind, path, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, jobID, string(kind), path, size)
	if err != nil {
		t.Fatalf("Failed to seed render artifact: %v", err)
	}
}

// JobStatusOf reads the current status column for a job.
func JobStatusOf(t TestingTB, db *sql.DB, jobID string) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var status string
	if err := db.QueryRowContext(ctx, "SELECT status FROM render_jobs WHERE id = $1", jobID).Scan(&status); err != nil {
		t.Fatalf("Failed to read job status: %v", err)
	}
	return status
}

// CountJobs returns the number of render job rows.
func CountJobs(t TestingTB, db *sql.DB) int {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM render_jobs").Scan(&n); err != nil {
		t.Fatalf("Failed to count render jobs: %v", err)
	}
	return n
}
