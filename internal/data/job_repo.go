// Package data provides PostgreSQL and Redis backed repositories for the render system.
package data

import (
	"database/sql"
	"log/slog"

	"github.com/scadforge/scadforge/internal/domain/model"
)

// ErrJobNotFound is returned when a job is not found.
var ErrJobNotFound = model.ErrJobNotFound

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for render job management.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  source,
  status,
  error,
  started_at,
  completed_at,
  lease_expires_at,
  created_at,
  updated_at
`
