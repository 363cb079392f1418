package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/scadforge/scadforge/internal/data/pgxutil"
	"github.com/scadforge/scadforge/internal/domain/model"
)

// jobAddedChannel is the pg_notify channel that wakes idle render workers.
const jobAddedChannel = "render_job_added"

// SQL used by ReserveNext to atomically reserve the oldest queued job.
// FIFO order is created_at ASC; FOR UPDATE SKIP LOCKED guarantees a job
// is delivered to exactly one concurrent worker.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM render_jobs
    WHERE status = 'queued'
    ORDER BY created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE render_jobs j
  SET
    status = 'running',
    started_at = COALESCE(j.started_at, $1),
    lease_expires_at = $2,
    updated_at = $3
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.source, j.status, j.error, j.started_at, j.completed_at, j.lease_expires_at, j.created_at, j.updated_at`

// Create inserts a new queued job and emits the worker wakeup notification.
// Insert and notify share one transaction so a visible job always has a
// matching wakeup, and exactly one enqueue event happens per call.
func (r *JobRepo) Create(ctx context.Context, source string) (*model.Job, error) {
	if strings.TrimSpace(source) == "" {
		return nil, errors.New("source is required")
	}

	id := uuid.NewString()
	now := r.timeProvider.Now().UTC()

	var job *model.Job
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `
			  INSERT INTO render_jobs(id, source, status, created_at, updated_at)
			  VALUES ($1, $2, 'queued', $3, $3)
			  RETURNING `+jobColumns, id, source, now)
			if err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			job, err = collectJobFromRows(rows)
			rows.Close()
			if err != nil {
				return fmt.Errorf("collect job: %w", err)
			}

			if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, jobAddedChannel, job.ID); execErr != nil {
				return fmt.Errorf("send job notification: %w", execErr)
			}
			return nil
		},
	})
	if txErr != nil {
		return nil, txErr
	}

	return job, nil
}

// collectJobFromRows collects a single job from pgx rows using pgx v5 helpers.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	jobError                               sql.NullString
	startedAt, completedAt, leaseExpiresAt sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.Source,
		&job.Status,
		&d.jobError,
		&d.startedAt,
		&d.completedAt,
		&d.leaseExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) {
	job.Error = cloneNullableString(d.jobError)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// ReserveNext reserves the oldest queued job for processing. The returned
// job is flipped to running with a lease; a worker that dies before
// Complete/Fail leaves the lease to expire for the reaper to collect.
func (r *JobRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error) {
	if leaseSeconds <= 0 {
		return nil, errors.New("leaseSeconds must be positive")
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(
				ctx,
				reserveNextUpdateSQL,
				currentTime.UTC(),
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("reserve job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// Complete records the produced artifacts and marks a running job completed.
// The status guard keeps jobs the reaper already failed from resurrecting,
// and makes terminal states immutable. Returns false when the guard refused
// the transition.
func (r *JobRepo) Complete(ctx context.Context, jobID string, artifacts []model.Artifact) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	var completed bool
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			tag, execErr := tx.Exec(ctx, `
				UPDATE render_jobs
				SET status = 'completed',
				    completed_at = $2,
				    updated_at = $2,
				    lease_expires_at = NULL,
				    error = NULL
				WHERE id = $1 AND status = 'running'
			`, jobID, currentTime)
			if execErr != nil {
				return fmt.Errorf("complete job: %w", execErr)
			}
			if tag.RowsAffected() == 0 {
				completed = false
				return nil
			}

			for _, a := range artifacts {
				if _, insErr := tx.Exec(ctx, `
					INSERT INTO render_artifacts(job_id, kind, path, size_bytes, created_at)
					VALUES ($1, $2, $3, $4, $5)
				`, jobID, a.Kind, a.Path, a.SizeBytes, currentTime); insErr != nil {
					return fmt.Errorf("insert artifact %s: %w", a.Kind, insErr)
				}
			}

			completed = true
			return nil
		},
	})
	if err != nil {
		return false, err
	}
	return completed, nil
}

// Fail marks a running job as failed with the given diagnostic message.
// Render failures are never retried; the status guard makes the terminal
// state immutable. Returns false when the job was not running.
func (r *JobRepo) Fail(ctx context.Context, jobID, errMsg string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE render_jobs
		SET status = 'failed',
		    error = $2,
		    completed_at = $3,
		    updated_at = $3,
		    lease_expires_at = NULL
		WHERE id = $1 AND status = 'running'
	`, jobID, errMsg, currentTime)
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM render_jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ArtifactsByJobID returns the artifact records for a job, mesh first.
func (r *JobRepo) ArtifactsByJobID(ctx context.Context, jobID string) ([]*model.Artifact, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT job_id, kind, path, size_bytes, created_at
		FROM render_artifacts
		WHERE job_id = $1
		ORDER BY kind
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			_ = cerr
		}
	}()

	var artifacts []*model.Artifact
	for rows.Next() {
		var a model.Artifact
		if scanErr := rows.Scan(&a.JobID, &a.Kind, &a.Path, &a.SizeBytes, &a.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan artifact: %w", scanErr)
		}
		artifacts = append(artifacts, &a)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", rowsErr)
	}
	return artifacts, nil
}

// GetArtifact returns a single artifact record by job id and kind.
func (r *JobRepo) GetArtifact(ctx context.Context, jobID string, kind model.ArtifactKind) (*model.Artifact, error) {
	var a model.Artifact
	err := r.DB.QueryRowContext(ctx, `
		SELECT job_id, kind, path, size_bytes, created_at
		FROM render_artifacts
		WHERE job_id = $1 AND kind = $2
	`, jobID, kind).Scan(&a.JobID, &a.Kind, &a.Path, &a.SizeBytes, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return &a, nil
}

// CountQueued returns the current queue backlog depth.
func (r *JobRepo) CountQueued(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM render_jobs WHERE status = 'queued'
	`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queued jobs: %w", err)
	}
	return n, nil
}

// Stats returns counts of jobs in each state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'queued')    AS queued,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed
  FROM render_jobs
  `).Scan(
		&s.Queued,
		&s.Running,
		&s.Completed,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	return &s, nil
}

// List returns the most recently created jobs up to limit.
func (r *JobRepo) List(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM render_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			_ = cerr
		}
	}()

	var jobs []*model.Job
	for rows.Next() {
		job, scanErr := scanJobFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate jobs: %w", rowsErr)
	}
	return jobs, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new jobs are available.
func (r *JobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{jobAddedChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", jobAddedChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}
