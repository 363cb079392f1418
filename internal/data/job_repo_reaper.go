package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scadforge/scadforge/internal/data/pgxutil"
)

// StalledJobError is the diagnostic recorded when the reaper force-fails
// a running job whose worker stopped making progress.
const StalledJobError = "render worker stalled"

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 1000 is reserved for scadforge reaper operations.
const (
	advisoryLockReaperMajor       = 1000
	advisoryLockReaperFailStalled = 1 // minor key for FailStaleRunningJobs
	advisoryLockReaperDelete      = 2 // minor key for DeleteOldJobs
)

// FailStaleRunningJobs force-fails running jobs whose lease has expired.
// The owning worker is presumed dead; the job must never stay running
// forever. Processes up to batchSize jobs per call and uses advisory
// locks so concurrent reaper instances do not conflict.
// Returns the number of jobs marked as failed.
func (r *JobRepo) FailStaleRunningJobs(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperFailStalled).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now().UTC()

			res, err := tx.ExecContext(ctx, `
				UPDATE render_jobs
				SET status = 'failed',
					error = $1,
					completed_at = $2,
					updated_at = $2,
					lease_expires_at = NULL
				WHERE id IN (
					SELECT id FROM render_jobs
					WHERE status = 'running'
					  AND lease_expires_at IS NOT NULL
					  AND lease_expires_at < $2
					ORDER BY lease_expires_at
					LIMIT $3
				)
			`, StalledJobError, currentTime, batchSize)
			if err != nil {
				return fmt.Errorf("fail stale running jobs: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}

// DeleteOldJobs deletes jobs created before the cutoff regardless of
// status, except jobs still holding an active lease. Artifact rows go
// with them via ON DELETE CASCADE. Returns the deleted job ids so the
// caller can reclaim their scratch directories.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, cutoff time.Time, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		return nil, errors.New("batch size must be greater than zero")
	}

	var deleted []string
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDelete).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				deleted = nil
				return nil
			}

			currentTime := r.timeProvider.Now().UTC()

			rows, err := tx.QueryContext(ctx, `
				DELETE FROM render_jobs
				WHERE id IN (
					SELECT id FROM render_jobs
					WHERE created_at < $1
					  AND (lease_expires_at IS NULL OR lease_expires_at <= $2)
					ORDER BY created_at
					LIMIT $3
				)
				RETURNING id
			`, cutoff.UTC(), currentTime, batchSize)
			if err != nil {
				return fmt.Errorf("delete old jobs: %w", err)
			}
			defer func() {
				if cerr := rows.Close(); cerr != nil {
					_ = cerr
				}
			}()

			for rows.Next() {
				var id string
				if scanErr := rows.Scan(&id); scanErr != nil {
					return fmt.Errorf("scan deleted id: %w", scanErr)
				}
				deleted = append(deleted, id)
			}
			if rowsErr := rows.Err(); rowsErr != nil {
				return fmt.Errorf("iterate deleted ids: %w", rowsErr)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
