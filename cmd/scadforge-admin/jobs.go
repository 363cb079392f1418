package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/scadforge/scadforge/internal/data"
	"github.com/scadforge/scadforge/internal/domain/model"
)

type jobsOptions struct {
	Limit int
}

type purgeOptions struct {
	Age       time.Duration
	BatchSize int
	Yes       bool
}

type failStalledOptions struct {
	BatchSize int
}

type migrateOptions struct {
	Timeout time.Duration
}

const errorColumnWidth = 48

func parseJobsFlags(args []string) (jobsOptions, error) {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := jobsOptions{Limit: 50}
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of jobs to list")

	if err := fs.Parse(args); err != nil {
		return jobsOptions{}, err
	}

	if opts.Limit <= 0 {
		return jobsOptions{}, errors.New("--limit must be greater than zero")
	}

	return opts, nil
}

func parsePurgeFlags(args []string) (purgeOptions, error) {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := purgeOptions{Age: time.Hour, BatchSize: 1000}
	fs.DurationVar(&opts.Age, "age", time.Hour, "Delete terminal jobs older than this duration")
	fs.IntVar(&opts.BatchSize, "batch-size", 1000, "Maximum rows to delete per batch")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return purgeOptions{}, err
	}

	if opts.Age <= 0 {
		return purgeOptions{}, errors.New("--age must be greater than zero")
	}
	if opts.BatchSize <= 0 {
		return purgeOptions{}, errors.New("--batch-size must be greater than zero")
	}

	return opts, nil
}

func parseFailStalledFlags(args []string) (failStalledOptions, error) {
	fs := flag.NewFlagSet("fail-stalled", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := failStalledOptions{BatchSize: 1000}
	fs.IntVar(&opts.BatchSize, "batch-size", 1000, "Maximum rows to update per batch")

	if err := fs.Parse(args); err != nil {
		return failStalledOptions{}, err
	}

	if opts.BatchSize <= 0 {
		return failStalledOptions{}, errors.New("--batch-size must be greater than zero")
	}

	return opts, nil
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{Timeout: defaultMigrationTimeout}
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}

	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

func runListJobs(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobsFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})

		jobs, listErr := repo.List(ctx, opts.Limit)
		if listErr != nil {
			return fmt.Errorf("list jobs: %w", listErr)
		}

		stats, statsErr := repo.Stats(ctx)
		if statsErr != nil {
			return fmt.Errorf("load job stats: %w", statsErr)
		}

		if renderErr := renderJobTable(os.Stdout, jobs); renderErr != nil {
			return renderErr
		}

		return writef(
			os.Stdout,
			"\nQueued: %d  Running: %d  Completed: %d  Failed: %d\n",
			stats.Queued,
			stats.Running,
			stats.Completed,
			stats.Failed,
		)
	})
}

func renderJobTable(w io.Writer, jobs []*model.Job) error {
	if len(jobs) == 0 {
		return writeln(w, "  (no jobs found)")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tSTATUS\tCREATED\tCOMPLETED\tERROR"); err != nil {
		return fmt.Errorf("write job header row: %w", err)
	}

	for _, job := range jobs {
		completed := "-"
		if job.CompletedAt != nil {
			completed = job.CompletedAt.UTC().Format(time.RFC3339)
		}
		errMsg := "-"
		if job.Error != nil {
			errMsg = truncate(*job.Error, errorColumnWidth)
		}
		if err := writef(
			tw,
			"%s\t%s\t%s\t%s\t%s\n",
			job.ID,
			job.Status,
			job.CreatedAt.UTC().Format(time.RFC3339),
			completed,
			errMsg,
		); err != nil {
			return fmt.Errorf("write job row: %w", err)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush job table: %w", err)
	}
	return nil
}

func runPurge(cmdCtx *commandContext, args []string) error {
	opts, err := parsePurgeFlags(args)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf(
		"Delete terminal jobs older than %s from %q and remove their workspaces?",
		opts.Age,
		cmdCtx.Config.Postgres.Name,
	)
	if confirmErr := confirmAction(opts.Yes, prompt); confirmErr != nil {
		return confirmErr
	}

	workspace, err := data.NewFileWorkspaceStore(cmdCtx.Config.Render.WorkspaceDir)
	if err != nil {
		return fmt.Errorf("open workspace store: %w", err)
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
		cutoff := time.Now().Add(-opts.Age)

		var total int
		for {
			ids, delErr := repo.DeleteOldJobs(ctx, cutoff, opts.BatchSize)
			if delErr != nil {
				return fmt.Errorf("delete old jobs: %w", delErr)
			}
			total += len(ids)

			for _, id := range ids {
				if rmErr := workspace.Remove(id); rmErr != nil {
					cmdCtx.Logger.Warn("failed to remove job workspace", "job_id", id, "error", rmErr)
				}
			}

			if len(ids) == 0 {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		cmdCtx.Logger.Info("purge complete", "jobs_deleted", total, "cutoff", cutoff)
		return nil
	})
}

func runFailStalled(cmdCtx *commandContext, args []string) error {
	opts, err := parseFailStalledFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})

		var total int
		for {
			count, failErr := repo.FailStaleRunningJobs(ctx, opts.BatchSize)
			if failErr != nil {
				return fmt.Errorf("fail stalled jobs: %w", failErr)
			}
			total += count
			if count == 0 {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		cmdCtx.Logger.Info("fail-stalled complete", "jobs_failed", total)
		return nil
	})
}

func confirmAction(yes bool, prompt string) error {
	if yes {
		return nil
	}

	if err := writef(os.Stdout, "%s [y/N]: ", prompt); err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	if answer != "y" && answer != "yes" {
		return errors.New("aborted")
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}
