package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scadforge/scadforge/internal/domain/model"
)

func TestParsePurgeFlags(t *testing.T) {
	opts, err := parsePurgeFlags([]string{"--age", "30m", "--batch-size", "50", "--yes"})
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, opts.Age)
	require.Equal(t, 50, opts.BatchSize)
	require.True(t, opts.Yes)

	_, err = parsePurgeFlags([]string{"--age", "0s"})
	require.Error(t, err)
}

func TestParseJobsFlagsRejectsNonPositiveLimit(t *testing.T) {
	_, err := parseJobsFlags([]string{"--limit", "0"})
	require.Error(t, err)
}

func TestRenderJobTable(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	completed := created.Add(42 * time.Second)
	renderErr := "ERROR: Parser error in line 3: syntax error"

	jobs := []*model.Job{
		{
			ID:          "1f6d7c1e",
			Status:      model.JobStatusCompleted,
			CreatedAt:   created,
			CompletedAt: &completed,
		},
		{
			ID:        "9b2a44f0",
			Status:    model.JobStatusFailed,
			Error:     &renderErr,
			CreatedAt: created,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderJobTable(&buf, jobs))

	out := buf.String()
	require.Contains(t, out, "ID")
	require.Contains(t, out, "1f6d7c1e")
	require.Contains(t, out, "completed")
	require.Contains(t, out, "2024-03-01T09:30:42Z")
	require.Contains(t, out, "ERROR: Parser error in line 3")
}

func TestRenderJobTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderJobTable(&buf, nil))
	require.Contains(t, buf.String(), "(no jobs found)")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcde...", truncate("abcdefghijk", 8))
}
