package data

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// sourceFilename is the on-disk name of the submitted source inside a job workspace.
const sourceFilename = "part.scad"

// FileWorkspaceStore keeps one scratch directory per job under a root
// directory. The directory holds the submitted source and any produced
// artifacts; the compiler subprocess is confined to it.
type FileWorkspaceStore struct {
	root string
}

// NewFileWorkspaceStore creates the store and ensures the root directory exists.
func NewFileWorkspaceStore(root string) (*FileWorkspaceStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("workspace root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &FileWorkspaceStore{root: root}, nil
}

// Root returns the workspace root directory.
func (s *FileWorkspaceStore) Root() string {
	return s.root
}

// JobDir returns the scratch directory path for a job.
func (s *FileWorkspaceStore) JobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

// Prepare creates the job's scratch directory and writes the source into it.
func (s *FileWorkspaceStore) Prepare(jobID, source string) (string, error) {
	if err := validateJobID(jobID); err != nil {
		return "", err
	}

	dir := s.JobDir(jobID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create job dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, sourceFilename), []byte(source), 0o640); err != nil {
		return "", fmt.Errorf("write source: %w", err)
	}
	return dir, nil
}

// ReadFile reads a file from within the job's scratch directory. The name
// must be a bare filename; path separators are rejected to keep reads
// confined to the workspace.
func (s *FileWorkspaceStore) ReadFile(jobID, name string) ([]byte, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid workspace filename: %q", name)
	}

	data, err := os.ReadFile(filepath.Join(s.JobDir(jobID), name))
	if err != nil {
		return nil, fmt.Errorf("read workspace file: %w", err)
	}
	return data, nil
}

// Remove deletes the job's scratch directory and everything in it.
func (s *FileWorkspaceStore) Remove(jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.JobDir(jobID)); err != nil {
		return fmt.Errorf("remove job dir: %w", err)
	}
	return nil
}

// validateJobID ensures the id is a UUID before it is used as a path
// component, which rules out traversal through crafted ids.
func validateJobID(jobID string) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return fmt.Errorf("invalid job id %q: %w", jobID, err)
	}
	return nil
}
