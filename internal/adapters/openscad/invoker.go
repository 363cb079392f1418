// Package openscad invokes the OpenSCAD compiler over a prepared job workspace.
package openscad

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/scadforge/scadforge/internal/core"
	"github.com/scadforge/scadforge/internal/domain/model"
)

const (
	sourceFilename  = "part.scad"
	meshFilename    = "part.stl"
	previewFilename = "preview.png"

	// maxStderrBytes caps the captured compiler diagnostic. OpenSCAD can
	// emit very long traces on deeply recursive models.
	maxStderrBytes = 4 * 1024
)

// FailureClass labels a render failure for metrics and operator alerts.
type FailureClass string

const (
	// ClassCompileError is a non-zero compiler exit; the diagnostic is
	// the captured stderr and is shown to the client.
	ClassCompileError FailureClass = "compile_error"
	// ClassTimeout is a wall-clock limit breach.
	ClassTimeout FailureClass = "timeout"
	// ClassSpawnError means the compiler binary could not be started.
	// Operator-facing; the client sees a generic message.
	ClassSpawnError FailureClass = "process_spawn_error"
)

// RenderError is a classified compiler invocation failure.
type RenderError struct {
	Class  FailureClass
	Stderr string
	Err    error
}

func (e *RenderError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Class)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ClientMessage returns the diagnostic safe to store on the job and
// show to the submitter.
func (e *RenderError) ClientMessage() string {
	switch e.Class {
	case ClassCompileError:
		if e.Stderr != "" {
			return e.Stderr
		}
		return "compilation failed"
	case ClassTimeout:
		return "timeout exceeded"
	default:
		return "render failed"
	}
}

// Options configures the compiler invoker.
type Options struct {
	Bin     string        // Required: compiler executable
	Timeout time.Duration // Required: wall-clock limit per invocation

	// XvfbCmd optionally wraps preview rendering in a virtual
	// framebuffer, e.g. "xvfb-run -a".
	XvfbCmd string

	PreviewEnabled     bool
	PreviewWidth       int
	PreviewHeight      int
	PreviewColorscheme string

	Logger *slog.Logger
}

// Invoker runs OpenSCAD as a subprocess inside a job's scratch
// directory. The subprocess only ever sees that directory; the source
// guard at submission keeps parent references out of it.
type Invoker struct {
	bin        string
	timeout    time.Duration
	xvfb       []string
	preview    bool
	imgsize    string
	colors     string
	logger     *slog.Logger
}

var _ core.RenderInvoker = (*Invoker)(nil)

// NewInvoker constructs a compiler invoker.
func NewInvoker(opts Options) (*Invoker, error) {
	if strings.TrimSpace(opts.Bin) == "" {
		return nil, errors.New("compiler binary is required")
	}
	if opts.Timeout <= 0 {
		return nil, errors.New("timeout must be positive")
	}

	width, height := opts.PreviewWidth, opts.PreviewHeight
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 600
	}
	colors := strings.TrimSpace(opts.PreviewColorscheme)
	if colors == "" {
		colors = "Tomorrow"
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "openscad_invoker")
	}

	return &Invoker{
		bin:     strings.TrimSpace(opts.Bin),
		timeout: opts.Timeout,
		xvfb:    strings.Fields(opts.XvfbCmd),
		preview: opts.PreviewEnabled,
		imgsize: fmt.Sprintf("--imgsize=%d,%d", width, height),
		colors:  "--colorscheme=" + colors,
		logger:  logger,
	}, nil
}

// Render compiles the workspace source into a mesh and, when enabled, a
// preview image. The whole invocation shares one wall-clock budget. A
// non-nil error is always a *RenderError.
func (inv *Invoker) Render(ctx context.Context, jobID, dir string) ([]model.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	start := time.Now()

	if err := inv.runCompiler(ctx, dir, false); err != nil {
		return nil, err
	}
	artifacts := make([]model.Artifact, 0, 2)
	mesh, err := inv.artifactFor(jobID, dir, model.ArtifactKindMesh, meshFilename)
	if err != nil {
		return nil, err
	}
	artifacts = append(artifacts, mesh)

	if inv.preview {
		if err := inv.runCompiler(ctx, dir, true); err != nil {
			return nil, err
		}
		preview, err := inv.artifactFor(jobID, dir, model.ArtifactKindPreview, previewFilename)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, preview)
	}

	if inv.logger != nil {
		inv.logger.DebugContext(ctx, "render finished",
			"job_id", jobID,
			"artifacts", len(artifacts),
			"elapsed", time.Since(start),
		)
	}

	return artifacts, nil
}

func (inv *Invoker) runCompiler(ctx context.Context, dir string, preview bool) error {
	name, args := inv.commandLine(preview)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = minimalEnv()

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return &RenderError{Class: ClassTimeout, Err: ctx.Err()}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &RenderError{
			Class:  ClassCompileError,
			Stderr: tailString(stderr.String(), maxStderrBytes),
			Err:    err,
		}
	}

	// exec.Error, permission problems, missing binary.
	return &RenderError{Class: ClassSpawnError, Err: err}
}

func (inv *Invoker) commandLine(preview bool) (string, []string) {
	var argv []string
	if preview && len(inv.xvfb) > 0 {
		argv = append(argv, inv.xvfb...)
	}
	argv = append(argv, inv.bin)
	if preview {
		argv = append(argv, "-o", previewFilename,
			inv.imgsize, inv.colors, "--autocenter", "--viewall")
	} else {
		argv = append(argv, "-o", meshFilename)
	}
	argv = append(argv, sourceFilename)
	return argv[0], argv[1:]
}

func (inv *Invoker) artifactFor(jobID, dir string, kind model.ArtifactKind, name string) (model.Artifact, error) {
	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		return model.Artifact{}, &RenderError{
			Class:  ClassCompileError,
			Stderr: fmt.Sprintf("compiler exited cleanly but %s was not created", name),
			Err:    err,
		}
	}
	return model.Artifact{
		JobID:     jobID,
		Kind:      kind,
		Path:      name,
		SizeBytes: info.Size(),
	}, nil
}

// minimalEnv strips the subprocess environment down to an allowlist so
// proxy and credential variables never reach the compiler.
func minimalEnv() []string {
	var env []string
	for _, key := range []string{"PATH", "HOME", "TMPDIR", "DISPLAY", "USER", "LANG"} {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return env
}

func tailString(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
