package config

import (
	"strings"
	"time"
)

// RenderConfig contains render pipeline limits and compiler invocation settings.
// All fields are loaded with the RENDER_ prefix.
type RenderConfig struct {
	// MaxSourceBytes is the maximum accepted OpenSCAD source size.
	MaxSourceBytes int `env:"MAX_SOURCE_BYTES" envDefault:"102400"`

	// JobTimeout is the wall-clock limit for a single compiler invocation.
	JobTimeout time.Duration `env:"JOB_TIMEOUT" envDefault:"120s"`

	// QueueBacklogLimit is the maximum number of queued jobs before
	// submissions are refused.
	QueueBacklogLimit int `env:"QUEUE_BACKLOG_LIMIT" envDefault:"100"`

	// OpenSCADBin is the compiler executable.
	OpenSCADBin string `env:"OPENSCAD_BIN" envDefault:"openscad"`

	// XvfbCmd optionally wraps preview rendering in a virtual framebuffer,
	// e.g. "xvfb-run -a". Empty disables the wrapper.
	XvfbCmd string `env:"XVFB_CMD" envDefault:""`

	// WorkspaceDir is the root directory holding one scratch directory per job.
	WorkspaceDir string `env:"WORKSPACE_DIR" envDefault:"/var/lib/scadforge/jobs"`

	// PreviewEnabled controls PNG preview rendering alongside the mesh.
	PreviewEnabled bool `env:"PREVIEW_ENABLED" envDefault:"true"`

	// PreviewWidth and PreviewHeight set the preview image size.
	PreviewWidth  int `env:"PREVIEW_WIDTH"  envDefault:"800"`
	PreviewHeight int `env:"PREVIEW_HEIGHT" envDefault:"600"`

	// PreviewColorscheme is the OpenSCAD color scheme for previews.
	PreviewColorscheme string `env:"PREVIEW_COLORSCHEME" envDefault:"Tomorrow"`
}

// Sanitize applies guardrails to render configuration values.
func (r *RenderConfig) Sanitize() {
	if r.MaxSourceBytes < 1 {
		r.MaxSourceBytes = 102400
	}
	if r.JobTimeout < time.Second {
		r.JobTimeout = time.Second
	}
	if r.QueueBacklogLimit < 1 {
		r.QueueBacklogLimit = 1
	}
	r.OpenSCADBin = strings.TrimSpace(r.OpenSCADBin)
	if r.OpenSCADBin == "" {
		r.OpenSCADBin = "openscad"
	}
	r.XvfbCmd = strings.TrimSpace(r.XvfbCmd)
	r.WorkspaceDir = strings.TrimSpace(r.WorkspaceDir)
	if r.PreviewWidth < 1 {
		r.PreviewWidth = 800
	}
	if r.PreviewHeight < 1 {
		r.PreviewHeight = 600
	}
	if strings.TrimSpace(r.PreviewColorscheme) == "" {
		r.PreviewColorscheme = "Tomorrow"
	}
}
