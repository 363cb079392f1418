package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/scadforge/scadforge/internal/core"
	"github.com/scadforge/scadforge/internal/domain/model"
	apperrors "github.com/scadforge/scadforge/internal/errors"
)

// generateSystemPrompt instructs the provider to emit raw OpenSCAD with
// no surrounding prose. Fences are stripped anyway in case the model
// ignores the instruction.
const generateSystemPrompt = `You are an expert OpenSCAD code generator producing valid, renderable 3D models.

RULES:
1. Generate ONLY 3D objects (cube, sphere, cylinder, polyhedron). Never mix 2D primitives (circle, square, polygon) with 3D operations outside of linear_extrude or rotate_extrude.
2. Output ONLY raw OpenSCAD code. No markdown, no code fences, no explanations outside comments.
3. Use center=true for primitives so models sit at the origin.
4. Use $fn=100 for curved surfaces.
5. All measurements in millimeters with reasonable sizes (10-100mm typical).
6. Start with a comment header describing the model, group parameters with section comments, and use descriptive variable names.
7. The last line must create a 3D object, either directly or through a module call.`

// GenerateServiceOptions groups dependencies for GenerateService.
type GenerateServiceOptions struct {
	Completer core.ChatCompleter // Required: chat completion provider
	Logger    *slog.Logger       // Optional: structured logger
}

// GenerateService turns natural language prompts into OpenSCAD source
// through a single chat completion call. The render pipeline never
// depends on this service; generated source enters it through the same
// submission path as hand-written source.
type GenerateService struct {
	completer core.ChatCompleter
	logger    *slog.Logger
}

// NewGenerateService constructs a new GenerateService.
func NewGenerateService(opts GenerateServiceOptions) (*GenerateService, error) {
	if opts.Completer == nil {
		return nil, errors.New("ChatCompleter is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "generate_service")
	}

	return &GenerateService{
		completer: opts.Completer,
		logger:    logger,
	}, nil
}

// Generate produces OpenSCAD source for a natural language prompt.
func (s *GenerateService) Generate(ctx context.Context, prompt string) (string, error) {
	if isBlank(prompt) {
		return "", apperrors.Validation("prompt must not be empty")
	}

	reply, err := s.completer.Complete(ctx, promptMessages(generateSystemPrompt, "Create OpenSCAD code for: "+prompt))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "generate source")
	}

	source := stripCodeFences(reply)
	if isBlank(source) {
		return "", apperrors.Internal("provider returned no source")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "source generated",
			"prompt_bytes", len(prompt),
			"source_bytes", len(source),
		)
	}

	return source, nil
}

func promptMessages(system, user string) []model.ChatMessage {
	return []model.ChatMessage{
		{Role: model.ChatRoleSystem, Content: system},
		{Role: model.ChatRoleUser, Content: user},
	}
}

// stripCodeFences removes a single wrapping markdown fence, with or
// without a language tag, from a completion reply.
func stripCodeFences(s string) string {
	code := strings.TrimSpace(s)
	if !strings.HasPrefix(code, "```") {
		return code
	}

	lines := strings.Split(code, "\n")
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
