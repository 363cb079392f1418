package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/scadforge/scadforge/internal/core"
	"github.com/scadforge/scadforge/internal/domain/model"
	apperrors "github.com/scadforge/scadforge/internal/errors"
)

const (
	modifiedCodeStartMarker = "---MODIFIED-CODE-START---"
	modifiedCodeEndMarker   = "---MODIFIED-CODE-END---"
)

// chatSystemPrompt frames the assistant as an OpenSCAD collaborator.
// Code modifications must be wrapped in the MODIFIED-CODE markers so
// the reply text and the updated source can be split apart reliably.
const chatSystemPrompt = `You are an expert OpenSCAD assistant helping users modify and understand 3D models.

You can explain what the current code does, make modifications on request, answer questions about OpenSCAD syntax, and suggest improvements.

RESPONSE FORMAT:
Decide whether the user is asking for a code modification or just asking a question.

If MODIFYING CODE:
- Start with a brief explanation (1-2 sentences) of what you changed and why.
- Then wrap the COMPLETE modified code in this exact format:

---MODIFIED-CODE-START---
` + "```openscad" + `
[complete modified code here]
` + "```" + `
---MODIFIED-CODE-END---

If JUST ANSWERING:
- Provide a helpful text response only. Do not use the MODIFIED-CODE markers. Regular markdown code blocks are fine for reference snippets.

MODIFICATION RULES:
1. Always output the ENTIRE modified code, not just the changes.
2. Preserve the formatting style of the original code: indentation, comment alignment, variable alignment, and blank line spacing.
3. Never mix 2D primitives (circle, square, polygon) with 3D operations outside of extrusions.
4. Measurements in millimeters.

CURRENT CODE:
` + "```openscad" + `
%s
` + "```"

// ChatServiceOptions groups dependencies for ChatService.
type ChatServiceOptions struct {
	Completer     core.ChatCompleter          // Required: chat completion provider
	Conversations core.ConversationRepository // Required: conversation history store
	Logger        *slog.Logger                // Optional: structured logger

	// MaxHistoryMessages caps how much stored history is replayed into a
	// completion; zero falls back to a conservative default.
	MaxHistoryMessages int
}

const defaultMaxHistoryMessages = 6

// ChatService answers questions about OpenSCAD source and applies
// conversational code modifications. History lives in the conversation
// store keyed by a caller-visible conversation id.
type ChatService struct {
	completer     core.ChatCompleter
	conversations core.ConversationRepository
	logger        *slog.Logger
	maxHistory    int
}

// NewChatService constructs a new ChatService.
func NewChatService(opts ChatServiceOptions) (*ChatService, error) {
	if opts.Completer == nil {
		return nil, errors.New("ChatCompleter is required")
	}
	if opts.Conversations == nil {
		return nil, errors.New("ConversationRepository is required")
	}

	maxHistory := opts.MaxHistoryMessages
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistoryMessages
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "chat_service")
	}

	return &ChatService{
		completer:     opts.Completer,
		conversations: opts.Conversations,
		logger:        logger,
		maxHistory:    maxHistory,
	}, nil
}

// ChatResult is the outcome of one conversation turn.
type ChatResult struct {
	ConversationID string
	Reply          string
	// Source holds the full updated OpenSCAD source when the assistant
	// modified the code; empty when the turn was answer-only.
	Source string
}

// Chat runs one conversation turn: replay stored history, send the user
// message with the current source as context, and split any modified
// code out of the reply. A blank conversationID starts a new
// conversation.
func (s *ChatService) Chat(ctx context.Context, conversationID, message, currentSource string) (*ChatResult, error) {
	if isBlank(message) {
		return nil, apperrors.Validation("message must not be empty")
	}

	if conversationID == "" {
		conversationID = uuid.NewString()
	} else if _, err := uuid.Parse(conversationID); err != nil {
		return nil, apperrors.Validation("conversation_id must be a UUID")
	}

	history, err := s.conversations.History(ctx, conversationID, s.maxHistory)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "load conversation history")
	}

	messages := make([]model.ChatMessage, 0, len(history)+2)
	messages = append(messages, model.ChatMessage{
		Role:    model.ChatRoleSystem,
		Content: fmt.Sprintf(chatSystemPrompt, currentSource),
	})
	messages = append(messages, history...)
	messages = append(messages, model.ChatMessage{
		Role:    model.ChatRoleUser,
		Content: message,
	})

	reply, err := s.completer.Complete(ctx, messages)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "chat completion")
	}

	result := &ChatResult{ConversationID: conversationID}
	result.Reply, result.Source = splitModifiedCode(reply)

	// The source guard from submission applies to model output too; a
	// reply that reaches outside the job directory keeps the original
	// source unchanged.
	if result.Source != "" && parentRefPattern.MatchString(result.Source) {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "discarding modified source with parent path reference",
				"conversation_id", conversationID)
		}
		result.Source = ""
		result.Reply += "\n\nNote: the code modification did not pass validation. The original code remains unchanged."
	}

	if err := s.conversations.Append(ctx, conversationID,
		model.ChatMessage{Role: model.ChatRoleUser, Content: message},
		model.ChatMessage{Role: model.ChatRoleAssistant, Content: reply},
	); err != nil {
		// The reply is already produced; history loss degrades later
		// turns but should not fail this one.
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to persist conversation turn",
				"conversation_id", conversationID, "error", err)
		}
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "chat turn completed",
			"conversation_id", conversationID,
			"modified", result.Source != "",
		)
	}

	return result, nil
}

// splitModifiedCode separates the explanation text from a MODIFIED-CODE
// block. Returns the reply unchanged with empty source when no block is
// present.
func splitModifiedCode(reply string) (text, source string) {
	start := strings.Index(reply, modifiedCodeStartMarker)
	if start < 0 {
		return strings.TrimSpace(reply), ""
	}
	rest := reply[start+len(modifiedCodeStartMarker):]
	end := strings.Index(rest, modifiedCodeEndMarker)
	if end < 0 {
		return strings.TrimSpace(reply), ""
	}

	text = strings.TrimSpace(reply[:start])
	if text == "" {
		text = "I've modified the code as requested."
	}

	source = stripCodeFences(strings.TrimSpace(rest[:end]))
	return text, source
}
