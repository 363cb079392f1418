package httpx

import (
	"net/http"

	"github.com/scadforge/scadforge/internal/service"
)

// AIHandlers provides HTTP handlers for the LLM-assisted source endpoints.
// Both endpoints are synchronous; the render pipeline never depends on them.
type AIHandlers struct {
	Generate *service.GenerateService
	Chat     *service.ChatService
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Source string `json:"source"`
}

// GenerateSource handles POST /api/generate.
func (h *AIHandlers) GenerateSource(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	source, err := h.Generate.Generate(r.Context(), req.Prompt)
	if err != nil {
		RenderAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, generateResponse{Source: source})
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	CurrentSource  string `json:"current_source"`
}

type chatResponse struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
	Source         string `json:"source,omitempty"`
}

// ChatMessage handles POST /api/chat.
func (h *AIHandlers) ChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.Chat.Chat(r.Context(), req.ConversationID, req.Message, req.CurrentSource)
	if err != nil {
		RenderAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, chatResponse{
		ConversationID: result.ConversationID,
		Reply:          result.Reply,
		Source:         result.Source,
	})
}
