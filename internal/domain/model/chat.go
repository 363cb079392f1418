package model

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	// ChatRoleSystem is the provider-facing instruction role.
	ChatRoleSystem ChatRole = "system"
	// ChatRoleUser is the end-user role.
	ChatRoleUser ChatRole = "user"
	// ChatRoleAssistant is the model response role.
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of a code generation conversation.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}
