package config

import (
	"strings"
	"time"
)

// LLMConfig contains configuration for the OpenAI-compatible code
// generation provider. All fields are loaded with the LLM_ prefix.
type LLMConfig struct {
	// Enabled gates the /api/generate and /api/chat endpoints.
	Enabled bool `env:"ENABLED" envDefault:"false"`

	// BaseURL is the provider base URL (e.g. "https://api.openai.com").
	BaseURL string `env:"BASE_URL" envDefault:"https://api.openai.com"`

	// APIKey authenticates requests to the provider.
	APIKey string `env:"API_KEY"`

	// Model is the chat completion model identifier.
	Model string `env:"MODEL" envDefault:"gpt-4o-mini"`

	// Timeout bounds a single completion request.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`

	// MaxHistoryMessages caps how much conversation history is replayed
	// into a chat completion.
	MaxHistoryMessages int `env:"MAX_HISTORY_MESSAGES" envDefault:"20"`
}

// Sanitize applies guardrails to LLM configuration values.
func (l *LLMConfig) Sanitize() {
	l.BaseURL = strings.TrimRight(strings.TrimSpace(l.BaseURL), "/")
	l.APIKey = strings.TrimSpace(l.APIKey)
	if l.Timeout <= 0 {
		l.Timeout = 60 * time.Second
	}
	if l.MaxHistoryMessages < 1 {
		l.MaxHistoryMessages = 1
	}
	if l.Enabled && l.APIKey == "" {
		l.Enabled = false
	}
}
