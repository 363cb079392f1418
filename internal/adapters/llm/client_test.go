package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scadforge/scadforge/internal/domain/model"
)

func testMessages() []model.ChatMessage {
	return []model.ChatMessage{
		{Role: model.ChatRoleSystem, Content: "You generate OpenSCAD."},
		{Role: model.ChatRoleUser, Content: "a cube"},
	}
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "missing base URL", opts: Options{APIKey: "k", Model: "m"}},
		{name: "missing API key", opts: Options{BaseURL: "https://api.example.com", Model: "m"}},
		{name: "missing model", opts: Options{BaseURL: "https://api.example.com", APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.opts)
			require.Error(t, err)
		})
	}
}

func TestClient_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("sends an OpenAI-compatible request", func(t *testing.T) {
		var gotPath, gotAuth string
		var gotBody chatRequest

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

			_ = json.NewEncoder(w).Encode(chatResponse{
				Model: "gpt-4o-mini",
				Choices: []chatChoice{
					{Message: chatMessage{Role: "assistant", Content: "cube([10, 10, 10]);"}},
				},
				Usage: &chatUsage{TotalTokens: 42},
			})
		}))
		defer srv.Close()

		client, err := NewClient(Options{
			BaseURL: srv.URL,
			APIKey:  "secret-key",
			Model:   "gpt-4o-mini",
			Timeout: 5 * time.Second,
		})
		require.NoError(t, err)

		reply, err := client.Complete(ctx, testMessages())
		require.NoError(t, err)

		assert.Equal(t, "cube([10, 10, 10]);", reply)
		assert.Equal(t, "/v1/chat/completions", gotPath)
		assert.Equal(t, "Bearer secret-key", gotAuth)
		assert.Equal(t, "gpt-4o-mini", gotBody.Model)
		require.Len(t, gotBody.Messages, 2)
		assert.Equal(t, "system", gotBody.Messages[0].Role)
		assert.Equal(t, "a cube", gotBody.Messages[1].Content)
	})

	t.Run("surfacing provider error messages", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded","type":"rate_limit"}}`))
		}))
		defer srv.Close()

		client, err := NewClient(Options{BaseURL: srv.URL, APIKey: "k", Model: "m"})
		require.NoError(t, err)

		_, err = client.Complete(ctx, testMessages())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status=429")
		assert.Contains(t, err.Error(), "rate limit exceeded")
	})

	t.Run("non-JSON error body is truncated into the error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream unavailable"))
		}))
		defer srv.Close()

		client, err := NewClient(Options{BaseURL: srv.URL, APIKey: "k", Model: "m"})
		require.NoError(t, err)

		_, err = client.Complete(ctx, testMessages())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upstream unavailable")
	})

	t.Run("empty choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(chatResponse{})
		}))
		defer srv.Close()

		client, err := NewClient(Options{BaseURL: srv.URL, APIKey: "k", Model: "m"})
		require.NoError(t, err)

		_, err = client.Complete(ctx, testMessages())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no choices")
	})

	t.Run("no messages", func(t *testing.T) {
		client, err := NewClient(Options{BaseURL: "https://api.example.com", APIKey: "k", Model: "m"})
		require.NoError(t, err)

		_, err = client.Complete(ctx, nil)
		require.Error(t, err)
	})

	t.Run("trailing slash on base URL is trimmed", func(t *testing.T) {
		client, err := NewClient(Options{BaseURL: "https://api.example.com/", APIKey: "k", Model: "m"})
		require.NoError(t, err)
		assert.Equal(t, "https://api.example.com", client.baseURL)
	})
}
