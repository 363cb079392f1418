package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scadforge/scadforge/internal/domain/model"
)

// RedisConversationRepo stores chat conversation history as a Redis list
// of JSON-encoded messages, bounded by a TTL so abandoned conversations
// expire on their own.
type RedisConversationRepo struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisConversationRepo creates a new RedisConversationRepo with the given Redis client.
func NewRedisConversationRepo(client redis.UniversalClient, ttl time.Duration) *RedisConversationRepo {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisConversationRepo{client: client, ttl: ttl}
}

func conversationKey(conversationID string) string {
	return "conversation:" + conversationID
}

// Append adds messages to the end of a conversation and refreshes its TTL.
func (r *RedisConversationRepo) Append(ctx context.Context, conversationID string, messages ...model.ChatMessage) error {
	if conversationID == "" {
		return errors.New("conversation id cannot be empty")
	}
	if len(messages) == 0 {
		return nil
	}

	values := make([]any, 0, len(messages))
	for _, msg := range messages {
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode chat message: %w", err)
		}
		values = append(values, raw)
	}

	key := conversationKey(conversationID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append conversation: %w", err)
	}
	return nil
}

// History returns the last limit messages of a conversation in order.
// A missing conversation yields an empty history, not an error.
func (r *RedisConversationRepo) History(ctx context.Context, conversationID string, limit int) ([]model.ChatMessage, error) {
	if conversationID == "" {
		return nil, errors.New("conversation id cannot be empty")
	}
	if limit <= 0 {
		return nil, nil
	}

	raw, err := r.client.LRange(ctx, conversationKey(conversationID), int64(-limit), -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis read conversation: %w", err)
	}

	messages := make([]model.ChatMessage, 0, len(raw))
	for _, entry := range raw {
		var msg model.ChatMessage
		if decodeErr := json.Unmarshal([]byte(entry), &msg); decodeErr != nil {
			return nil, fmt.Errorf("decode chat message: %w", decodeErr)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Health checks the health of the Redis connection.
func (r *RedisConversationRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
