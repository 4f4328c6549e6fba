package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spigell/socius/internal/store"
)

const (
	conversationKeyPrefix = "socius:conversation:"
	DefaultHistoryMax     = 500
)

// Connect initializes a redis client from a redis:// URL or a host:port address.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisConversations keeps each conversation as a capped redis list of JSON messages.
type RedisConversations struct {
	client     redis.UniversalClient
	historyMax int64
	now        func() time.Time
}

func NewRedisConversations(client redis.UniversalClient, historyMax int) *RedisConversations {
	if historyMax <= 0 {
		historyMax = DefaultHistoryMax
	}
	return &RedisConversations{client: client, historyMax: int64(historyMax), now: time.Now}
}

func (r *RedisConversations) AppendMessage(ctx context.Context, conversationID string, msg store.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.now().UTC()
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	key := conversationKeyPrefix + conversationID
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, payload)
		p.LTrim(ctx, key, -r.historyMax, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("appending to conversation %s: %w", conversationID, err)
	}
	return nil
}

// History returns up to limit most recent messages, oldest first. An unknown
// conversation is ErrNotFound.
func (r *RedisConversations) History(ctx context.Context, conversationID string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	raw, err := r.client.LRange(ctx, conversationKeyPrefix+conversationID, -int64(limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading conversation %s: %w", conversationID, err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}

	history := make([]store.Message, 0, len(raw))
	for _, item := range raw {
		var m store.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decoding message of %s: %w", conversationID, err)
		}
		history = append(history, m)
	}
	return history, nil
}

func (r *RedisConversations) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
