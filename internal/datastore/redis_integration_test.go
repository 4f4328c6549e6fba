//go:build integration

package datastore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/spigell/socius/internal/store"
)

// openTestRedis connects to SOCIUS_TEST_REDIS_URL (default localhost:6379) and
// skips the test when redis is not reachable.
func openTestRedis(t *testing.T, historyMax int) *RedisConversations {
	t.Helper()

	url := os.Getenv("SOCIUS_TEST_REDIS_URL")
	if url == "" {
		url = "localhost:6379"
	}
	client, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	conv := NewRedisConversations(client, historyMax)
	if err := conv.Ping(context.Background()); err != nil {
		t.Skip("redis is not running, skipping integration test")
	}
	return conv
}

func TestRedisConversationsRoundTrip(t *testing.T) {
	conv := openTestRedis(t, 3)
	ctx := context.Background()
	id := uuid.New().String()
	t.Cleanup(func() { conv.client.Del(context.Background(), conversationKeyPrefix+id) })

	if _, err := conv.History(ctx, id, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a new conversation, got %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := conv.AppendMessage(ctx, id, store.Message{Sender: "bob", Message: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	history, err := conv.History(ctx, id, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 || history[0].Message != "m2" || history[2].Message != "m4" {
		t.Fatalf("expected the capped tail oldest first, got %+v", history)
	}

	last, err := conv.History(ctx, id, 1)
	if err != nil || len(last) != 1 || last[0].Message != "m4" {
		t.Fatalf("expected the newest message, got %+v (err %v)", last, err)
	}
}
