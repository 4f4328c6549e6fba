package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSize = 256
	DefaultTTL  = 30 * time.Minute
)

// Factory builds the session value for a user.
type Factory[T any] func(ctx context.Context, userID string) (T, error)

// Registry keeps one session per user, bounded in size and lifetime.
// Concurrent lookups of a missing user share a single Factory call.
type Registry[T any] struct {
	cache   *expirable.LRU[string, T]
	factory Factory[T]
	group   singleflight.Group
	logger  *zap.Logger
}

func New[T any](size int, ttl time.Duration, factory Factory[T], logger *zap.Logger) *Registry[T] {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	onEvict := func(userID string, _ T) {
		logger.Debug("session evicted", zap.String("user_id", userID))
	}

	return &Registry[T]{
		cache:   expirable.NewLRU[string, T](size, onEvict, ttl),
		factory: factory,
		logger:  logger,
	}
}

// Get returns the cached session of userID, creating it when absent or expired.
func (r *Registry[T]) Get(ctx context.Context, userID string) (T, error) {
	var zero T

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return zero, fmt.Errorf("user id is required")
	}

	if v, ok := r.cache.Get(userID); ok {
		return v, nil
	}

	// The shared creation outlives the caller that started it; each caller
	// stops waiting on its own context.
	ch := r.group.DoChan(userID, func() (any, error) {
		if v, ok := r.cache.Get(userID); ok {
			return v, nil
		}

		created, err := r.factory(context.WithoutCancel(ctx), userID)
		if err != nil {
			return nil, err
		}

		r.cache.Add(userID, created)
		r.logger.Debug("session created", zap.String("user_id", userID))
		return created, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return zero, fmt.Errorf("create session for %s: %w", userID, ctx.Err())
	}
	if res.Err != nil {
		return zero, fmt.Errorf("create session for %s: %w", userID, res.Err)
	}

	return res.Val.(T), nil
}

// Evict drops the session of userID so the next Get rebuilds it.
func (r *Registry[T]) Evict(userID string) bool {
	return r.cache.Remove(userID)
}

func (r *Registry[T]) Len() int {
	return r.cache.Len()
}
