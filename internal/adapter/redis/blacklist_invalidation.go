package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
)

const blacklistInvalidationChannel = "blacklist:invalidate"

// BlacklistInvalidationSubscriber drops this instance's in-memory blacklist
// whenever another process (usually the operator CLI) edits the list.
type BlacklistInvalidationSubscriber struct {
	rdb   *goredis.Client
	cache *BlacklistCache
}

func NewBlacklistInvalidationSubscriber(rdb *goredis.Client, cache *BlacklistCache) *BlacklistInvalidationSubscriber {
	return &BlacklistInvalidationSubscriber{rdb: rdb, cache: cache}
}

// Start blocks until ctx is cancelled.
func (s *BlacklistInvalidationSubscriber) Start(ctx context.Context) {
	pubsub := s.rdb.Subscribe(ctx, blacklistInvalidationChannel)
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				return
			}
			s.handleInvalidation(ctx, msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (s *BlacklistInvalidationSubscriber) handleInvalidation(ctx context.Context, reason string) {
	s.cache.invalidateLocal()
	slog.DebugContext(ctx, "Blacklist cache invalidated via pub/sub", "reason", reason)
}

// PublishBlacklistInvalidation removes the shared cached copy and tells every
// subscriber to drop its local one.
func PublishBlacklistInvalidation(ctx context.Context, rdb *goredis.Client, reason string) error {
	if err := rdb.Del(ctx, blacklistCacheKey).Err(); err != nil {
		return fmt.Errorf("failed to drop shared blacklist cache: %w", err)
	}
	if err := rdb.Publish(ctx, blacklistInvalidationChannel, reason).Err(); err != nil {
		return fmt.Errorf("failed to publish blacklist invalidation: %w", err)
	}
	return nil
}
