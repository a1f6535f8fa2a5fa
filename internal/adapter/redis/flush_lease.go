package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tedkulp/n3rdbot/internal/domain"
)

const (
	flushLeaseKey        = "uptime:leader"
	DefaultFlushLeaseTTL = 3 * time.Minute
)

// Extends the lease only if this instance holds it.
var renewLeaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseLeaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// FlushLease is a SET NX lease naming the instance that runs uptime flushes.
// The TTL should exceed the flush interval so a live leader keeps it.
type FlushLease struct {
	rdb        goredis.Cmdable
	instanceID string
	ttl        time.Duration
}

var _ domain.FlushLease = (*FlushLease)(nil)

// NewFlushLease creates a lease. instanceID must be unique per process.
func NewFlushLease(rdb goredis.Cmdable, instanceID string, ttl time.Duration) *FlushLease {
	if ttl <= 0 {
		ttl = DefaultFlushLeaseTTL
	}
	return &FlushLease{rdb: rdb, instanceID: instanceID, ttl: ttl}
}

// Acquire takes the lease if it is free, or renews it if this instance
// already holds it.
func (l *FlushLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, flushLeaseKey, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire flush lease: %w", err)
	}
	if ok {
		return true, nil
	}

	renewed, err := renewLeaseScript.Run(ctx, l.rdb, []string{flushLeaseKey}, l.instanceID, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to renew flush lease: %w", err)
	}
	return renewed == 1, nil
}

// Release gives the lease up if this instance holds it.
func (l *FlushLease) Release(ctx context.Context) error {
	if err := releaseLeaseScript.Run(ctx, l.rdb, []string{flushLeaseKey}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to release flush lease: %w", err)
	}
	return nil
}
