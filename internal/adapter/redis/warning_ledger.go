package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tedkulp/n3rdbot/internal/domain"
)

// DefaultWarningWindow applies when a caller passes a non-positive window.
const DefaultWarningWindow = 10 * time.Minute

// WarningLedger counts moderation violations per user in Redis. Each bump
// runs INCR and EXPIRE in one MULTI/EXEC, so concurrent violations from the
// same user never observe the same value and every violation restarts the window.
type WarningLedger struct {
	rdb goredis.Cmdable
}

func NewWarningLedger(rdb goredis.Cmdable) *WarningLedger {
	return &WarningLedger{rdb: rdb}
}

func (l *WarningLedger) Bump(ctx context.Context, userID string, window time.Duration) (int64, error) {
	if window <= 0 {
		window = DefaultWarningWindow
	}
	key := warningKey(userID)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: bump %s: %w", domain.ErrCounterUnavailable, key, err)
	}
	return incr.Val(), nil
}

func (l *WarningLedger) Current(ctx context.Context, userID string) (int64, error) {
	n, err := l.rdb.Get(ctx, warningKey(userID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrCounterUnavailable, err)
	}
	return n, nil
}

func (l *WarningLedger) Reset(ctx context.Context, userID string) error {
	if err := l.rdb.Del(ctx, warningKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCounterUnavailable, err)
	}
	return nil
}

func warningKey(userID string) string {
	return "warning_threshold:" + userID
}
