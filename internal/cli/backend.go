package cli

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tedkulp/n3rdbot/internal/adapter/postgres"
	"github.com/tedkulp/n3rdbot/internal/adapter/redis"
	"github.com/tedkulp/n3rdbot/internal/domain"
)

var errRedisNotConfigured = errors.New("REDIS_URL is required for this command")

// Backend holds the stores the commands operate on. Warnings and
// InvalidateBlacklist are nil when Redis is not configured.
type Backend struct {
	Stats     domain.UserStatsStore
	Settings  domain.SettingsRepository
	Blacklist domain.BlacklistRepository
	Actions   domain.ModerationLog
	Warnings  domain.WarningLedger

	Migrate             func(ctx context.Context) error
	InvalidateBlacklist func(ctx context.Context, reason string) error

	closers []func()
}

func (b *Backend) Close() {
	for _, c := range b.closers {
		c()
	}
}

func (b *Backend) warnings() (domain.WarningLedger, error) {
	if b.Warnings == nil {
		return nil, errRedisNotConfigured
	}
	return b.Warnings, nil
}

// invalidate tells running bots to reload the blacklist. Without Redis the
// change shows up once their caches expire.
func (b *Backend) invalidate(ctx context.Context, reason string) error {
	if b.InvalidateBlacklist == nil {
		return nil
	}
	return b.InvalidateBlacklist(ctx, reason)
}

// OpenBackend connects to PostgreSQL and, when configured, Redis.
func OpenBackend(ctx context.Context, cfg *Config) (*Backend, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, nil)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		Stats:     postgres.NewUserStatsRepo(pool),
		Settings:  postgres.NewSettingsRepo(pool),
		Blacklist: postgres.NewBlacklistRepo(pool),
		Actions:   postgres.NewModerationLogRepo(pool),
		Migrate: func(ctx context.Context) error {
			return postgres.RunMigrationsWithLock(ctx, pool)
		},
		closers: []func(){pool.Close},
	}

	if cfg.RedisURL != "" {
		rdb, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.attachRedis(rdb)
	}
	return b, nil
}

func (b *Backend) attachRedis(rdb *goredis.Client) {
	b.Warnings = redis.NewWarningLedger(rdb)
	b.InvalidateBlacklist = func(ctx context.Context, reason string) error {
		return redis.PublishBlacklistInvalidation(ctx, rdb, reason)
	}
	b.closers = append(b.closers, func() { _ = rdb.Close() })
}
