package domain

import (
	"context"
	"time"
)

type UserStats struct {
	Username       string
	UserID         string
	WatchedSeconds int64
	MessageCount   int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserStatsStore applies additive per-field updates keyed by username.
type UserStatsStore interface {
	AddWatchedTime(ctx context.Context, username, userID string, seconds int64) error
	IncrementMessageCount(ctx context.Context, username, userID string) error
	Get(ctx context.Context, username string) (*UserStats, error)
	Top(ctx context.Context, limit int) ([]UserStats, error)
}

type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	List(ctx context.Context) (map[string]string, error)
}
