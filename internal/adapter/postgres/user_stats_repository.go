package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tedkulp/n3rdbot/internal/domain"
)

// UserStatsRepo keeps cumulative per-user counters. Each field is updated
// additively in its own statement, so a watch time flush and a message count
// for the same user never overwrite each other.
type UserStatsRepo struct {
	pool *pgxpool.Pool
}

func NewUserStatsRepo(pool *pgxpool.Pool) *UserStatsRepo {
	return &UserStatsRepo{pool: pool}
}

const addWatchedTimeSQL = `
INSERT INTO users (username, user_id, watched_seconds)
VALUES ($1, NULLIF($2, ''), $3)
ON CONFLICT (username) DO UPDATE SET
    watched_seconds = users.watched_seconds + EXCLUDED.watched_seconds,
    user_id         = COALESCE(EXCLUDED.user_id, users.user_id),
    updated_at      = NOW()`

func (r *UserStatsRepo) AddWatchedTime(ctx context.Context, username, userID string, seconds int64) error {
	if seconds <= 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx, addWatchedTimeSQL, username, userID, seconds); err != nil {
		return fmt.Errorf("%w: watched time for %s: %w", domain.ErrPersistenceWriteFailed, username, err)
	}
	return nil
}

const incrementMessageCountSQL = `
INSERT INTO users (username, user_id, message_count)
VALUES ($1, NULLIF($2, ''), 1)
ON CONFLICT (username) DO UPDATE SET
    message_count = users.message_count + 1,
    user_id       = COALESCE(EXCLUDED.user_id, users.user_id),
    updated_at    = NOW()`

func (r *UserStatsRepo) IncrementMessageCount(ctx context.Context, username, userID string) error {
	if _, err := r.pool.Exec(ctx, incrementMessageCountSQL, username, userID); err != nil {
		return fmt.Errorf("%w: message count for %s: %w", domain.ErrPersistenceWriteFailed, username, err)
	}
	return nil
}

const userStatsColumns = `username, COALESCE(user_id, ''), watched_seconds, message_count, created_at, updated_at`

func scanUserStats(row pgx.Row) (*domain.UserStats, error) {
	var s domain.UserStats
	if err := row.Scan(&s.Username, &s.UserID, &s.WatchedSeconds, &s.MessageCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *UserStatsRepo) Get(ctx context.Context, username string) (*domain.UserStats, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userStatsColumns+` FROM users WHERE username = $1`, username)
	s, err := scanUserStats(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	return s, nil
}

// Top returns users ordered by watch time, highest first.
func (r *UserStatsRepo) Top(ctx context.Context, limit int) ([]domain.UserStats, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userStatsColumns+` FROM users ORDER BY watched_seconds DESC, username LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top users: %w", err)
	}
	defer rows.Close()

	var out []domain.UserStats
	for rows.Next() {
		s, err := scanUserStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user stats: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list top users: %w", err)
	}
	return out, nil
}
