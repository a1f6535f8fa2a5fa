package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tedkulp/n3rdbot/internal/domain"
)

type BlacklistRepo struct {
	pool *pgxpool.Pool
}

func NewBlacklistRepo(pool *pgxpool.Pool) *BlacklistRepo {
	return &BlacklistRepo{pool: pool}
}

func (r *BlacklistRepo) ListActive(ctx context.Context) ([]domain.BlacklistEntry, error) {
	return r.query(ctx, `SELECT id, pattern, active, created_at FROM blacklist_entries WHERE active ORDER BY id`)
}

func (r *BlacklistRepo) List(ctx context.Context) ([]domain.BlacklistEntry, error) {
	return r.query(ctx, `SELECT id, pattern, active, created_at FROM blacklist_entries ORDER BY id`)
}

func (r *BlacklistRepo) query(ctx context.Context, sql string) ([]domain.BlacklistEntry, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklist entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.BlacklistEntry])
	if err != nil {
		return nil, fmt.Errorf("failed to scan blacklist entries: %w", err)
	}
	return entries, nil
}

// Add inserts a pattern, reactivating it when it already exists.
func (r *BlacklistRepo) Add(ctx context.Context, pattern string) (*domain.BlacklistEntry, error) {
	var e domain.BlacklistEntry
	err := r.pool.QueryRow(ctx, `
		INSERT INTO blacklist_entries (pattern) VALUES ($1)
		ON CONFLICT (pattern) DO UPDATE SET active = TRUE
		RETURNING id, pattern, active, created_at`, pattern).
		Scan(&e.ID, &e.Pattern, &e.Active, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add blacklist entry: %w", err)
	}
	return &e, nil
}

func (r *BlacklistRepo) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE blacklist_entries SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update blacklist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBlacklistEntryNotFound
	}
	return nil
}
