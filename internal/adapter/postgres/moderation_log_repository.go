package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tedkulp/n3rdbot/internal/domain"
)

// ModerationLogRepo is the audit trail of enforced warnings and timeouts.
type ModerationLogRepo struct {
	pool *pgxpool.Pool
}

func NewModerationLogRepo(pool *pgxpool.Pool) *ModerationLogRepo {
	return &ModerationLogRepo{pool: pool}
}

func (r *ModerationLogRepo) Record(ctx context.Context, a domain.ModerationAction) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO moderation_actions (id, channel, username, user_id, action, warning_count, threshold, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Channel, a.Username, a.UserID, string(a.Action), a.WarningCount, a.Threshold, a.Reason)
	if err != nil {
		return fmt.Errorf("%w: moderation action: %w", domain.ErrPersistenceWriteFailed, err)
	}
	return nil
}

func (r *ModerationLogRepo) ListRecent(ctx context.Context, limit int) ([]domain.ModerationAction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, channel, username, user_id, action, warning_count, threshold, reason, created_at
		FROM moderation_actions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list moderation actions: %w", err)
	}

	actions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ModerationAction, error) {
		var a domain.ModerationAction
		var action string
		err := row.Scan(&a.ID, &a.Channel, &a.Username, &a.UserID, &action, &a.WarningCount, &a.Threshold, &a.Reason, &a.CreatedAt)
		a.Action = domain.Action(action)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan moderation actions: %w", err)
	}
	return actions, nil
}
