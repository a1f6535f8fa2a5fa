package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionNone    Action = ""
	ActionWarn    Action = "warn"
	ActionTimeout Action = "timeout"
)

// Decision is the outcome of evaluating one message.
type Decision struct {
	Allowed         bool
	Action          Action
	WarningCount    int64
	Threshold       int
	TimeoutDuration time.Duration
	Reason          string
}

// WarningMessage renders the chat text sent for a Warn decision.
func (d Decision) WarningMessage(username string) string {
	return fmt.Sprintf("@%s: You triggered a moderation rule. This is warning %d of %d.", username, d.WarningCount, d.Threshold)
}

// Thresholds is the rule configuration resolved for one evaluation.
type Thresholds struct {
	MaxEmotes      int
	MaxLength      int
	MaxURLs        int
	MaxBlacklisted int
	MaxWarnings    int
	WarningWindow  time.Duration
}

type BlacklistEntry struct {
	ID        int64
	Pattern   string
	Active    bool
	CreatedAt time.Time
}

// ModerationAction is the audit record of an enforced decision.
type ModerationAction struct {
	ID           uuid.UUID
	Channel      string
	Username     string
	UserID       string
	Action       Action
	WarningCount int64
	Threshold    int
	Reason       string
	CreatedAt    time.Time
}

// WarningLedger is a TTL-bounded atomic counter per user.
type WarningLedger interface {
	Bump(ctx context.Context, userID string, window time.Duration) (int64, error)
	Current(ctx context.Context, userID string) (int64, error)
	Reset(ctx context.Context, userID string) error
}

// SettingsSource resolves integer settings fresh on every call.
type SettingsSource interface {
	GetInt(ctx context.Context, key string, def int) int
}

type BlacklistSource interface {
	ActiveEntries(ctx context.Context) ([]BlacklistEntry, error)
}

type BlacklistRepository interface {
	ListActive(ctx context.Context) ([]BlacklistEntry, error)
	List(ctx context.Context) ([]BlacklistEntry, error)
	Add(ctx context.Context, pattern string) (*BlacklistEntry, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// BlacklistCacheInvalidator drops cached blacklist views.
type BlacklistCacheInvalidator interface {
	InvalidateCache(ctx context.Context) error
}

type ModerationLog interface {
	Record(ctx context.Context, action ModerationAction) error
	ListRecent(ctx context.Context, limit int) ([]ModerationAction, error)
}
