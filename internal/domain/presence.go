package domain

import (
	"context"
	"time"
)

// Watcher is one participant believed present in a channel. Values are
// snapshots; the registry replaces them rather than mutating in place.
type Watcher struct {
	Username         string
	UserID           string // empty until resolved
	IsModerator      bool
	JoinedAt         time.Time
	LastReconciledAt time.Time
}

func (w Watcher) Resolved() bool { return w.UserID != "" }

// Accrual is the watch time a watcher gained since its last reconciliation.
type Accrual struct {
	Channel  string
	Username string
	UserID   string
	Elapsed  time.Duration
}

// Seconds rounds the elapsed time to whole seconds, halves away from zero.
func (a Accrual) Seconds() int64 {
	return int64(a.Elapsed.Round(time.Second) / time.Second)
}

type IdentityLookup interface {
	GetUserID(ctx context.Context, username string) (string, error)
}

// LivenessSignal reports whether the monitored stream is live.
type LivenessSignal interface {
	IsOnline(ctx context.Context) (bool, error)
}

// LivenessRecorder stores the live flag driven by stream notifications.
type LivenessRecorder interface {
	SetOnline(ctx context.Context, online bool) error
}

// FlushLease elects the single instance allowed to credit watch time.
type FlushLease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}
