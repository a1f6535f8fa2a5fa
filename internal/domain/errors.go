package domain

import "errors"

var (
	// ErrCounterUnavailable means the warning counter store could not be
	// reached during a bump. Evaluation fails closed.
	ErrCounterUnavailable = errors.New("warning counter unavailable")

	// ErrIdentityLookupFailed is logged and leaves the watcher unresolved.
	ErrIdentityLookupFailed = errors.New("identity lookup failed")

	// ErrPersistenceWriteFailed is per-user and never aborts a flush.
	ErrPersistenceWriteFailed = errors.New("persistence write failed")

	ErrUserNotFound           = errors.New("user not found")
	ErrSettingNotFound        = errors.New("setting not found")
	ErrBlacklistEntryNotFound = errors.New("blacklist entry not found")
)
