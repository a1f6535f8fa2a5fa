package domain

import (
	"context"
	"time"
)

// Sender is the chat metadata attached to a message.
type Sender struct {
	UserID        string
	Username      string
	DisplayName   string
	IsModerator   bool
	IsBroadcaster bool
	// EmotesRaw is the unparsed emote annotation, e.g. "25:0-4,12-16/1902:6-10".
	EmotesRaw string
}

// Exempt reports whether moderation must skip this sender entirely.
func (s Sender) Exempt() bool {
	return s.IsModerator || s.IsBroadcaster
}

type ChatMessage struct {
	ID      string
	Channel string
	Text    string
	Sender  Sender
	SentAt  time.Time
	Raw     string
}

// MembershipEvent covers join, part, mod and unmod.
type MembershipEvent struct {
	Channel  string
	Username string
}

// RosterEvent covers the names and mods snapshots.
type RosterEvent struct {
	Channel   string
	Usernames []string
}

// StreamEvent covers online and offline notifications.
type StreamEvent struct {
	Channel       string
	BroadcasterID string
	At            time.Time
}

// ChatControl performs moderation actions against the chat network.
type ChatControl interface {
	Say(ctx context.Context, channel, text string) error
	Timeout(ctx context.Context, channel string, target Sender, duration time.Duration, reason string) error
}
