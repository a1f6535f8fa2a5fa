package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tedkulp/n3rdbot/internal/adapter/metrics"
	"github.com/tedkulp/n3rdbot/internal/domain"
	"github.com/tedkulp/n3rdbot/internal/eventbus"
	"github.com/tedkulp/n3rdbot/internal/platform/telemetry"
	"github.com/tedkulp/n3rdbot/internal/rules"
)

// Setting keys and their defaults.
const (
	SettingMaxEmotes        = "moderation.maxEmoteCount"
	SettingMaxLength        = "moderation.maxMessageLength"
	SettingMaxURLs          = "moderation.maxUrlCount"
	SettingMaxBlacklisted   = "moderation.maxBlacklistedWordsCount"
	SettingMaxWarnings      = "moderation.maxWarningThreshold"
	SettingWarningWindowSec = "moderation.warningWindowSeconds"

	DefaultMaxEmotes        = 15
	DefaultMaxLength        = 300
	DefaultMaxURLs          = 0
	DefaultMaxBlacklisted   = 0
	DefaultMaxWarnings      = 3
	DefaultWarningWindowSec = 10 * 60
)

const (
	// A one second timeout clears the user's recent chat without banning them.
	timeoutDuration = time.Second
	timeoutReason   = "Triggered moderation -- clearing chat"
)

// ModerationPolicy decides whether a message is allowed and, if not, how to
// escalate. It performs no chat delivery.
type ModerationPolicy struct {
	settings domain.SettingsSource
	ledger   domain.WarningLedger
	matcher  *rules.Matcher
}

func NewModerationPolicy(settings domain.SettingsSource, ledger domain.WarningLedger, matcher *rules.Matcher) *ModerationPolicy {
	return &ModerationPolicy{settings: settings, ledger: ledger, matcher: matcher}
}

// Thresholds reads the current rule configuration. Nothing is cached.
func (p *ModerationPolicy) Thresholds(ctx context.Context) domain.Thresholds {
	return domain.Thresholds{
		MaxEmotes:      p.settings.GetInt(ctx, SettingMaxEmotes, DefaultMaxEmotes),
		MaxLength:      p.settings.GetInt(ctx, SettingMaxLength, DefaultMaxLength),
		MaxURLs:        p.settings.GetInt(ctx, SettingMaxURLs, DefaultMaxURLs),
		MaxBlacklisted: p.settings.GetInt(ctx, SettingMaxBlacklisted, DefaultMaxBlacklisted),
		MaxWarnings:    p.settings.GetInt(ctx, SettingMaxWarnings, DefaultMaxWarnings),
		WarningWindow:  time.Duration(p.settings.GetInt(ctx, SettingWarningWindowSec, DefaultWarningWindowSec)) * time.Second,
	}
}

// Evaluate checks msg against the four rule counters. On a violation it bumps
// the sender's warning count and picks Warn or Timeout. A ledger failure
// yields a not-allowed decision without an action, plus an error wrapping
// domain.ErrCounterUnavailable.
func (p *ModerationPolicy) Evaluate(ctx context.Context, msg string, sender domain.Sender, entries []domain.BlacklistEntry) (domain.Decision, error) {
	if strings.TrimSpace(msg) == "" || sender.Exempt() {
		return domain.Decision{Allowed: true}, nil
	}

	t := p.Thresholds(ctx)
	counts := p.matcher.Measure(msg, sender, entries)
	if counts.Within(t) {
		return domain.Decision{Allowed: true}, nil
	}

	key := sender.UserID
	if key == "" {
		key = sender.Username
	}

	count, err := p.ledger.Bump(ctx, key, t.WarningWindow)
	if err != nil {
		if !errors.Is(err, domain.ErrCounterUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrCounterUnavailable, err)
		}
		return domain.Decision{Threshold: t.MaxWarnings}, err
	}

	if count >= int64(t.MaxWarnings) {
		return domain.Decision{
			Action:          domain.ActionTimeout,
			WarningCount:    count,
			Threshold:       t.MaxWarnings,
			TimeoutDuration: timeoutDuration,
			Reason:          timeoutReason,
		}, nil
	}

	return domain.Decision{
		Action:       domain.ActionWarn,
		WarningCount: count,
		Threshold:    t.MaxWarnings,
	}, nil
}

// Moderator handles chat messages: it evaluates them and carries out the
// resulting decision through chat control.
type Moderator struct {
	policy    *ModerationPolicy
	blacklist domain.BlacklistSource
	chat      domain.ChatControl
	audit     domain.ModerationLog
	metrics   *metrics.ModerationMetrics
	clock     clockwork.Clock
}

// NewModerator wires the message handler. audit may be nil.
func NewModerator(
	policy *ModerationPolicy,
	blacklist domain.BlacklistSource,
	chat domain.ChatControl,
	audit domain.ModerationLog,
	m *metrics.ModerationMetrics,
	clock clockwork.Clock,
) *Moderator {
	return &Moderator{
		policy:    policy,
		blacklist: blacklist,
		chat:      chat,
		audit:     audit,
		metrics:   m,
		clock:     clock,
	}
}

// Subscribe registers HandleMessage on chat/message.
func (m *Moderator) Subscribe(bus *eventbus.Bus) {
	eventbus.On(bus, eventbus.TopicChat, eventbus.EventMessage, "moderation", m.HandleMessage)
}

// HandleMessage is subscribed to chat/message. It only returns an error when
// the message could not be evaluated; enforcement failures are logged.
func (m *Moderator) HandleMessage(ctx context.Context, msg domain.ChatMessage) (err error) {
	if msg.Sender.Exempt() {
		m.metrics.Decisions.WithLabelValues("exempt").Inc()
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "moderation.handle",
		attribute.String("channel", msg.Channel),
		attribute.String("username", msg.Sender.Username),
	)
	defer func() { telemetry.End(span, err) }()

	start := m.clock.Now()

	entries, blErr := m.blacklist.ActiveEntries(ctx)
	if blErr != nil {
		// Evaluate the other rules rather than letting a cache outage open the gate entirely.
		slog.WarnContext(ctx, "Blacklist unavailable, evaluating without it", "error", blErr)
		m.metrics.EvaluationErrors.WithLabelValues("blacklist").Inc()
	}

	decision, err := m.policy.Evaluate(ctx, msg.Text, msg.Sender, entries)
	m.metrics.EvaluationDuration.Observe(m.clock.Since(start).Seconds())
	if err != nil {
		m.metrics.EvaluationErrors.WithLabelValues("counter_unavailable").Inc()
		m.metrics.Decisions.WithLabelValues("error").Inc()
		return fmt.Errorf("evaluate message from %s: %w", msg.Sender.Username, err)
	}

	if decision.Allowed {
		m.metrics.Decisions.WithLabelValues("allowed").Inc()
		return nil
	}

	span.SetAttributes(
		attribute.String("action", string(decision.Action)),
		attribute.Int64("warning_count", decision.WarningCount),
	)
	m.metrics.Decisions.WithLabelValues(string(decision.Action)).Inc()
	m.enforce(ctx, msg, decision)
	return nil
}

func (m *Moderator) enforce(ctx context.Context, msg domain.ChatMessage, d domain.Decision) {
	var err error
	switch d.Action {
	case domain.ActionTimeout:
		slog.InfoContext(ctx, "Timing out user", "channel", msg.Channel, "username", msg.Sender.Username, "warnings", d.WarningCount)
		err = m.chat.Timeout(ctx, msg.Channel, msg.Sender, d.TimeoutDuration, d.Reason)
	case domain.ActionWarn:
		slog.InfoContext(ctx, "Warning user", "channel", msg.Channel, "username", msg.Sender.Username, "warnings", d.WarningCount, "threshold", d.Threshold)
		err = m.chat.Say(ctx, msg.Channel, d.WarningMessage(msg.Sender.Username))
	default:
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to enforce moderation decision", "action", d.Action, "username", msg.Sender.Username, "error", err)
		m.metrics.EnforcementErrors.WithLabelValues(string(d.Action)).Inc()
	}

	if m.audit == nil {
		return
	}
	action := domain.ModerationAction{
		Channel:      msg.Channel,
		Username:     msg.Sender.Username,
		UserID:       msg.Sender.UserID,
		Action:       d.Action,
		WarningCount: d.WarningCount,
		Threshold:    d.Threshold,
		Reason:       d.Reason,
		CreatedAt:    m.clock.Now(),
	}
	if err := m.audit.Record(ctx, action); err != nil {
		slog.WarnContext(ctx, "Failed to record moderation action", "username", msg.Sender.Username, "error", err)
	}
}
