package app

import (
	"context"

	"github.com/tedkulp/n3rdbot/internal/adapter/metrics"
	"github.com/tedkulp/n3rdbot/internal/domain"
	"github.com/tedkulp/n3rdbot/internal/eventbus"
	"github.com/tedkulp/n3rdbot/internal/presence"
)

// PresenceTracker applies chat membership events to the registry.
type PresenceTracker struct {
	registry *presence.Registry
	metrics  *metrics.PresenceMetrics
}

func NewPresenceTracker(registry *presence.Registry, m *metrics.PresenceMetrics) *PresenceTracker {
	return &PresenceTracker{registry: registry, metrics: m}
}

// Subscribe registers the tracker's handlers on the chat topic.
func (t *PresenceTracker) Subscribe(bus *eventbus.Bus) {
	const name = "presence"
	eventbus.On(bus, eventbus.TopicChat, eventbus.EventJoin, name, t.HandleJoin)
	eventbus.On(bus, eventbus.TopicChat, eventbus.EventPart, name, t.HandlePart)
	eventbus.On(bus, eventbus.TopicChat, eventbus.EventNames, name, t.HandleNames)
	eventbus.On(bus, eventbus.TopicChat, eventbus.EventMods, name, t.HandleMods)
	eventbus.On(bus, eventbus.TopicChat, eventbus.EventMod, name, t.HandleMod)
	eventbus.On(bus, eventbus.TopicChat, eventbus.EventUnmod, name, t.HandleUnmod)
}

func (t *PresenceTracker) HandleJoin(ctx context.Context, e domain.MembershipEvent) error {
	t.registry.AddWatcher(ctx, e.Channel, e.Username, false)
	t.observe(eventbus.EventJoin, e.Channel)
	return nil
}

func (t *PresenceTracker) HandlePart(_ context.Context, e domain.MembershipEvent) error {
	t.registry.RemoveWatcher(e.Channel, e.Username)
	t.observe(eventbus.EventPart, e.Channel)
	return nil
}

func (t *PresenceTracker) HandleNames(ctx context.Context, e domain.RosterEvent) error {
	for _, username := range e.Usernames {
		t.registry.AddWatcher(ctx, e.Channel, username, false)
	}
	t.observe(eventbus.EventNames, e.Channel)
	return nil
}

// HandleMods promotes everyone on the list. Moderators missing from the list
// keep their flag until an explicit unmod arrives.
func (t *PresenceTracker) HandleMods(ctx context.Context, e domain.RosterEvent) error {
	for _, username := range e.Usernames {
		t.registry.PromoteModerator(ctx, e.Channel, username)
	}
	t.observe(eventbus.EventMods, e.Channel)
	return nil
}

func (t *PresenceTracker) HandleMod(ctx context.Context, e domain.MembershipEvent) error {
	t.registry.PromoteModerator(ctx, e.Channel, e.Username)
	t.observe(eventbus.EventMod, e.Channel)
	return nil
}

func (t *PresenceTracker) HandleUnmod(_ context.Context, e domain.MembershipEvent) error {
	t.registry.DemoteModerator(e.Channel, e.Username)
	t.observe(eventbus.EventUnmod, e.Channel)
	return nil
}

func (t *PresenceTracker) observe(event, channel string) {
	t.metrics.Events.WithLabelValues(event).Inc()
	t.metrics.Watchers.WithLabelValues(channel).Set(float64(t.registry.Count(channel)))
}
