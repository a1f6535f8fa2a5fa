package twitch

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Its-donkey/kappopher/helix"

	"github.com/tedkulp/n3rdbot/internal/domain"
	"github.com/tedkulp/n3rdbot/internal/eventbus"
	"github.com/tedkulp/n3rdbot/internal/platform/correlation"
)

const webhookProcessingTimeout = 5 * time.Second

// EventSub subscription types the bot consumes.
const (
	SubscriptionStreamOnline    = "stream.online"
	SubscriptionStreamOffline   = "stream.offline"
	SubscriptionModeratorAdd    = "channel.moderator.add"
	SubscriptionModeratorRemove = "channel.moderator.remove"
)

type streamEvent struct {
	BroadcasterUserID    string    `json:"broadcaster_user_id"`
	BroadcasterUserLogin string    `json:"broadcaster_user_login"`
	StartedAt            time.Time `json:"started_at"`
}

type moderatorEvent struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	UserID               string `json:"user_id"`
	UserLogin            string `json:"user_login"`
}

// WebhookHandler verifies EventSub deliveries and republishes them on the bus:
// stream state on the webhook topic and moderator changes on the chat topic.
type WebhookHandler struct {
	handler   *helix.EventSubWebhookHandler
	publisher Publisher
	now       func() time.Time
}

func NewWebhookHandler(secret string, publisher Publisher) *WebhookHandler {
	wh := &WebhookHandler{publisher: publisher, now: time.Now}

	wh.handler = helix.NewEventSubWebhookHandler(
		helix.WithWebhookSecret(secret),
		helix.WithNotificationHandler(wh.handleNotification),
		helix.WithVerificationHandler(func(msg *helix.EventSubWebhookMessage) bool {
			slog.Info("EventSub webhook verification", "subscription_type", msg.SubscriptionType)
			return true
		}),
		helix.WithRevocationHandler(func(msg *helix.EventSubWebhookMessage) {
			slog.Warn("EventSub subscription revoked", "type", msg.SubscriptionType, "reason", helix.GetRevocationReason(msg.Subscription))
		}),
	)

	return wh
}

func (wh *WebhookHandler) handleNotification(msg *helix.EventSubWebhookMessage) {
	ctx, cancel := context.WithTimeout(correlation.WithID(context.Background(), correlation.NewID()), webhookProcessingTimeout)
	defer cancel()

	switch msg.SubscriptionType {
	case SubscriptionStreamOnline, SubscriptionStreamOffline:
		event, err := helix.ParseEventSubEvent[streamEvent](msg)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to parse stream event", "type", msg.SubscriptionType, "error", err)
			return
		}

		name := eventbus.EventOffline
		at := wh.now()
		if msg.SubscriptionType == SubscriptionStreamOnline {
			name = eventbus.EventOnline
			if !event.StartedAt.IsZero() {
				at = event.StartedAt
			}
		}
		slog.InfoContext(ctx, "Stream state notification", "event", name, "broadcaster", event.BroadcasterUserLogin)
		wh.publisher.Publish(ctx, eventbus.TopicWebhook, name, domain.StreamEvent{
			Channel:       strings.ToLower(event.BroadcasterUserLogin),
			BroadcasterID: event.BroadcasterUserID,
			At:            at,
		})

	case SubscriptionModeratorAdd, SubscriptionModeratorRemove:
		event, err := helix.ParseEventSubEvent[moderatorEvent](msg)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to parse moderator event", "type", msg.SubscriptionType, "error", err)
			return
		}

		name := eventbus.EventUnmod
		if msg.SubscriptionType == SubscriptionModeratorAdd {
			name = eventbus.EventMod
		}
		wh.publisher.Publish(ctx, eventbus.TopicChat, name, domain.MembershipEvent{
			Channel:  strings.ToLower(event.BroadcasterUserLogin),
			Username: strings.ToLower(event.UserLogin),
		})

	default:
		slog.DebugContext(ctx, "Ignoring EventSub notification", "type", msg.SubscriptionType)
	}
}

func (wh *WebhookHandler) HandleEventSub(w http.ResponseWriter, r *http.Request) {
	wh.handler.ServeHTTP(w, r)
}
