package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Its-donkey/kappopher/helix"

	"github.com/tedkulp/n3rdbot/internal/platform/retry"
)

const (
	defaultShardID        = "0"
	appTokenTimeout       = 15 * time.Second
	retryInitialBackoff   = 1 * time.Second
	retryRateLimitBackoff = 30 * time.Second
)

// subscriptionTypes are created for the monitored broadcaster, all version 1.
var subscriptionTypes = []string{
	SubscriptionStreamOnline,
	SubscriptionStreamOffline,
	SubscriptionModeratorAdd,
	SubscriptionModeratorRemove,
}

// EventSubManager routes the bot's EventSub subscriptions through a single
// webhook conduit shard.
type EventSubManager struct {
	client *helix.Client

	conduitID   string
	callbackURL string
	secret      string
}

func NewEventSubManager(clientID, clientSecret, callbackURL, secret string) (*EventSubManager, error) {
	ctx, cancel := context.WithTimeout(context.Background(), appTokenTimeout)
	defer cancel()

	authConfig := helix.AuthConfig{ClientID: clientID, ClientSecret: clientSecret}
	auth := helix.NewAuthClient(authConfig)
	client := helix.NewClient(clientID, auth)

	if _, err := auth.GetAppAccessToken(ctx); err != nil {
		return nil, fmt.Errorf("failed to get app access token: %w", err)
	}

	return &EventSubManager{client: client, callbackURL: callbackURL, secret: secret}, nil
}

// Setup finds or creates the conduit and points its shard at the callback URL.
func (m *EventSubManager) Setup(ctx context.Context) error {
	conduit, err := m.findOrCreateConduit(ctx)
	if err != nil {
		return err
	}

	if err := m.configureShard(ctx, conduit.ID); err != nil {
		conduit, err = m.recreateConduit(ctx, conduit.ID, err)
		if err != nil {
			return err
		}
	}

	m.conduitID = conduit.ID
	slog.Info("Conduit configured with webhook shard", "conduit_id", conduit.ID, "callback_url", m.callbackURL)
	return nil
}

func (m *EventSubManager) findOrCreateConduit(ctx context.Context) (*helix.Conduit, error) {
	resp, err := m.client.GetConduits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conduits: %w", err)
	}

	if len(resp.Data) > 0 {
		slog.Info("Found existing conduit", "conduit_id", resp.Data[0].ID)
		return &resp.Data[0], nil
	}

	return m.createConduit(ctx)
}

func (m *EventSubManager) createConduit(ctx context.Context) (*helix.Conduit, error) {
	conduit, err := m.client.CreateConduit(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create conduit: %w", err)
	}
	if conduit == nil {
		return nil, errors.New("no conduit returned from Twitch API")
	}

	slog.Info("Created conduit", "conduit_id", conduit.ID, "shard_count", conduit.ShardCount)
	return conduit, nil
}

func (m *EventSubManager) configureShard(ctx context.Context, conduitID string) error {
	shard := helix.UpdateConduitShardParams{
		ID: defaultShardID,
		Transport: helix.UpdateConduitShardTransport{
			Method:   "webhook",
			Callback: m.callbackURL,
			Secret:   m.secret,
		},
	}

	params := helix.UpdateConduitShardsParams{ConduitID: conduitID, Shards: []helix.UpdateConduitShardParams{shard}}
	if _, err := m.client.UpdateConduitShards(ctx, &params); err != nil {
		return fmt.Errorf("failed to update conduit shards: %w", err)
	}
	return nil
}

func (m *EventSubManager) recreateConduit(ctx context.Context, staleID string, shardErr error) (*helix.Conduit, error) {
	slog.Error("Shard configuration failed, recreating conduit", "conduit_id", staleID, "error", shardErr)

	if err := m.client.DeleteConduit(ctx, staleID); err != nil {
		return nil, fmt.Errorf("failed to delete stale conduit: %w", err)
	}

	conduit, err := m.createConduit(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.configureShard(ctx, conduit.ID); err != nil {
		return nil, fmt.Errorf("failed to configure shard on new conduit: %w", err)
	}

	return conduit, nil
}

// Cleanup deletes the conduit, which drops its subscriptions with it.
func (m *EventSubManager) Cleanup(ctx context.Context) error {
	if m.conduitID == "" {
		return nil
	}

	if err := m.client.DeleteConduit(ctx, m.conduitID); err != nil {
		return fmt.Errorf("failed to delete conduit: %w", err)
	}

	slog.Info("Deleted conduit", "conduit_id", m.conduitID)
	return nil
}

// SubscribeChannel ensures the stream state and moderator subscriptions exist
// for broadcasterUserID. Each type is attempted independently.
func (m *EventSubManager) SubscribeChannel(ctx context.Context, broadcasterUserID string) error {
	var errs []error
	for _, subType := range subscriptionTypes {
		if err := m.subscribe(ctx, subType, broadcasterUserID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *EventSubManager) subscribe(ctx context.Context, subType, broadcasterUserID string) error {
	p := getRetryPolicy()
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("EventSub subscribe failed, retrying", "type", subType, "broadcaster_user_id", broadcasterUserID, "attempt", attempt, "backoff_seconds", backoff.Seconds(), "error", err)
	}

	sub, err := retry.Do(ctx, p, classifyEventSubError, func() (*helix.EventSubSubscription, error) {
		return m.attemptSubscribe(ctx, subType, broadcasterUserID)
	})
	if err != nil {
		label := "after retries"
		var perm *retry.PermanentError
		if errors.As(err, &perm) {
			label = "permanent"
		}

		slog.Error("EventSub subscribe failed", "type", subType, "broadcaster_user_id", broadcasterUserID, "cause", label, "error", err)
		return fmt.Errorf("EventSub subscribe %s failed (%s): %w", subType, label, err)
	}

	slog.Info("Subscribed to EventSub", "type", subType, "broadcaster_user_id", broadcasterUserID, "subscription_id", sub.ID)
	return nil
}

func (m *EventSubManager) attemptSubscribe(ctx context.Context, subType, broadcasterUserID string) (*helix.EventSubSubscription, error) {
	params := helix.CreateEventSubSubscriptionParams{
		Type:    subType,
		Version: "1",
		Condition: map[string]string{
			"broadcaster_user_id": broadcasterUserID,
		},
		Transport: helix.CreateEventSubTransport{
			Method:    "conduit",
			ConduitID: m.conduitID,
		},
	}
	sub, err := m.client.CreateEventSubSubscription(ctx, &params)
	if err != nil {
		var apiErr *helix.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			slog.Info("EventSub subscription already exists on Twitch, recovering", "type", subType, "broadcaster_user_id", broadcasterUserID)
			return m.findExistingSubscription(ctx, subType, broadcasterUserID)
		}
		return nil, fmt.Errorf("failed to create EventSub subscription: %w", err)
	}
	if sub == nil {
		return nil, errors.New("no subscription returned from Twitch API")
	}
	return sub, nil
}

func (m *EventSubManager) findExistingSubscription(ctx context.Context, subType, broadcasterUserID string) (*helix.EventSubSubscription, error) {
	params := helix.GetEventSubSubscriptionsParams{Type: subType}

	for {
		resp, err := m.client.GetEventSubSubscriptions(ctx, &params)
		if err != nil {
			return nil, fmt.Errorf("failed to list subscriptions for 409 recovery: %w", err)
		}

		for _, sub := range resp.Data {
			if sub.Condition["broadcaster_user_id"] == broadcasterUserID {
				return &sub, nil
			}
		}

		if resp.Pagination == nil || resp.Pagination.Cursor == "" {
			break
		}
		params.PaginationParams = &helix.PaginationParams{After: resp.Pagination.Cursor}
	}

	return nil, fmt.Errorf("subscription %s not found on Twitch despite 409 conflict (broadcaster_user_id=%s)", subType, broadcasterUserID)
}

func classifyEventSubError(err error) retry.Action {
	var apiErr *helix.APIError
	if !errors.As(err, &apiErr) {
		return retry.Retry
	}

	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return retry.After
	case apiErr.StatusCode >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}

func getRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:      3,
		InitialBackoff:   retryInitialBackoff,
		RateLimitBackoff: retryRateLimitBackoff,
	}
}
