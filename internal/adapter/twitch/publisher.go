package twitch

import "context"

// Publisher is the event bus as seen by the Twitch adapters.
type Publisher interface {
	Publish(ctx context.Context, topic, event string, payload any) int
}
