// Package eventbus delivers chat and webhook events to in-process
// subscribers keyed by (topic, event).
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tedkulp/n3rdbot/internal/platform/correlation"
)

const (
	TopicChat    = "chat"
	TopicWebhook = "webhook"
)

const (
	EventMessage = "message"
	EventJoin    = "join"
	EventPart    = "part"
	EventNames   = "names"
	EventMods    = "mods"
	EventMod     = "mod"
	EventUnmod   = "unmod"

	EventOnline  = "online"
	EventOffline = "offline"
)

type Handler func(ctx context.Context, payload any) error

type key struct{ topic, event string }

// Bus calls handlers synchronously on the publisher's goroutine, in
// subscription order. A failing or panicking handler is logged and does not
// stop the others.
type Bus struct {
	mu       sync.RWMutex
	handlers map[key][]namedHandler
}

type namedHandler struct {
	name string
	fn   Handler
}

func New() *Bus {
	return &Bus{handlers: make(map[key][]namedHandler)}
}

// Subscribe registers fn for (topic, event). name identifies the subscriber in logs.
func (b *Bus) Subscribe(topic, event, name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key{topic, event}
	b.handlers[k] = append(b.handlers[k], namedHandler{name: name, fn: fn})
}

// On subscribes a handler typed on its payload. Payloads of another type are
// logged and dropped.
func On[T any](b *Bus, topic, event, name string, fn func(ctx context.Context, payload T) error) {
	b.Subscribe(topic, event, name, func(ctx context.Context, payload any) error {
		p, ok := payload.(T)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s/%s", payload, topic, event)
		}
		return fn(ctx, p)
	})
}

// Publish delivers payload and returns the number of handlers that failed.
func (b *Bus) Publish(ctx context.Context, topic, event string, payload any) int {
	b.mu.RLock()
	hs := b.handlers[key{topic, event}]
	b.mu.RUnlock()

	ctx = correlation.Ensure(ctx)
	failed := 0
	for _, h := range hs {
		if err := b.call(ctx, h, payload); err != nil {
			failed++
			slog.ErrorContext(ctx, "Event handler failed", "topic", topic, "event", event, "handler", h.name, "error", err)
		}
	}
	return failed
}

func (b *Bus) call(ctx context.Context, h namedHandler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.fn(ctx, payload)
}

// Subscribers returns how many handlers listen on (topic, event).
func (b *Bus) Subscribers(topic, event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[key{topic, event}])
}
