package app

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/tedkulp/n3rdbot/internal/adapter/metrics"
	"github.com/tedkulp/n3rdbot/internal/domain"
	"github.com/tedkulp/n3rdbot/internal/eventbus"
	"github.com/tedkulp/n3rdbot/internal/platform/correlation"
	"github.com/tedkulp/n3rdbot/internal/platform/telemetry"
	"github.com/tedkulp/n3rdbot/internal/presence"
)

const (
	DefaultFlushInterval    = 60 * time.Second
	DefaultFlushConcurrency = 8
)

// FlushResult summarizes one flush.
type FlushResult struct {
	Written int
	Failed  int
	Seconds int64
}

// UptimeReconciler credits accrued watch time to users while the stream is
// live, and counts chat messages.
type UptimeReconciler struct {
	registry    *presence.Registry
	users       domain.UserStatsStore
	liveness    domain.LivenessSignal
	recorder    domain.LivenessRecorder
	lease       domain.FlushLease
	metrics     *metrics.ReconcilerMetrics
	clock       clockwork.Clock
	interval    time.Duration
	concurrency int
	stopCh      chan struct{}
	stopOnce    sync.Once
}

type ReconcilerOption func(*UptimeReconciler)

func WithFlushInterval(d time.Duration) ReconcilerOption {
	return func(r *UptimeReconciler) { r.interval = d }
}

func WithFlushConcurrency(n int) ReconcilerOption {
	return func(r *UptimeReconciler) { r.concurrency = n }
}

// WithLivenessRecorder makes online/offline notifications also update the
// stored live flag.
func WithLivenessRecorder(rec domain.LivenessRecorder) ReconcilerOption {
	return func(r *UptimeReconciler) { r.recorder = rec }
}

// WithFlushLease restricts flushing to the instance holding the lease.
func WithFlushLease(l domain.FlushLease) ReconcilerOption {
	return func(r *UptimeReconciler) { r.lease = l }
}

func NewUptimeReconciler(
	registry *presence.Registry,
	users domain.UserStatsStore,
	liveness domain.LivenessSignal,
	m *metrics.ReconcilerMetrics,
	clock clockwork.Clock,
	opts ...ReconcilerOption,
) *UptimeReconciler {
	r := &UptimeReconciler{
		registry:    registry,
		users:       users,
		liveness:    liveness,
		metrics:     m,
		clock:       clock,
		interval:    DefaultFlushInterval,
		concurrency: DefaultFlushConcurrency,
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers the message counter and the stream state hooks.
func (r *UptimeReconciler) Subscribe(bus *eventbus.Bus) {
	const name = "uptime"
	eventbus.On(bus, eventbus.TopicChat, eventbus.EventMessage, name, r.RecordMessage)
	eventbus.On(bus, eventbus.TopicWebhook, eventbus.EventOnline, name, r.OnOnline)
	eventbus.On(bus, eventbus.TopicWebhook, eventbus.EventOffline, name, r.OnOffline)
}

// Start runs the tick loop until Stop is called or ctx is cancelled.
func (r *UptimeReconciler) Start(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.Tick(correlation.WithID(ctx, correlation.NewID()))
		case <-r.stopCh:
			slog.Info("Uptime reconciler stopped")
			return
		case <-ctx.Done():
			slog.Info("Uptime reconciler context cancelled")
			return
		}
	}
}

func (r *UptimeReconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Release gives up the flush lease, if any, so another instance can take over.
func (r *UptimeReconciler) Release(ctx context.Context) {
	if r.lease == nil {
		return
	}
	if err := r.lease.Release(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to release flush lease", "error", err)
	}
}

func (r *UptimeReconciler) leader(ctx context.Context) bool {
	if r.lease == nil {
		return true
	}
	ok, err := r.lease.Acquire(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Flush lease unavailable", "error", err)
		return false
	}
	return ok
}

// Tick flushes when the stream is live. Offline time is dropped, not banked:
// clocks keep running and the next online event resets them.
func (r *UptimeReconciler) Tick(ctx context.Context) {
	online, err := r.liveness.IsOnline(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Liveness check failed, skipping uptime flush", "error", err)
		r.metrics.Ticks.WithLabelValues("error").Inc()
		return
	}
	if !online {
		r.metrics.Ticks.WithLabelValues("offline").Inc()
		return
	}

	if !r.leader(ctx) {
		r.metrics.Ticks.WithLabelValues("standby").Inc()
		r.discard()
		return
	}

	r.metrics.Ticks.WithLabelValues("live").Inc()
	r.Flush(ctx)
}

// Flush credits every watcher's accrued time. Writes run in parallel and fail
// independently; a failed write still advances the watcher's clock.
func (r *UptimeReconciler) Flush(ctx context.Context) FlushResult {
	ctx, span := telemetry.StartSpan(ctx, "uptime.flush")
	start := r.clock.Now()

	var written, failed atomic.Int64
	var seconds atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, channel := range r.registry.Channels() {
		for _, a := range r.registry.Reconcile(channel) {
			secs := a.Seconds()
			if secs <= 0 {
				continue
			}
			g.Go(func() error {
				if err := r.users.AddWatchedTime(gctx, a.Username, a.UserID, secs); err != nil {
					slog.WarnContext(gctx, "Failed to credit watch time", "channel", a.Channel, "username", a.Username, "seconds", secs, "error", err)
					r.metrics.WriteErrors.Inc()
					failed.Add(1)
					return nil
				}
				written.Add(1)
				seconds.Add(secs)
				return nil
			})
		}
	}
	_ = g.Wait()

	res := FlushResult{Written: int(written.Load()), Failed: int(failed.Load()), Seconds: seconds.Load()}
	r.metrics.SecondsWritten.Add(float64(res.Seconds))
	r.metrics.FlushDuration.Observe(r.clock.Since(start).Seconds())

	span.SetAttributes(
		attribute.Int("written", res.Written),
		attribute.Int("failed", res.Failed),
		attribute.Int64("seconds", res.Seconds),
	)
	telemetry.End(span, nil)

	if res.Written+res.Failed > 0 {
		slog.DebugContext(ctx, "Uptime flushed", "written", res.Written, "failed", res.Failed, "seconds", res.Seconds)
	}
	return res
}

// discard advances every watcher's clock without crediting. The leader
// persists this interval, so a standby that later takes the lease must not.
func (r *UptimeReconciler) discard() {
	for _, channel := range r.registry.Channels() {
		r.registry.Reconcile(channel)
	}
}

// OnOffline banks the time accrued up to the transition, then restarts the
// channel's clocks.
func (r *UptimeReconciler) OnOffline(ctx context.Context, e domain.StreamEvent) error {
	slog.InfoContext(ctx, "Stream went offline", "channel", e.Channel)
	if r.leader(ctx) {
		r.Flush(ctx)
	} else {
		r.discard()
	}
	r.registry.ResetReconciliation(e.Channel)
	return r.record(ctx, false)
}

// OnOnline restarts the channel's clocks so offline time is not credited.
func (r *UptimeReconciler) OnOnline(ctx context.Context, e domain.StreamEvent) error {
	slog.InfoContext(ctx, "Stream went online", "channel", e.Channel)
	r.registry.ResetReconciliation(e.Channel)
	return r.record(ctx, true)
}

func (r *UptimeReconciler) record(ctx context.Context, online bool) error {
	if r.recorder == nil {
		return nil
	}
	return r.recorder.SetOnline(ctx, online)
}

// RecordMessage bumps the sender's message count regardless of the
// moderation outcome.
func (r *UptimeReconciler) RecordMessage(ctx context.Context, msg domain.ChatMessage) error {
	if msg.Sender.Username == "" {
		return nil
	}
	if err := r.users.IncrementMessageCount(ctx, msg.Sender.Username, msg.Sender.UserID); err != nil {
		r.metrics.MessageErrors.Inc()
		return err
	}
	return nil
}
