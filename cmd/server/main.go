package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tedkulp/n3rdbot/internal/adapter/httpserver"
	"github.com/tedkulp/n3rdbot/internal/adapter/metrics"
	"github.com/tedkulp/n3rdbot/internal/adapter/postgres"
	"github.com/tedkulp/n3rdbot/internal/adapter/redis"
	"github.com/tedkulp/n3rdbot/internal/adapter/twitch"
	"github.com/tedkulp/n3rdbot/internal/app"
	"github.com/tedkulp/n3rdbot/internal/eventbus"
	"github.com/tedkulp/n3rdbot/internal/platform/config"
	"github.com/tedkulp/n3rdbot/internal/platform/correlation"
	"github.com/tedkulp/n3rdbot/internal/platform/logging"
	"github.com/tedkulp/n3rdbot/internal/platform/telemetry"
	"github.com/tedkulp/n3rdbot/internal/platform/version"
	"github.com/tedkulp/n3rdbot/internal/presence"
	"github.com/tedkulp/n3rdbot/internal/rules"
)

const (
	serviceName     = "n3rdbot"
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.NewMetricsTracer(metrics.NewDBMetrics(reg)))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) *goredis.Client {
	redisMetrics := metrics.NewRedisMetrics(reg)
	client, err := redis.NewClient(ctx, cfg.RedisURL,
		redis.NewMetricsHook(redisMetrics),
		redis.NewCircuitBreakerHook(redisMetrics),
	)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// seedLiveness primes the live flag from Helix so a restart mid-stream keeps
// crediting watch time without waiting for a stream.online notification.
func seedLiveness(ctx context.Context, helix *twitch.HelixUsers, status *redis.LiveStatus, channel string) {
	live, err := helix.IsLive(ctx, channel)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read stream status, keeping stored flag", "error", err)
		return
	}
	if err := status.SetOnline(ctx, live); err != nil {
		slog.WarnContext(ctx, "Failed to store stream status", "error", err)
		return
	}
	slog.InfoContext(ctx, "Stream status seeded", "channel", channel, "live", live)
}

func setupEventSub(ctx context.Context, cfg *config.Config, helix *twitch.HelixUsers) (*twitch.EventSubManager, error) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	mgr, err := twitch.NewEventSubManager(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.WebhookCallbackURL, cfg.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create EventSub manager: %w", err)
	}
	if err := mgr.Setup(ctx); err != nil {
		return nil, fmt.Errorf("failed to set up conduit: %w", err)
	}

	broadcasterID, err := helix.GetUserID(ctx, cfg.TwitchChannel)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve broadcaster: %w", err)
	}
	if err := mgr.SubscribeChannel(ctx, broadcasterID); err != nil {
		return nil, fmt.Errorf("failed to subscribe channel: %w", err)
	}
	return mgr, nil
}

func healthChecks(pool *pgxpool.Pool, rdb *goredis.Client) []httpserver.HealthCheck {
	return []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	}
}

func main() {
	clock := clockwork.NewRealClock()
	cfg := setupConfig()
	channel := strings.ToLower(cfg.TwitchChannel)

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "channel", channel, "version", version.Get().Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	startupCtx := correlation.WithID(ctx, correlation.NewID())

	shutdownTracing, err := telemetry.InitTracing(startupCtx, cfg.OTLPEndpoint, serviceName, version.Get().Version)
	if err != nil {
		slog.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing()

	reg := metrics.NewRegistry()

	pool := setupDB(startupCtx, cfg, reg)
	defer pool.Close()

	rdb := setupRedis(startupCtx, cfg, reg)
	defer func() { _ = rdb.Close() }()

	helix := twitch.NewHelixUsers(startupCtx, cfg.TwitchClientID, cfg.TwitchClientSecret)

	userStats := postgres.NewUserStatsRepo(pool)
	settings := postgres.NewSettingsRepo(pool)
	blacklistRepo := postgres.NewBlacklistRepo(pool)
	moderationLog := postgres.NewModerationLogRepo(pool)

	blacklist := redis.NewBlacklistCache(rdb, blacklistRepo, cfg.BlacklistCacheTTL, cfg.BlacklistMemoryTTL, metrics.NewCacheMetrics(reg))
	ledger := redis.NewWarningLedger(rdb)
	liveStatus := redis.NewLiveStatus(rdb, channel)
	lease := redis.NewFlushLease(rdb, uuid.NewString(), redis.DefaultFlushLeaseTTL)

	presenceMetrics := metrics.NewPresenceMetrics(reg)
	registry := presence.NewRegistry(helix, clock, presence.WithLookupFailureHook(func(_, _ string, _ error) {
		presenceMetrics.IdentityLookupErrors.Inc()
	}))

	bus := eventbus.New()
	chat := twitch.NewChatClient(cfg.TwitchBotUsername, cfg.TwitchBotOAuth, channel, bus, cfg.ChatRateLimit, cfg.ChatRatePeriod)
	bans := twitch.NewHelixModeration(startupCtx, cfg.TwitchClientID, cfg.TwitchBotOAuth, cfg.TwitchBotUsername, helix)

	policy := app.NewModerationPolicy(settings, ledger, rules.NewMatcher())
	moderator := app.NewModerator(policy, blacklist, twitch.Control{ChatClient: chat, HelixModeration: bans}, moderationLog, metrics.NewModerationMetrics(reg), clock)
	moderator.Subscribe(bus)

	app.NewPresenceTracker(registry, presenceMetrics).Subscribe(bus)

	reconciler := app.NewUptimeReconciler(registry, userStats, liveStatus, metrics.NewReconcilerMetrics(reg), clock,
		app.WithFlushInterval(cfg.UptimeFlushInterval),
		app.WithFlushConcurrency(cfg.UptimeFlushConcurrency),
		app.WithLivenessRecorder(liveStatus),
		app.WithFlushLease(lease),
	)
	reconciler.Subscribe(bus)

	seedLiveness(startupCtx, helix, liveStatus, channel)

	serverOpts := []httpserver.Option{
		httpserver.WithMetricsHandler(metrics.Handler(reg)),
		httpserver.WithHTTPMetrics(metrics.NewHTTPMetrics(reg).Middleware()),
		httpserver.WithHealthChecks(healthChecks(pool, rdb)...),
	}

	var eventsub *twitch.EventSubManager
	if cfg.WebhooksEnabled() {
		eventsub, err = setupEventSub(startupCtx, cfg, helix)
		if err != nil {
			slog.Error("Failed to set up EventSub", "error", err)
			os.Exit(1)
		}
		webhook := twitch.NewWebhookHandler(cfg.WebhookSecret, bus)
		serverOpts = append(serverOpts, httpserver.WithWebhookHandler(http.HandlerFunc(webhook.HandleEventSub)))
	} else {
		slog.Warn("Webhooks disabled, stream state comes only from the startup check")
	}

	srv := httpserver.NewServer(cfg.Port, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return chat.Run(gctx) })
	g.Go(func() error {
		redis.NewBlacklistInvalidationSubscriber(rdb, blacklist).Start(gctx)
		return nil
	})
	g.Go(func() error {
		reconciler.Start(gctx)
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Component failed", "error", err)
	}
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(correlation.WithID(context.Background(), correlation.NewID()), shutdownTimeout)
	defer cancel()

	reconciler.Stop()
	if err := registry.Wait(shutdownCtx); err != nil {
		slog.Warn("Identity lookups still pending at shutdown", "error", err)
	}
	reconciler.Tick(shutdownCtx)
	reconciler.Release(shutdownCtx)

	if eventsub != nil {
		if err := eventsub.Cleanup(shutdownCtx); err != nil {
			slog.Error("Failed to clean up conduit", "error", err)
		}
	}

	if err != nil {
		os.Exit(1)
	}
}
