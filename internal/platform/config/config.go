package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	TwitchChannel      string `env:"TWITCH_CHANNEL"`
	TwitchBotUsername  string `env:"TWITCH_BOT_USERNAME"`
	TwitchBotOAuth     string `env:"TWITCH_BOT_OAUTH"`
	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET"`
	WebhookCallbackURL string `env:"WEBHOOK_CALLBACK_URL"`
	WebhookSecret      string `env:"WEBHOOK_SECRET"`

	UptimeFlushInterval    time.Duration `env:"UPTIME_FLUSH_INTERVAL" default:"60s"`
	UptimeFlushConcurrency int           `env:"UPTIME_FLUSH_CONCURRENCY" default:"8"`
	BlacklistCacheTTL      time.Duration `env:"BLACKLIST_CACHE_TTL" default:"15m"`
	BlacklistMemoryTTL     time.Duration `env:"BLACKLIST_MEMORY_TTL" default:"30s"`

	// Outbound chat budget: ChatRateLimit messages per ChatRatePeriod.
	ChatRateLimit  int           `env:"CHAT_RATE_LIMIT" default:"20"`
	ChatRatePeriod time.Duration `env:"CHAT_RATE_PERIOD" default:"30s"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// WebhooksEnabled reports whether EventSub delivery is configured.
func (c *Config) WebhooksEnabled() bool {
	return c.WebhookCallbackURL != "" && c.WebhookSecret != ""
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"REDIS_URL", cfg.RedisURL},
		{"TWITCH_CHANNEL", cfg.TwitchChannel},
		{"TWITCH_BOT_USERNAME", cfg.TwitchBotUsername},
		{"TWITCH_BOT_OAUTH", cfg.TwitchBotOAuth},
		{"TWITCH_CLIENT_ID", cfg.TwitchClientID},
		{"TWITCH_CLIENT_SECRET", cfg.TwitchClientSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if cfg.WebhookSecret != "" && (len(cfg.WebhookSecret) < 10 || len(cfg.WebhookSecret) > 100) {
		return errors.New("WEBHOOK_SECRET must be between 10 and 100 characters")
	}
	if (cfg.WebhookSecret == "") != (cfg.WebhookCallbackURL == "") {
		return errors.New("WEBHOOK_SECRET and WEBHOOK_CALLBACK_URL must be set together")
	}

	if cfg.UptimeFlushInterval <= 0 {
		return errors.New("UPTIME_FLUSH_INTERVAL must be positive")
	}
	if cfg.UptimeFlushConcurrency < 1 {
		return errors.New("UPTIME_FLUSH_CONCURRENCY must be at least 1")
	}
	if cfg.ChatRateLimit < 1 || cfg.ChatRatePeriod <= 0 {
		return errors.New("CHAT_RATE_LIMIT and CHAT_RATE_PERIOD must be positive")
	}

	if cfg.AppEnv == "production" {
		if err := checkSSLMode(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	return nil
}

func checkSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
