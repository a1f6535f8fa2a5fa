// Package cli implements the companionctl operator commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go-simpler.org/env"
)

// Config is the subset of the server configuration the operator tools need.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
}

func loadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	return &cfg, nil
}

// Opener connects the backend used by every command.
type Opener func(ctx context.Context, cfg *Config) (*Backend, error)

type options struct {
	format string
	open   Opener
}

// NewRootCmd builds the command tree. open is called lazily by each command.
func NewRootCmd(open Opener) *cobra.Command {
	opts := &options{open: open}

	root := &cobra.Command{
		Use:           "companionctl",
		Short:         "Operate the n3rdbot chat companion",
		Long:          "Inspect viewer stats, edit the moderation blacklist and settings, and run migrations.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.format, "format", "f", "text", "Output format: text or json")

	root.AddCommand(
		newMigrateCmd(opts),
		newStatsCmd(opts),
		newTopCmd(opts),
		newBlacklistCmd(opts),
		newSettingsCmd(opts),
		newWarningsCmd(opts),
		newActionsCmd(opts),
	)
	return root
}

// withBackend opens the backend, runs fn and closes it again.
func (o *options) withBackend(cmd *cobra.Command, fn func(b *Backend) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := o.open(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer b.Close()
	return fn(b)
}
