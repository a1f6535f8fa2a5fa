package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/tedkulp/n3rdbot/internal/cli"
	"github.com/tedkulp/n3rdbot/internal/platform/logging"
)

func main() {
	// Logs go to stderr so command output stays pipeable.
	slog.SetDefault(logging.New(os.Stderr, cmp.Or(os.Getenv("LOG_LEVEL"), "warn"), "text"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCmd(cli.OpenBackend).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
