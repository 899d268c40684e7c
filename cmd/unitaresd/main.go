// Command unitaresd runs the governance service: config is read entirely
// from the environment (see internal/config), and the process serves MCP,
// health, and metrics endpoints until it receives SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	unitares "github.com/CIRWEL/unitares-sub004"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := unitares.New(ctx, unitares.WithVersion(version))
	if err != nil {
		slog.Error("unitares: startup failed", "error", err)
		return 1
	}

	if err := app.Run(ctx); err != nil {
		slog.Error("unitares: fatal error", "error", err)
		return 1
	}
	return 0
}
