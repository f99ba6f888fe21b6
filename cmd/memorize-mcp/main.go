// Command memorize-mcp is the main entry point for the memory server:
// parse flags, build a logger, wire the App, run it until signaled,
// then shut down within a deadline. Grounded on the teacher's
// cmd/quantumflow/main.go process-harness shape (os.Exit(run()), a
// signal.NotifyContext root context, a timed shutdown phase).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memorize-mcp/memorize/internal/app"
	"github.com/memorize-mcp/memorize/internal/config"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

// run returns the process exit code per §6: 0 on a clean exit, 1 on an
// initialization or run failure, 2 on bad CLI arguments.
func run() int {
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "memorize-mcp: %v\n", err)
		return 2
	}

	logger := newLogger(cfg.Debug)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("memorize-mcp starting",
		"transport", cfg.Transport,
		"db_path", cfg.DBPath,
		"hook_port", cfg.HookPort,
	)

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize application", "err", err)
		return 1
	}

	slog.Info("memorize-mcp ready")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("shutting down")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
