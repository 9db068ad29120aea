// Package main is the entrypoint for the Llamalith worker pool
// supervisor. It spawns the configured number of worker processes,
// restarts any that die, and optionally sweeps stale claims back into the
// queue on an interval.
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

	"github.com/llamalith/llamalith/internal/config"
	"github.com/llamalith/llamalith/internal/store"
	"github.com/llamalith/llamalith/internal/supervisor"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("supervisor failed", "error", err)
		os.Exit(1)
	}
	slog.Info("supervisor stopped")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Supervisor.ReclaimInterval > 0 {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		go sweepStaleJobs(ctx, store.NewPostgresStore(pool),
			cfg.Supervisor.ReclaimInterval, cfg.Supervisor.ReclaimAge)
	}

	sup := supervisor.New(cfg.Supervisor.WorkerBin, nil,
		cfg.Supervisor.WorkerCount, cfg.Supervisor.RestartDelay)
	return sup.Run(ctx)
}

// sweepStaleJobs periodically requeues processing jobs whose claim is old
// enough to indicate a dead worker.
func sweepStaleJobs(ctx context.Context, st store.Store, interval, age time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := st.ReclaimStaleJobs(ctx, age)
			if err != nil {
				slog.Warn("stale job sweep failed", "error", err)
				continue
			}
			if count > 0 {
				slog.Info("requeued stale jobs", "count", count, "older_than", age)
			}
		}
	}
}
