// Package main is the entrypoint for a single Llamalith worker process.
// The supervisor normally spawns these, one per configured worker, each
// with its own identity and its own resident model cache.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/llamalith/llamalith/internal/cache"
	"github.com/llamalith/llamalith/internal/config"
	"github.com/llamalith/llamalith/internal/llm"
	"github.com/llamalith/llamalith/internal/llm/ollama"
	"github.com/llamalith/llamalith/internal/store"
	"github.com/llamalith/llamalith/internal/supervisor"
	"github.com/llamalith/llamalith/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	owner := os.Getenv(supervisor.WorkerIDEnv)
	if owner == "" {
		owner = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	runtime := ollama.NewRuntime(cfg.Runtime)
	modelCache := llm.NewModelCache(runtime, cfg.Worker.MaxModels)
	executor := llm.NewExecutor(cfg.Generation)

	w := worker.New(owner, store.NewPostgresStore(pool), modelCache, executor,
		redisCache, cfg.Worker.PollInterval)
	return w.Run(ctx)
}
