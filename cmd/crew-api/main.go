package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/target/crew-api/config"
	"github.com/target/crew-api/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		slog.ErrorContext(ctx, "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}

	logger := bootstrap.InitLogger(&cfg)
	if err := run(ctx, &cfg, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	logStartupInfo(ctx, logger, cfg)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		client, err := bootstrap.ConnectRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() {
			if cerr := client.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
		redisClient = client
	}

	deps := &bootstrap.ServiceDeps{Config: cfg, Logger: logger}
	if redisClient != nil {
		deps.RedisClient = redisClient
	}
	services, err := bootstrap.NewServices(deps)
	if err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(ctx, &bootstrap.ServiceOrchestrationConfig{
		Config:   cfg,
		Services: services,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting crew-api",
		"environment", cfg.Environment,
		"addr", cfg.HTTP.Addr,
		"runner_concurrency", cfg.Runner.Concurrency,
		"analysis", analysisMode(cfg),
		"redis_idempotency", cfg.Redis.Enabled,
		"metrics", cfg.Observability.Metrics.IsEnabled(),
	)
}

func analysisMode(cfg *config.AppConfig) string {
	if cfg.Analysis.Simulated() {
		return "simulated"
	}
	return "http"
}
