package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"mutaba/internal/cache"
	"mutaba/internal/cli"
	"mutaba/internal/config"
	apphttp "mutaba/internal/http"
	applog "mutaba/internal/log"
	"mutaba/internal/services"
	"mutaba/internal/worker"
)

const memoSweepInterval = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting mutaba")

	cfg := cli.LoadAndValidateConfig(logger)

	thresholds, err := config.LoadThresholds(cfg.GuidanceConfig)
	if err != nil {
		logger.Error("Failed to load guidance thresholds", applog.FieldError, err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	_, accessor := cli.NewRateStack(cfg, repo)

	cacheManager := cache.NewManager()
	cacheManager.Register(accessor.Cleaner())
	cacheManager.StartCleanup(memoSweepInterval)
	defer cacheManager.Stop()

	answers := services.NewAnswersService(repo, accessor,
		services.WithRules(repo),
		services.WithThresholds(thresholds),
		services.WithCurrencies(cfg.CurrencyList()),
	)

	srv := apphttp.NewServer(":"+cfg.Port, answers,
		apphttp.WithReadiness(repo.Ping),
		apphttp.WithLogger(logger.WithComponent(applog.ComponentHTTP)),
	)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	})

	amqpClient, err := cli.ConnectAMQP(logger, cfg)
	if err != nil {
		// Rates still work from the shared cache; memos just expire on their own.
		logger.Warn("Failed to initialize AMQP client, continuing without rate updates", applog.FieldError, err)
	}
	if amqpClient != nil {
		defer amqpClient.Close()
		go func() {
			err := amqpClient.ConsumeRateUpdates(ctx, worker.InvalidateOnUpdate(accessor))
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Rate update consumption failed", applog.FieldError, err)
			}
		}()
	}

	logger.Info("Starting HTTP server",
		"port", cfg.Port,
		"currencies", cfg.CurrencyList(),
		"db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
