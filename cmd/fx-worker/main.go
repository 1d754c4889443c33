package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"mutaba/internal/cli"
	applog "mutaba/internal/log"
	"mutaba/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(applog.ComponentWorker)
	logger.Info("Starting fx-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// The provider writes every live rate into the shared cache; the worker
	// fetches through it directly so each round hits the network.
	provider, _ := cli.NewRateStack(cfg, repo)

	amqpClient, err := cli.ConnectAMQP(logger, cfg)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing in SQLite-only mode", applog.FieldError, err)
	}

	var opts []worker.Option
	if amqpClient != nil {
		defer amqpClient.Close()
		opts = append(opts, worker.WithPublisher(amqpClient))
	}
	refresher := worker.NewRateRefreshWorker(provider, cfg.PairList(), cfg.FXRefreshInterval, opts...)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return refresher.Run(gctx)
	})
	if amqpClient != nil {
		g.Go(func() error {
			return amqpClient.ConsumeRefreshRequests(gctx, refresher.HandleRefreshRequest)
		})
	} else {
		logger.Info("Skipping refresh request consumption - no AMQP client available")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
