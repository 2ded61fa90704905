package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/batch-reconciler/internal/app"
	"github.com/cuongbtq/batch-reconciler/internal/balance"
	"github.com/cuongbtq/batch-reconciler/internal/config"
	"github.com/cuongbtq/batch-reconciler/internal/ledger"
	"github.com/cuongbtq/batch-reconciler/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	defaultConfigPath := os.Getenv("DISPATCH_WORKER_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/dispatch-worker/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := app.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting dispatch worker",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := app.InitPostgreSQL(&cfg.Database, appLogger.Component("postgresql"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient, err := app.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Component("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	balances := balance.NewService(dbClient.GetDB(), appLogger.Component("balance"))
	store := ledger.NewStore(dbClient.GetDB(), balances, appLogger.Component("ledger"))

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:          appLogger.Component("worker"),
		Broker:          rabbitClient,
		Webhook:         app.NewWebhook(&cfg.Dispatch, appLogger.Component("dispatch")),
		Failures:        store,
		QueueName:       cfg.RabbitMQ.Queue.Name,
		Concurrency:     cfg.Worker.Concurrency,
		PrefetchCount:   cfg.Worker.PrefetchCount,
		JobTimeout:      cfg.Worker.JobTimeout,
		MaxSendFailures: cfg.Reconciler.SendFailureCap(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- workerInstance.Start(ctx)
	}()

	appLogger.Info("Dispatch worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		if err != nil {
			appLogger.Error("Worker error", slog.Any("error", err))
			return err
		}
		appLogger.Warn("Delivery channel closed, shutting down")
	case amqpErr := <-rabbitClient.NotifyClose():
		appLogger.Error("RabbitMQ connection lost", slog.Any("error", amqpErr))
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	if err := workerInstance.Stop(shutdownCtx); err != nil {
		appLogger.Warn("Worker shutdown timeout exceeded", slog.Any("error", err))
	}

	appLogger.Info("Dispatch worker shutdown complete")
	return nil
}
