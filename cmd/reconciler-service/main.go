package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/batch-reconciler/internal/api/handler"
	"github.com/cuongbtq/batch-reconciler/internal/api/router"
	"github.com/cuongbtq/batch-reconciler/internal/app"
	"github.com/cuongbtq/batch-reconciler/internal/config"
	"github.com/cuongbtq/batch-reconciler/internal/domain"
	"github.com/cuongbtq/batch-reconciler/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	defaultConfigPath := os.Getenv("RECONCILER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/reconciler-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	noCron := flag.Bool("no-cron", false, "Serve the trigger API only; an external scheduler calls it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateReconcilerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := app.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting reconciler service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("dispatch_mode", cfg.Dispatch.Mode),
		slog.String("notify_provider", cfg.Notify.Provider),
		slog.Bool("lease", cfg.Lease.Enabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.Bootstrap(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer services.Close()

	var sched *scheduler.Scheduler
	if !*noCron {
		sched = scheduler.New(appLogger.Component("scheduler"))

		if _, err := sched.Add("reconcile", cfg.Reconciler.Schedule, func(ctx context.Context) error {
			_, err := services.Reconciler.Tick(ctx)
			if errors.Is(err, domain.ErrLeaseHeld) {
				return nil
			}
			return err
		}); err != nil {
			return err
		}

		if _, err := sched.Add("reset-daily-balance", cfg.Balance.DailyResetSchedule, func(ctx context.Context) error {
			_, err := services.Balance.ResetDaily(ctx, cfg.Balance.DailyResetAmount)
			return err
		}); err != nil {
			return err
		}

		sched.Start()
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:           appLogger.Component("api"),
		Health:           services.DB,
		Reconciler:       services.Reconciler,
		Balance:          services.Balance,
		Batches:          services.Ledger,
		CronSecret:       cfg.Server.CronSecret,
		DailyResetAmount: cfg.Balance.DailyResetAmount,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("Reconciler service is running",
		slog.String("address", addr),
		slog.String("schedule", cfg.Reconciler.Schedule),
		slog.Bool("cron", !*noCron),
	)

	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down...")
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		return err
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
	}

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			appLogger.Warn("Scheduled jobs did not finish in time", slog.Any("error", err))
		}
	}

	appLogger.Info("Reconciler service shutdown complete")
	return nil
}
