package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/batch-reconciler/internal/domain"
	"github.com/cuongbtq/batch-reconciler/internal/ledger"
	"github.com/cuongbtq/batch-reconciler/internal/reconciler"
)

// TickRunner runs one reconciliation pass
type TickRunner interface {
	Tick(ctx context.Context) (reconciler.TickReport, error)
}

// DailyResetter refills every user's daily balance
type DailyResetter interface {
	ResetDaily(ctx context.Context, amount int) (int64, error)
}

// BatchReader serves the batch read endpoints
type BatchReader interface {
	GetBatch(ctx context.Context, batchID string) (*domain.Batch, error)
	ListBatches(ctx context.Context, filter ledger.BatchFilter) ([]domain.Batch, error)
}

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger           *slog.Logger
	Health           HealthChecker
	Reconciler       TickRunner
	Balance          DailyResetter
	Batches          BatchReader
	CronSecret       string
	DailyResetAmount int
}

// CronHandler handles the scheduler trigger endpoints
type CronHandler struct {
	logger           *slog.Logger
	reconciler       TickRunner
	balance          DailyResetter
	dailyResetAmount int
}

// NewCronHandler creates a new CronHandler instance
func NewCronHandler(deps *Dependencies) *CronHandler {
	return &CronHandler{
		logger:           deps.Logger,
		reconciler:       deps.Reconciler,
		balance:          deps.Balance,
		dailyResetAmount: deps.DailyResetAmount,
	}
}

// HealthHandler serves the liveness endpoint
type HealthHandler struct {
	logger *slog.Logger
	health HealthChecker
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		logger: deps.Logger,
		health: deps.Health,
	}
}

// BatchHandler handles batch progress reads
type BatchHandler struct {
	logger  *slog.Logger
	batches BatchReader
}

// NewBatchHandler creates a new BatchHandler instance
func NewBatchHandler(deps *Dependencies) *BatchHandler {
	return &BatchHandler{
		logger:  deps.Logger,
		batches: deps.Batches,
	}
}
