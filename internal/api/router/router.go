package router

import (
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/batch-reconciler/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))

	healthHandler := handler.NewHealthHandler(deps)
	cronHandler := handler.NewCronHandler(deps)
	batchHandler := handler.NewBatchHandler(deps)

	r.GET("/health", healthHandler.Check)

	v1 := r.Group("/api/v1")
	{
		cron := v1.Group("/cron", CronAuthMiddleware(deps.CronSecret))
		{
			// GET /api/v1/cron/reconcile - run one reconciliation tick
			cron.GET("/reconcile", cronHandler.Reconcile)

			// GET /api/v1/cron/reset-daily-balance - refill daily balances
			cron.GET("/reset-daily-balance", cronHandler.ResetDailyBalance)
		}

		batches := v1.Group("/batches")
		{
			batches.GET("", batchHandler.ListBatches)
			batches.GET("/:batch_id", batchHandler.GetBatch)
		}
	}

	return r
}
