package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

const serviceName = "batch-reconciler"

// Check handles GET /health. The ledger database must answer for the
// service to report healthy.
func (h *HealthHandler) Check(c *gin.Context) {
	if h.health != nil {
		if err := h.health.HealthCheck(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", slog.Any("error", err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": serviceName,
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
	})
}
