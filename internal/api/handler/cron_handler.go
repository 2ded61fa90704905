package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/batch-reconciler/internal/api/dto"
	"github.com/cuongbtq/batch-reconciler/internal/domain"
)

// Reconcile handles GET /api/v1/cron/reconcile
// Runs one tick synchronously and returns its report
func (h *CronHandler) Reconcile(c *gin.Context) {
	report, err := h.reconciler.Tick(c.Request.Context())
	if err != nil {
		if errors.Is(err, domain.ErrLeaseHeld) {
			c.JSON(http.StatusOK, dto.TickResponse{
				OK:         true,
				LeaseHeld:  true,
				TickReport: report,
			})
			return
		}

		h.logger.Error("Reconcile tick failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "reconcile tick failed",
		})
		return
	}

	c.JSON(http.StatusOK, dto.TickResponse{
		OK:         true,
		TickReport: report,
	})
}

// ResetDailyBalance handles GET /api/v1/cron/reset-daily-balance
func (h *CronHandler) ResetDailyBalance(c *gin.Context) {
	users, err := h.balance.ResetDaily(c.Request.Context(), h.dailyResetAmount)
	if err != nil {
		h.logger.Error("Daily balance reset failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "daily balance reset failed",
		})
		return
	}

	c.JSON(http.StatusOK, dto.ResetDailyResponse{
		OK:     true,
		Amount: h.dailyResetAmount,
		Users:  users,
	})
}
