package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/batch-reconciler/internal/api/dto"
	"github.com/cuongbtq/batch-reconciler/internal/domain"
	"github.com/cuongbtq/batch-reconciler/internal/ledger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetBatch handles GET /api/v1/batches/:batch_id
// Returns the batch's status and progress counters
func (h *BatchHandler) GetBatch(c *gin.Context) {
	batchID := c.Param("batch_id")
	if batchID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "batch_id is required",
		})
		return
	}

	batch, err := h.batches.GetBatch(c.Request.Context(), batchID)
	if err != nil {
		if errors.Is(err, domain.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "batch not found",
			})
			return
		}

		h.logger.Error("Failed to get batch",
			slog.String("batch_id", batchID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get batch",
		})
		return
	}

	c.JSON(http.StatusOK, dto.NewBatchDTO(batch))
}

// ListBatches handles GET /api/v1/batches
// Lists a user's batches newest first with keyset pagination
func (h *BatchHandler) ListBatches(c *gin.Context) {
	var req dto.ListBatchesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Debug("Invalid query parameters", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeBatchCursor(req.Cursor)
	if err != nil {
		h.logger.Debug("Invalid cursor", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := ledger.BatchFilter{
		UserID:   req.UserID,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	switch req.Status {
	case "open":
		s := domain.BatchStatusOpen
		filter.Status = &s
	case "closed":
		s := domain.BatchStatusClosed
		filter.Status = &s
	}

	batches, err := h.batches.ListBatches(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list batches", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list batches",
		})
		return
	}

	hasMore := len(batches) > req.PageSize
	if hasMore {
		batches = batches[:req.PageSize]
	}

	resp := dto.ListBatchesResponse{
		Batches: make([]dto.BatchDTO, len(batches)),
	}
	for i := range batches {
		resp.Batches[i] = dto.NewBatchDTO(&batches[i])
	}

	if hasMore {
		last := batches[len(batches)-1]
		resp.NextCursor = EncodeBatchCursor(&ledger.BatchCursor{
			CreatedAt: last.CreatedAt,
			BatchID:   last.ID,
		})
	}

	c.JSON(http.StatusOK, resp)
}
