package dto

import (
	"time"

	"github.com/cuongbtq/batch-reconciler/internal/domain"
	"github.com/cuongbtq/batch-reconciler/internal/reconciler"
)

type ListBatchesRequest struct {
	UserID   string `form:"user_id" binding:"required"`
	Status   string `form:"status" binding:"omitempty,oneof=open closed"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListBatchesResponse struct {
	Batches    []BatchDTO `json:"batches"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type BatchDTO struct {
	BatchID           string `json:"batch_id"`
	UserID            string `json:"user_id"`
	Name              string `json:"name"`
	Status            string `json:"status"`
	Articles          int    `json:"articles"`
	CompletedArticles int    `json:"completed_articles"`
	PendingArticles   int    `json:"pending_articles"`
	FailedArticles    int    `json:"failed_articles"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

// NewBatchDTO renders a batch for the read API
func NewBatchDTO(b *domain.Batch) BatchDTO {
	status := "open"
	if b.Status == domain.BatchStatusClosed {
		status = "closed"
	}

	return BatchDTO{
		BatchID:           b.ID,
		UserID:            b.UserID,
		Name:              b.Name,
		Status:            status,
		Articles:          b.Articles,
		CompletedArticles: b.CompletedArticles,
		PendingArticles:   b.PendingArticles,
		FailedArticles:    b.FailedArticles,
		CreatedAt:         b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         b.UpdatedAt.Format(time.RFC3339),
	}
}

// TickResponse acknowledges a trigger with the tick's counters inlined
type TickResponse struct {
	OK        bool `json:"ok"`
	LeaseHeld bool `json:"lease_held,omitempty"`
	reconciler.TickReport
}

type ResetDailyResponse struct {
	OK     bool  `json:"ok"`
	Amount int   `json:"amount"`
	Users  int64 `json:"users"`
}

type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
