package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/batch-reconciler/internal/domain"
)

// Publisher is the part of the RabbitMQ client the queue dispatcher needs
type Publisher interface {
	Publish(ctx context.Context, messageID string, body []byte, contentType string) error
}

// QueueDispatcher hands keywords to the dispatch worker over RabbitMQ instead of
// calling the webhook inline
type QueueDispatcher struct {
	publisher Publisher
}

// NewQueueDispatcher creates a new queue dispatcher
func NewQueueDispatcher(publisher Publisher) *QueueDispatcher {
	return &QueueDispatcher{publisher: publisher}
}

// Dispatch publishes the request; the pending row id is the message id
func (q *QueueDispatcher) Dispatch(ctx context.Context, req domain.DispatchRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	if err := q.publisher.Publish(ctx, req.PendingID, body, "application/json"); err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to publish dispatch request: %w", err))
	}

	return nil
}

// DecodeRequest parses a queued dispatch request
func DecodeRequest(body []byte) (domain.DispatchRequest, error) {
	var req domain.DispatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("invalid dispatch message: %w", err)
	}
	if req.PendingID == "" || req.ArticleID == "" || req.Keyword == "" {
		return req, fmt.Errorf("invalid dispatch message: pending_id, article_id and keyword are required")
	}
	return req, nil
}
