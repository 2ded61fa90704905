package worker

import (
	"context"
	"fmt"
	"log/slog"
)

// processMessage calls the webhook for one keyword and, on failure, records the
// send failure so the next reconciliation tick can dispatch it again.
func (w *Worker) processMessage(ctx context.Context, msg *dispatchMessage) error {
	req := msg.Request
	logger := w.logger.With(
		slog.String("pending_id", req.PendingID),
		slog.String("batch_id", req.BatchID),
		slog.String("article_id", req.ArticleID),
	)

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	err := w.webhook.Dispatch(jobCtx, req)
	cancel()

	if err == nil {
		logger.Info("Keyword dispatched")
		return nil
	}

	if w.maxSendFailures <= 0 {
		return fmt.Errorf("dispatch: %w", err)
	}

	rearmed, recErr := w.failures.RecordSendFailure(ctx, req.PendingID, w.maxSendFailures)
	if recErr != nil {
		return fmt.Errorf("dispatch: %w; record send failure: %v", err, recErr)
	}

	logger.Info("Send failure recorded", slog.Bool("rearmed", rearmed))

	return fmt.Errorf("dispatch: %w", err)
}
