package worker

import (
	"context"
	"fmt"
	"log/slog"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
		slog.String("worker_id", w.workerID),
	)
}

// workerLoop drains jobsChan until it is closed. In-flight dispatches run on a
// context detached from shutdown so they finish within the job timeout.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	jobCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				return
			}

			if err := w.processMessage(jobCtx, msg); err != nil {
				w.logger.Warn("Dispatch message failed",
					slog.String("worker_name", workerName),
					slog.String("pending_id", msg.Request.PendingID),
					slog.Any("error", err),
				)
			}

			// at most once: failures are recorded in the ledger, never redelivered
			if ackErr := w.broker.Ack(msg.DeliveryTag); ackErr != nil {
				w.logger.Error("Failed to ACK message",
					slog.String("worker_name", workerName),
					slog.String("pending_id", msg.Request.PendingID),
					slog.Any("error", ackErr),
				)
			}
		}
	}
}
