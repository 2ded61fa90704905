package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/batch-reconciler/internal/domain"
)

// Broker is the part of the RabbitMQ client the worker consumes through
type Broker interface {
	SetQoS(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	Ack(deliveryTag uint64) error
	Nack(deliveryTag uint64, requeue bool) error
}

// Webhook performs one dispatch against the external generator
type Webhook interface {
	Dispatch(ctx context.Context, req domain.DispatchRequest) error
}

// FailureRecorder re-arms a keyword whose dispatch did not go through
type FailureRecorder interface {
	RecordSendFailure(ctx context.Context, pendingID string, maxFailures int) (bool, error)
}

// Config holds worker configuration
type Config struct {
	Logger          *slog.Logger
	Broker          Broker
	Webhook         Webhook
	Failures        FailureRecorder
	QueueName       string
	Concurrency     int
	PrefetchCount   int
	JobTimeout      time.Duration
	MaxSendFailures int
}

// dispatchMessage is one decoded delivery handed to the pool
type dispatchMessage struct {
	Request     domain.DispatchRequest
	DeliveryTag uint64
}

// Worker consumes queued dispatch requests and calls the webhook for each.
// Every processed message is ACKed; delivery is at most once.
type Worker struct {
	logger          *slog.Logger
	broker          Broker
	webhook         Webhook
	failures        FailureRecorder
	workerID        string
	queueName       string
	concurrency     int
	prefetchCount   int
	jobTimeout      time.Duration
	maxSendFailures int

	jobsChan chan *dispatchMessage
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Worker{
		logger:          cfg.Logger,
		broker:          cfg.Broker,
		webhook:         cfg.Webhook,
		failures:        cfg.Failures,
		workerID:        "dispatch-worker-" + uuid.NewString()[:8],
		queueName:       cfg.QueueName,
		concurrency:     concurrency,
		prefetchCount:   cfg.PrefetchCount,
		jobTimeout:      cfg.JobTimeout,
		maxSendFailures: cfg.MaxSendFailures,
		jobsChan:        make(chan *dispatchMessage),
		stopChan:        make(chan struct{}),
	}
}

// Start consumes until ctx is canceled or the delivery channel closes.
// It returns once no more messages will be handed to the pool.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)
	close(w.jobsChan)

	return nil
}

// Stop waits for in-flight dispatches. If ctx expires first, workers stop
// taking new messages and the remaining ones are left unacked.
func (w *Worker) Stop(ctx context.Context) error {
	w.logger.Info("Stopping worker...")

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped")
		return nil
	case <-ctx.Done():
		w.stopOnce.Do(func() { close(w.stopChan) })
		<-done
		return fmt.Errorf("worker stop: %w", ctx.Err())
	}
}
