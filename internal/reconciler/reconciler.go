package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/batch-reconciler/internal/balance"
	"github.com/cuongbtq/batch-reconciler/internal/domain"
)

// Ledger is the transactional store the reconciler reads and writes
type Ledger interface {
	ListCandidates(ctx context.Context, cutoff time.Time, limit int) ([]domain.Batch, error)
	LoadPending(ctx context.Context, batchID string) ([]domain.PendingKeyword, error)
	ApplyTransition(ctx context.Context, t *domain.Transition) (*domain.Batch, error)
	RecordSendFailure(ctx context.Context, pendingID string, maxFailures int) (bool, error)
}

// Dispatcher hands one keyword to the external generator
type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.DispatchRequest) error
}

// Notifier sends one transactional email
type Notifier interface {
	SendTransactional(ctx context.Context, templateID, email string, vars map[string]string) error
}

// Locker grants a cross-instance lease around a whole tick
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Config holds reconciler tuning
type Config struct {
	StalenessWindow time.Duration
	Concurrency     int
	BatchLimit      int
	TxTimeout       time.Duration
	DispatchTimeout time.Duration
	NotifyTimeout   time.Duration
	MaxSendFailures int
	LeaseKey        string
	LeaseTTL        time.Duration
	Templates       Templates
}

// Option customizes a Reconciler
type Option func(*Reconciler)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithLocker guards each tick with a lease
func WithLocker(locker Locker) Option {
	return func(r *Reconciler) {
		r.locker = locker
	}
}

// Reconciler drives open batches to completion one tick at a time
type Reconciler struct {
	ledger     Ledger
	dispatcher Dispatcher
	notifier   Notifier
	locker     Locker
	config     Config
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a new Reconciler
func New(ledger Ledger, dispatcher Dispatcher, notifier Notifier, config Config, logger *slog.Logger, opts ...Option) *Reconciler {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}

	r := &Reconciler{
		ledger:     ledger,
		dispatcher: dispatcher,
		notifier:   notifier,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// batchResult is how far one batch got within a tick
type batchResult int

const (
	resultApplied batchResult = iota
	resultConflict
	resultSkipped
	resultFailed
)

type batchOutcome struct {
	result       batchResult
	scenario     domain.Scenario
	closed       bool
	dispatched   int
	sendFailures int
	rearmed      int
	refunded     int
	notified     bool
	notifyFailed bool
}

// Tick runs one reconciliation pass at the current time. Only candidate selection
// and lease failures are returned; per-batch problems are logged and counted.
func (r *Reconciler) Tick(ctx context.Context) (TickReport, error) {
	now := r.now().UTC().Truncate(time.Microsecond)
	report := newTickReport(uuid.NewString(), now)
	logger := r.logger.With(slog.String("tick_id", report.TickID))

	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, r.config.LeaseKey, r.config.LeaseTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLeaseHeld) {
				logger.Info("Tick skipped, lease held by another instance")
			} else {
				logger.Error("Failed to acquire tick lease", slog.Any("error", err))
			}
			return report, err
		}
		defer release()
	}

	cutoff := now.Add(-r.config.StalenessWindow)
	batches, err := r.ledger.ListCandidates(ctx, cutoff, r.config.BatchLimit)
	if err != nil {
		logger.Error("Failed to list candidate batches", slog.Any("error", err))
		return report, fmt.Errorf("list candidates: %w", err)
	}
	report.Candidates = len(batches)

	outcomes := make([]batchOutcome, len(batches))

	var g errgroup.Group
	g.SetLimit(r.config.Concurrency)

	for i := range batches {
		g.Go(func() error {
			outcomes[i] = r.processBatch(ctx, logger, &batches[i], now)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		report.add(o)
	}
	report.FinishedAt = r.now().UTC()

	logger.Info("Tick completed",
		slog.Int("candidates", report.Candidates),
		slog.Int("applied", report.Applied),
		slog.Int("conflicts", report.Conflicts),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int("dispatched", report.Dispatched),
		slog.Int("refunded", report.Refunded),
		slog.Int("notified", report.Notified),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)

	return report, nil
}

func (r *Reconciler) processBatch(ctx context.Context, tickLogger *slog.Logger, batch *domain.Batch, now time.Time) batchOutcome {
	logger := tickLogger.With(slog.String("batch_id", batch.ID))

	t, updated, err := r.decideAndApply(ctx, logger, batch, now)
	if err != nil {
		return r.classifyError(logger, err)
	}

	outcome := batchOutcome{
		result:   resultApplied,
		scenario: t.Scenario,
		closed:   t.Close,
		refunded: t.Refund(),
	}

	// The transition is committed; its side effects must not die with the caller.
	postCtx := context.WithoutCancel(ctx)

	outcome.dispatched, outcome.sendFailures, outcome.rearmed = r.dispatchAll(postCtx, logger, t)

	notified, err := r.notify(postCtx, logger, updated, batch.UserEmail, t)
	outcome.notified = notified
	outcome.notifyFailed = err != nil

	return outcome
}

// decideAndApply reads, classifies and commits one batch under the transaction timeout
func (r *Reconciler) decideAndApply(ctx context.Context, logger *slog.Logger, batch *domain.Batch, now time.Time) (*domain.Transition, *domain.Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.TxTimeout)
	defer cancel()

	rows, err := r.ledger.LoadPending(ctx, batch.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load pending: %w", err)
	}

	c := Classify(rows)

	var tier domain.Tier
	if c.Scenario == domain.ScenarioForced {
		tier = balance.ResolveTier(batch, logger)
	}

	t := Plan(batch, c, tier, now)

	logger.Debug("Batch classified",
		slog.String("scenario", c.Scenario.String()),
		slog.Int("ready", len(c.Ready)),
		slog.Int("not_ready", len(c.NotReady)),
	)

	updated, err := r.ledger.ApplyTransition(ctx, t)
	if err != nil {
		return nil, nil, fmt.Errorf("apply %s transition: %w", c.Scenario, err)
	}

	return t, updated, nil
}

func (r *Reconciler) classifyError(logger *slog.Logger, err error) batchOutcome {
	switch {
	case errors.Is(err, domain.ErrBatchChanged):
		logger.Info("Batch changed since it was read, skipping", slog.Any("error", err))
		return batchOutcome{result: resultConflict}
	case errors.Is(err, domain.ErrMissingArticle), errors.Is(err, domain.ErrInvariant):
		logger.Error("Batch violates a ledger invariant, skipping", slog.Any("error", err))
		return batchOutcome{result: resultSkipped}
	default:
		logger.Warn("Batch not reconciled this tick", slog.Any("error", err),
			slog.Bool("retryable", domain.IsRetryable(err)))
		return batchOutcome{result: resultFailed}
	}
}

// dispatchAll sends every newly armed keyword after commit. A failed send never
// rolls back; it re-arms the keyword while it is under the send failure cap.
func (r *Reconciler) dispatchAll(ctx context.Context, logger *slog.Logger, t *domain.Transition) (int, int, int) {
	if len(t.Dispatch) == 0 {
		return 0, 0, 0
	}

	var sent, failed, rearmed atomic.Int64

	var g errgroup.Group
	g.SetLimit(r.config.Concurrency)

	for _, row := range t.Dispatch {
		g.Go(func() error {
			req := domain.DispatchRequest{
				PendingID: row.ID,
				BatchID:   t.BatchID,
				ArticleID: row.ArticleID,
				Keyword:   row.Keyword,
			}

			dctx, cancel := context.WithTimeout(ctx, r.config.DispatchTimeout)
			err := r.dispatcher.Dispatch(dctx, req)
			cancel()

			if err == nil {
				sent.Add(1)
				return nil
			}

			failed.Add(1)
			logger.Warn("Dispatch failed",
				slog.String("pending_id", row.ID),
				slog.String("article_id", row.ArticleID),
				slog.Any("error", err),
			)

			if r.config.MaxSendFailures <= 0 {
				return nil
			}

			rctx, cancel := context.WithTimeout(ctx, r.config.TxTimeout)
			ok, err := r.ledger.RecordSendFailure(rctx, row.ID, r.config.MaxSendFailures)
			cancel()
			if err != nil {
				logger.Error("Failed to record send failure",
					slog.String("pending_id", row.ID),
					slog.Any("error", err),
				)
				return nil
			}
			if ok {
				rearmed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(sent.Load()), int(failed.Load()), int(rearmed.Load())
}

// notify sends the single email for a committed transition. Failures are logged and
// dropped; the transition is never replayed to resend.
func (r *Reconciler) notify(ctx context.Context, logger *slog.Logger, updated *domain.Batch, email string, t *domain.Transition) (bool, error) {
	batch := *updated
	batch.UserEmail = email

	n := BuildNotification(&batch, t, r.config.Templates)
	if n == nil {
		return false, nil
	}

	if n.Email == "" {
		err := errors.New("batch owner has no email address")
		logger.Error("Notification not sent", slog.Any("error", err))
		return false, err
	}

	nctx, cancel := context.WithTimeout(ctx, r.config.NotifyTimeout)
	defer cancel()

	if err := r.notifier.SendTransactional(nctx, n.TemplateID, n.Email, n.Vars); err != nil {
		logger.Error("Notification failed, not retrying",
			slog.String("template_id", n.TemplateID),
			slog.String("scenario", t.Scenario.String()),
			slog.Any("error", err),
		)
		return false, err
	}

	logger.Info("Notification sent",
		slog.String("template_id", n.TemplateID),
		slog.String("scenario", t.Scenario.String()),
	)

	return true, nil
}
