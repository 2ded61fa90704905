package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/batch-reconciler/internal/domain"
	"github.com/cuongbtq/batch-reconciler/shared/postgresql"
)

// Crediter refunds balance inside the ledger transaction
type Crediter interface {
	CreditTx(ctx context.Context, tx *sqlx.Tx, userID string, tier domain.Tier, amount int) error
}

// Store is the Postgres ledger for batches, articles and pending dispatches
type Store struct {
	db      *sqlx.DB
	credits Crediter
	logger  *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, credits Crediter, logger *slog.Logger) *Store {
	return &Store{
		db:      db,
		credits: credits,
		logger:  logger,
	}
}

// ListCandidates returns open batches whose updated_at is older than cutoff
func (s *Store) ListCandidates(ctx context.Context, cutoff time.Time, limit int) ([]domain.Batch, error) {
	query, args, err := candidatesQuery(cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build candidates query: %w", err)
	}

	var batches []domain.Batch
	if err := s.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("failed to list candidate batches: %w", err))
	}

	return batches, nil
}

// LoadPending returns the batch's pending keywords with their article content flags.
// A row pointing at a missing or already resolved article is a data invariant violation.
func (s *Store) LoadPending(ctx context.Context, batchID string) ([]domain.PendingKeyword, error) {
	query, args, err := pendingQuery(batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to build pending query: %w", err)
	}

	var rows []domain.PendingKeyword
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("failed to load pending dispatches: %w", err))
	}

	for _, row := range rows {
		if !row.ArticleFound {
			return nil, fmt.Errorf("%w: pending %s article %s", domain.ErrMissingArticle, row.ID, row.ArticleID)
		}
		if !row.ArticleLive {
			return nil, fmt.Errorf("%w: pending %s points at resolved article %s", domain.ErrInvariant, row.ID, row.ArticleID)
		}
	}

	return rows, nil
}

// ApplyTransition writes one batch decision atomically. The batch row is updated
// first and only if status and updated_at still match the snapshot; otherwise
// ErrBatchChanged is returned and nothing is written.
func (s *Store) ApplyTransition(ctx context.Context, t *domain.Transition) (*domain.Batch, error) {
	var updated domain.Batch

	err := postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		query, args, err := guardedBatchUpdate(t)
		if err != nil {
			return fmt.Errorf("failed to build batch update: %w", err)
		}

		if err := tx.QueryRowxContext(ctx, query, args...).StructScan(&updated); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrBatchChanged
			}
			return domain.NewRetryableError(fmt.Errorf("failed to update batch: %w", err))
		}

		if !updated.CountersConsistent() {
			return fmt.Errorf("%w: batch %s counters completed=%d pending=%d failed=%d articles=%d",
				domain.ErrInvariant, t.BatchID,
				updated.CompletedArticles, updated.PendingArticles, updated.FailedArticles, updated.Articles)
		}

		if len(t.Promote) > 0 {
			query, args, err := promoteArticlesQuery(t)
			if err != nil {
				return fmt.Errorf("failed to build promote query: %w", err)
			}
			if err := execExpect(ctx, tx, query, args, len(t.Promote)); err != nil {
				return fmt.Errorf("promote articles: %w", err)
			}
		}

		if len(t.Fail) > 0 {
			query, args, err := failArticlesQuery(t)
			if err != nil {
				return fmt.Errorf("failed to build fail query: %w", err)
			}
			// content landing between read and write shows up as a short count
			if err := execExpect(ctx, tx, query, args, len(t.Fail)); err != nil {
				if errors.Is(err, domain.ErrInvariant) {
					return fmt.Errorf("%w: content arrived for a keyword being failed", domain.ErrBatchChanged)
				}
				return fmt.Errorf("fail articles: %w", err)
			}
		}

		if resolved := t.ResolvedPendingIDs(); len(resolved) > 0 {
			query, args, err := deletePendingQuery(t.BatchID, resolved)
			if err != nil {
				return fmt.Errorf("failed to build delete query: %w", err)
			}
			if err := execExpect(ctx, tx, query, args, len(resolved)); err != nil {
				return fmt.Errorf("delete pending dispatches: %w", err)
			}
		}

		if len(t.Dispatch) > 0 {
			query, args, err := markDispatchedQuery(t)
			if err != nil {
				return fmt.Errorf("failed to build dispatch query: %w", err)
			}
			if err := execExpect(ctx, tx, query, args, len(t.Dispatch)); err != nil {
				return fmt.Errorf("mark dispatched: %w", err)
			}
		}

		if refund := t.Refund(); refund > 0 {
			if err := s.credits.CreditTx(ctx, tx, t.UserID, t.RefundTier, refund); err != nil {
				return fmt.Errorf("refund: %w", err)
			}
		}

		if t.Close {
			var remaining int
			if err := tx.GetContext(ctx, &remaining,
				`SELECT COUNT(*) FROM pending_dispatches WHERE batch_id = $1`, t.BatchID); err != nil {
				return domain.NewRetryableError(fmt.Errorf("failed to count pending dispatches: %w", err))
			}
			if remaining != 0 {
				return fmt.Errorf("%w: closing batch %s with %d pending dispatches", domain.ErrInvariant, t.BatchID, remaining)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Batch transition applied",
		slog.String("batch_id", t.BatchID),
		slog.String("scenario", t.Scenario.String()),
		slog.Int("promoted", len(t.Promote)),
		slog.Int("dispatched", len(t.Dispatch)),
		slog.Int("failed", len(t.Fail)),
		slog.Bool("closed", t.Close),
	)

	return &updated, nil
}

// execExpect runs a bulk statement and requires it to touch exactly want rows
func execExpect(ctx context.Context, tx *sqlx.Tx, query string, args []any, want int) error {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.NewRetryableError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows != int64(want) {
		return fmt.Errorf("%w: expected %d rows, affected %d", domain.ErrInvariant, want, rows)
	}

	return nil
}

// RecordSendFailure re-arms a keyword whose dispatch was not accepted. It returns
// false once the keyword has used up maxFailures, leaving it to forced completion.
func (s *Store) RecordSendFailure(ctx context.Context, pendingID string, maxFailures int) (bool, error) {
	query, args, err := sendFailureQuery(pendingID, maxFailures)
	if err != nil {
		return false, fmt.Errorf("failed to build send failure query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to record send failure: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		s.logger.Warn("Send failure not re-armed (cap reached or row resolved)",
			slog.String("pending_id", pendingID),
			slog.Int("max_send_failures", maxFailures),
		)
		return false, nil
	}

	return true, nil
}

// GetBatch retrieves a batch with its owner's email and plan
func (s *Store) GetBatch(ctx context.Context, batchID string) (*domain.Batch, error) {
	query, args, err := selectBatches().Where("b.id = ?", batchID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build batch query: %w", err)
	}

	var batch domain.Batch
	if err := s.db.GetContext(ctx, &batch, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBatchNotFound
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return &batch, nil
}

// ListBatches returns up to PageSize+1 batches, newest first
func (s *Store) ListBatches(ctx context.Context, filter BatchFilter) ([]domain.Batch, error) {
	query, args, err := listBatchesQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	var batches []domain.Batch
	if err := s.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	return batches, nil
}
