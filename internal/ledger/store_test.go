package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/batch-reconciler/internal/balance"
	"github.com/cuongbtq/batch-reconciler/internal/domain"
)

var returningColumns = []string{
	"id", "user_id", "name", "article_type", "status", "articles",
	"completed_articles", "pending_articles", "failed_articles",
	"funding_tier", "created_at", "updated_at",
}

const (
	updateBatchSQL   = `UPDATE batches SET completed_articles`
	updateArticleSQL = `UPDATE articles SET status`
	deletePendingSQL = `DELETE FROM pending_dispatches`
	updatePendingSQL = `UPDATE pending_dispatches SET cron_request`
	creditSQL        = `UPDATE users SET monthly_balance = monthly_balance \+ \$1 WHERE id = \$2`
	countPendingSQL  = `SELECT COUNT\(\*\) FROM pending_dispatches WHERE batch_id = \$1`
)

type fakeCrediter struct {
	err   error
	calls int
}

func (f *fakeCrediter) CreditTx(context.Context, *sqlx.Tx, string, domain.Tier, int) error {
	f.calls++
	return f.err
}

func newMockStore(t *testing.T, credits func(db *sqlx.DB) Crediter) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "postgres")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var c Crediter = &fakeCrediter{}
	if credits != nil {
		c = credits(db)
	}

	return NewStore(db, c, logger), mock
}

// forcedTransition fails both outstanding keywords of a two keyword batch
func forcedTransition() *domain.Transition {
	snapshot := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Transition{
		BatchID:  "batch-1",
		UserID:   "user-1",
		Scenario: domain.ScenarioForced,
		Snapshot: snapshot,
		Now:      snapshot.Add(30 * time.Minute),
		Fail: []domain.PendingKeyword{
			{ID: "p1", ArticleID: "a1", CronRequest: domain.CronRequestDispatched},
			{ID: "p2", ArticleID: "a2", CronRequest: domain.CronRequestDispatched},
		},
		Close:      true,
		RefundTier: domain.TierMonthly,
	}
}

func batchRow(t *domain.Transition, status domain.BatchStatus, completed, pending, failed int) *sqlmock.Rows {
	articles := len(t.Promote) + len(t.Dispatch) + len(t.Fail)
	return sqlmock.NewRows(returningColumns).AddRow(
		t.BatchID, t.UserID, "Spring", domain.ArticleTypeGodmode, int64(status), int64(articles),
		int64(completed), int64(pending), int64(failed),
		"monthly", t.Snapshot.Add(-time.Hour), t.Now,
	)
}

func TestStore_ApplyTransition_ForcedCommitsWithRefund(t *testing.T) {
	store, mock := newMockStore(t, func(db *sqlx.DB) Crediter {
		return balance.NewService(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	})
	tr := forcedTransition()

	mock.ExpectBegin()
	mock.ExpectQuery(updateBatchSQL).WillReturnRows(batchRow(tr, domain.BatchStatusClosed, 0, 0, 2))
	mock.ExpectExec(updateArticleSQL).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(deletePendingSQL).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(creditSQL).WithArgs(2, "user-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(countPendingSQL).WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectCommit()

	updated, err := store.ApplyTransition(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, domain.BatchStatusClosed, updated.Status)
	assert.Equal(t, 2, updated.FailedArticles)
	assert.Equal(t, 0, updated.PendingArticles)
	assert.True(t, updated.UpdatedAt.Equal(tr.Now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ApplyTransition_PartialMarksDispatched(t *testing.T) {
	store, mock := newMockStore(t, nil)
	tr := testTransition()

	mock.ExpectBegin()
	mock.ExpectQuery(updateBatchSQL).WillReturnRows(batchRow(tr, domain.BatchStatusOpen, 2, 1, 0))
	mock.ExpectExec(updateArticleSQL).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(deletePendingSQL).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(updatePendingSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := store.ApplyTransition(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, domain.BatchStatusOpen, updated.Status)
	assert.Equal(t, 1, updated.PendingArticles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ApplyTransition_Errors(t *testing.T) {
	tests := []struct {
		name      string
		crediter  *fakeCrediter
		expect    func(mock sqlmock.Sqlmock, tr *domain.Transition)
		wantErr   error
		retryable bool
		errString string
		credited  int
	}{
		{
			name: "snapshot no longer matches",
			expect: func(mock sqlmock.Sqlmock, tr *domain.Transition) {
				mock.ExpectQuery(updateBatchSQL).WillReturnRows(sqlmock.NewRows(returningColumns))
			},
			wantErr: domain.ErrBatchChanged,
		},
		{
			name: "batch update fails",
			expect: func(mock sqlmock.Sqlmock, tr *domain.Transition) {
				mock.ExpectQuery(updateBatchSQL).WillReturnError(errors.New("connection reset"))
			},
			retryable: true,
			errString: "connection reset",
		},
		{
			name: "counters drift past the total",
			expect: func(mock sqlmock.Sqlmock, tr *domain.Transition) {
				mock.ExpectQuery(updateBatchSQL).WillReturnRows(batchRow(tr, domain.BatchStatusClosed, 0, 1, 2))
			},
			wantErr:   domain.ErrInvariant,
			errString: "counters",
		},
		{
			name: "closed with a drifted pending counter",
			expect: func(mock sqlmock.Sqlmock, tr *domain.Transition) {
				// sums to the total but still claims a pending keyword
				mock.ExpectQuery(updateBatchSQL).WillReturnRows(batchRow(tr, domain.BatchStatusClosed, 0, 1, 1))
			},
			wantErr:   domain.ErrInvariant,
			errString: "pending=1",
		},
		{
			name: "content arrived for a failed keyword",
			expect: func(mock sqlmock.Sqlmock, tr *domain.Transition) {
				mock.ExpectQuery(updateBatchSQL).WillReturnRows(batchRow(tr, domain.BatchStatusClosed, 0, 0, 2))
				mock.ExpectExec(updateArticleSQL).WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantErr:   domain.ErrBatchChanged,
			errString: "content arrived",
		},
		{
			name: "pending rows already gone",
			expect: func(mock sqlmock.Sqlmock, tr *domain.Transition) {
				mock.ExpectQuery(updateBatchSQL).WillReturnRows(batchRow(tr, domain.BatchStatusClosed, 0, 0, 2))
				mock.ExpectExec(updateArticleSQL).WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectExec(deletePendingSQL).WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantErr:   domain.ErrInvariant,
			errString: "delete pending dispatches",
		},
		{
			name:     "refund fails",
			crediter: &fakeCrediter{err: errors.New("users table locked")},
			expect: func(mock sqlmock.Sqlmock, tr *domain.Transition) {
				mock.ExpectQuery(updateBatchSQL).WillReturnRows(batchRow(tr, domain.BatchStatusClosed, 0, 0, 2))
				mock.ExpectExec(updateArticleSQL).WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectExec(deletePendingSQL).WillReturnResult(sqlmock.NewResult(0, 2))
			},
			errString: "refund: users table locked",
			credited:  1,
		},
		{
			name: "pending rows left behind on close",
			expect: func(mock sqlmock.Sqlmock, tr *domain.Transition) {
				mock.ExpectQuery(updateBatchSQL).WillReturnRows(batchRow(tr, domain.BatchStatusClosed, 0, 0, 2))
				mock.ExpectExec(updateArticleSQL).WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectExec(deletePendingSQL).WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectQuery(countPendingSQL).
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
			},
			wantErr:   domain.ErrInvariant,
			errString: "with 1 pending dispatches",
			credited:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crediter := tt.crediter
			if crediter == nil {
				crediter = &fakeCrediter{}
			}
			store, mock := newMockStore(t, func(*sqlx.DB) Crediter { return crediter })
			tr := forcedTransition()

			mock.ExpectBegin()
			tt.expect(mock, tr)
			mock.ExpectRollback()

			updated, err := store.ApplyTransition(context.Background(), tr)

			require.Error(t, err)
			assert.Nil(t, updated)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.errString != "" {
				assert.Contains(t, err.Error(), tt.errString)
			}
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))
			assert.Equal(t, tt.credited, crediter.calls)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_RecordSendFailure(t *testing.T) {
	tests := []struct {
		name        string
		affected    int64
		execErr     error
		wantRearmed bool
		wantErr     bool
	}{
		{name: "under the cap", affected: 1, wantRearmed: true},
		{name: "cap reached", affected: 0, wantRearmed: false},
		{name: "database error", execErr: errors.New("connection reset"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t, nil)

			exp := mock.ExpectExec(updatePendingSQL).WithArgs(domain.CronRequestNotDispatched, "p1", domain.CronRequestDispatched, 2)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, tt.affected))
			}

			rearmed, err := store.RecordSendFailure(context.Background(), "p1", 2)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantRearmed, rearmed)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
