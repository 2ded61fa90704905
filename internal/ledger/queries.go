package ledger

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/cuongbtq/batch-reconciler/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var batchColumns = []string{
	"b.id",
	"b.user_id",
	"b.name",
	"b.article_type",
	"b.status",
	"b.articles",
	"b.completed_articles",
	"b.pending_articles",
	"b.failed_articles",
	"COALESCE(b.funding_tier, '') AS funding_tier",
	"b.created_at",
	"b.updated_at",
	"u.email AS user_email",
	"COALESCE(u.plan, '') AS user_plan",
}

const batchReturning = `RETURNING id, user_id, name, article_type, status, articles,
	completed_articles, pending_articles, failed_articles,
	COALESCE(funding_tier, '') AS funding_tier, created_at, updated_at`

func selectBatches() sq.SelectBuilder {
	return psql.Select(batchColumns...).
		From("batches b").
		Join("users u ON u.id = b.user_id")
}

// candidatesQuery selects open batches untouched since cutoff, oldest first
func candidatesQuery(cutoff time.Time, limit int) (string, []any, error) {
	return selectBatches().
		Where(sq.Eq{"b.status": domain.BatchStatusOpen}).
		Where(sq.Eq{"b.article_type": domain.ArticleTypeGodmode}).
		Where(sq.Lt{"b.updated_at": cutoff}).
		OrderBy("b.updated_at ASC", "b.id ASC").
		Limit(uint64(limit)).
		ToSql()
}

func pendingQuery(batchID string) (string, []any, error) {
	return psql.Select(
		"p.id",
		"p.batch_id",
		"p.article_id",
		"p.keyword_text",
		"p.cron_request",
		"p.send_failures",
		"(a.id IS NOT NULL) AS article_found",
		"COALESCE(a.status = 0, false) AS article_live",
		"(a.content IS NOT NULL) AS has_content",
	).
		From("pending_dispatches p").
		LeftJoin("articles a ON a.id = p.article_id").
		Where(sq.Eq{"p.batch_id": batchID}).
		OrderBy("p.created_at ASC", "p.id ASC").
		ToSql()
}

// guardedBatchUpdate applies counter deltas only if the batch is still open with
// the UpdatedAt snapshot the decision was made on
func guardedBatchUpdate(t *domain.Transition) (string, []any, error) {
	status := domain.BatchStatusOpen
	if t.Close {
		status = domain.BatchStatusClosed
	}

	resolved := len(t.Promote) + len(t.Fail)

	return psql.Update("batches").
		Set("completed_articles", sq.Expr("completed_articles + ?", len(t.Promote))).
		Set("pending_articles", sq.Expr("pending_articles - ?", resolved)).
		Set("failed_articles", sq.Expr("failed_articles + ?", len(t.Fail))).
		Set("status", status).
		Set("updated_at", t.Now).
		Where(sq.Eq{"id": t.BatchID}).
		Where(sq.Eq{"status": domain.BatchStatusOpen}).
		Where(sq.Eq{"updated_at": t.Snapshot}).
		Suffix(batchReturning).
		ToSql()
}

func promoteArticlesQuery(t *domain.Transition) (string, []any, error) {
	return psql.Update("articles").
		Set("status", domain.ArticleStatusCompleted).
		Set("updated_at", t.Now).
		Where(sq.Expr("id = ANY(?)", pq.Array(t.PromoteArticleIDs()))).
		Where(sq.Eq{"batch_id": t.BatchID}).
		Where(sq.Eq{"status": domain.ArticleStatusPending}).
		Where("content IS NOT NULL").
		ToSql()
}

func failArticlesQuery(t *domain.Transition) (string, []any, error) {
	return psql.Update("articles").
		Set("status", domain.ArticleStatusFailed).
		Set("updated_at", t.Now).
		Where(sq.Expr("id = ANY(?)", pq.Array(t.FailArticleIDs()))).
		Where(sq.Eq{"batch_id": t.BatchID}).
		Where(sq.Eq{"status": domain.ArticleStatusPending}).
		Where("content IS NULL").
		ToSql()
}

func deletePendingQuery(batchID string, ids []string) (string, []any, error) {
	return psql.Delete("pending_dispatches").
		Where(sq.Expr("id = ANY(?)", pq.Array(ids))).
		Where(sq.Eq{"batch_id": batchID}).
		ToSql()
}

func markDispatchedQuery(t *domain.Transition) (string, []any, error) {
	return psql.Update("pending_dispatches").
		Set("cron_request", domain.CronRequestDispatched).
		Set("updated_at", t.Now).
		Where(sq.Expr("id = ANY(?)", pq.Array(t.DispatchPendingIDs()))).
		Where(sq.Eq{"batch_id": t.BatchID}).
		Where(sq.Eq{"cron_request": domain.CronRequestNotDispatched}).
		ToSql()
}

// sendFailureQuery re-arms a dispatched row for the next tick while it stays under the cap
func sendFailureQuery(pendingID string, maxFailures int) (string, []any, error) {
	return psql.Update("pending_dispatches").
		Set("cron_request", domain.CronRequestNotDispatched).
		Set("send_failures", sq.Expr("send_failures + 1")).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": pendingID}).
		Where(sq.Eq{"cron_request": domain.CronRequestDispatched}).
		Where(sq.Lt{"send_failures": maxFailures}).
		ToSql()
}

// BatchFilter selects a page of a user's batches
type BatchFilter struct {
	UserID   string
	Status   *domain.BatchStatus
	PageSize int
	Cursor   *BatchCursor
}

// BatchCursor is the keyset position of the last batch on the previous page
type BatchCursor struct {
	CreatedAt time.Time
	BatchID   string
}

func listBatchesQuery(filter BatchFilter) (string, []any, error) {
	q := selectBatches()

	if filter.UserID != "" {
		q = q.Where(sq.Eq{"b.user_id": filter.UserID})
	}

	if filter.Status != nil {
		q = q.Where(sq.Eq{"b.status": *filter.Status})
	}

	if filter.Cursor != nil {
		q = q.Where("(b.created_at, b.id) < (?, ?)", filter.Cursor.CreatedAt, filter.Cursor.BatchID)
	}

	// one extra row tells the caller whether another page exists
	return q.OrderBy("b.created_at DESC", "b.id DESC").
		Limit(uint64(filter.PageSize + 1)).
		ToSql()
}
