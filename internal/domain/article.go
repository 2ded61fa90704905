package domain

import "time"

// ArticleStatus tracks one keyword's generation outcome
type ArticleStatus int

const (
	ArticleStatusPending   ArticleStatus = 0
	ArticleStatusCompleted ArticleStatus = 1
	ArticleStatusFailed    ArticleStatus = 2
)

// CronRequest flags on a pending dispatch row
const (
	CronRequestNotDispatched = 0
	CronRequestDispatched    = 1
)

// Article is one keyword's generation unit
type Article struct {
	ID        string        `db:"id"`
	BatchID   string        `db:"batch_id"`
	UserID    string        `db:"user_id"`
	Keyword   string        `db:"keyword"`
	Content   *string       `db:"content"`
	Status    ArticleStatus `db:"status"`
	AIScore   *float64      `db:"ai_score"`
	CreatedAt time.Time     `db:"created_at"`
	UpdatedAt time.Time     `db:"updated_at"`
}

// PendingKeyword is a pending_dispatches row joined with its article's content flag.
// ArticleFound is false when the row points at an article that no longer exists,
// ArticleLive is false when the article already left the pending status.
type PendingKeyword struct {
	ID           string `db:"id"`
	BatchID      string `db:"batch_id"`
	ArticleID    string `db:"article_id"`
	Keyword      string `db:"keyword_text"`
	CronRequest  int    `db:"cron_request"`
	SendFailures int    `db:"send_failures"`
	ArticleFound bool   `db:"article_found"`
	ArticleLive  bool   `db:"article_live"`
	HasContent   bool   `db:"has_content"`
}

// Dispatched reports whether the keyword was already sent this cycle
func (p PendingKeyword) Dispatched() bool {
	return p.CronRequest == CronRequestDispatched
}

// DispatchRequest is what the external generator receives for one keyword
type DispatchRequest struct {
	PendingID string `json:"pending_id"`
	BatchID   string `json:"batch_id"`
	ArticleID string `json:"article_id"`
	Keyword   string `json:"keyword"`
}
