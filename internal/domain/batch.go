package domain

import "time"

// BatchStatus is the open/closed state of a generation batch
type BatchStatus int

const (
	BatchStatusOpen   BatchStatus = 0
	BatchStatusClosed BatchStatus = 1
)

// ArticleTypeGodmode is the only article type the reconciler handles
const ArticleTypeGodmode = "godmode"

// Batch is one user submission of N keywords
type Batch struct {
	ID                string      `db:"id"`
	UserID            string      `db:"user_id"`
	Name              string      `db:"name"`
	ArticleType       string      `db:"article_type"`
	Status            BatchStatus `db:"status"`
	Articles          int         `db:"articles"`
	CompletedArticles int         `db:"completed_articles"`
	PendingArticles   int         `db:"pending_articles"`
	FailedArticles    int         `db:"failed_articles"`
	FundingTier       string      `db:"funding_tier"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`

	// Joined from users
	UserEmail string `db:"user_email"`
	UserPlan  string `db:"user_plan"`
}

// CountersConsistent checks completed+pending+failed against the keyword total:
// never above it, and equal once the batch is closed with nothing pending.
func (b *Batch) CountersConsistent() bool {
	if b.CompletedArticles < 0 || b.PendingArticles < 0 || b.FailedArticles < 0 {
		return false
	}
	sum := b.CompletedArticles + b.PendingArticles + b.FailedArticles
	if b.Status == BatchStatusClosed {
		return b.PendingArticles == 0 && sum == b.Articles
	}
	return sum <= b.Articles
}
