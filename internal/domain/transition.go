package domain

import "time"

// Transition is the full set of ledger writes for one batch decision.
// It is applied atomically, guarded by the batch's status and UpdatedAt snapshot.
type Transition struct {
	BatchID  string
	UserID   string
	Scenario Scenario

	// Snapshot is the batch UpdatedAt observed when the batch was read
	Snapshot time.Time
	// Now becomes the batch UpdatedAt on commit
	Now time.Time

	Promote  []PendingKeyword
	Dispatch []PendingKeyword
	Fail     []PendingKeyword

	// Remaining is the number of pending rows left after the transition
	Remaining  int
	Close      bool
	RefundTier Tier
}

// Refund is the number of credits owed back, one per force-failed keyword
func (t *Transition) Refund() int {
	return len(t.Fail)
}

// PromoteArticleIDs returns the article ids moving to completed
func (t *Transition) PromoteArticleIDs() []string {
	return articleIDs(t.Promote)
}

// FailArticleIDs returns the article ids moving to failed
func (t *Transition) FailArticleIDs() []string {
	return articleIDs(t.Fail)
}

// ResolvedPendingIDs returns the pending rows removed by this transition
func (t *Transition) ResolvedPendingIDs() []string {
	ids := make([]string, 0, len(t.Promote)+len(t.Fail))
	for _, p := range t.Promote {
		ids = append(ids, p.ID)
	}
	for _, p := range t.Fail {
		ids = append(ids, p.ID)
	}
	return ids
}

// DispatchPendingIDs returns the pending rows flipped to dispatched
func (t *Transition) DispatchPendingIDs() []string {
	ids := make([]string, 0, len(t.Dispatch))
	for _, p := range t.Dispatch {
		ids = append(ids, p.ID)
	}
	return ids
}

func articleIDs(rows []PendingKeyword) []string {
	ids := make([]string, 0, len(rows))
	for _, p := range rows {
		ids = append(ids, p.ArticleID)
	}
	return ids
}
